package app

import (
	"compress/gzip"
	"io"
	"log"
	"os"
	"path/filepath"
	"runtime/debug"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	logMaxSizeMB  = 10
	logMaxBackups = 10
)

// logSink — один лог-файл с ротацией: основной bot.log и errors.log,
// куда дублируются только тревожные строки.
type logSink struct {
	path   string
	prefix string
	file   *os.File
}

var (
	logMu        sync.Mutex
	mainSink     = &logSink{path: logFilePath, prefix: "bot"}
	errSink      = &logSink{path: errLogPath, prefix: "errors"}
	appStartedAt time.Time
)

func markStart() {
	appStartedAt = time.Now()
}

func InitLogger() {
	log.SetFlags(log.Ldate | log.Ltime | log.Lmicroseconds)
	log.SetPrefix("KAZOO ")

	logMu.Lock()
	defer logMu.Unlock()

	if mainSink.file != nil {
		return
	}
	if err := os.MkdirAll(dirLogs, 0755); err != nil {
		log.Printf("⚠️ Не удалось создать директорию логов: %v", err)
	}
	mainSink.rotateIfNeeded()
	errSink.rotateIfNeeded()
	mainSink.open()
	errSink.open()
	log.SetOutput(newLevelWriter(mainSink.file, errSink.file))
}

func CloseLogger() {
	logMu.Lock()
	defer logMu.Unlock()
	mainSink.close()
	errSink.close()
}

// RotateLogsIfNeeded зовется из housekeeping: ротация по размеру
// (10 МБ) и по смене календарного дня.
func RotateLogsIfNeeded() {
	logMu.Lock()
	defer logMu.Unlock()
	mainSink.rotateIfNeeded()
	errSink.rotateIfNeeded()
	log.SetOutput(newLevelWriter(mainSink.file, errSink.file))
}

func (s *logSink) open() {
	file, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		log.Printf("⚠️ Не удалось открыть %s: %v", s.path, err)
		return
	}
	s.file = file
}

func (s *logSink) close() {
	if s.file != nil {
		_ = s.file.Close()
		s.file = nil
	}
}

func (s *logSink) rotateIfNeeded() {
	info, err := os.Stat(s.path)
	if err != nil || info.Size() == 0 {
		return
	}
	bySize := info.Size() >= int64(logMaxSizeMB)*1024*1024
	byDay := !sameDay(info.ModTime(), time.Now())
	if !bySize && !byDay {
		return
	}

	wasOpen := s.file != nil
	s.close()

	rotated := filepath.Join(filepath.Dir(s.path), s.prefix+"-"+time.Now().Format("20060102-150405")+".log")
	if err := os.Rename(s.path, rotated); err != nil {
		log.Printf("⚠️ Не удалось ротировать %s: %v", s.path, err)
		if wasOpen {
			s.open()
		}
		return
	}
	if wasOpen {
		s.open()
	}
	safeGo("log-compress-"+s.prefix, func() { compressLog(rotated) })
	s.cleanupBackups()
}

// cleanupBackups держит не больше logMaxBackups архивов на каждый sink.
func (s *logSink) cleanupBackups() {
	dir := filepath.Dir(s.path)
	entries, err := os.ReadDir(dir)
	if err != nil {
		return
	}
	type backup struct {
		name string
		mod  time.Time
	}
	var backups []backup
	for _, e := range entries {
		if e.IsDir() || !strings.HasPrefix(e.Name(), s.prefix+"-") {
			continue
		}
		if ext := filepath.Ext(e.Name()); ext != ".log" && ext != ".gz" {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		backups = append(backups, backup{name: e.Name(), mod: info.ModTime()})
	}
	sort.Slice(backups, func(i, j int) bool { return backups[i].mod.After(backups[j].mod) })
	for i := logMaxBackups; i < len(backups); i++ {
		_ = os.Remove(filepath.Join(dir, backups[i].name))
	}
}

func safeGo(name string, fn func()) {
	go func() {
		defer recoverPanic(name)
		fn()
	}()
}

func recoverPanic(name string) {
	if r := recover(); r != nil {
		log.Printf("💥 PANIC [%s]: %v\n%s", name, r, string(debug.Stack()))
	}
}

// levelWriter пишет все в stdout и основной лог, а строки с маркерами
// проблем дублирует в errors.log.
type levelWriter struct {
	out io.Writer
	err io.Writer
}

func newLevelWriter(mainFile, errFile *os.File) io.Writer {
	writers := []io.Writer{os.Stdout}
	if mainFile != nil {
		writers = append(writers, mainFile)
	}
	out := io.MultiWriter(writers...)
	if errFile == nil {
		return out
	}
	return &levelWriter{out: out, err: errFile}
}

var alertMarkers = []string{"⚠️", "❌", "💥", "PANIC", "ERROR"}

func (w *levelWriter) Write(p []byte) (int, error) {
	if w == nil {
		return 0, nil
	}
	_, _ = w.out.Write(p)
	line := string(p)
	for _, marker := range alertMarkers {
		if strings.Contains(line, marker) {
			_, _ = w.err.Write(p)
			break
		}
	}
	return len(p), nil
}

func compressLog(path string) {
	if strings.HasSuffix(path, ".gz") {
		return
	}
	in, err := os.Open(path)
	if err != nil {
		return
	}
	defer in.Close()
	out, err := os.Create(path + ".gz")
	if err != nil {
		return
	}
	gz := gzip.NewWriter(out)
	_, _ = io.Copy(gz, in)
	_ = gz.Close()
	_ = out.Close()
	_ = os.Remove(path)
}

func sameDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
