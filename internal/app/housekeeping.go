package app

import (
	"log"
	"os"
	"path/filepath"
	"time"
)

// startHousekeeping — фоновая уборка: карта rate limit, ротация логов,
// брошенные временные архивы восстановления, контроль рантайма.
func startHousekeeping() {
	ticker := time.NewTicker(30 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		cleanupRateLimits(36 * time.Hour)
		cleanupTmpFiles(24 * time.Hour)
		RotateLogsIfNeeded()
		monitorRuntime()
	}
}

func cleanupRateLimits(maxAge time.Duration) {
	cutoff := time.Now().Add(-maxAge)
	userLastReqMu.Lock()
	for id, t := range userLastReq {
		if t.Before(cutoff) {
			delete(userLastReq, id)
		}
	}
	userLastReqMu.Unlock()
}

// cleanupTmpFiles убирает из storage/tmp архивы, оставшиеся после
// прерванного восстановления.
func cleanupTmpFiles(maxAge time.Duration) {
	entries, err := os.ReadDir(dirTmp)
	if err != nil {
		return
	}
	cutoff := time.Now().Add(-maxAge)
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		info, err := entry.Info()
		if err != nil || info.ModTime().After(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(dirTmp, entry.Name())); err != nil {
			log.Printf("⚠️ Не удалось удалить временный файл %s: %v", entry.Name(), err)
		}
	}
}

var lastGoroutines int
var lastAliveLog time.Time

func monitorRuntime() {
	gor, alloc, _, sys := runtimeStats()
	if lastGoroutines > 0 && gor > lastGoroutines+300 {
		log.Printf("⚠️ Возможная утечка: goroutines выросли %d -> %d", lastGoroutines, gor)
	}
	if gor > 2000 {
		log.Printf("⚠️ Много goroutines: %d", gor)
	}
	if alloc > 600*1024*1024 {
		log.Printf("⚠️ Высокое потребление памяти: %s (sys %s)", formatBytes(alloc), formatBytes(sys))
	}
	if lastAliveLog.IsZero() || time.Since(lastAliveLog) > 6*time.Hour {
		uptime := time.Since(appStartedAt)
		log.Printf("💓 Watchdog: uptime %s, goroutines %d, mem %s", formatDuration(uptime), gor, formatBytes(alloc))
		lastAliveLog = time.Now()
	}
	lastGoroutines = gor
}
