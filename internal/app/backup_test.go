package app

import (
	"archive/zip"
	"bytes"
	"os"
	"path/filepath"
	"testing"
)

// chdirTemp переводит тест во временный каталог, чтобы storage/tmp и
// распакованные файлы не попадали в дерево исходников.
func chdirTemp(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	old, err := os.Getwd()
	if err != nil {
		t.Fatalf("Getwd: %v", err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatalf("Chdir: %v", err)
	}
	t.Cleanup(func() { _ = os.Chdir(old) })
	return dir
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll(%s): %v", path, err)
	}
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
}

func archiveNames(t *testing.T, raw []byte) map[string]string {
	t.Helper()
	zr, err := zip.NewReader(bytes.NewReader(raw), int64(len(raw)))
	if err != nil {
		t.Fatalf("zip.NewReader: %v", err)
	}
	entries := map[string]string{}
	for _, f := range zr.File {
		rc, err := f.Open()
		if err != nil {
			t.Fatalf("open %s: %v", f.Name, err)
		}
		var buf bytes.Buffer
		if _, err := buf.ReadFrom(rc); err != nil {
			t.Fatalf("read %s: %v", f.Name, err)
		}
		_ = rc.Close()
		entries[f.Name] = buf.String()
	}
	return entries
}

func TestWriteBackupArchiveKeepsRelativeLayout(t *testing.T) {
	base := chdirTemp(t)
	writeFile(t, filepath.Join(base, "uploads", "db.sqlite3"), "db-bytes")
	writeFile(t, filepath.Join(base, "uploads", "broadcasts", "1", "photo", "a.jpg"), "jpg")

	var buf bytes.Buffer
	if err := writeBackupArchive(&buf, base, "uploads"); err != nil {
		t.Fatalf("writeBackupArchive: %v", err)
	}

	entries := archiveNames(t, buf.Bytes())
	if got := entries["uploads/db.sqlite3"]; got != "db-bytes" {
		t.Fatalf("db entry = %q; want %q", got, "db-bytes")
	}
	if got := entries["uploads/broadcasts/1/photo/a.jpg"]; got != "jpg" {
		t.Fatalf("nested entry = %q; want %q", got, "jpg")
	}
}

func TestWriteBackupArchiveMissingRoot(t *testing.T) {
	base := chdirTemp(t)

	var buf bytes.Buffer
	if err := writeBackupArchive(&buf, base, "uploads"); err != nil {
		t.Fatalf("writeBackupArchive: %v", err)
	}
	// Архив должен быть валидным и пустым.
	if entries := archiveNames(t, buf.Bytes()); len(entries) != 0 {
		t.Fatalf("expected empty archive, got %#v", entries)
	}
}

func buildArchive(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var buf bytes.Buffer
	zw := zip.NewWriter(&buf)
	for name, content := range files {
		w, err := zw.Create(name)
		if err != nil {
			t.Fatalf("Create(%s): %v", name, err)
		}
		if _, err := w.Write([]byte(content)); err != nil {
			t.Fatalf("Write(%s): %v", name, err)
		}
	}
	if err := zw.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	return buf.Bytes()
}

func TestRestoreArchiveRoundTrip(t *testing.T) {
	base := chdirTemp(t)
	writeFile(t, filepath.Join(base, "uploads", "stale.txt"), "old")

	raw := buildArchive(t, map[string]string{
		"uploads/db.sqlite3":    "restored-db",
		"uploads/sub/track.mp3": "restored-mp3",
		"uploads/stale.txt":     "new",
	})

	if err := restoreArchive(bytes.NewReader(raw), base, "uploads"); err != nil {
		t.Fatalf("restoreArchive: %v", err)
	}

	tests := []struct {
		path, want string
	}{
		{filepath.Join(base, "uploads", "db.sqlite3"), "restored-db"},
		{filepath.Join(base, "uploads", "sub", "track.mp3"), "restored-mp3"},
		{filepath.Join(base, "uploads", "stale.txt"), "new"},
	}
	for _, tt := range tests {
		got, err := os.ReadFile(tt.path)
		if err != nil {
			t.Fatalf("ReadFile(%s): %v", tt.path, err)
		}
		if string(got) != tt.want {
			t.Fatalf("%s = %q; want %q", tt.path, got, tt.want)
		}
	}
}

func TestRestoreArchiveRelativeBase(t *testing.T) {
	chdirTemp(t)

	// Продовый вызов идет с baseDir "." относительно рабочего каталога.
	raw := buildArchive(t, map[string]string{
		"uploads/db.sqlite3":      "db",
		"uploads/nested/file.txt": "nested",
	})
	if err := restoreArchive(bytes.NewReader(raw), ".", "uploads"); err != nil {
		t.Fatalf("restoreArchive: %v", err)
	}

	tests := []struct {
		path, want string
	}{
		{filepath.Join("uploads", "db.sqlite3"), "db"},
		{filepath.Join("uploads", "nested", "file.txt"), "nested"},
	}
	for _, tt := range tests {
		got, err := os.ReadFile(tt.path)
		if err != nil {
			t.Fatalf("entry not extracted with relative base: %v", err)
		}
		if string(got) != tt.want {
			t.Fatalf("%s = %q; want %q", tt.path, got, tt.want)
		}
	}
}

func TestRestoreArchiveSkipsRootNamedFile(t *testing.T) {
	base := chdirTemp(t)
	if err := os.MkdirAll(filepath.Join(base, "uploads"), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}

	// Файловая запись с именем корня не должна валить восстановление.
	raw := buildArchive(t, map[string]string{
		"uploads":          "bad",
		"uploads/good.txt": "ok",
	})
	if err := restoreArchive(bytes.NewReader(raw), base, "uploads"); err != nil {
		t.Fatalf("restoreArchive: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(base, "uploads", "good.txt"))
	if err != nil || string(got) != "ok" {
		t.Fatalf("good entry missing: %v, %q", err, got)
	}
	info, err := os.Stat(filepath.Join(base, "uploads"))
	if err != nil || !info.IsDir() {
		t.Fatalf("uploads must stay a directory: %v", err)
	}
}

func TestRestoreArchiveSkipsForeignEntries(t *testing.T) {
	base := chdirTemp(t)

	raw := buildArchive(t, map[string]string{
		"uploads/good.txt":       "ok",
		"../evil.txt":            "bad",
		"uploads/../../evil.txt": "bad",
		"passwd":                 "bad",
		"uploads\\..\\win.txt":   "bad",
	})

	if err := restoreArchive(bytes.NewReader(raw), base, "uploads"); err != nil {
		t.Fatalf("restoreArchive: %v", err)
	}

	got, err := os.ReadFile(filepath.Join(base, "uploads", "good.txt"))
	if err != nil || string(got) != "ok" {
		t.Fatalf("good entry missing: %v, %q", err, got)
	}

	for _, bad := range []string{
		filepath.Join(base, "..", "evil.txt"),
		filepath.Join(base, "evil.txt"),
		filepath.Join(base, "passwd"),
		filepath.Join(base, "win.txt"),
	} {
		if _, err := os.Stat(bad); err == nil {
			t.Fatalf("foreign entry extracted to %s", bad)
		}
	}
}

func TestRestoreArchiveRejectsGarbage(t *testing.T) {
	base := chdirTemp(t)
	if err := restoreArchive(bytes.NewReader([]byte("not a zip")), base, "uploads"); err == nil {
		t.Fatalf("expected error for non-zip input")
	}
}
