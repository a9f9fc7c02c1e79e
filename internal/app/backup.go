package app

import (
	"archive/zip"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
)

// writeBackupArchive пакует каталог <baseDir>/<rootName> в zip.
// Имена записей начинаются с rootName ("uploads/..."), так что при
// восстановлении архив раскладывается на то же место. Отсутствующий
// каталог — не ошибка, уходит пустой архив.
func writeBackupArchive(w io.Writer, baseDir, rootName string) error {
	zw := zip.NewWriter(w)
	root := filepath.Join(baseDir, rootName)

	info, err := os.Stat(root)
	if err != nil || !info.IsDir() {
		return zw.Close()
	}

	walkErr := filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, p)
		if err != nil {
			return err
		}
		name := path.Join(rootName, filepath.ToSlash(rel))

		entry, err := zw.Create(name)
		if err != nil {
			return err
		}
		src, err := os.Open(p)
		if err != nil {
			return err
		}
		_, err = io.Copy(entry, src)
		_ = src.Close()
		return err
	})
	if walkErr != nil {
		_ = zw.Close()
		return fmt.Errorf("обход %s: %w", root, walkErr)
	}
	return zw.Close()
}

// restoreArchive раскладывает загруженный архив поверх <baseDir>.
// Пропускаются все записи, чей нормализованный путь не начинается с
// rootName — защита от выхода из каталога (zip-slip). Временный файл
// удаляется при любом исходе.
func restoreArchive(src io.Reader, baseDir, rootName string) error {
	if err := os.MkdirAll(dirTmp, 0755); err != nil {
		return fmt.Errorf("создание временного каталога: %w", err)
	}
	tmp, err := os.CreateTemp(dirTmp, "restore_*.zip")
	if err != nil {
		return fmt.Errorf("временный файл: %w", err)
	}
	tmpPath := tmp.Name()
	defer os.Remove(tmpPath)

	if _, err := io.Copy(tmp, src); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("сохранение архива: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("сохранение архива: %w", err)
	}

	zr, err := zip.OpenReader(tmpPath)
	if err != nil {
		return fmt.Errorf("чтение архива: %w", err)
	}
	defer zr.Close()

	for _, entry := range zr.File {
		if err := extractEntry(entry, baseDir, rootName); err != nil {
			return err
		}
	}
	return nil
}

func extractEntry(entry *zip.File, baseDir, rootName string) error {
	if entry == nil {
		return nil
	}
	name := strings.TrimSpace(entry.Name)
	if name == "" || strings.HasSuffix(name, "/") {
		return nil
	}

	clean := path.Clean(strings.ReplaceAll(name, "\\", "/"))
	// Запись с именем самого корня — это каталог на диске, файлом
	// поверх него она не встанет.
	if clean == rootName || !strings.HasPrefix(clean, rootName+"/") {
		return nil
	}

	// Сравнение по абсолютным путям: baseDir в проде — ".".
	base, err := filepath.Abs(baseDir)
	if err != nil {
		return fmt.Errorf("разрешение каталога восстановления: %w", err)
	}
	target := filepath.Join(base, filepath.FromSlash(clean))
	if !strings.HasPrefix(target, base+string(os.PathSeparator)) {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return fmt.Errorf("создание каталога для %s: %w", clean, err)
	}

	src, err := entry.Open()
	if err != nil {
		return fmt.Errorf("открытие записи %s: %w", clean, err)
	}
	defer src.Close()

	dst, err := os.Create(target)
	if err != nil {
		return fmt.Errorf("запись %s: %w", clean, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("распаковка %s: %w", clean, err)
	}
	return dst.Close()
}
