package app

import (
	"fmt"
	"os"
	"path/filepath"
)

const (
	dirConfigs = "configs"
	dirUploads = "uploads"
	dirTmp     = "storage/tmp"
	dirLogs    = "logs"
)

var (
	configFilePath = filepath.Join(dirConfigs, "config.json")

	// БД лежит внутри uploads — так резервная копия каталога
	// захватывает и файлы рассылок, и сам каталог треков.
	dbFilePath = filepath.Join(dirUploads, "db.sqlite3")

	logFilePath = filepath.Join(dirLogs, "bot.log")
	errLogPath  = filepath.Join(dirLogs, "errors.log")
)

func initAppLayout() {
	dirs := []string{dirConfigs, dirUploads, dirTmp, dirLogs}
	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0755); err != nil {
			fmt.Printf("⚠️ Не удалось создать каталог %s: %v\n", dir, err)
		}
	}

	migrateLegacyFile("config.json", configFilePath)
	migrateLegacyFile("db.sqlite3", dbFilePath)
	migrateLegacyFile("bot.log", logFilePath)
	migrateLegacyFile("errors.log", errLogPath)
}

func migrateLegacyFile(oldPath, newPath string) {
	info, err := os.Stat(oldPath)
	if err != nil || info.IsDir() {
		return
	}
	if _, err := os.Stat(newPath); err == nil {
		return
	}
	if err := os.MkdirAll(filepath.Dir(newPath), 0755); err != nil {
		fmt.Printf("⚠️ Не удалось создать каталог для %s: %v\n", newPath, err)
		return
	}
	if err := os.Rename(oldPath, newPath); err != nil {
		fmt.Printf("⚠️ Не удалось переместить %s -> %s: %v\n", oldPath, newPath, err)
	}
}
