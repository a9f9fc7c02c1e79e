package app

import (
	"context"
	"encoding/json"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	tele "gopkg.in/telebot.v3"
)

// ==========================================
// КОНФИГУРАЦИЯ
// ==========================================

type Config struct {
	Token         string `json:"token"`
	AdminPassword string `json:"admin_password"`
	WebAddr       string `json:"web_addr"`
	BotAPIUrl     string `json:"bot_api_url"`
	Storage       string `json:"storage"` // sqlite | mongo
	MongoURI      string `json:"mongo_uri"`
	MongoDB       string `json:"mongo_db"`
}

// ==========================================
// ГЛОБАЛЬНЫЕ ПЕРЕМЕННЫЕ (Общие для всех файлов)
// ==========================================

var (
	config      Config
	store       Store
	quizManager *QuizManager
	broadcaster *Broadcaster
)

// ==========================================
// MAIN
// ==========================================

func Run() {
	initAppLayout()
	InitLogger()
	defer CloseLogger()
	markStart()

	// 1. Загрузка конфигурации (.env → config.json → env-переменные)
	_ = godotenv.Load()
	if err := loadJSON(configFilePath, &config); err != nil && !os.IsNotExist(err) {
		log.Printf("⚠️ Поврежден %s: %v", configFilePath, err)
	}
	applyEnvOverrides(&config)
	if strings.TrimSpace(config.Token) == "" {
		log.Fatalf("❌ Критическая ошибка: не задан токен бота (KAZOO_BOT_TOKEN)")
	}

	// 2. Хранилище
	var err error
	store, err = openStore()
	if err != nil {
		log.Fatalf("❌ Критическая ошибка хранилища: %v", err)
	}

	quizManager = NewQuizManager(store)

	// 3. Бот
	log.Println("🔄 Попытка подключения к Telegram API...")
	pref := tele.Settings{
		Token: config.Token,
		URL:   config.BotAPIUrl,
		Poller: &tele.LongPoller{
			Timeout: 10 * time.Second,
		},
		OnError: func(err error, c tele.Context) {
			log.Printf("❌ Ошибка в Bot Poller: %v", err)
			if c != nil && c.Chat() != nil {
				log.Printf("   -> В чате: %v", c.Chat().ID)
			}
		},
	}

	b, err := tele.NewBot(pref)
	if err != nil {
		log.Fatalf("❌ КРИТИЧЕСКАЯ ОШИБКА при создании бота (проверьте токен): %v", err)
	}

	broadcaster = NewBroadcaster(store, NewTelebotCourier(b), dirUploads)

	InitMenus()
	RegisterHandlers(b)

	// 4. Веб-панель
	admin, err := NewAdminService(store, broadcaster, config.AdminPassword)
	if err != nil {
		log.Fatalf("❌ Критическая ошибка админки: %v", err)
	}
	safeGo("web-server", func() { startWebServer(config.WebAddr, admin) })
	safeGo("housekeeping", startHousekeeping)

	log.Printf("✅ Соединение установлено! Бот: @%s (ID: %d)", b.Me.Username, b.Me.ID)

	// Сброс вебхука и зависших апдейтов после смены сервера.
	if err := b.RemoveWebhook(true); err != nil {
		log.Printf("⚠️ Не удалось сбросить вебхук: %v", err)
	}

	safeGo("bot", func() { b.Start() })

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	log.Println("⏹ Завершение работы...")
	b.Stop()
	if err := store.Close(); err != nil {
		log.Printf("⚠️ Ошибка закрытия БД: %v", err)
	}
}

func openStore() (Store, error) {
	if strings.EqualFold(strings.TrimSpace(config.Storage), "mongo") {
		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		dbName := config.MongoDB
		if dbName == "" {
			dbName = "kazoo"
		}
		log.Println("🔌 Хранилище: MongoDB")
		return NewMongoStore(ctx, config.MongoURI, dbName)
	}
	log.Println("🔌 Хранилище: SQLite")
	return NewGormStore(dbFilePath)
}

func applyEnvOverrides(cfg *Config) {
	if cfg == nil {
		return
	}
	if v := os.Getenv("KAZOO_BOT_TOKEN"); v != "" {
		cfg.Token = v
	}
	if v := os.Getenv("KAZOO_ADMIN_PASSWORD"); v != "" {
		cfg.AdminPassword = v
	}
	if v := os.Getenv("KAZOO_WEB_ADDR"); v != "" {
		cfg.WebAddr = v
	}
	if v := os.Getenv("KAZOO_BOT_API_URL"); v != "" {
		cfg.BotAPIUrl = v
	}
	if v := os.Getenv("KAZOO_STORAGE"); v != "" {
		cfg.Storage = v
	}
	if v := os.Getenv("KAZOO_MONGO_URI"); v != "" {
		cfg.MongoURI = v
	}
	if v := os.Getenv("KAZOO_MONGO_DB"); v != "" {
		cfg.MongoDB = v
	}
}

func loadJSON(path string, dst any) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, dst)
}
