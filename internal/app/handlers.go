package app

import (
	"context"
	"errors"
	"fmt"
	"html"
	"log"
	"strings"
	"sync"
	"time"

	tele "gopkg.in/telebot.v3"
)

// ==========================================
// ТЕКСТЫ
// ==========================================

const (
	startText = "Привет! Я — бот «Угадай трек» 🎵\n\n" +
		"Я показываю песни по одной, без повторов. Отгадали в компании — жмите «Следующая песня». " +
		"Когда треки закончатся, можно начать круг заново."

	helpText = "Как играть:\n" +
		"▶️ «Поехали» — получить первую песню.\n" +
		"⏭ «Следующая песня» — песня, которой вам еще не показывали.\n" +
		"🔁 «Начать сначала» — сбросить прогресс и пройти каталог заново.\n\n" +
		"Подсказка к песне спрятана под спойлером — нажмите, чтобы открыть."

	cycleCompleteText = "🎉 Это были все песни! Хотите пройти каталог еще раз?"
	noTracksText      = "Каталог пока пуст. Загляните позже!"
	pickErrorText     = "Произошла ошибка, попробуйте еще раз."
)

// ==========================================
// МЕНЮ И КНОПКИ
// ==========================================

var (
	startMenu = &tele.ReplyMarkup{}
	btnGo     = startMenu.Data("▶️ Поехали", "go")
	btnHelp   = startMenu.Data("❓ Помощь", "help")

	gameMenu   = &tele.ReplyMarkup{}
	btnNext    = gameMenu.Data("⏭ Следующая песня", "next")
	btnRestart = gameMenu.Data("🔁 Начать сначала", "restart")

	cycleMenu = &tele.ReplyMarkup{}
	btnAgain  = cycleMenu.Data("🔁 Начать сначала", "restart")
)

func InitMenus() {
	startMenu.Inline(startMenu.Row(btnGo, btnHelp))
	gameMenu.Inline(gameMenu.Row(btnNext), gameMenu.Row(btnRestart))
	cycleMenu.Inline(cycleMenu.Row(btnAgain))
}

// ==========================================
// РЕГИСТРАЦИЯ
// ==========================================

func RegisterHandlers(b *tele.Bot) {
	b.Use(RecoverMiddleware())
	b.Use(Middleware())

	b.Handle("/start", HandleStart)
	b.Handle("/help", HandleHelp)

	b.Handle(tele.OnCallback, func(c tele.Context) error {
		// Всегда подтверждаем callback, чтобы убрать "часики" на кнопке.
		defer func() {
			_ = c.Respond()
		}()
		return processCallback(c)
	})
}

var (
	userLastReq   = make(map[int64]time.Time)
	userLastReqMu sync.Mutex
)

// Middleware обновляет запись пользователя при любом контакте и
// глушит слишком частые нажатия (окно 1 секунда на пользователя).
func Middleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			sender := c.Sender()
			if sender == nil {
				return next(c)
			}

			// Rate Limit
			userLastReqMu.Lock()
			last, exists := userLastReq[sender.ID]
			if exists && time.Since(last) < 1*time.Second {
				userLastReqMu.Unlock()
				if c.Callback() != nil {
					return c.Respond()
				}
				return nil
			}
			userLastReq[sender.ID] = time.Now()
			userLastReqMu.Unlock()

			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := store.UpsertUser(ctx, sender.ID, sender.Username); err != nil {
				log.Printf("⚠️ Не удалось сохранить пользователя %d: %v", sender.ID, err)
			}
			cancel()

			return next(c)
		}
	}
}

func processCallback(c tele.Context) error {
	if c.Callback() == nil || c.Sender() == nil {
		return nil
	}
	data := strings.TrimSpace(c.Callback().Data)
	// telebot добавляет к data кнопки префикс "\f<unique>|"
	data = strings.TrimPrefix(data, "\f")
	if i := strings.IndexByte(data, '|'); i >= 0 {
		data = data[:i]
	}

	switch data {
	case "help":
		return c.Send(helpText)
	case "go", "next":
		return sendNextTrack(c)
	case "restart":
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := quizManager.ResetCycle(ctx, c.Sender().ID); err != nil {
			log.Printf("⚠️ Ошибка сброса цикла для %d: %v", c.Sender().ID, err)
			return c.Send(pickErrorText)
		}
		return sendNextTrack(c)
	}
	return nil
}

func HandleStart(c tele.Context) error {
	return c.Send(startText, startMenu)
}

func HandleHelp(c tele.Context) error {
	return c.Send(helpText)
}

func sendNextTrack(c tele.Context) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	track, err := quizManager.PickNextTrack(ctx, c.Sender().ID)
	if err != nil {
		if errors.Is(err, ErrCycleComplete) {
			total, countErr := store.CountUsedTracks(ctx, c.Sender().ID)
			if countErr == nil && total == 0 {
				return c.Send(noTracksText)
			}
			return c.Send(cycleCompleteText, cycleMenu)
		}
		log.Printf("⚠️ Ошибка выбора трека для %d: %v", c.Sender().ID, err)
		return c.Send(pickErrorText)
	}
	return c.Send(formatTrackCard(track), gameMenu, tele.ModeHTML)
}

// formatTrackCard — карточка песни: название, баллы, подсказка под
// спойлером.
func formatTrackCard(t *Track) string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("🎵 <b>%s</b>", html.EscapeString(t.Title)))
	if t.Points > 0 {
		sb.WriteString(fmt.Sprintf("\n%s баллов", pointsGlyph(t.Points)))
	}
	if strings.TrimSpace(t.Hint) != "" {
		sb.WriteString(fmt.Sprintf("\n\n💡 <tg-spoiler>%s</tg-spoiler>", html.EscapeString(t.Hint)))
	}
	return sb.String()
}
