package app

import (
	"log"
	"runtime/debug"

	tele "gopkg.in/telebot.v3"
)

// RecoverMiddleware гасит панику в обработчике, чтобы один кривой
// апдейт не ронял весь поллер.
func RecoverMiddleware() tele.MiddlewareFunc {
	return func(next tele.HandlerFunc) tele.HandlerFunc {
		return func(c tele.Context) error {
			defer func() {
				if r := recover(); r != nil {
					if c != nil && c.Sender() != nil {
						log.Printf("💥 PANIC [handler] от пользователя %d: %v\n%s", c.Sender().ID, r, string(debug.Stack()))
					} else {
						log.Printf("💥 PANIC [handler]: %v\n%s", r, string(debug.Stack()))
					}
				}
			}()
			return next(c)
		}
	}
}
