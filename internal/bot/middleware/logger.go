// Package middleware содержит промежуточные обработчики для логирования,
// восстановления после паники и rate-limiting.
package middleware

import (
	"unicode/utf8"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

const logTextLimit = 50

// LogMessage логирует входящее сообщение.
// Коды карт в логи не попадают: для /redeem пишется только команда.
func LogMessage(message *telego.Message, command string) {
	if message == nil || message.From == nil {
		return
	}

	text := message.Text
	if command == "redeem" {
		text = "/redeem ***"
	} else if utf8.RuneCountInString(text) > logTextLimit {
		text = string([]rune(text)[:logTextLimit]) + "..."
	}

	log.WithFields(log.Fields{
		"tg_user_id": message.From.ID,
		"chat_id":    message.Chat.ID,
		"username":   message.From.Username,
		"text":       text,
	}).Debug("Входящее сообщение")
}
