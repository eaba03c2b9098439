// Package middleware содержит промежуточные обработчики бота:
// логирование входящих сообщений и восстановление после паники.
package middleware

import (
	"unicode/utf8"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

const maxLoggedRunes = 50

// LogMessage логирует входящее сообщение.
// Записывает: user_id, chat_id, тип чата, username, текст (первые 50 символов).
func LogMessage(message *tgbotapi.Message) {
	if message == nil || message.From == nil || message.Chat == nil {
		return
	}

	log.WithFields(log.Fields{
		"user_id":   message.From.ID,
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"username":  message.From.UserName,
		"text":      truncate(message.Text, maxLoggedRunes),
	}).Debug("Входящее сообщение")
}

// truncate обрезает строку по символам, а не по байтам.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n]) + "..."
}
