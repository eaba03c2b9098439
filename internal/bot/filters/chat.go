// Package filters решает, на какие сообщения бот отвечает.
package filters

import (
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	log "github.com/sirupsen/logrus"
)

// PrivateOnly пропускает только личные сообщения от пользователя.
// Группы, каналы и служебные сообщения без отправителя отбрасываются.
func PrivateOnly(message *tgbotapi.Message) bool {
	if message == nil || message.Chat == nil {
		log.WithField("component", "ChatFilter").Warn("nil message/chat")
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("nil message.From (service/channel message?)")
		return false
	}
	if message.From.IsBot {
		return false
	}
	if !message.Chat.IsPrivate() {
		log.WithFields(log.Fields{
			"component": "ChatFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
			"user_id":   message.From.ID,
		}).Debug("Сообщение не из личного чата — пропускаем")
		return false
	}
	return true
}
