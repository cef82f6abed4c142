// Package middleware содержит промежуточные обработчики админ-бота:
// логирование, восстановление после паники и rate-limiting.
package middleware

import (
	"unicode/utf8"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// maxLoggedText — сколько символов текста попадает в лог.
const maxLoggedText = 50

// LogMessage логирует входящее сообщение.
// Пароль после /login в лог не попадает.
func LogMessage(message *telego.Message) {
	if message == nil || message.From == nil {
		return
	}

	log.WithFields(log.Fields{
		"user_id":  message.From.ID,
		"chat_id":  message.Chat.ID,
		"username": message.From.Username,
		"text":     SafeText(message.Text),
	}).Debug("Входящее сообщение")
}

// SafeText обрезает текст для лога и скрывает аргументы /login.
func SafeText(text string) string {
	if len(text) >= len("/login") && text[:len("/login")] == "/login" {
		return "/login ***"
	}
	if utf8.RuneCountInString(text) > maxLoggedText {
		runes := []rune(text)
		return string(runes[:maxLoggedText]) + "..."
	}
	return text
}
