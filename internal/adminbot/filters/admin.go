// Package filters решает, какие сообщения админ-бот вообще рассматривает.
package filters

import (
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// AdminChecker сообщает, является ли пользователь администратором.
type AdminChecker interface {
	IsAdmin(userID int64) bool
}

// AdminFilter пропускает только личные сообщения администраторов.
type AdminFilter struct {
	admins AdminChecker
}

// NewAdminFilter создаёт фильтр.
func NewAdminFilter(admins AdminChecker) *AdminFilter {
	return &AdminFilter{admins: admins}
}

// CheckAccess возвращает true, если сообщение нужно обработать.
func (f *AdminFilter) CheckAccess(message *telego.Message) bool {
	if message == nil {
		return false
	}
	if message.From == nil {
		log.WithFields(log.Fields{
			"component": "AdminFilter",
			"chat_id":   message.Chat.ID,
			"chat_type": message.Chat.Type,
		}).Debug("nil message.From (service/channel message?)")
		return false
	}

	logger := log.WithFields(log.Fields{
		"component": "AdminFilter",
		"chat_id":   message.Chat.ID,
		"chat_type": message.Chat.Type,
		"user_id":   message.From.ID,
	})

	// Админка работает только в личке: пароль и суммы не должны светиться в группах
	if message.Chat.Type != telego.ChatTypePrivate {
		logger.Debug("deny: not private chat")
		return false
	}
	if !f.admins.IsAdmin(message.From.ID) {
		logger.Info("deny: not an admin")
		return false
	}
	return true
}
