package middleware

import (
	"fmt"
	"runtime/debug"

	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"
)

// RecoverUpdate гасит панику при обработке апдейта, чтобы бот продолжал работать.
// Вызывать только через defer: recover срабатывает лишь в отложенной функции.
func RecoverUpdate(update telego.Update) {
	r := recover()
	if r == nil {
		return
	}

	fields := log.Fields{
		"update_id": update.UpdateID,
		"panic":     fmt.Sprint(r),
		"stack":     string(debug.Stack()),
	}
	if m := update.Message; m != nil {
		fields["chat_id"] = m.Chat.ID
		fields["text"] = SafeText(m.Text)
		if m.From != nil {
			fields["user_id"] = m.From.ID
		}
	}
	log.WithFields(fields).Error("Паника при обработке апдейта, бот продолжает работу")
}
