// Package adminbot — Telegram-консоль администратора поверх ядра леджера.
// bot.go отвечает за polling, фильтрацию апдейтов и маршрутизацию команд.
package adminbot

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/mymmrac/telego"
	tu "github.com/mymmrac/telego/telegoutil"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/adminbot/filters"
	"serotonyl.ru/streaming-ledger/internal/adminbot/middleware"
	"serotonyl.ru/streaming-ledger/internal/config"
	"serotonyl.ru/streaming-ledger/internal/features/admin"
	"serotonyl.ru/streaming-ledger/internal/features/agents"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/features/orders"
)

// Sender отправляет сообщения. *telego.Bot удовлетворяет интерфейсу.
type Sender interface {
	SendMessage(ctx context.Context, params *telego.SendMessageParams) (*telego.Message, error)
}

// Services — сервисы ядра, которыми управляет админка.
type Services struct {
	Admin   *admin.Service
	Balance *balance.Service
	Orders  *orders.Service
	Agents  *agents.Service
}

// Bot — админ-бот.
type Bot struct {
	api    *telego.Bot
	sender Sender
	cfg    *config.Config
	loc    *time.Location

	svc Services

	adminFilter *filters.AdminFilter
	rateLimiter *middleware.RateLimiter
	parser      *CommandParser

	// ограничитель параллелизма обработки апдейтов
	inflight chan struct{}
	wg       sync.WaitGroup
}

// New создаёт бота поверх telego-клиента.
func New(api *telego.Bot, cfg *config.Config, svc Services) *Bot {
	b := newBot(api, cfg, svc)
	b.api = api
	return b
}

func newBot(sender Sender, cfg *config.Config, svc Services) *Bot {
	maxInFlight := cfg.BotMaxInflight
	if maxInFlight <= 0 {
		maxInFlight = 16
	}

	return &Bot{
		sender:      sender,
		cfg:         cfg,
		loc:         cfg.Location(),
		svc:         svc,
		adminFilter: filters.NewAdminFilter(svc.Admin),
		rateLimiter: middleware.NewRateLimiter(cfg.RateLimitPerSecond, cfg.RateLimitBurst),
		parser:      NewCommandParser(),
		inflight:    make(chan struct{}, maxInFlight),
	}
}

// Start запускает long polling и блокируется до отмены ctx.
func (b *Bot) Start(ctx context.Context) error {
	defer b.rateLimiter.Close()

	updates, err := b.api.UpdatesViaLongPolling(ctx, &telego.GetUpdatesParams{
		Timeout: b.cfg.BotUpdateTimeoutSeconds,
	})
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"max_inflight": cap(b.inflight),
		"timeout_sec":  b.cfg.BotUpdateTimeoutSeconds,
	}).Info("Админ-бот запущен и ожидает сообщения...")

	// Канал закрывается сам после отмены ctx
	for update := range updates {
		b.inflight <- struct{}{}
		b.wg.Add(1)
		go func(upd telego.Update) {
			defer func() {
				<-b.inflight
				b.wg.Done()
			}()
			b.handleUpdate(ctx, upd)
		}(update)
	}

	b.wg.Wait()
	log.Info("Админ-бот остановлен")
	return nil
}

// handleUpdate обрабатывает одно обновление от Telegram.
func (b *Bot) handleUpdate(ctx context.Context, update telego.Update) {
	defer middleware.RecoverUpdate(update)

	message := update.Message
	if message == nil || message.Text == "" {
		return
	}

	middleware.LogMessage(message)

	if !b.adminFilter.CheckAccess(message) {
		return
	}

	userID := message.From.ID
	if !b.rateLimiter.Allow(userID) {
		log.WithField("user_id", userID).Debug("rate limited")
		return
	}

	if reply := b.handleText(ctx, userID, message.Text); reply != "" {
		b.sendMessage(ctx, message.Chat.ID, reply)
	}
}

// handleText возвращает ответ на текст администратора (пустая строка — не отвечать).
func (b *Bot) handleText(ctx context.Context, userID int64, text string) string {
	cmd, args, isCommand := b.parser.ParseCommand(text)

	if !isCommand {
		state := b.svc.Admin.GetState(userID)
		if state == nil {
			return ""
		}
		switch state.Name {
		case admin.StateAwaitingPassword:
			b.svc.Admin.ClearState(userID)
			return b.login(ctx, userID, strings.TrimSpace(text))
		case admin.StateConfirmBatch:
			b.svc.Admin.ClearState(userID)
			return b.confirmBatch(ctx, userID, state, text)
		}
		return ""
	}

	// Новая команда отменяет незавершённый диалог
	b.svc.Admin.ClearState(userID)

	log.WithFields(log.Fields{
		"cmd":  cmd,
		"args": len(args),
	}).Debug("routing command")

	switch cmd {
	case "start", "help":
		return helpText
	case "login":
		if len(args) == 0 {
			b.svc.Admin.SetState(userID, admin.StateAwaitingPassword, nil)
			return "🔐 Введите пароль администратора"
		}
		return b.login(ctx, userID, strings.Join(args, " "))
	case "logout":
		return b.logout(ctx, userID)
	}

	if err := b.svc.Admin.Authorize(ctx, userID); err != nil {
		return errorText(err)
	}
	return b.routeCommand(ctx, userID, cmd, args)
}

// routeCommand маршрутизирует команду авторизованного администратора.
func (b *Bot) routeCommand(ctx context.Context, userID int64, cmd string, args []string) string {
	switch cmd {
	case "orders":
		return b.handleOrders(ctx, args)
	case "approve":
		return b.handleApprove(ctx, userID, args)
	case "reject":
		return b.handleReject(ctx, userID, args)
	case "balance":
		return b.handleBalance(ctx, args)
	case "adjust":
		return b.handleAdjust(ctx, userID, args)
	case "batchadjust":
		return b.handleBatchAdjust(userID, args)
	case "agents":
		return b.handlePendingAgents(ctx)
	case "levels":
		return b.handleLevels(ctx)
	case "agent_approve":
		return b.handleAgentApprove(ctx, userID, args)
	case "agent_reject":
		return b.handleAgentStatus(ctx, userID, args, b.svc.Agents.Reject, "❌ Заявка отклонена")
	case "agent_disable":
		return b.handleAgentStatus(ctx, userID, args, b.svc.Agents.Disable, "⏸ Агент отключён")
	case "agent_enable":
		return b.handleAgentStatus(ctx, userID, args, b.svc.Agents.Enable, "▶️ Агент включён")
	case "agent_level":
		return b.handleAgentLevel(ctx, userID, args)
	case "agent_rates":
		return b.handleAgentRates(ctx, userID, args)
	default:
		return "❓ Неизвестная команда. /help — список команд"
	}
}

// sendMessage — утилита для отправки сообщений.
func (b *Bot) sendMessage(ctx context.Context, chatID int64, text string) {
	if _, err := b.sender.SendMessage(ctx, tu.Message(tu.ID(chatID), text)); err != nil {
		log.WithError(err).WithField("chat_id", chatID).Error("Ошибка отправки сообщения")
	}
}

const helpText = `🛠 Админ-консоль

/login [пароль] — вход (сессия 24 часа)
/logout — выход

Заказы:
/orders [pending|paid|approved] — список (по умолчанию paid)
/approve <id> — одобрить оплату
/reject <id> [причина] — отклонить

Балансы:
/balance <аккаунт> — балансы и сверка с журналом
/adjust <аккаунт> <coins|commission> <±сумма> [комментарий]
/batchadjust <coins|commission> <±сумма> <id,id,...> [комментарий]

Агенты:
/agents — заявки на рассмотрении
/levels — лестница уровней
/agent_approve <аккаунт>
/agent_reject <аккаунт>
/agent_disable <аккаунт>
/agent_enable <аккаунт>
/agent_level <аккаунт> <id уровня> [ставка б.п.] [причина]
/agent_rates <аккаунт> <ставка б.п.> <ставка передачи б.п.>`
