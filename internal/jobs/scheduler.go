// Package jobs управляет фоновыми задачами (cron).
// scheduler.go настраивает расписание: закрытие месяцев агентов
// первого числа и удаление просроченных заказов каждые полчаса.
package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/features/agents"
	"serotonyl.ru/streaming-ledger/internal/metrics"
)

// Расписания задач, время указано в часовом поясе приложения.
const (
	SettlementSpec = "0 3 1 * *"    // 1-го числа в 03:00
	ExpirySpec     = "*/30 * * * *" // каждые 30 минут
)

// Settler закрывает прошедшие месяцы агентов.
type Settler interface {
	SettleMonths(ctx context.Context) (*agents.SettlementResult, error)
}

// Expirer удаляет просроченные pending-заказы.
type Expirer interface {
	ExpireStale(ctx context.Context) (int64, error)
}

// Scheduler управляет фоновыми задачами.
type Scheduler struct {
	cron    *cron.Cron
	settler Settler
	expirer Expirer
}

// NewScheduler создаёт планировщик задач в часовом поясе loc.
func NewScheduler(settler Settler, expirer Expirer, loc *time.Location) *Scheduler {
	if loc == nil {
		loc = time.UTC
	}
	return &Scheduler{
		cron:    cron.New(cron.WithLocation(loc)),
		settler: settler,
		expirer: expirer,
	}
}

// Start регистрирует и запускает все фоновые задачи.
func (s *Scheduler) Start(ctx context.Context) error {
	if _, err := s.cron.AddFunc(SettlementSpec, func() { s.settle(ctx) }); err != nil {
		return err
	}
	if _, err := s.cron.AddFunc(ExpirySpec, func() { s.expire(ctx) }); err != nil {
		return err
	}

	s.cron.Start()
	log.WithField("location", s.cron.Location()).Info("Планировщик задач запущен")
	return nil
}

// Stop останавливает планировщик и ждёт завершения запущенных задач.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()
	<-ctx.Done()
	log.Info("Планировщик задач остановлен")
}

func (s *Scheduler) settle(ctx context.Context) {
	log.Info("[CRON] Закрытие месяцев агентов")
	res, err := s.settler.SettleMonths(ctx)
	metrics.RecordJobRun("settle_months", err == nil)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка закрытия месяцев")
		return
	}
	log.WithFields(log.Fields{
		"settled": res.Settled,
		"bonus":   res.Bonus,
	}).Info("[CRON] Месяцы закрыты")
}

func (s *Scheduler) expire(ctx context.Context) {
	log.Debug("[CRON] Поиск просроченных заказов")
	_, err := s.expirer.ExpireStale(ctx)
	metrics.RecordJobRun("expire_orders", err == nil)
	if err != nil {
		log.WithError(err).Error("[CRON] Ошибка удаления просроченных заказов")
	}
}
