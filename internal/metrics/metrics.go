// Package metrics — счётчики Prometheus для леджера и комиссий.
// Все коллекторы регистрируются в собственном Registry, который отдаётся на METRICS_ADDR.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "streaming_ledger"

var (
	// Registry содержит коллекторы приложения.
	Registry = prometheus.NewRegistry()

	ledgerPostings = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "postings_total",
			Help:      "Количество проводок по кошелькам и типам.",
		},
		[]string{"wallet", "type"},
	)

	ledgerRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "ledger",
			Name:      "rejections_total",
			Help:      "Отклонённые операции с балансом по коду ошибки.",
		},
		[]string{"code"},
	)

	orderTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "orders",
			Name:      "transitions_total",
			Help:      "Переходы заказов между статусами.",
		},
		[]string{"to"},
	)

	commissionAmount = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "commission",
			Name:      "amount_total",
			Help:      "Сумма начисленных комиссий в минимальных единицах по глубине цепочки.",
		},
		[]string{"depth"},
	)

	levelChanges = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "agents",
			Name:      "level_changes_total",
			Help:      "Смены уровней агентов по типу.",
		},
		[]string{"type"},
	)

	jobRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: "jobs",
			Name:      "runs_total",
			Help:      "Запуски фоновых задач.",
		},
		[]string{"job", "success"},
	)
)

func init() {
	Registry.MustRegister(
		ledgerPostings,
		ledgerRejections,
		orderTransitions,
		commissionAmount,
		levelChanges,
		jobRuns,
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		prometheus.NewGoCollector(),
	)
}

// Handler отдаёт зарегистрированные метрики.
func Handler() http.Handler {
	return promhttp.HandlerFor(Registry, promhttp.HandlerOpts{})
}

// RecordPosting учитывает успешную проводку.
func RecordPosting(wallet, entryType string) {
	ledgerPostings.WithLabelValues(wallet, entryType).Inc()
}

// RecordRejection учитывает бизнес-отказ (недостаточно средств, повторное одобрение и т.п.).
func RecordRejection(code string) {
	ledgerRejections.WithLabelValues(code).Inc()
}

// RecordOrderTransition учитывает переход заказа в статус to.
func RecordOrderTransition(to string) {
	orderTransitions.WithLabelValues(to).Inc()
}

// RecordCommission учитывает начисленную комиссию на глубине depth (1..3).
func RecordCommission(depth string, amount int64) {
	if amount <= 0 {
		return
	}
	commissionAmount.WithLabelValues(depth).Add(float64(amount))
}

// RecordLevelChange учитывает смену уровня агента.
func RecordLevelChange(changeType string) {
	levelChanges.WithLabelValues(changeType).Inc()
}

// RecordJobRun учитывает запуск фоновой задачи.
func RecordJobRun(job string, success bool) {
	result := "false"
	if success {
		result = "true"
	}
	jobRuns.WithLabelValues(job, result).Inc()
}
