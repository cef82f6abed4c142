// Package app инициализирует все компоненты приложения.
// app.go — точка сборки: создаёт БД-пул, применяет миграции, собирает
// репозитории и сервисы ядра, админ-бота и планировщик.
package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/mymmrac/telego"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/adminbot"
	"serotonyl.ru/streaming-ledger/internal/config"
	"serotonyl.ru/streaming-ledger/internal/db/postgres"
	"serotonyl.ru/streaming-ledger/internal/features/accounts"
	"serotonyl.ru/streaming-ledger/internal/features/admin"
	"serotonyl.ru/streaming-ledger/internal/features/agents"
	"serotonyl.ru/streaming-ledger/internal/features/balance"
	"serotonyl.ru/streaming-ledger/internal/features/checkin"
	"serotonyl.ru/streaming-ledger/internal/features/commission"
	"serotonyl.ru/streaming-ledger/internal/features/membership"
	"serotonyl.ru/streaming-ledger/internal/features/orders"
	"serotonyl.ru/streaming-ledger/internal/features/paywall"
	"serotonyl.ru/streaming-ledger/internal/jobs"
	"serotonyl.ru/streaming-ledger/internal/metrics"
)

// Core — сервисы ядра леджера. Через них работают внешние поверхности
// (админ-бот, фоновые задачи, будущий HTTP API).
type Core struct {
	Accounts    *accounts.Service
	Balance     *balance.Service
	Agents      *agents.Service
	Commission  *commission.Service // nil, если FEATURE_COMMISSION_ENABLED=false
	Memberships *membership.Service
	Orders      *orders.Service
	Paywall     *paywall.Service
	Checkin     *checkin.Service
	Admin       *admin.Service
}

// App содержит все компоненты приложения.
type App struct {
	DB        *pgxpool.Pool
	Core      *Core
	Bot       *adminbot.Bot // nil, если бот отключён
	Scheduler *jobs.Scheduler
	Metrics   *http.Server
}

// New создаёт и инициализирует приложение.
// Порядок инициализации важен — компоненты зависят друг от друга.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	// === 1. База данных ===
	pool, err := postgres.NewPool(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка подключения к БД: %w", err)
	}

	if err := postgres.RunMigrations(cfg.MigrationDSN()); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка миграций: %w", err)
	}

	// === 2. Ядро ===
	core := newCore(postgres.NewTxManager(pool), newRepositories(pool), cfg)

	// === 3. Лестница уровней ===
	levels, err := agents.LoadLadder(cfg.LevelsFile)
	if err != nil {
		pool.Close()
		return nil, err
	}
	if err := core.Agents.SeedLevels(ctx, levels); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка загрузки уровней: %w", err)
	}

	a := &App{
		DB:        pool,
		Core:      core,
		Scheduler: jobs.NewScheduler(core.Agents, core.Orders, cfg.Location()),
		Metrics:   newMetricsServer(cfg.MetricsAddr),
	}

	// === 4. Админ-бот ===
	if cfg.BotEnabled() {
		if a.Bot, err = newBot(ctx, cfg, core); err != nil {
			pool.Close()
			return nil, err
		}
		core.Orders.SetNotifier(a.Bot)
	} else {
		log.Warn("TELEGRAM_BOT_TOKEN не задан, админ-бот отключён")
	}

	return a, nil
}

// repositories — хранилища всех фич поверх одного пула.
type repositories struct {
	accounts    *accounts.Repository
	balance     *balance.Repository
	agents      *agents.Repository
	commission  *commission.Repository
	memberships *membership.Repository
	orders      *orders.Repository
	paywall     *paywall.Repository
	checkin     *checkin.Repository
	admin       *admin.Repository
}

func newRepositories(pool *pgxpool.Pool) repositories {
	return repositories{
		accounts:    accounts.NewRepository(pool),
		balance:     balance.NewRepository(pool),
		agents:      agents.NewRepository(pool),
		commission:  commission.NewRepository(pool),
		memberships: membership.NewRepository(pool),
		orders:      orders.NewRepository(pool),
		paywall:     paywall.NewRepository(pool),
		checkin:     checkin.NewRepository(pool),
		admin:       admin.NewRepository(pool),
	}
}

// newCore собирает сервисы ядра.
func newCore(tx *postgres.TxManager, repos repositories, cfg *config.Config) *Core {
	loc := cfg.Location()

	ledger := balance.NewService(repos.balance, tx)
	agentsSvc := agents.NewService(repos.agents, repos.accounts, ledger, tx, loc)
	memberships := membership.NewService(repos.memberships, ledger, tx, cfg.ExchangeCoinsPerDay)

	core := &Core{
		Accounts:    accounts.NewService(repos.accounts, agentsSvc, tx),
		Balance:     ledger,
		Agents:      agentsSvc,
		Memberships: memberships,
		Paywall:     paywall.NewService(repos.paywall, ledger, memberships, tx),
		Checkin:     checkin.NewService(repos.checkin, ledger, tx, loc, cfg.FeatureCheckinEnabled),
		Admin:       admin.NewService(repos.admin, cfg.AdminIDs, cfg.AdminPasswordHash),
	}

	// Интерфейс с nil-указателем внутри не равен nil, поэтому передаём nil явно
	var distributor orders.Distributor
	if cfg.FeatureCommissionEnabled {
		core.Commission = commission.NewService(repos.commission, repos.accounts, agentsSvc, ledger, tx)
		distributor = core.Commission
	} else {
		log.Warn("Комиссии отключены (FEATURE_COMMISSION_ENABLED=false)")
	}
	core.Orders = orders.NewService(repos.orders, ledger, memberships, distributor, tx, cfg.OrderPendingTTL)
	return core
}

func newBot(ctx context.Context, cfg *config.Config, core *Core) (*adminbot.Bot, error) {
	var opts []telego.BotOption
	if cfg.AppEnv == "development" {
		opts = append(opts, telego.WithDefaultDebugLogger())
	}
	api, err := telego.NewBot(cfg.TelegramBotToken, opts...)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания Telegram API: %w", err)
	}

	me, err := api.GetMe(ctx)
	if err != nil {
		return nil, fmt.Errorf("ошибка авторизации в Telegram: %w", err)
	}
	log.Infof("Авторизован как @%s", me.Username)

	return adminbot.New(api, cfg, adminbot.Services{
		Admin:   core.Admin,
		Balance: core.Balance,
		Orders:  core.Orders,
		Agents:  core.Agents,
	}), nil
}

func newMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
}

// ServeMetrics отдаёт /metrics, пока сервер не остановят через Close.
func (a *App) ServeMetrics() {
	log.WithField("addr", a.Metrics.Addr).Info("Метрики доступны на /metrics")
	if err := a.Metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.WithError(err).Error("Сервер метрик остановился с ошибкой")
	}
}

// Close останавливает сервер метрик и закрывает пул.
func (a *App) Close(ctx context.Context) {
	if err := a.Metrics.Shutdown(ctx); err != nil {
		log.WithError(err).Warn("Ошибка остановки сервера метрик")
	}
	a.DB.Close()
}
