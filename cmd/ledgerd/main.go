// Package main — точка входа сервиса леджера.
// Загружает конфигурацию, инициализирует приложение и запускает.
// Поддерживает graceful shutdown по SIGINT/SIGTERM.
package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"
	_ "time/tzdata" // APP_TIMEZONE не зависит от tzdata в образе

	"github.com/joho/godotenv"
	log "github.com/sirupsen/logrus"

	"serotonyl.ru/streaming-ledger/internal/app"
	"serotonyl.ru/streaming-ledger/internal/config"
)

func main() {
	setupLogging()

	log.Info("=== Леджер запускается ===")

	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		log.WithError(err).Warn("Не удалось прочитать .env")
	}

	cfg, err := config.Load()
	if err != nil {
		log.WithError(err).Fatal("Не удалось загрузить конфигурацию")
	}

	if level, err := log.ParseLevel(cfg.AppLogLevel); err == nil {
		log.SetLevel(level)
	}

	// Контекст отменяется по SIGINT/SIGTERM
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	application, err := app.New(ctx, cfg)
	if err != nil {
		log.WithError(err).Fatal("Не удалось инициализировать приложение")
	}

	if err := application.Scheduler.Start(ctx); err != nil {
		log.WithError(err).Fatal("Не удалось запустить планировщик")
	}

	go application.ServeMetrics()

	var wg sync.WaitGroup

	if application.Bot != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := application.Bot.Start(ctx); err != nil {
				log.WithError(err).Error("Админ-бот остановился с ошибкой")
			}
		}()
	}

	log.Info("=== Леджер готов к работе ===")

	<-ctx.Done()
	log.Info("Получен сигнал остановки, завершаемся...")

	application.Scheduler.Stop()
	// Бот дорабатывает начатые апдейты, пул закрываем после него
	wg.Wait()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	application.Close(shutdownCtx)

	log.Info("=== Леджер остановлен ===")
}

// setupLogging настраивает формат логов.
func setupLogging() {
	log.SetFormatter(&log.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05",
	})
	log.SetOutput(os.Stdout)
	log.SetLevel(log.DebugLevel)
}
