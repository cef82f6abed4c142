// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// CommissionDepth — сколько уровней реферальной цепочки получают комиссию с одного заказа.
const CommissionDepth = 3

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"ledger"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"streaming"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Europe/Moscow"`

	// --- Admin bot ---
	// Пустой токен отключает админ-бота, ядро работает и без него.
	TelegramBotToken  string  `envconfig:"TELEGRAM_BOT_TOKEN"`
	AdminIDsRaw       string  `envconfig:"ADMIN_IDS"`
	AdminIDs          []int64 `envconfig:"-"` // заполним вручную
	AdminPasswordHash string  `envconfig:"ADMIN_PASSWORD_HASH"`
	// Сколько апдейтов обрабатываем параллельно.
	BotMaxInflight          int `envconfig:"BOT_MAX_INFLIGHT" default:"16"`
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitPerSecond float64 `envconfig:"RATE_LIMIT_PER_SECOND" default:"2"`
	RateLimitBurst     int     `envconfig:"RATE_LIMIT_BURST" default:"5"`

	// --- Ledger ---
	LevelsFile          string        `envconfig:"LEVELS_FILE" default:"config/levels.yaml"`
	OrderPendingTTL     time.Duration `envconfig:"ORDER_PENDING_TTL" default:"48h"`
	ExchangeCoinsPerDay int64         `envconfig:"EXCHANGE_COINS_PER_DAY" default:"100"`
	CommissionMaxDepth  int           `envconfig:"COMMISSION_MAX_DEPTH" default:"3"`

	// --- Metrics ---
	MetricsAddr string `envconfig:"METRICS_ADDR" default:":9090"`

	// --- Feature Flags ---
	FeatureCheckinEnabled    bool `envconfig:"FEATURE_CHECKIN_ENABLED" default:"true"`
	FeatureCommissionEnabled bool `envconfig:"FEATURE_COMMISSION_ENABLED" default:"true"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return c.dsn("postgres")
}

// MigrationDSN возвращает DSN для golang-migrate (драйвер pgx/v5 регистрирует схему pgx5).
func (c *Config) MigrationDSN() string {
	return c.dsn("pgx5")
}

func (c *Config) dsn(scheme string) string {
	return fmt.Sprintf(
		"%s://%s:%s@%s:%d/%s?sslmode=%s",
		scheme, url.QueryEscape(c.DBUser), url.QueryEscape(c.DBPassword),
		c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Location возвращает часовой пояс приложения.
// Календарные месяцы агентов и дни чекинов считаются в нём.
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// BotEnabled сообщает, нужно ли запускать админ-бота.
func (c *Config) BotEnabled() bool {
	return c.TelegramBotToken != ""
}

// IsAdmin проверяет, входит ли Telegram user ID в ADMIN_IDS.
func (c *Config) IsAdmin(userID int64) bool {
	for _, id := range c.AdminIDs {
		if id == userID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if _, err := time.LoadLocation(c.AppTimezone); err != nil {
		return fmt.Errorf("APP_TIMEZONE: %w", err)
	}
	if c.CommissionMaxDepth != CommissionDepth {
		return fmt.Errorf("COMMISSION_MAX_DEPTH должен быть %d", CommissionDepth)
	}
	if c.OrderPendingTTL <= 0 {
		return fmt.Errorf("ORDER_PENDING_TTL должен быть > 0")
	}
	if c.ExchangeCoinsPerDay <= 0 {
		return fmt.Errorf("EXCHANGE_COINS_PER_DAY должен быть > 0")
	}
	if c.BotEnabled() {
		if len(c.AdminIDs) == 0 {
			return fmt.Errorf("ADMIN_IDS обязателен, когда задан TELEGRAM_BOT_TOKEN")
		}
		if c.AdminPasswordHash == "" {
			return fmt.Errorf("ADMIN_PASSWORD_HASH обязателен, когда задан TELEGRAM_BOT_TOKEN")
		}
		if c.BotMaxInflight <= 0 {
			return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
		}
		if c.BotUpdateTimeoutSeconds <= 0 {
			return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
		}
	}
	return nil
}

// Load читает переменные окружения и заполняет структуру Config.
func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	ids, err := parseInt64CSV(cfg.AdminIDsRaw)
	if err != nil {
		return nil, fmt.Errorf("ADMIN_IDS parse: %w", err)
	}
	cfg.AdminIDs = ids

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func parseInt64CSV(s string) ([]int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int64, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		v, err := strconv.ParseInt(p, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("bad int64 %q: %w", p, err)
		}
		out = append(out, v)
	}
	return out, nil
}
