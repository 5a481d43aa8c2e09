// Package config загружает конфигурацию сервиса баллов из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Драйверы хранилища.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Database ---
	// Дефолт "postgres" - имя сервиса в docker-compose, для локалки переопределяй DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"points"`
	DBPassword string `envconfig:"DB_PASSWORD"`
	DBName     string `envconfig:"DB_NAME" default:"school_points"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Store ---
	// postgres - боевой режим, memory - локальный запуск без БД.
	StoreDriver string `envconfig:"STORE_DRIVER" default:"postgres"`
	// Таймаут на любую операцию с хранилищем (включая всю транзакцию целиком).
	StoreTimeout time.Duration `envconfig:"STORE_TIMEOUT" default:"5s"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`
	AppTimezone string `envconfig:"APP_TIMEZONE" default:"Asia/Riyadh"`

	// --- Telegram ---
	// Пустой токен отключает и бота, и уведомления в Telegram (остаются только логи).
	TelegramBotToken        string `envconfig:"TELEGRAM_BOT_TOKEN"`
	BotMaxInflight          int    `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	BotUpdateTimeoutSeconds int    `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// Первый администратор: создаётся при старте, если задан ADMIN_TELEGRAM_ID.
	AdminID         string `envconfig:"ADMIN_ID" default:"admin"`
	AdminTelegramID int64  `envconfig:"ADMIN_TELEGRAM_ID"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"10"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Notifications ---
	NotifyQueueSize  int `envconfig:"NOTIFY_QUEUE_SIZE" default:"256"`
	NotifyMaxRetries int `envconfig:"NOTIFY_MAX_RETRIES" default:"3"`

	// --- Points engine ---
	// Сколько проходов делает движок порогов за один вызов Evaluate.
	ThresholdMaxPasses int `envconfig:"THRESHOLD_MAX_PASSES" default:"2"`
	// Возвращать ли баллы при отклонении заявки на награду.
	CatalogRefundOnReject bool `envconfig:"CATALOG_REFUND_ON_REJECT" default:"false"`
	CardCodeLength        int  `envconfig:"CARD_CODE_LENGTH" default:"12"`
	CardMaxUsageAttempts  int  `envconfig:"CARD_MAX_USAGE_ATTEMPTS" default:"5"` // 0 - без блокировки

	// --- Cron ---
	CronReconcileSpec     string        `envconfig:"CRON_RECONCILE_SPEC" default:"30 3 * * *"`
	CronAttemptsPurgeSpec string        `envconfig:"CRON_ATTEMPTS_PURGE_SPEC" default:"0 4 * * 0"`
	CardAttemptsRetention time.Duration `envconfig:"CARD_ATTEMPTS_RETENTION" default:"720h"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// Location возвращает часовой пояс приложения (для cron и форматирования дат).
func (c *Config) Location() *time.Location {
	loc, err := time.LoadLocation(c.AppTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// TelegramEnabled - задан ли токен бота.
func (c *Config) TelegramEnabled() bool {
	return strings.TrimSpace(c.TelegramBotToken) != ""
}

func (c *Config) Validate() error {
	switch c.StoreDriver {
	case StoreDriverPostgres:
		if c.DBPassword == "" {
			return fmt.Errorf("DB_PASSWORD не задан")
		}
		if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
			return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
		}
	case StoreDriverMemory:
	default:
		return fmt.Errorf("неизвестный STORE_DRIVER %q", c.StoreDriver)
	}
	if c.StoreTimeout <= 0 {
		return fmt.Errorf("STORE_TIMEOUT должен быть > 0")
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.ThresholdMaxPasses < 1 || c.ThresholdMaxPasses > 5 {
		return fmt.Errorf("THRESHOLD_MAX_PASSES должен быть в диапазоне 1..5")
	}
	if c.CardCodeLength < 8 || c.CardCodeLength > 32 {
		return fmt.Errorf("CARD_CODE_LENGTH должен быть в диапазоне 8..32")
	}
	if c.CardMaxUsageAttempts < 0 || c.CardMaxUsageAttempts > 100 {
		return fmt.Errorf("CARD_MAX_USAGE_ATTEMPTS должен быть в диапазоне 0..100")
	}
	if c.NotifyQueueSize <= 0 {
		return fmt.Errorf("NOTIFY_QUEUE_SIZE должен быть > 0")
	}
	if c.AdminTelegramID < 0 || (c.AdminTelegramID > 0 && strings.TrimSpace(c.AdminID) == "") {
		return fmt.Errorf("некорректные ADMIN_ID/ADMIN_TELEGRAM_ID")
	}
	if c.NotifyMaxRetries < 0 {
		return fmt.Errorf("NOTIFY_MAX_RETRIES не может быть отрицательным")
	}
	return nil
}

// Load читает .env (если есть) и переменные окружения, заполняет структуру Config.
func Load() (*Config, error) {
	// .env нужен только для локального запуска, в Docker его нет
	_ = godotenv.Load()

	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("не удалось загрузить конфигурацию: %w", err)
	}

	cfg.StoreDriver = strings.ToLower(strings.TrimSpace(cfg.StoreDriver))

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}
