// Package config загружает конфигурацию сервиса из переменных окружения.
// Используется envconfig для маппинга переменных окружения на поля структуры.
package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

// Config содержит ВСЕ настройки приложения.
type Config struct {
	// --- Telegram ---
	// Telegram ID, которые получают роль admin при входе
	AdminIDsRaw      string  `envconfig:"ADMIN_IDS" default:""`
	AdminIDs         []int64 `envconfig:"-"` // заполним вручную
	TelegramBotToken string  `envconfig:"TELEGRAM_BOT_TOKEN" required:"true"`
	// Имя бота без @, нужно для ссылок на оплату
	TelegramBotUsername string `envconfig:"TELEGRAM_BOT_USERNAME" default:"flipcoin_bot"`
	// Адрес мини-приложения для кнопки в /start
	MiniAppURL string `envconfig:"MINI_APP_URL" default:""`
	// Токен платёжного провайдера для счетов в боте. Пустой — бот только показывает платёж
	PaymentProviderToken string `envconfig:"PAYMENT_PROVIDER_TOKEN" default:""`
	// Бот запускается только когда включён (в тестовых стендах можно отключить)
	BotEnabled bool `envconfig:"BOT_ENABLED" default:"true"`

	// --- Database ---
	// Дефолт "postgres" — имя сервиса в docker-compose, для локалки DB_HOST=localhost.
	DBHost     string `envconfig:"DB_HOST" default:"postgres"`
	DBPort     int    `envconfig:"DB_PORT" default:"5432"`
	DBUser     string `envconfig:"DB_USER" default:"flipuser"`
	DBPassword string `envconfig:"DB_PASSWORD" required:"true"`
	DBName     string `envconfig:"DB_NAME" default:"flip_coin"`
	DBSSLMode  string `envconfig:"DB_SSLMODE" default:"disable"`
	DBMaxConns int32  `envconfig:"DB_MAX_CONNS" default:"25"`
	DBMinConns int32  `envconfig:"DB_MIN_CONNS" default:"5"`

	// --- Redis (необязательно) ---
	// Пустой адрес — кэш статистики отключён
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:""`
	RedisPassword string        `envconfig:"REDIS_PASSWORD" default:""`
	RedisDB       int           `envconfig:"REDIS_DB" default:"0"`
	StatsCacheTTL time.Duration `envconfig:"STATS_CACHE_TTL" default:"30s"`

	// --- HTTP ---
	HTTPPort            int           `envconfig:"HTTP_PORT" default:"5000"`
	HTTPShutdownTimeout time.Duration `envconfig:"HTTP_SHUTDOWN_TIMEOUT" default:"10s"`
	CORSOrigins         string        `envconfig:"CORS_ORIGINS" default:"*"`

	// --- Auth ---
	JWTSecret string        `envconfig:"JWT_SECRET" required:"true"`
	JWTTTL    time.Duration `envconfig:"JWT_TTL" default:"24h"`
	// Максимальный возраст auth_date в данных входа
	AuthMaxAge time.Duration `envconfig:"AUTH_MAX_AGE" default:"24h"`

	// --- Application ---
	AppEnv      string `envconfig:"APP_ENV" default:"development"`
	AppLogLevel string `envconfig:"APP_LOG_LEVEL" default:"debug"`

	// --- Bot runtime ---
	// Сколько апдейтов обрабатываем параллельно
	BotMaxInflight int `envconfig:"BOT_MAX_INFLIGHT" default:"64"`
	// Таймаут long polling (секунды)
	BotUpdateTimeoutSeconds int `envconfig:"BOT_UPDATE_TIMEOUT_SECONDS" default:"60"`

	// --- Rate Limiting ---
	RateLimitRequests int           `envconfig:"RATE_LIMIT_REQUESTS" default:"60"`
	RateLimitWindow   time.Duration `envconfig:"RATE_LIMIT_WINDOW" default:"1m"`

	// --- Housekeeping ---
	// Сколько дней хранить дневные счётчики игр
	CounterRetentionDays int    `envconfig:"COUNTER_RETENTION_DAYS" default:"30"`
	PruneSchedule        string `envconfig:"PRUNE_SCHEDULE" default:"15 3 * * *"`
}

// DatabaseDSN возвращает строку подключения к PostgreSQL в формате DSN.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// IsAdminID сообщает, входит ли Telegram ID в список ADMIN_IDS.
func (c *Config) IsAdminID(telegramID int64) bool {
	for _, id := range c.AdminIDs {
		if id == telegramID {
			return true
		}
	}
	return false
}

func (c *Config) Validate() error {
	// Токен бота ключ подписи входа и вебхука, пустой недопустим
	if strings.TrimSpace(c.TelegramBotToken) == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN не задан")
	}
	if len(c.JWTSecret) < 16 {
		return fmt.Errorf("JWT_SECRET должен быть не короче 16 символов")
	}
	if c.HTTPPort <= 0 || c.HTTPPort > 65535 {
		return fmt.Errorf("некорректный HTTP_PORT: %d", c.HTTPPort)
	}
	if c.BotMaxInflight <= 0 {
		return fmt.Errorf("BOT_MAX_INFLIGHT должен быть > 0")
	}
	if c.BotUpdateTimeoutSeconds <= 0 {
		return fmt.Errorf("BOT_UPDATE_TIMEOUT_SECONDS должен быть > 0")
	}
	if c.DBMaxConns <= 0 || c.DBMinConns < 0 || c.DBMinConns > c.DBMaxConns {
		return fmt.Errorf("некорректные DB_MIN_CONNS/DB_MAX_CONNS")
	}
	if c.RateLimitRequests <= 0 || c.RateLimitWindow <= 0 {
		return fmt.Errorf("RATE_LIMIT_REQUESTS и RATE_LIMIT_WINDOW должны быть > 0")
	}
	if c.CounterRetentionDays < 1 {
		return fmt.Errorf("COUNTER_RETENTION_DAYS должен быть >= 1")
	}
	if c.AuthMaxAge <= 0 || c.JWTTTL <= 0 {
		return fmt.Errorf("AUTH_MAX_AGE и JWT_TTL должны быть > 0")
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
