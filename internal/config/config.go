// Пакет config — загрузка и валидация конфигурации сервиса ежедневного
// чек-листа резервного копирования из переменных окружения IA_*.
package config

import (
	"fmt"
	"io"
	"log/slog"
	"math"
	"os"
	"strings"
	"time"
)

// Version задаётся при сборке через -ldflags.
var Version = "dev"

// ServiceName — имя сервиса в логах, health-ответах и графе зависимостей.
const ServiceName = "itadmin"

// Config — параметры сервиса. Все значения приходят из окружения.
type Config struct {
	// HTTP-сервер (health, metrics) и журнал
	Port      int
	LogLevel  slog.Level
	LogFormat string // json | text

	// PostgreSQL
	DBHost     string
	DBPort     int
	DBName     string
	DBUser     string
	DBPassword string
	DBSSLMode  string
	DBMaxConns int32
	DBMinConns int32

	// Часовой пояс, в котором вычисляется «сегодня».
	Location *time.Location
	// Опорная дата ротации дисков (полночь в Location).
	RotationReference time.Time
	// YAML начального наполнения справочников; пусто — не загружать.
	CatalogSeedPath string

	// Напоминания
	RemindersEnabled    bool
	MorningReminderAt   TimeOfDay
	AfternoonReminderAt TimeOfDay
	SettingsCacheSize   int
	SettingsCacheTTL    time.Duration

	// topologymetrics
	DephealthGroup         string
	DephealthCheckInterval time.Duration

	ShutdownTimeout time.Duration
}

// Load читает конфигурацию из окружения. Возвращается первая найденная ошибка.
func Load() (*Config, error) {
	r := newEnvReader()
	cfg := &Config{}

	cfg.Port = r.intRange("IA_PORT", 8080, 1, 65535)
	cfg.LogLevel = r.logLevel("IA_LOG_LEVEL")
	cfg.LogFormat = r.oneOf("IA_LOG_FORMAT", "json", "text")

	cfg.DBHost = r.required("IA_DB_HOST")
	cfg.DBPort = r.intRange("IA_DB_PORT", 5432, 1, 65535)
	cfg.DBName = r.required("IA_DB_NAME")
	cfg.DBUser = r.required("IA_DB_USER")
	cfg.DBPassword = r.required("IA_DB_PASSWORD")
	cfg.DBSSLMode = r.oneOf("IA_DB_SSL_MODE", "disable", "require", "verify-ca", "verify-full")
	maxConns := r.intRange("IA_DB_MAX_CONNS", 10, 1, 1000)
	minConns := r.intRange("IA_DB_MIN_CONNS", 0, 0, math.MaxInt32)
	if minConns > maxConns {
		r.failf("IA_DB_MIN_CONNS", "значение %d больше IA_DB_MAX_CONNS=%d", minConns, maxConns)
	}
	cfg.DBMaxConns, cfg.DBMinConns = int32(maxConns), int32(minConns)
	if r.err != nil {
		return nil, r.err
	}

	tz := r.str("IA_TIMEZONE", "Europe/Moscow")
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("IA_TIMEZONE: неизвестный часовой пояс %q", tz)
	}
	cfg.Location = loc

	ref := r.str("IA_ROTATION_REFERENCE_DATE", "2025-01-01")
	cfg.RotationReference, err = time.ParseInLocation(time.DateOnly, ref, loc)
	if err != nil {
		return nil, fmt.Errorf("IA_ROTATION_REFERENCE_DATE: некорректная дата %q (ожидается YYYY-MM-DD)", ref)
	}
	cfg.CatalogSeedPath = r.str("IA_CATALOG_SEED_PATH", "")

	cfg.RemindersEnabled = r.bool("IA_REMINDERS_ENABLED", true)
	cfg.MorningReminderAt = r.timeOfDay("IA_MORNING_REMINDER_AT", "09:00")
	cfg.AfternoonReminderAt = r.timeOfDay("IA_AFTERNOON_REMINDER_AT", "14:00")
	if r.err == nil && !cfg.MorningReminderAt.Before(cfg.AfternoonReminderAt) {
		r.failf("IA_AFTERNOON_REMINDER_AT", "%s должно быть позже утренней проверки %s",
			cfg.AfternoonReminderAt, cfg.MorningReminderAt)
	}
	cfg.SettingsCacheSize = r.intRange("IA_SETTINGS_CACHE_SIZE", 64, 1, 1<<16)
	cfg.SettingsCacheTTL = r.duration("IA_SETTINGS_CACHE_TTL", time.Minute)

	cfg.DephealthGroup = r.str("IA_DEPHEALTH_GROUP", ServiceName)
	cfg.DephealthCheckInterval = r.duration("IA_DEPHEALTH_CHECK_INTERVAL", 15*time.Second)

	cfg.ShutdownTimeout = r.duration("IA_SHUTDOWN_TIMEOUT", 5*time.Second)

	if r.err != nil {
		return nil, r.err
	}
	return cfg, nil
}

// DatabaseDSN — строка подключения в формате key=value для pgxpool.
func (c *Config) DatabaseDSN() string {
	return fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s sslmode=%s",
		c.DBHost, c.DBPort, c.DBName, c.DBUser, c.DBPassword, c.DBSSLMode,
	)
}

// DatabaseURL — postgres:// URL для лейблов topologymetrics и golang-migrate.
func (c *Config) DatabaseURL() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.DBUser, c.DBPassword, c.DBHost, c.DBPort, c.DBName, c.DBSSLMode,
	)
}

// NewLogger создаёт slog-логгер в формате cfg.LogFormat.
func NewLogger(w io.Writer, cfg *Config) *slog.Logger {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	if cfg.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}

// SetupLogger создаёт логгер в stdout и делает его логгером по умолчанию.
func SetupLogger(cfg *Config) *slog.Logger {
	logger := NewLogger(os.Stdout, cfg).With(slog.String("service", ServiceName))
	slog.SetDefault(logger)
	return logger
}

func (r *envReader) logLevel(key string) slog.Level {
	switch strings.ToLower(r.str(key, "info")) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		r.failf(key, "недопустимый уровень %q, допустимые: debug, info, warn, error", r.raw(key))
		return slog.LevelInfo
	}
}
