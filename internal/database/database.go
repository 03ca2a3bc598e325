// Пакет database — подключение к PostgreSQL через pgxpool,
// применение миграций (golang-migrate) и проверка готовности.
// Миграции создают таблицы чек-листа и справочники по умолчанию.
package database

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bigkaa/itadmin/internal/config"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Connect создаёт пул подключений к PostgreSQL и проверяет его ping-ом.
// Часовой пояс сессии совпадает с часовым поясом сервиса, чтобы
// now() и CURRENT_DATE в запросах давали ту же дату, что и clock.Civil.
func Connect(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseDSN())
	if err != nil {
		return nil, fmt.Errorf("ошибка парсинга DSN: %w", err)
	}
	poolCfg.MaxConns = cfg.DBMaxConns
	poolCfg.MinConns = cfg.DBMinConns
	if cfg.Location != nil {
		poolCfg.ConnConfig.RuntimeParams["timezone"] = cfg.Location.String()
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("ошибка создания пула подключений: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ошибка подключения к PostgreSQL: %w", err)
	}

	logger.Info("Подключение к PostgreSQL установлено",
		slog.String("host", cfg.DBHost),
		slog.Int("port", cfg.DBPort),
		slog.String("database", cfg.DBName),
		slog.Int("max_conns", int(poolCfg.MaxConns)),
		slog.Int("min_conns", int(poolCfg.MinConns)),
		slog.String("timezone", poolCfg.ConnConfig.RuntimeParams["timezone"]),
	)

	return pool, nil
}

// migrateLogger направляет журнал golang-migrate в slog на уровне DEBUG.
type migrateLogger struct {
	logger *slog.Logger
}

func (l migrateLogger) Printf(format string, v ...any) {
	l.logger.Debug(strings.TrimSpace(fmt.Sprintf(format, v...)))
}

func (l migrateLogger) Verbose() bool {
	return l.logger.Enabled(context.Background(), slog.LevelDebug)
}

// Migrate применяет SQL-миграции из embedded FS (драйвер pgx5).
// Повторный запуск без новых миграций не является ошибкой.
func Migrate(cfg *config.Config, logger *slog.Logger) error {
	source, err := iofs.New(migrationsFS, "migrations")
	if err != nil {
		return fmt.Errorf("ошибка создания источника миграций: %w", err)
	}

	// golang-migrate ожидает схему pgx5:// вместо postgres://
	dbURL := "pgx5://" + strings.TrimPrefix(cfg.DatabaseURL(), "postgres://")

	m, err := migrate.NewWithSourceInstance("iofs", source, dbURL)
	if err != nil {
		return fmt.Errorf("ошибка инициализации миграций: %w", err)
	}
	defer m.Close()
	m.Log = migrateLogger{logger: logger.With(slog.String("component", "migrate"))}

	before, _, err := m.Version()
	if err != nil && !errors.Is(err, migrate.ErrNilVersion) {
		return fmt.Errorf("ошибка чтения версии схемы: %w", err)
	}

	if err := m.Up(); err != nil {
		if !errors.Is(err, migrate.ErrNoChange) {
			return fmt.Errorf("ошибка применения миграций: %w", err)
		}
		logger.Info("Схема БД актуальна", slog.Uint64("version", uint64(before)))
		return nil
	}

	after, dirty, _ := m.Version()
	logger.Info("Миграции применены",
		slog.Uint64("from", uint64(before)),
		slog.Uint64("to", uint64(after)),
		slog.Bool("dirty", dirty),
	)
	return nil
}

// Pinger — источник соединений, доступность которого проверяется ping-ом.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Пороги проверки готовности по умолчанию.
const (
	defaultReadyTimeout = 3 * time.Second
	defaultSlowPing     = time.Second
)

// ReadinessChecker — проверка готовности PostgreSQL для health endpoint.
// Реализует интерфейс handlers.ReadinessChecker.
type ReadinessChecker struct {
	db       Pinger
	timeout  time.Duration
	slowPing time.Duration
}

// NewReadinessChecker создаёт проверку готовности PostgreSQL.
func NewReadinessChecker(db Pinger) *ReadinessChecker {
	return &ReadinessChecker{db: db, timeout: defaultReadyTimeout, slowPing: defaultSlowPing}
}

// CheckReady проверяет подключение к PostgreSQL через ping.
// Ответ медленнее slowPing даёт "degraded", ошибка или таймаут — "fail".
func (c *ReadinessChecker) CheckReady() (status string, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), c.timeout)
	defer cancel()

	start := time.Now()
	if err := c.db.Ping(ctx); err != nil {
		return "fail", fmt.Sprintf("PostgreSQL недоступен: %v", err)
	}
	if elapsed := time.Since(start); elapsed > c.slowPing {
		return "degraded", fmt.Sprintf("PostgreSQL отвечает медленно: %s", elapsed.Round(time.Millisecond))
	}
	return "ok", "подключение активно"
}
