// Точка входа сервиса ежедневного чек-листа резервного копирования.
// Загружает конфигурацию, применяет миграции, подключается к PostgreSQL,
// наполняет справочники, переносит записи старого формата, запускает
// планировщик напоминаний, topologymetrics и служебный HTTP-сервер
// с graceful shutdown.
package main

import (
	"context"
	"log/slog"
	"os"
	_ "time/tzdata"

	"github.com/jackc/pgx/v5/stdlib"

	"github.com/bigkaa/itadmin/internal/api/handlers"
	"github.com/bigkaa/itadmin/internal/clock"
	"github.com/bigkaa/itadmin/internal/config"
	"github.com/bigkaa/itadmin/internal/database"
	"github.com/bigkaa/itadmin/internal/repository"
	"github.com/bigkaa/itadmin/internal/server"
	"github.com/bigkaa/itadmin/internal/service"
)

func main() {
	// 1. Загрузка конфигурации из переменных окружения
	cfg, err := config.Load()
	if err != nil {
		slog.Error("Ошибка загрузки конфигурации", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 2. Настройка логирования
	logger := config.SetupLogger(cfg)
	logger.Info("Сервис запускается",
		slog.String("version", config.Version),
		slog.Int("port", cfg.Port),
		slog.String("timezone", cfg.Location.String()),
		slog.String("rotation_reference", cfg.RotationReference.Format("2006-01-02")),
	)

	if os.Getenv("IA_DEPHEALTH_GROUP") == "" {
		logger.Warn("IA_DEPHEALTH_GROUP не задана, используется значение по умолчанию",
			slog.String("default", cfg.DephealthGroup),
		)
	}

	// 3. Применение миграций БД
	logger.Info("Применение миграций БД...")
	if err := database.Migrate(cfg, logger); err != nil {
		logger.Error("Ошибка миграций БД", slog.String("error", err.Error()))
		os.Exit(1)
	}

	// 4. Подключение к PostgreSQL (pgxpool)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	pool, err := database.Connect(ctx, cfg, logger)
	if err != nil {
		logger.Error("Ошибка подключения к PostgreSQL", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer pool.Close()

	// 4.1 Адаптер pgxpool → *sql.DB для topologymetrics (connection pool mode)
	pgDB := stdlib.OpenDBFromPool(pool)
	defer pgDB.Close()

	// 5. Repositories
	repos := repository.NewRepositories(pool, cfg.Location)
	txRunner := repository.NewTxRunner(pool, cfg.Location)
	civil := clock.NewCivil(clock.System{}, cfg.Location)

	// 6. Справочники и начальное наполнение
	catalogSvc := service.NewCatalogService(repos.Catalog, txRunner, cfg.SettingsCacheSize, cfg.SettingsCacheTTL, logger)
	if cfg.CatalogSeedPath != "" {
		if err := catalogSvc.SeedFromFile(ctx, cfg.CatalogSeedPath); err != nil {
			logger.Error("Ошибка наполнения справочников",
				slog.String("path", cfg.CatalogSeedPath),
				slog.String("error", err.Error()),
			)
			os.Exit(1)
		}
	}

	// 7. Уведомления и напоминания
	notificationSvc := service.NewNotificationService(repos.Notifications, logger)
	scheduler := service.NewReminderScheduler(repos, catalogSvc, notificationSvc, civil, service.ReminderConfig{
		Reference:   cfg.RotationReference,
		MorningAt:   cfg.MorningReminderAt,
		AfternoonAt: cfg.AfternoonReminderAt,
	}, logger)

	// 8. Записи дня и календарь
	dailySvc := service.NewDailyRecordService(repos, txRunner, civil, cfg.RotationReference, scheduler, logger)
	calendarSvc := service.NewCalendarService(dailySvc, civil)

	// 9. Перенос записей старого формата в матрицу файлов
	if n, err := dailySvc.BackfillLegacy(ctx); err != nil {
		logger.Warn("Ошибка переноса записей старого формата", slog.String("error", err.Error()))
	} else if n > 0 {
		logger.Info("Записи старого формата перенесены", slog.Int("records", n))
	}

	// 10. Запись сегодняшнего дня и проекция текущего месяца
	today, err := dailySvc.GetToday(ctx)
	if err != nil {
		logger.Warn("Запись сегодняшнего дня не подготовлена", slog.String("error", err.Error()))
	} else {
		entries, err := calendarSvc.ProjectMonth(ctx, today.Date.Year(), today.Date.Month())
		if err != nil {
			logger.Warn("Ошибка построения календаря", slog.String("error", err.Error()))
		} else {
			logger.Info("Запись сегодняшнего дня готова",
				slog.String("date", today.Date.Format("2006-01-02")),
				slog.String("disk_id", today.DiskID),
				slog.Bool("completed", today.IsCompleted()),
				slog.Int("month_records", len(entries)),
			)
		}
	}

	// 11. Планировщик напоминаний
	if cfg.RemindersEnabled {
		scheduler.Start(ctx)
	} else {
		logger.Info("Планировщик напоминаний отключён (IA_REMINDERS_ENABLED=false)")
	}

	// 12. topologymetrics — мониторинг PostgreSQL
	dephealthSvc, dephealthErr := service.NewDephealthService(service.DephealthOptions{
		ServiceID:     config.ServiceName,
		Group:         cfg.DephealthGroup,
		DB:            pgDB,
		ConnURL:       cfg.DatabaseURL(),
		CheckInterval: cfg.DephealthCheckInterval,
	}, logger)
	if dephealthErr != nil {
		logger.Warn("topologymetrics недоступен, запуск без мониторинга зависимостей",
			slog.String("error", dephealthErr.Error()),
		)
		dephealthSvc = nil
	} else if startErr := dephealthSvc.Start(ctx); startErr != nil {
		logger.Warn("Ошибка запуска topologymetrics", slog.String("error", startErr.Error()))
		dephealthSvc = nil
	} else {
		logger.Info("topologymetrics запущен",
			slog.String("group", cfg.DephealthGroup),
			slog.String("check_interval", cfg.DephealthCheckInterval.String()),
		)
	}

	// 13. Служебный HTTP-сервер
	healthHandler := handlers.NewHealthHandler(database.NewReadinessChecker(pool))
	if dephealthSvc != nil {
		healthHandler.WithDependencies(dephealthSvc)
	}
	srv := server.New(cfg, logger, healthHandler)
	exitCode := 0
	if err := srv.Run(ctx); err != nil {
		logger.Error("Ошибка сервера", slog.String("error", err.Error()))
		exitCode = 1
	}

	// 14. Graceful shutdown фоновых задач
	logger.Info("Останавливаем фоновые задачи...")
	cancel()
	scheduler.Stop()
	if dephealthSvc != nil {
		dephealthSvc.Stop()
	}

	logger.Info("Сервис остановлен")
	if exitCode != 0 {
		pgDB.Close()
		pool.Close()
		os.Exit(exitCode)
	}
}
