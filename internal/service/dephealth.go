// dephealth.go — мониторинг PostgreSQL через topologymetrics SDK.
//
// Проверка выполняется SQL checker-ом поверх *sql.DB, открытого из
// общего pgxpool: так метрики отражают состояние того же пула, которым
// пользуются репозитории, включая исчерпание соединений.
//
// На /metrics публикуются app_dependency_health, app_dependency_latency_seconds,
// app_dependency_status и app_dependency_status_detail.
package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/BigKAA/topologymetrics/sdk-go/dephealth"
	"github.com/BigKAA/topologymetrics/sdk-go/dephealth/checks/pgcheck"
	"github.com/prometheus/client_golang/prometheus"
)

// DependencyPostgres — имя зависимости PostgreSQL в метриках.
const DependencyPostgres = "postgresql"

// DephealthOptions — параметры мониторинга зависимостей.
type DephealthOptions struct {
	// ServiceID — имя вершины графа (обычно config.ServiceName).
	ServiceID string
	// Group — лейбл группы (IA_DEPHEALTH_GROUP).
	Group string
	// DB — *sql.DB поверх pgxpool (stdlib.OpenDBFromPool).
	DB *sql.DB
	// ConnURL используется только для лейблов host/port.
	ConnURL       string
	CheckInterval time.Duration
	// Registerer — nil означает глобальный Prometheus registry.
	Registerer prometheus.Registerer
}

// DephealthService — периодическая проверка зависимостей.
type DephealthService struct {
	dh     *dephealth.DepHealth
	health func() map[string]bool
	logger *slog.Logger
}

// NewDephealthService регистрирует PostgreSQL как критичную зависимость.
func NewDephealthService(opts DephealthOptions, logger *slog.Logger) (*DephealthService, error) {
	if opts.DB == nil {
		return nil, errors.New("dephealth: не передан *sql.DB")
	}

	dhOpts := []dephealth.Option{
		dephealth.WithLogger(logger),
		dephealth.AddDependency(DependencyPostgres, dephealth.TypePostgres,
			pgcheck.New(pgcheck.WithDB(opts.DB)),
			dephealth.FromURL(opts.ConnURL),
			dephealth.CheckInterval(opts.CheckInterval),
			dephealth.Critical(true),
		),
	}
	if opts.Registerer != nil {
		dhOpts = append(dhOpts, dephealth.WithRegisterer(opts.Registerer))
	}

	dh, err := dephealth.New(opts.ServiceID, opts.Group, dhOpts...)
	if err != nil {
		return nil, fmt.Errorf("dephealth: %w", err)
	}

	return &DephealthService{
		dh:     dh,
		health: dh.Health,
		logger: logger.With(slog.String("component", "dephealth")),
	}, nil
}

// Start запускает периодическую проверку.
func (ds *DephealthService) Start(ctx context.Context) error {
	ds.logger.Info("Мониторинг зависимостей запущен", slog.String("dependency", DependencyPostgres))
	return ds.dh.Start(ctx)
}

func (ds *DephealthService) Stop() {
	ds.dh.Stop()
	ds.logger.Info("Мониторинг зависимостей остановлен")
}

// Health — последнее известное состояние зависимостей (имя → ok).
func (ds *DephealthService) Health() map[string]bool {
	return ds.health()
}

// CheckReady сводит результаты периодических проверок в статус readiness.
// Прямой ping базы выполняет database.ReadinessChecker, поэтому сбой здесь
// понижает статус до "degraded", а не "fail".
func (ds *DephealthService) CheckReady() (status string, message string) {
	return dependencyStatus(ds.Health())
}

func dependencyStatus(health map[string]bool) (string, string) {
	if len(health) == 0 {
		return "degraded", "проверки зависимостей ещё не выполнялись"
	}
	var failed []string
	for name, ok := range health {
		if !ok {
			failed = append(failed, name)
		}
	}
	if len(failed) == 0 {
		return "ok", fmt.Sprintf("зависимостей в норме: %d", len(health))
	}
	sort.Strings(failed)
	return "degraded", "недоступны: " + strings.Join(failed, ", ")
}
