// catalog.go — справочники чек-листа: снимок активных элементов, кэш настроек
// уведомлений, начальное наполнение из YAML и деактивация элементов.
//
// Настройки уведомлений читаются планировщиком при каждой проверке, поэтому
// кэшируются в expirable LRU (IA_SETTINGS_CACHE_SIZE, IA_SETTINGS_CACHE_TTL).
//
// Prometheus-метрики:
//   - itadmin_settings_cache_hits_total — попадания в кэш настроек
//   - itadmin_settings_cache_misses_total — промахи кэша настроек
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"gopkg.in/yaml.v3"

	"github.com/bigkaa/itadmin/internal/domain/model"
	"github.com/bigkaa/itadmin/internal/repository"
)

var (
	settingsCacheHits = promauto.NewCounter(prometheus.CounterOpts{
		Name: "itadmin_settings_cache_hits_total",
		Help: "Количество попаданий в кэш настроек уведомлений",
	})
	settingsCacheMisses = promauto.NewCounter(prometheus.CounterOpts{
		Name: "itadmin_settings_cache_misses_total",
		Help: "Количество промахов кэша настроек уведомлений",
	})
)

// CatalogService — операции над справочниками.
type CatalogService struct {
	catalog  repository.CatalogRepository
	tx       repository.TxManager
	settings *expirable.LRU[string, model.NotificationSetting]
	logger   *slog.Logger
}

// NewCatalogService создаёт сервис справочников.
// cacheSize и cacheTTL — параметры кэша настроек уведомлений.
func NewCatalogService(
	catalog repository.CatalogRepository,
	tx repository.TxManager,
	cacheSize int,
	cacheTTL time.Duration,
	logger *slog.Logger,
) *CatalogService {
	return &CatalogService{
		catalog:  catalog,
		tx:       tx,
		settings: expirable.NewLRU[string, model.NotificationSetting](cacheSize, nil, cacheTTL),
		logger:   logger.With(slog.String("component", "catalog")),
	}
}

// Snapshot возвращает снимок активных справочников.
func (s *CatalogService) Snapshot(ctx context.Context) (*Snapshot, error) {
	return LoadSnapshot(ctx, s.catalog)
}

// NotificationSetting возвращает настройку уведомления по коду.
// Возвращает копию, изменения которой не влияют на кэш.
func (s *CatalogService) NotificationSetting(ctx context.Context, code string) (*model.NotificationSetting, error) {
	if cached, ok := s.settings.Get(code); ok {
		settingsCacheHits.Inc()
		return &cached, nil
	}
	settingsCacheMisses.Inc()

	setting, err := s.catalog.GetNotificationSetting(ctx, code)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: настройка уведомления %q", ErrNotFound, code)
		}
		return nil, fmt.Errorf("получение настройки уведомления %q: %w", code, err)
	}
	s.settings.Add(code, *setting)
	return setting, nil
}

// SetDiskActive включает или выключает диск в ротации.
func (s *CatalogService) SetDiskActive(ctx context.Context, id string, active bool) error {
	err := s.catalog.SetDiskActive(ctx, id, active)
	switch {
	case errors.Is(err, repository.ErrNotFound):
		return componentNotFound(err, "диск", id)
	case errors.Is(err, repository.ErrConflict):
		return fmt.Errorf("%w: %v", ErrConflict, err)
	case err != nil:
		return err
	}
	s.logger.Info("Активность диска изменена", slog.String("disk_id", id), slog.Bool("active", active))
	return nil
}

// SetFileTypeActive включает или выключает тип файла в обязательном наборе дня.
func (s *CatalogService) SetFileTypeActive(ctx context.Context, id string, active bool) error {
	if err := s.catalog.SetFileTypeActive(ctx, id, active); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return componentNotFound(err, "тип файла", id)
		}
		return err
	}
	s.logger.Info("Активность типа файла изменена", slog.String("file_type_id", id), slog.Bool("active", active))
	return nil
}

// SetStatusActive включает или выключает статус.
// Деактивация последнего активного статуса запрещена (ErrLastActiveStatus).
func (s *CatalogService) SetStatusActive(ctx context.Context, id string, active bool) error {
	err := s.tx.WithinTx(ctx, func(r *repository.Repositories) error {
		st, err := r.Catalog.GetStatus(ctx, id)
		if err != nil {
			return componentNotFound(err, "статус", id)
		}
		if st.IsActive == active {
			return nil
		}
		if !active {
			statuses, err := r.Catalog.ListStatuses(ctx, true)
			if err != nil {
				return err
			}
			if len(statuses) <= 1 {
				return ErrLastActiveStatus
			}
		}
		return r.Catalog.SetStatusActive(ctx, id, active)
	})
	if err != nil {
		return err
	}
	s.logger.Info("Активность статуса изменена", slog.String("status_id", id), slog.Bool("active", active))
	return nil
}

// --- Начальное наполнение из YAML ---

// CatalogSeed — содержимое YAML-файла начального наполнения справочников.
// Элементы сопоставляются с существующими по имени (диски) или коду.
type CatalogSeed struct {
	Disks []struct {
		Name     string `yaml:"name" validate:"required,max=255"`
		Sequence int    `yaml:"sequence" validate:"gte=0"`
		Active   *bool  `yaml:"active"`
	} `yaml:"disks" validate:"dive"`
	Statuses []struct {
		Code      string `yaml:"code" validate:"required,max=64"`
		Label     string `yaml:"label" validate:"required,max=255"`
		SortOrder int    `yaml:"sort_order"`
		Final     bool   `yaml:"final"`
		Active    *bool  `yaml:"active"`
	} `yaml:"statuses" validate:"dive"`
	FileTypes []struct {
		Code     string `yaml:"code" validate:"required,max=64"`
		Name     string `yaml:"name" validate:"required,max=255"`
		Sequence int    `yaml:"sequence" validate:"gte=0"`
		Active   *bool  `yaml:"active"`
	} `yaml:"file_types" validate:"dive"`
	NotificationSettings []struct {
		Code            string `yaml:"code" validate:"required,max=64"`
		Title           string `yaml:"title" validate:"required,max=255"`
		MessageTemplate string `yaml:"message_template" validate:"required"`
		Priority        string `yaml:"priority" validate:"omitempty,oneof=low normal high"`
		Enabled         *bool  `yaml:"enabled"`
		Schedule        string `yaml:"schedule" validate:"omitempty,hhmm"`
	} `yaml:"notification_settings" validate:"dive"`
}

// activeOrDefault возвращает значение флага или true, если он не задан.
func activeOrDefault(b *bool) bool {
	return b == nil || *b
}

// SeedFromFile читает YAML-файл справочников и применяет его через Seed.
func (s *CatalogService) SeedFromFile(ctx context.Context, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("чтение файла справочников %s: %w", path, err)
	}
	var seed CatalogSeed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("%w: разбор файла справочников %s: %v", ErrValidation, path, err)
	}
	return s.Seed(ctx, &seed)
}

// Seed создаёт или обновляет элементы справочников в одной транзакции.
// После применения должен оставаться хотя бы один активный статус.
func (s *CatalogService) Seed(ctx context.Context, seed *CatalogSeed) error {
	if err := validateStruct(seed); err != nil {
		return err
	}

	err := s.tx.WithinTx(ctx, func(r *repository.Repositories) error {
		for _, d := range seed.Disks {
			disk := &model.Disk{Name: d.Name, Sequence: d.Sequence, IsActive: activeOrDefault(d.Active)}
			if err := r.Catalog.UpsertDisk(ctx, disk); err != nil {
				if errors.Is(err, repository.ErrConflict) {
					return fmt.Errorf("%w: %v", ErrConflict, err)
				}
				return err
			}
		}
		for _, st := range seed.Statuses {
			status := &model.Status{
				Code: st.Code, Label: st.Label, SortOrder: st.SortOrder,
				IsFinal: st.Final, IsActive: activeOrDefault(st.Active),
			}
			if err := r.Catalog.UpsertStatus(ctx, status); err != nil {
				return err
			}
		}
		for _, ft := range seed.FileTypes {
			fileType := &model.FileType{Code: ft.Code, Name: ft.Name, Sequence: ft.Sequence, IsActive: activeOrDefault(ft.Active)}
			if err := r.Catalog.UpsertFileType(ctx, fileType); err != nil {
				return err
			}
		}
		for _, ns := range seed.NotificationSettings {
			setting := &model.NotificationSetting{
				Code: ns.Code, Title: ns.Title, MessageTemplate: ns.MessageTemplate,
				Priority: ns.Priority, IsEnabled: activeOrDefault(ns.Enabled), Schedule: ns.Schedule,
			}
			if err := r.Catalog.UpsertNotificationSetting(ctx, setting); err != nil {
				return err
			}
		}

		statuses, err := r.Catalog.ListStatuses(ctx, true)
		if err != nil {
			return err
		}
		if len(statuses) == 0 {
			return ErrLastActiveStatus
		}
		return nil
	})
	if err != nil {
		return err
	}

	s.settings.Purge()
	s.logger.Info("Справочники обновлены",
		slog.Int("disks", len(seed.Disks)),
		slog.Int("statuses", len(seed.Statuses)),
		slog.Int("file_types", len(seed.FileTypes)),
		slog.Int("notification_settings", len(seed.NotificationSettings)),
	)
	return nil
}
