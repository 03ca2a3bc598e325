// daily_records.go — записи ежедневного чек-листа резервного копирования.
// Запись «сегодня» создаётся лениво при первом чтении или записи, её матрица
// файлов дополняется активными типами файлов при каждом обращении.
// Изменяется только запись сегодняшнего дня; дата всегда вычисляется на сервере.
//
// Каждая операция записи выполняется в одной транзакции: создание записи,
// перенос флагов старого формата, синхронизация матрицы, изменение диска
// и заметок, статусы файлов, пересчёт завершённости. Уведомление о завершении
// отправляется после коммита и только на переходе «не завершён → завершён».
//
// Prometheus-метрики:
//   - itadmin_daily_record_writes_total{operation} — выполненные операции записи
//   - itadmin_daily_completions_total{edge} — переходы состояния завершённости
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/bigkaa/itadmin/internal/clock"
	"github.com/bigkaa/itadmin/internal/domain/completion"
	"github.com/bigkaa/itadmin/internal/domain/model"
	"github.com/bigkaa/itadmin/internal/domain/rotation"
	"github.com/bigkaa/itadmin/internal/repository"
)

var (
	recordWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itadmin_daily_record_writes_total",
		Help: "Количество операций записи чек-листа",
	}, []string{"operation"})

	completionEdges = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itadmin_daily_completions_total",
		Help: "Количество переходов состояния завершённости дня",
	}, []string{"edge"})
)

// Пределы пагинации истории.
const (
	maxHistoryLimit = 100
	// legacyBatchSize — размер пачки при переносе записей старого формата.
	legacyBatchSize = 100
)

// CompletionNotifier получает уведомление о завершении дня.
// Ошибки доставки обрабатываются реализацией и не возвращаются.
type CompletionNotifier interface {
	NotifyCompleted(ctx context.Context, rec *model.DailyRecord, actorID string)
}

// DailyPatch — изменение записи сегодняшнего дня.
type DailyPatch struct {
	// Disk — явный выбор диска (nil — оставить текущий или по ротации)
	Disk *rotation.Override
	// Notes — новые заметки (nil — без изменений)
	Notes *string `validate:"omitempty,max=2000"`
	// Files — статусы файлов
	Files []model.FileStatusPatch `validate:"dive"`
}

// DailyRecordService — менеджер записей чек-листа.
type DailyRecordService struct {
	repos     *repository.Repositories
	tx        repository.TxManager
	civil     clock.Civil
	reference time.Time
	notifier  CompletionNotifier
	logger    *slog.Logger
}

// NewDailyRecordService создаёт менеджер записей.
// reference — опорная дата ротации дисков; notifier может быть nil.
func NewDailyRecordService(
	repos *repository.Repositories,
	tx repository.TxManager,
	civil clock.Civil,
	reference time.Time,
	notifier CompletionNotifier,
	logger *slog.Logger,
) *DailyRecordService {
	return &DailyRecordService{
		repos:     repos,
		tx:        tx,
		civil:     civil,
		reference: civil.Normalize(reference),
		notifier:  notifier,
		logger:    logger.With(slog.String("component", "daily_records")),
	}
}

// GetToday возвращает запись сегодняшнего дня, создавая её при отсутствии.
func (s *DailyRecordService) GetToday(ctx context.Context) (*model.DailyRecord, error) {
	return s.EnsureTodayMaterialized(ctx)
}

// EnsureTodayMaterialized гарантирует существование записи сегодняшнего дня.
// Для существующей записи диск не меняется, а матрица дополняется
// недостающими активными типами файлов в статусе по умолчанию.
func (s *DailyRecordService) EnsureTodayMaterialized(ctx context.Context) (*model.DailyRecord, error) {
	day := s.civil.Today()

	var rec *model.DailyRecord
	err := s.tx.WithinTx(ctx, func(r *repository.Repositories) error {
		snap, err := LoadSnapshot(ctx, r.Catalog)
		if err != nil {
			return err
		}
		rec, err = s.materialize(ctx, r, snap, day, nil)
		if err != nil {
			return err
		}
		return s.reopenOnRead(ctx, r, rec)
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

// CreateOrUpdateToday применяет изменение к записи сегодняшнего дня.
func (s *DailyRecordService) CreateOrUpdateToday(ctx context.Context, patch DailyPatch, actorID string) (*model.DailyRecord, error) {
	if err := validateStruct(patch); err != nil {
		return nil, err
	}
	if patch.Disk != nil && patch.Disk.ID != "" {
		if err := uuid.Validate(patch.Disk.ID); err != nil {
			return nil, fmt.Errorf("%w: некорректный идентификатор диска %q", ErrValidation, patch.Disk.ID)
		}
	}

	return s.write(ctx, "update", actorID, patch.Disk,
		func(ctx context.Context, r *repository.Repositories, snap *Snapshot, _ *model.DailyRecord) (change, error) {
			for _, f := range patch.Files {
				if err := s.checkFilePatch(ctx, r, snap, f); err != nil {
					return change{}, err
				}
			}
			return change{notes: patch.Notes, files: patch.Files}, nil
		})
}

// ToggleFile переводит файл в следующий статус цикла. ref — код типа файла
// или имя поля старого формата (backupZip, databaseDump, ...).
// Из последнего активного статуса файл переходит в первый.
func (s *DailyRecordService) ToggleFile(ctx context.Context, ref, actorID string) (*model.DailyRecord, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: не указан тип файла", ErrValidation)
	}
	code := completion.CodeForAlias(ref)

	return s.write(ctx, "toggle", actorID, nil,
		func(ctx context.Context, r *repository.Repositories, snap *Snapshot, rec *model.DailyRecord) (change, error) {
			ft, ok := snap.FileTypeByCode(code)
			if !ok {
				if _, err := r.Catalog.GetFileTypeByCode(ctx, code); err != nil {
					return change{}, componentNotFound(err, "тип файла", code)
				}
				return change{}, inactive("тип файла", code)
			}

			current := ""
			if e := rec.Entry(ft.ID); e != nil {
				current = e.StatusID
			}
			next, err := snap.NextStatus(current)
			if err != nil {
				return change{}, err
			}
			return change{files: []model.FileStatusPatch{{FileTypeID: ft.ID, StatusID: next.ID}}}, nil
		})
}

// UpdateFileStatus устанавливает файлу явный статус.
func (s *DailyRecordService) UpdateFileStatus(ctx context.Context, fileTypeID, statusID, actorID string) (*model.DailyRecord, error) {
	patch := model.FileStatusPatch{FileTypeID: fileTypeID, StatusID: statusID}
	if err := validateStruct(patch); err != nil {
		return nil, err
	}

	return s.write(ctx, "set_status", actorID, nil,
		func(ctx context.Context, r *repository.Repositories, snap *Snapshot, _ *model.DailyRecord) (change, error) {
			if err := s.checkFilePatch(ctx, r, snap, patch); err != nil {
				return change{}, err
			}
			return change{files: []model.FileStatusPatch{patch}}, nil
		})
}

// GetByDate возвращает запись за произвольную дату без её создания.
func (s *DailyRecordService) GetByDate(ctx context.Context, date time.Time) (*model.DailyRecord, error) {
	day := s.civil.Normalize(date)
	rec, err := s.repos.DailyRecords.GetByDate(ctx, day)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("%w: запись за %s", ErrNotFound, day.Format(time.DateOnly))
		}
		return nil, err
	}
	return rec, nil
}

// GetByMonth возвращает записи месяца по возрастанию даты.
// Записи не создаются и не изменяются.
func (s *DailyRecordService) GetByMonth(ctx context.Context, year int, month time.Month) ([]*model.DailyRecord, error) {
	if err := validateMonth(year, month); err != nil {
		return nil, err
	}
	from, to := s.civil.MonthRange(year, month)
	return s.repos.DailyRecords.ListByDateRange(ctx, from, to)
}

// validateMonth проверяет год и месяц периода.
func validateMonth(year int, month time.Month) error {
	if year < 1 || year > 9999 {
		return fmt.Errorf("%w: год %d вне диапазона 1..9999", ErrInvalidDate, year)
	}
	if month < time.January || month > time.December {
		return fmt.Errorf("%w: месяц %d вне диапазона 1..12", ErrInvalidDate, int(month))
	}
	return nil
}

// GetHistory возвращает страницу истории записей от новых к старым.
// page начинается с 1, limit — от 1 до 100.
func (s *DailyRecordService) GetHistory(ctx context.Context, page, limit int) (*model.HistoryPage, error) {
	if page < 1 {
		return nil, fmt.Errorf("%w: page должен быть >= 1", ErrValidation)
	}
	if limit < 1 || limit > maxHistoryLimit {
		return nil, fmt.Errorf("%w: limit должен быть в диапазоне 1..%d", ErrValidation, maxHistoryLimit)
	}

	total, err := s.repos.DailyRecords.Count(ctx)
	if err != nil {
		return nil, err
	}
	items, err := s.repos.DailyRecords.List(ctx, limit, (page-1)*limit)
	if err != nil {
		return nil, err
	}
	return &model.HistoryPage{Items: items, Page: page, Limit: limit, Total: total}, nil
}

// GetStats возвращает сводную статистику: количество дней, долю завершённых,
// текущую серию завершённых дней и распределение записей по дискам.
func (s *DailyRecordService) GetStats(ctx context.Context) (*model.Stats, error) {
	total, completed, err := s.repos.DailyRecords.Summary(ctx)
	if err != nil {
		return nil, err
	}
	usage, err := s.repos.DailyRecords.DiskUsage(ctx)
	if err != nil {
		return nil, err
	}

	stats := &model.Stats{
		TotalDays:     total,
		CompletedDays: completed,
		PendingDays:   total - completed,
		DiskUsage:     usage,
	}
	if total > 0 {
		stats.CompletionRate = math.Round(float64(completed)/float64(total)*1000) / 10
	}
	if completed == 0 {
		return stats, nil
	}

	dates, err := s.repos.DailyRecords.CompletedDates(ctx, completed)
	if err != nil {
		return nil, err
	}
	if len(dates) > 0 {
		last := dates[0]
		stats.LastCompletedDate = &last
		stats.CurrentStreak = streak(s.civil.Today(), dates)
	}
	return stats, nil
}

// streak считает завершённые дни подряд, заканчивая сегодняшним днём
// или вчерашним, если сегодняшний ещё не завершён. dates — по убыванию.
func streak(today time.Time, dates []time.Time) int {
	expected := today
	if clock.DaysBetween(dates[0], today) != 0 {
		expected = today.AddDate(0, 0, -1)
	}
	n := 0
	for _, d := range dates {
		switch diff := clock.DaysBetween(d, expected); {
		case diff == 0:
			n++
			expected = expected.AddDate(0, 0, -1)
		case diff < 0:
			// дата позже ожидаемой
			continue
		default:
			return n
		}
	}
	return n
}

// BackfillLegacy переносит все записи старого формата в матрицу файлов.
// Возвращает количество перенесённых записей.
func (s *DailyRecordService) BackfillLegacy(ctx context.Context) (int, error) {
	migrated := 0
	for {
		var batch int
		err := s.tx.WithinTx(ctx, func(r *repository.Repositories) error {
			snap, err := LoadSnapshot(ctx, r.Catalog)
			if err != nil {
				return err
			}
			records, err := r.DailyRecords.ListLegacy(ctx, legacyBatchSize)
			if err != nil {
				return err
			}
			for _, rec := range records {
				if _, err := s.backfillLegacy(ctx, r, snap, rec); err != nil {
					return err
				}
			}
			batch = len(records)
			return nil
		})
		if err != nil {
			return migrated, err
		}
		migrated += batch
		if batch < legacyBatchSize {
			break
		}
	}
	if migrated > 0 {
		s.logger.Info("Записи старого формата перенесены в матрицу файлов", slog.Int("count", migrated))
	}
	return migrated, nil
}

// --- Внутренние методы ---

// change — изменения записи в рамках одной операции.
type change struct {
	disk  *model.Disk
	notes *string
	files []model.FileStatusPatch
}

// prepareFunc формирует изменение по снимку справочников и текущей записи.
type prepareFunc func(ctx context.Context, r *repository.Repositories, snap *Snapshot, rec *model.DailyRecord) (change, error)

// write выполняет операцию записи над записью сегодняшнего дня в одной транзакции.
func (s *DailyRecordService) write(
	ctx context.Context,
	operation, actorID string,
	override *rotation.Override,
	prepare prepareFunc,
) (*model.DailyRecord, error) {
	day := s.civil.Today()

	var (
		rec  *model.DailyRecord
		edge completion.Edge
	)
	err := s.tx.WithinTx(ctx, func(r *repository.Repositories) error {
		snap, err := LoadSnapshot(ctx, r.Catalog)
		if err != nil {
			return err
		}

		var disk *model.Disk
		if !override.IsZero() {
			d, err := s.resolveDiskOverride(ctx, r, snap, day, override)
			if err != nil {
				return err
			}
			disk = &d
		}

		rec, err = s.materialize(ctx, r, snap, day, disk)
		if err != nil {
			return err
		}

		ch, err := prepare(ctx, r, snap, rec)
		if err != nil {
			return err
		}
		ch.disk = disk

		rec, edge, err = s.applyChange(ctx, r, rec, ch, actorID)
		return err
	})
	if err != nil {
		return nil, err
	}

	s.afterCommit(ctx, operation, rec, edge, actorID)
	return rec, nil
}

// materialize возвращает запись за day, создавая её при отсутствии.
// disk — диск новой записи; nil — по ротации. Существующая запись
// переносится из старого формата и дополняется недостающими типами файлов.
func (s *DailyRecordService) materialize(
	ctx context.Context,
	r *repository.Repositories,
	snap *Snapshot,
	day time.Time,
	disk *model.Disk,
) (*model.DailyRecord, error) {
	rec, err := r.DailyRecords.GetByDate(ctx, day)
	switch {
	case err == nil:
	case errors.Is(err, repository.ErrNotFound):
		if err := snap.RequireComplete(); err != nil {
			return nil, err
		}
		if disk == nil {
			d, err := rotation.Resolve(day, s.reference, snap.Disks, nil)
			if err != nil {
				return nil, ErrNoActiveDisks
			}
			disk = &d
		}

		created, err := r.DailyRecords.Create(ctx, &model.DailyRecord{Date: day, DiskID: disk.ID})
		if err != nil {
			return nil, err
		}
		if created {
			s.logger.Info("Создана запись дня",
				slog.String("date", day.Format(time.DateOnly)),
				slog.String("disk", disk.Name),
			)
		}
		if rec, err = r.DailyRecords.GetByDate(ctx, day); err != nil {
			return nil, err
		}
	default:
		return nil, err
	}

	migrated, err := s.backfillLegacy(ctx, r, snap, rec)
	if err != nil {
		return nil, err
	}
	added, err := s.syncMatrix(ctx, r, snap, rec)
	if err != nil {
		return nil, err
	}
	if migrated || added > 0 {
		return r.DailyRecords.GetByDate(ctx, day)
	}
	return rec, nil
}

// syncMatrix добавляет в матрицу записи активные типы файлов, которых в ней нет.
// Существующие элементы не изменяются.
func (s *DailyRecordService) syncMatrix(ctx context.Context, r *repository.Repositories, snap *Snapshot, rec *model.DailyRecord) (int, error) {
	missing := snap.MissingFileTypes(rec)
	if len(missing) == 0 {
		return 0, nil
	}
	def, err := snap.DefaultStatus()
	if err != nil {
		return 0, err
	}

	ids := make([]string, 0, len(missing))
	for _, ft := range missing {
		ids = append(ids, ft.ID)
	}
	added, err := r.DailyRecords.AddMissingEntries(ctx, rec.ID, ids, def.ID)
	if err != nil {
		return 0, err
	}
	if added > 0 {
		s.logger.Info("Матрица файлов дополнена",
			slog.String("date", rec.Date.Format(time.DateOnly)),
			slog.Int("added", added),
			slog.String("status", def.Code),
		)
	}
	return added, nil
}

// backfillLegacy переносит флаги старого формата в матрицу файлов и очищает их.
// Установленный флаг становится первым финальным статусом, снятый — статусом
// по умолчанию. Если матрица уже заполнена, флаги просто очищаются.
func (s *DailyRecordService) backfillLegacy(ctx context.Context, r *repository.Repositories, snap *Snapshot, rec *model.DailyRecord) (bool, error) {
	if rec.Legacy == nil {
		return false, nil
	}

	if len(rec.Files) == 0 {
		def, err := snap.DefaultStatus()
		if err != nil {
			return false, err
		}
		final, ok := snap.FirstFinalStatus()
		if !ok {
			final = def
		}

		legacy := completion.Legacy(*rec.Legacy)
		for _, f := range completion.LegacyFields {
			ft, err := r.Catalog.GetFileTypeByCode(ctx, f.Code)
			if err != nil {
				if errors.Is(err, repository.ErrNotFound) {
					s.logger.Warn("Тип файла старого формата отсутствует в справочнике",
						slog.String("code", f.Code),
						slog.String("date", rec.Date.Format(time.DateOnly)),
					)
					continue
				}
				return false, err
			}
			status := def
			if done, _ := legacy.Value(f.Code); done {
				status = final
			}
			if err := r.DailyRecords.UpsertEntry(ctx, rec.ID, ft.ID, status.ID); err != nil {
				return false, err
			}
		}
	}

	rec.Legacy = nil
	if err := r.DailyRecords.Update(ctx, rec); err != nil {
		return false, err
	}
	s.logger.Info("Запись старого формата перенесена в матрицу файлов",
		slog.String("date", rec.Date.Format(time.DateOnly)),
	)
	return true, nil
}

// applyChange применяет изменение к записи, перечитывает её и пересчитывает
// завершённость.
func (s *DailyRecordService) applyChange(
	ctx context.Context,
	r *repository.Repositories,
	rec *model.DailyRecord,
	ch change,
	actorID string,
) (*model.DailyRecord, completion.Edge, error) {
	dirty := false
	if ch.disk != nil && ch.disk.ID != rec.DiskID {
		s.logger.Info("Диск дня переназначен",
			slog.String("date", rec.Date.Format(time.DateOnly)),
			slog.String("from", rec.DiskID),
			slog.String("to", ch.disk.ID),
		)
		rec.DiskID = ch.disk.ID
		dirty = true
	}
	if ch.notes != nil && *ch.notes != rec.Notes {
		rec.Notes = *ch.notes
		dirty = true
	}
	if dirty {
		if err := r.DailyRecords.Update(ctx, rec); err != nil {
			return nil, completion.EdgeNone, err
		}
	}

	for _, f := range ch.files {
		if err := r.DailyRecords.UpsertEntry(ctx, rec.ID, f.FileTypeID, f.StatusID); err != nil {
			return nil, completion.EdgeNone, err
		}
	}

	fresh, err := r.DailyRecords.GetByDate(ctx, rec.Date)
	if err != nil {
		return nil, completion.EdgeNone, err
	}
	edge, err := s.settle(ctx, r, fresh, actorID)
	if err != nil {
		return nil, completion.EdgeNone, err
	}
	return fresh, edge, nil
}

// settle сравнивает сохранённое и вычисленное состояние завершённости
// и сохраняет переход, если он есть.
func (s *DailyRecordService) settle(ctx context.Context, r *repository.Repositories, rec *model.DailyRecord, actorID string) (completion.Edge, error) {
	edge := completion.Evaluate(rec)
	if edge == completion.EdgeNone {
		return edge, nil
	}
	completion.Apply(rec, edge, s.civil.Now(), actorID)
	if err := r.DailyRecords.Update(ctx, rec); err != nil {
		return completion.EdgeNone, err
	}
	return edge, nil
}

// reopenOnRead применяет при чтении только возврат дня в работу.
// Завершение фиксируется лишь операцией записи: у неё есть автор, и после
// неё отправляется уведомление. Если день стал завершённым без записи
// (например, статус стал финальным), он остаётся открытым до следующей записи.
func (s *DailyRecordService) reopenOnRead(ctx context.Context, r *repository.Repositories, rec *model.DailyRecord) error {
	switch completion.Evaluate(rec) {
	case completion.EdgeReopened:
		completion.Apply(rec, completion.EdgeReopened, s.civil.Now(), "")
		if err := r.DailyRecords.Update(ctx, rec); err != nil {
			return err
		}
		completionEdges.WithLabelValues(completion.EdgeReopened.String()).Inc()
		s.logger.Info("День возвращён в работу при чтении",
			slog.String("date", rec.Date.Format(time.DateOnly)),
		)
	case completion.EdgeCompleted:
		s.logger.Debug("День выполнен, завершение будет зафиксировано следующей записью",
			slog.String("date", rec.Date.Format(time.DateOnly)),
		)
	}
	return nil
}

// afterCommit обновляет метрики и отправляет уведомление о завершении дня.
func (s *DailyRecordService) afterCommit(ctx context.Context, operation string, rec *model.DailyRecord, edge completion.Edge, actorID string) {
	recordWrites.WithLabelValues(operation).Inc()
	if edge == completion.EdgeNone {
		return
	}
	completionEdges.WithLabelValues(edge.String()).Inc()

	done, total := completion.For(rec).Counts()
	s.logger.Info("Состояние завершённости дня изменено",
		slog.String("date", rec.Date.Format(time.DateOnly)),
		slog.String("edge", edge.String()),
		slog.String("actor", actorID),
		slog.String("progress", strconv.Itoa(done)+"/"+strconv.Itoa(total)),
	)

	if edge == completion.EdgeCompleted && s.notifier != nil {
		s.notifier.NotifyCompleted(ctx, rec, actorID)
	}
}

// resolveDiskOverride проверяет явно выбранный диск. Неизвестный диск даёт
// ErrRecordComponentNotFound, деактивированный — ErrInactiveReference.
func (s *DailyRecordService) resolveDiskOverride(
	ctx context.Context,
	r *repository.Repositories,
	snap *Snapshot,
	day time.Time,
	o *rotation.Override,
) (model.Disk, error) {
	d, err := rotation.Resolve(day, s.reference, snap.Disks, o)
	if err == nil {
		return d, nil
	}

	var ref string
	if o.ID != "" {
		ref = o.ID
		_, err = r.Catalog.GetDisk(ctx, o.ID)
	} else {
		ref = "#" + strconv.Itoa(*o.Sequence)
		_, err = r.Catalog.GetDiskBySequence(ctx, *o.Sequence)
	}
	if err != nil {
		return model.Disk{}, componentNotFound(err, "диск", ref)
	}
	return model.Disk{}, inactive("диск", ref)
}

// checkFilePatch проверяет, что тип файла и статус существуют и активны.
func (s *DailyRecordService) checkFilePatch(ctx context.Context, r *repository.Repositories, snap *Snapshot, p model.FileStatusPatch) error {
	if _, ok := snap.FileType(p.FileTypeID); !ok {
		if _, err := r.Catalog.GetFileType(ctx, p.FileTypeID); err != nil {
			return componentNotFound(err, "тип файла", p.FileTypeID)
		}
		return inactive("тип файла", p.FileTypeID)
	}
	if _, ok := snap.Status(p.StatusID); !ok {
		if _, err := r.Catalog.GetStatus(ctx, p.StatusID); err != nil {
			return componentNotFound(err, "статус", p.StatusID)
		}
		return inactive("статус", p.StatusID)
	}
	return nil
}
