package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/itadmin/internal/domain/model"
)

// DailyRecordRepository — записи чек-листа (daily_records) и их матрица файлов
// (daily_file_entries). Записи возвращаются с диском и матрицей, матрица
// упорядочена по file_types.sequence.
type DailyRecordRepository interface {
	// GetByDate возвращает запись за дату или ErrNotFound.
	GetByDate(ctx context.Context, date time.Time) (*model.DailyRecord, error)
	// Create вставляет запись, если записи за эту дату ещё нет.
	// created=false означает, что запись уже существовала (гонка создателей).
	Create(ctx context.Context, rec *model.DailyRecord) (created bool, err error)
	// Update сохраняет диск, заметки, состояние завершённости и флаги старого формата.
	Update(ctx context.Context, rec *model.DailyRecord) error
	// UpsertEntry создаёт элемент матрицы или обновляет его статус.
	UpsertEntry(ctx context.Context, recordID, fileTypeID, statusID string) error
	// AddMissingEntries добавляет элементы матрицы для типов файлов,
	// которых в записи ещё нет. Существующие элементы не изменяются.
	AddMissingEntries(ctx context.Context, recordID string, fileTypeIDs []string, statusID string) (int, error)
	// ListByDateRange возвращает записи с датами в [from, to] по возрастанию даты.
	ListByDateRange(ctx context.Context, from, to time.Time) ([]*model.DailyRecord, error)
	// List возвращает записи от новых к старым.
	List(ctx context.Context, limit, offset int) ([]*model.DailyRecord, error)
	// Count возвращает общее количество записей.
	Count(ctx context.Context) (int, error)
	// Summary возвращает количество всех и завершённых записей.
	Summary(ctx context.Context) (total, completed int, err error)
	// CompletedDates возвращает даты завершённых записей от новых к старым.
	CompletedDates(ctx context.Context, limit int) ([]time.Time, error)
	// DiskUsage возвращает количество записей по имени диска.
	DiskUsage(ctx context.Context) (map[string]int, error)
	// ListLegacy возвращает записи, у которых ещё заполнены флаги старого формата.
	ListLegacy(ctx context.Context, limit int) ([]*model.DailyRecord, error)
}

// dailyRecordRepo — реализация DailyRecordRepository.
type dailyRecordRepo struct {
	db  DBTX
	loc *time.Location
}

// NewDailyRecordRepository создаёт репозиторий записей чек-листа.
// loc — часовой пояс, в котором значения DATE приводятся к полуночи.
func NewDailyRecordRepository(db DBTX, loc *time.Location) DailyRecordRepository {
	if loc == nil {
		loc = time.UTC
	}
	return &dailyRecordRepo{db: db, loc: loc}
}

const recordSelect = `
	SELECT r.id, r.record_date, r.disk_id, r.completed_at, r.completed_by, r.notes,
		r.legacy_backup_zip, r.legacy_database_dump, r.legacy_config_archive, r.legacy_log_archive,
		r.created_at, r.updated_at,
		d.id, d.name, d.sequence, d.is_active, d.created_at, d.updated_at
	FROM daily_records r
	JOIN disks d ON d.id = r.disk_id`

func (r *dailyRecordRepo) scanRecord(row rowScanner) (*model.DailyRecord, error) {
	rec := &model.DailyRecord{Disk: &model.Disk{}}
	var (
		date                         time.Time
		zip, dump, configs, logsFlag *bool
	)
	err := row.Scan(
		&rec.ID, &date, &rec.DiskID, &rec.CompletedAt, &rec.CompletedBy, &rec.Notes,
		&zip, &dump, &configs, &logsFlag,
		&rec.CreatedAt, &rec.UpdatedAt,
		&rec.Disk.ID, &rec.Disk.Name, &rec.Disk.Sequence, &rec.Disk.IsActive,
		&rec.Disk.CreatedAt, &rec.Disk.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	rec.Date = time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, r.loc)

	if zip != nil || dump != nil || configs != nil || logsFlag != nil {
		rec.Legacy = &model.LegacyChecks{
			BackupZip:     deref(zip),
			DatabaseDump:  deref(dump),
			ConfigArchive: deref(configs),
			LogArchive:    deref(logsFlag),
		}
	}
	return rec, nil
}

func deref(b *bool) bool {
	return b != nil && *b
}

// dateOnly переносит календарную дату в полночь UTC для параметра DATE.
func (r *dailyRecordRepo) dateOnly(t time.Time) time.Time {
	t = t.In(r.loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

func (r *dailyRecordRepo) GetByDate(ctx context.Context, date time.Time) (*model.DailyRecord, error) {
	rec, err := r.scanRecord(r.db.QueryRow(ctx, recordSelect+` WHERE r.record_date = $1`, r.dateOnly(date)))
	if err != nil {
		return nil, notFound(err, "ошибка получения записи за %s", date.Format(time.DateOnly))
	}
	if err := r.loadEntries(ctx, []*model.DailyRecord{rec}); err != nil {
		return nil, err
	}
	return rec, nil
}

func (r *dailyRecordRepo) Create(ctx context.Context, rec *model.DailyRecord) (bool, error) {
	if rec.ID == "" {
		rec.ID = uuid.New().String()
	}
	query := `
		INSERT INTO daily_records (id, record_date, disk_id, notes)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (record_date) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, rec.ID, r.dateOnly(rec.Date), rec.DiskID, rec.Notes)
	if err != nil {
		return false, fmt.Errorf("ошибка создания записи за %s: %w", rec.Date.Format(time.DateOnly), err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *dailyRecordRepo) Update(ctx context.Context, rec *model.DailyRecord) error {
	var zip, dump, configs, logsFlag *bool
	if rec.Legacy != nil {
		zip, dump = &rec.Legacy.BackupZip, &rec.Legacy.DatabaseDump
		configs, logsFlag = &rec.Legacy.ConfigArchive, &rec.Legacy.LogArchive
	}

	query := `
		UPDATE daily_records SET
			disk_id = $2,
			notes = $3,
			completed_at = $4,
			completed_by = $5,
			legacy_backup_zip = $6,
			legacy_database_dump = $7,
			legacy_config_archive = $8,
			legacy_log_archive = $9,
			updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`

	err := r.db.QueryRow(ctx, query,
		rec.ID, rec.DiskID, rec.Notes, rec.CompletedAt, rec.CompletedBy,
		zip, dump, configs, logsFlag,
	).Scan(&rec.UpdatedAt)
	if err != nil {
		return notFound(err, "ошибка обновления записи %s", rec.ID)
	}
	return nil
}

func (r *dailyRecordRepo) UpsertEntry(ctx context.Context, recordID, fileTypeID, statusID string) error {
	query := `
		INSERT INTO daily_file_entries (daily_record_id, file_type_id, status_id)
		VALUES ($1, $2, $3)
		ON CONFLICT (daily_record_id, file_type_id) DO UPDATE SET
			status_id = EXCLUDED.status_id,
			updated_at = NOW()`

	if _, err := r.db.Exec(ctx, query, recordID, fileTypeID, statusID); err != nil {
		return fmt.Errorf("ошибка сохранения статуса файла %s: %w", fileTypeID, err)
	}
	return nil
}

func (r *dailyRecordRepo) AddMissingEntries(ctx context.Context, recordID string, fileTypeIDs []string, statusID string) (int, error) {
	if len(fileTypeIDs) == 0 {
		return 0, nil
	}
	query := `
		INSERT INTO daily_file_entries (daily_record_id, file_type_id, status_id)
		SELECT $1, ft, $3 FROM unnest($2::uuid[]) AS ft
		ON CONFLICT (daily_record_id, file_type_id) DO NOTHING`

	tag, err := r.db.Exec(ctx, query, recordID, fileTypeIDs, statusID)
	if err != nil {
		return 0, fmt.Errorf("ошибка синхронизации матрицы файлов записи %s: %w", recordID, err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *dailyRecordRepo) ListByDateRange(ctx context.Context, from, to time.Time) ([]*model.DailyRecord, error) {
	query := recordSelect + `
		WHERE r.record_date BETWEEN $1 AND $2
		ORDER BY r.record_date`
	return r.list(ctx, query, r.dateOnly(from), r.dateOnly(to))
}

func (r *dailyRecordRepo) List(ctx context.Context, limit, offset int) ([]*model.DailyRecord, error) {
	query := recordSelect + `
		ORDER BY r.record_date DESC
		LIMIT $1 OFFSET $2`
	return r.list(ctx, query, limit, offset)
}

func (r *dailyRecordRepo) ListLegacy(ctx context.Context, limit int) ([]*model.DailyRecord, error) {
	query := recordSelect + `
		WHERE r.legacy_backup_zip IS NOT NULL
			OR r.legacy_database_dump IS NOT NULL
			OR r.legacy_config_archive IS NOT NULL
			OR r.legacy_log_archive IS NOT NULL
		ORDER BY r.record_date
		LIMIT $1`
	return r.list(ctx, query, limit)
}

func (r *dailyRecordRepo) list(ctx context.Context, query string, args ...any) ([]*model.DailyRecord, error) {
	rows, err := r.db.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка записей: %w", err)
	}
	defer rows.Close()

	var result []*model.DailyRecord
	for rows.Next() {
		rec, err := r.scanRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования записи: %w", err)
		}
		result = append(result, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("ошибка итерации записей: %w", err)
	}

	if err := r.loadEntries(ctx, result); err != nil {
		return nil, err
	}
	return result, nil
}

// loadEntries заполняет матрицу файлов для набора записей одним запросом.
func (r *dailyRecordRepo) loadEntries(ctx context.Context, records []*model.DailyRecord) error {
	if len(records) == 0 {
		return nil
	}
	byID := make(map[string]*model.DailyRecord, len(records))
	ids := make([]string, 0, len(records))
	for _, rec := range records {
		byID[rec.ID] = rec
		ids = append(ids, rec.ID)
	}

	query := `
		SELECT e.daily_record_id, e.file_type_id, e.status_id, e.updated_at,
			ft.id, ft.code, ft.name, ft.sequence, ft.is_active,
			s.id, s.code, s.label, s.sort_order, s.is_final, s.is_active
		FROM daily_file_entries e
		JOIN file_types ft ON ft.id = e.file_type_id
		JOIN statuses s ON s.id = e.status_id
		WHERE e.daily_record_id = ANY($1::uuid[])
		ORDER BY ft.sequence, ft.code`

	rows, err := r.db.Query(ctx, query, ids)
	if err != nil {
		return fmt.Errorf("ошибка получения матрицы файлов: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e  model.DailyFileEntry
			ft model.FileType
			st model.Status
		)
		if err := rows.Scan(
			&e.DailyRecordID, &e.FileTypeID, &e.StatusID, &e.UpdatedAt,
			&ft.ID, &ft.Code, &ft.Name, &ft.Sequence, &ft.IsActive,
			&st.ID, &st.Code, &st.Label, &st.SortOrder, &st.IsFinal, &st.IsActive,
		); err != nil {
			return fmt.Errorf("ошибка сканирования элемента матрицы: %w", err)
		}
		e.FileType, e.Status = &ft, &st
		if rec, ok := byID[e.DailyRecordID]; ok {
			rec.Files = append(rec.Files, e)
		}
	}
	return rows.Err()
}

func (r *dailyRecordRepo) Count(ctx context.Context) (int, error) {
	var n int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM daily_records`).Scan(&n); err != nil {
		return 0, fmt.Errorf("ошибка подсчёта записей: %w", err)
	}
	return n, nil
}

func (r *dailyRecordRepo) Summary(ctx context.Context) (total, completed int, err error) {
	query := `SELECT COUNT(*), COUNT(completed_at) FROM daily_records`
	if err := r.db.QueryRow(ctx, query).Scan(&total, &completed); err != nil {
		return 0, 0, fmt.Errorf("ошибка получения сводки записей: %w", err)
	}
	return total, completed, nil
}

func (r *dailyRecordRepo) CompletedDates(ctx context.Context, limit int) ([]time.Time, error) {
	query := `
		SELECT record_date FROM daily_records
		WHERE completed_at IS NOT NULL
		ORDER BY record_date DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения дат завершения: %w", err)
	}
	defer rows.Close()

	var result []time.Time
	for rows.Next() {
		var d time.Time
		if err := rows.Scan(&d); err != nil {
			return nil, fmt.Errorf("ошибка сканирования даты: %w", err)
		}
		result = append(result, time.Date(d.Year(), d.Month(), d.Day(), 0, 0, 0, 0, r.loc))
	}
	return result, rows.Err()
}

func (r *dailyRecordRepo) DiskUsage(ctx context.Context) (map[string]int, error) {
	query := `
		SELECT d.name, COUNT(*)
		FROM daily_records r
		JOIN disks d ON d.id = r.disk_id
		GROUP BY d.name`

	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения статистики дисков: %w", err)
	}
	defer rows.Close()

	usage := make(map[string]int)
	for rows.Next() {
		var (
			name string
			n    int
		)
		if err := rows.Scan(&name, &n); err != nil {
			return nil, fmt.Errorf("ошибка сканирования статистики дисков: %w", err)
		}
		usage[name] = n
	}
	return usage, rows.Err()
}
