package repository

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/bigkaa/itadmin/internal/domain/model"
)

// CatalogRepository — справочники чек-листа: диски, статусы, типы файлов,
// настройки уведомлений. Списки возвращаются в порядке ротации/отображения.
type CatalogRepository interface {
	// ListDisks возвращает диски, упорядоченные по sequence.
	ListDisks(ctx context.Context, activeOnly bool) ([]model.Disk, error)
	// ListStatuses возвращает статусы, упорядоченные по sort_order.
	ListStatuses(ctx context.Context, activeOnly bool) ([]model.Status, error)
	// ListFileTypes возвращает типы файлов, упорядоченные по sequence.
	ListFileTypes(ctx context.Context, activeOnly bool) ([]model.FileType, error)

	GetDisk(ctx context.Context, id string) (*model.Disk, error)
	// GetDiskBySequence предпочитает активный диск, если номер занят несколькими.
	GetDiskBySequence(ctx context.Context, sequence int) (*model.Disk, error)
	GetStatus(ctx context.Context, id string) (*model.Status, error)
	GetStatusByCode(ctx context.Context, code string) (*model.Status, error)
	GetFileType(ctx context.Context, id string) (*model.FileType, error)
	GetFileTypeByCode(ctx context.Context, code string) (*model.FileType, error)
	GetNotificationSetting(ctx context.Context, code string) (*model.NotificationSetting, error)

	// Upsert* создают запись или обновляют существующую по естественному ключу
	// (имя диска, код статуса/типа/настройки). ID новой записи генерируется, если пуст.
	UpsertDisk(ctx context.Context, d *model.Disk) error
	UpsertStatus(ctx context.Context, s *model.Status) error
	UpsertFileType(ctx context.Context, f *model.FileType) error
	UpsertNotificationSetting(ctx context.Context, s *model.NotificationSetting) error

	SetDiskActive(ctx context.Context, id string, active bool) error
	SetStatusActive(ctx context.Context, id string, active bool) error
	SetFileTypeActive(ctx context.Context, id string, active bool) error
}

// catalogRepo — реализация CatalogRepository.
type catalogRepo struct {
	db DBTX
}

// NewCatalogRepository создаёт репозиторий справочников.
func NewCatalogRepository(db DBTX) CatalogRepository {
	return &catalogRepo{db: db}
}

// rowScanner — общий интерфейс pgx.Row и pgx.Rows для сканирования.
type rowScanner interface {
	Scan(dest ...any) error
}

const diskColumns = `id, name, sequence, is_active, created_at, updated_at`

func scanDisk(row rowScanner) (model.Disk, error) {
	var d model.Disk
	err := row.Scan(&d.ID, &d.Name, &d.Sequence, &d.IsActive, &d.CreatedAt, &d.UpdatedAt)
	return d, err
}

const statusColumns = `id, code, label, sort_order, is_final, is_active`

func scanStatus(row rowScanner) (model.Status, error) {
	var s model.Status
	err := row.Scan(&s.ID, &s.Code, &s.Label, &s.SortOrder, &s.IsFinal, &s.IsActive)
	return s, err
}

const fileTypeColumns = `id, code, name, sequence, is_active`

func scanFileType(row rowScanner) (model.FileType, error) {
	var f model.FileType
	err := row.Scan(&f.ID, &f.Code, &f.Name, &f.Sequence, &f.IsActive)
	return f, err
}

// activeFilter возвращает условие WHERE для выборки только активных строк.
func activeFilter(activeOnly bool) string {
	if activeOnly {
		return "WHERE is_active"
	}
	return ""
}

func (r *catalogRepo) ListDisks(ctx context.Context, activeOnly bool) ([]model.Disk, error) {
	query := fmt.Sprintf(`SELECT %s FROM disks %s ORDER BY sequence, name`, diskColumns, activeFilter(activeOnly))
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка дисков: %w", err)
	}
	defer rows.Close()

	var result []model.Disk
	for rows.Next() {
		d, err := scanDisk(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования диска: %w", err)
		}
		result = append(result, d)
	}
	return result, rows.Err()
}

func (r *catalogRepo) ListStatuses(ctx context.Context, activeOnly bool) ([]model.Status, error) {
	query := fmt.Sprintf(`SELECT %s FROM statuses %s ORDER BY sort_order, code`, statusColumns, activeFilter(activeOnly))
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка статусов: %w", err)
	}
	defer rows.Close()

	var result []model.Status
	for rows.Next() {
		s, err := scanStatus(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования статуса: %w", err)
		}
		result = append(result, s)
	}
	return result, rows.Err()
}

func (r *catalogRepo) ListFileTypes(ctx context.Context, activeOnly bool) ([]model.FileType, error) {
	query := fmt.Sprintf(`SELECT %s FROM file_types %s ORDER BY sequence, code`, fileTypeColumns, activeFilter(activeOnly))
	rows, err := r.db.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения списка типов файлов: %w", err)
	}
	defer rows.Close()

	var result []model.FileType
	for rows.Next() {
		f, err := scanFileType(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования типа файла: %w", err)
		}
		result = append(result, f)
	}
	return result, rows.Err()
}

func (r *catalogRepo) GetDisk(ctx context.Context, id string) (*model.Disk, error) {
	d, err := scanDisk(r.db.QueryRow(ctx, `SELECT `+diskColumns+` FROM disks WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "ошибка получения диска %s", id)
	}
	return &d, nil
}

func (r *catalogRepo) GetDiskBySequence(ctx context.Context, sequence int) (*model.Disk, error) {
	query := `SELECT ` + diskColumns + ` FROM disks WHERE sequence = $1
		ORDER BY is_active DESC, updated_at DESC LIMIT 1`
	d, err := scanDisk(r.db.QueryRow(ctx, query, sequence))
	if err != nil {
		return nil, notFound(err, "ошибка получения диска №%d", sequence)
	}
	return &d, nil
}

func (r *catalogRepo) GetStatus(ctx context.Context, id string) (*model.Status, error) {
	s, err := scanStatus(r.db.QueryRow(ctx, `SELECT `+statusColumns+` FROM statuses WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "ошибка получения статуса %s", id)
	}
	return &s, nil
}

func (r *catalogRepo) GetStatusByCode(ctx context.Context, code string) (*model.Status, error) {
	s, err := scanStatus(r.db.QueryRow(ctx, `SELECT `+statusColumns+` FROM statuses WHERE code = $1`, code))
	if err != nil {
		return nil, notFound(err, "ошибка получения статуса %s", code)
	}
	return &s, nil
}

func (r *catalogRepo) GetFileType(ctx context.Context, id string) (*model.FileType, error) {
	f, err := scanFileType(r.db.QueryRow(ctx, `SELECT `+fileTypeColumns+` FROM file_types WHERE id = $1`, id))
	if err != nil {
		return nil, notFound(err, "ошибка получения типа файла %s", id)
	}
	return &f, nil
}

func (r *catalogRepo) GetFileTypeByCode(ctx context.Context, code string) (*model.FileType, error) {
	f, err := scanFileType(r.db.QueryRow(ctx, `SELECT `+fileTypeColumns+` FROM file_types WHERE code = $1`, code))
	if err != nil {
		return nil, notFound(err, "ошибка получения типа файла %s", code)
	}
	return &f, nil
}

func (r *catalogRepo) GetNotificationSetting(ctx context.Context, code string) (*model.NotificationSetting, error) {
	query := `
		SELECT code, title, message_template, priority, is_enabled, schedule
		FROM notification_settings
		WHERE code = $1`

	s := &model.NotificationSetting{}
	err := r.db.QueryRow(ctx, query, code).Scan(
		&s.Code, &s.Title, &s.MessageTemplate, &s.Priority, &s.IsEnabled, &s.Schedule,
	)
	if err != nil {
		return nil, notFound(err, "ошибка получения настройки уведомления %s", code)
	}
	return s, nil
}

func (r *catalogRepo) UpsertDisk(ctx context.Context, d *model.Disk) error {
	if d.ID == "" {
		d.ID = uuid.New().String()
	}
	query := `
		INSERT INTO disks (id, name, sequence, is_active)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (name) DO UPDATE SET
			sequence = EXCLUDED.sequence,
			is_active = EXCLUDED.is_active,
			updated_at = NOW()
		RETURNING id, created_at, updated_at`

	err := r.db.QueryRow(ctx, query, d.ID, d.Name, d.Sequence, d.IsActive).
		Scan(&d.ID, &d.CreatedAt, &d.UpdatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: активный диск с номером %d уже существует", ErrConflict, d.Sequence)
		}
		return fmt.Errorf("ошибка сохранения диска %q: %w", d.Name, err)
	}
	return nil
}

func (r *catalogRepo) UpsertStatus(ctx context.Context, s *model.Status) error {
	if s.ID == "" {
		s.ID = uuid.New().String()
	}
	query := `
		INSERT INTO statuses (id, code, label, sort_order, is_final, is_active)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET
			label = EXCLUDED.label,
			sort_order = EXCLUDED.sort_order,
			is_final = EXCLUDED.is_final,
			is_active = EXCLUDED.is_active
		RETURNING id`

	err := r.db.QueryRow(ctx, query, s.ID, s.Code, s.Label, s.SortOrder, s.IsFinal, s.IsActive).Scan(&s.ID)
	if err != nil {
		return fmt.Errorf("ошибка сохранения статуса %s: %w", s.Code, err)
	}
	return nil
}

func (r *catalogRepo) UpsertFileType(ctx context.Context, f *model.FileType) error {
	if f.ID == "" {
		f.ID = uuid.New().String()
	}
	query := `
		INSERT INTO file_types (id, code, name, sequence, is_active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (code) DO UPDATE SET
			name = EXCLUDED.name,
			sequence = EXCLUDED.sequence,
			is_active = EXCLUDED.is_active
		RETURNING id`

	err := r.db.QueryRow(ctx, query, f.ID, f.Code, f.Name, f.Sequence, f.IsActive).Scan(&f.ID)
	if err != nil {
		return fmt.Errorf("ошибка сохранения типа файла %s: %w", f.Code, err)
	}
	return nil
}

func (r *catalogRepo) UpsertNotificationSetting(ctx context.Context, s *model.NotificationSetting) error {
	query := `
		INSERT INTO notification_settings (code, title, message_template, priority, is_enabled, schedule)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (code) DO UPDATE SET
			title = EXCLUDED.title,
			message_template = EXCLUDED.message_template,
			priority = EXCLUDED.priority,
			is_enabled = EXCLUDED.is_enabled,
			schedule = EXCLUDED.schedule`

	_, err := r.db.Exec(ctx, query, s.Code, s.Title, s.MessageTemplate, s.Priority, s.IsEnabled, s.Schedule)
	if err != nil {
		return fmt.Errorf("ошибка сохранения настройки уведомления %s: %w", s.Code, err)
	}
	return nil
}

func (r *catalogRepo) SetDiskActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE disks SET is_active = $2, updated_at = NOW() WHERE id = $1`, id, active)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: номер диска уже занят активным диском", ErrConflict)
		}
		return fmt.Errorf("ошибка изменения активности диска %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *catalogRepo) SetStatusActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE statuses SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("ошибка изменения активности статуса %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *catalogRepo) SetFileTypeActive(ctx context.Context, id string, active bool) error {
	tag, err := r.db.Exec(ctx, `UPDATE file_types SET is_active = $2 WHERE id = $1`, id, active)
	if err != nil {
		return fmt.Errorf("ошибка изменения активности типа файла %s: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}
