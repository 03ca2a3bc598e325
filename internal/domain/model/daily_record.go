package model

import "time"

// DailyRecord — запись чек-листа за одну календарную дату.
// Хранится в таблице daily_records (уникальна по record_date).
type DailyRecord struct {
	// ID — UUID записи
	ID string
	// Date — дата (полночь в часовом поясе сервиса)
	Date time.Time
	// DiskID — назначенный диск
	DiskID string
	// Disk — назначенный диск (заполняется при чтении)
	Disk *Disk
	// CompletedAt — время завершения дня (nil — не завершён)
	CompletedAt *time.Time
	// CompletedBy — кто завершил день
	CompletedBy *string
	// Notes — произвольные заметки оператора
	Notes string
	// Files — матрица файлов дня, упорядочена по FileType.Sequence
	Files []DailyFileEntry
	// Legacy — флаги старого формата (nil — запись уже в формате матрицы)
	Legacy *LegacyChecks
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// IsCompleted сообщает сохранённое состояние завершённости.
func (r *DailyRecord) IsCompleted() bool {
	return r.CompletedAt != nil
}

// Entry возвращает элемент матрицы для типа файла или nil.
func (r *DailyRecord) Entry(fileTypeID string) *DailyFileEntry {
	for i := range r.Files {
		if r.Files[i].FileTypeID == fileTypeID {
			return &r.Files[i]
		}
	}
	return nil
}

// DailyFileEntry — статус одного типа файла в записи дня.
// Хранится в таблице daily_file_entries, PK (daily_record_id, file_type_id).
type DailyFileEntry struct {
	DailyRecordID string
	FileTypeID    string
	StatusID      string
	// FileType и Status заполняются при чтении
	FileType *FileType
	Status   *Status
	// UpdatedAt — время последнего изменения статуса
	UpdatedAt time.Time
}

// IsFinal сообщает, находится ли файл в финальном статусе.
func (e DailyFileEntry) IsFinal() bool {
	return e.Status != nil && e.Status.IsFinal
}

// LegacyChecks — четыре фиксированных флага записей старого формата,
// созданных до появления динамической матрицы файлов.
type LegacyChecks struct {
	BackupZip     bool
	DatabaseDump  bool
	ConfigArchive bool
	LogArchive    bool
}

// FileStatusPatch — установка статуса одного типа файла.
type FileStatusPatch struct {
	FileTypeID string `validate:"required,uuid"`
	StatusID   string `validate:"required,uuid"`
}

// HistoryPage — страница истории записей (от новых к старым).
type HistoryPage struct {
	Items []*DailyRecord
	Page  int
	Limit int
	Total int
}

// Stats — сводная статистика по всем записям.
type Stats struct {
	// TotalDays — количество записей
	TotalDays int
	// CompletedDays — количество завершённых дней
	CompletedDays int
	// PendingDays — количество незавершённых дней
	PendingDays int
	// CompletionRate — доля завершённых дней в процентах
	CompletionRate float64
	// CurrentStreak — завершённых дней подряд, заканчивая сегодня (или вчера, если сегодня не завершён)
	CurrentStreak int
	// LastCompletedDate — дата последнего завершённого дня
	LastCompletedDate *time.Time
	// DiskUsage — количество записей по имени диска
	DiskUsage map[string]int
}
