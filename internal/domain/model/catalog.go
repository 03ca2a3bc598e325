// Пакет model — доменные структуры ежедневного чек-листа резервного копирования.
package model

import "time"

// Disk — слот ротации (физический носитель, на который копируется бэкап).
// Хранится в таблице disks.
type Disk struct {
	// ID — UUID записи
	ID string
	// Name — отображаемое имя диска
	Name string
	// Sequence — порядок в ротации (уникален среди активных)
	Sequence int
	// IsActive — участвует ли диск в ротации
	IsActive bool
	// CreatedAt — время создания записи
	CreatedAt time.Time
	// UpdatedAt — время последнего обновления
	UpdatedAt time.Time
}

// Status — состояние файла в матрице дня (PENDING → IN_PROGRESS → COMPLETED).
// Хранится в таблице statuses.
type Status struct {
	// ID — UUID записи
	ID string
	// Code — уникальный код (PENDING, DONE, ...)
	Code string
	// Label — отображаемое название
	Label string
	// SortOrder — позиция в цикле переключения
	SortOrder int
	// IsFinal — статус считается «выполнено» при расчёте завершённости
	IsFinal bool
	// IsActive — доступен ли статус для выбора
	IsActive bool
}

// FileType — файл, который требуется скопировать каждый день.
// Хранится в таблице file_types.
type FileType struct {
	// ID — UUID записи
	ID string
	// Code — уникальный код (BACKUP_ZIP, DB_DUMP, ...)
	Code string
	// Name — отображаемое название
	Name string
	// Sequence — порядок отображения в матрице
	Sequence int
	// IsActive — входит ли тип в обязательный набор дня
	IsActive bool
}

// Приоритеты уведомлений и записей календаря.
const (
	PriorityLow    = "low"
	PriorityNormal = "normal"
	PriorityHigh   = "high"
)

// NotificationSetting — настройка уведомления: шаблон, приоритет, расписание.
// Хранится в таблице notification_settings.
type NotificationSetting struct {
	// Code — уникальный код настройки (daily_backup_morning, ...)
	Code string
	// Title — заголовок уведомления
	Title string
	// MessageTemplate — шаблон текста с плейсхолдерами {{disk}}, {{user}}, ...
	MessageTemplate string
	// Priority — приоритет (low, normal, high); пустой — по умолчанию для вида
	Priority string
	// IsEnabled — отправляется ли уведомление
	IsEnabled bool
	// Schedule — время отправки «ЧЧ:ММ» (пусто — из конфигурации)
	Schedule string
}
