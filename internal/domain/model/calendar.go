package model

import "time"

// CalendarEntry — проекция записи дня для календаря.
type CalendarEntry struct {
	Date  time.Time
	Title string
	// Completed — все файлы дня в финальном статусе
	Completed      bool
	CompletedFiles int
	TotalFiles     int
	Files          []CalendarFile
	// DiskName — имя назначенного диска
	DiskName string
	// Readonly — запись нельзя редактировать (всё, кроме сегодняшнего дня)
	Readonly bool
	IsToday  bool
	IsPast   bool
	// Priority — визуальный приоритет (high для незавершённых прошедших дней)
	Priority    string
	Notes       string
	CompletedAt *time.Time
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// CalendarFile — состояние одного файла в записи календаря.
type CalendarFile struct {
	FileTypeCode string
	FileTypeName string
	StatusCode   string
	StatusLabel  string
	IsFinal      bool
}
