package service

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/bigkaa/itadmin/internal/clock"
	"github.com/bigkaa/itadmin/internal/domain/completion"
	"github.com/bigkaa/itadmin/internal/domain/model"
)

// CalendarService строит проекцию записей месяца для календаря.
type CalendarService struct {
	records *DailyRecordService
	civil   clock.Civil
}

// NewCalendarService создаёт сервис календаря.
func NewCalendarService(records *DailyRecordService, civil clock.Civil) *CalendarService {
	return &CalendarService{records: records, civil: civil}
}

// ProjectMonth возвращает записи месяца по возрастанию даты.
// Если сегодняшний день входит в месяц, его запись создаётся при отсутствии
// (EnsureTodayMaterialized) и доступна для редактирования; остальные
// записи только для чтения. Даты без записей в проекцию не попадают.
func (c *CalendarService) ProjectMonth(ctx context.Context, year int, month time.Month) ([]model.CalendarEntry, error) {
	if err := validateMonth(year, month); err != nil {
		return nil, err
	}

	today := c.civil.Today()
	var todayRec *model.DailyRecord
	if today.Year() == year && today.Month() == month {
		rec, err := c.records.EnsureTodayMaterialized(ctx)
		if err != nil {
			return nil, fmt.Errorf("подготовка записи сегодняшнего дня: %w", err)
		}
		todayRec = rec
	}

	records, err := c.records.GetByMonth(ctx, year, month)
	if err != nil {
		return nil, err
	}

	entries := make([]model.CalendarEntry, 0, len(records)+1)
	seenToday := false
	for _, rec := range records {
		if c.civil.SameDay(rec.Date, today) {
			if todayRec != nil {
				rec = todayRec
			}
			seenToday = true
		}
		entries = append(entries, project(rec, today))
	}
	if todayRec != nil && !seenToday {
		entries = append(entries, project(todayRec, today))
	}

	slices.SortFunc(entries, func(a, b model.CalendarEntry) int {
		return a.Date.Compare(b.Date)
	})
	return entries, nil
}

// project формирует запись календаря.
func project(rec *model.DailyRecord, today time.Time) model.CalendarEntry {
	ev := completion.For(rec)
	done, total := ev.Counts()
	isToday := clock.DaysBetween(rec.Date, today) == 0

	e := model.CalendarEntry{
		Date:           rec.Date,
		Title:          calendarTitle(done, total, ev.Completed()),
		Completed:      ev.Completed(),
		CompletedFiles: done,
		TotalFiles:     total,
		Files:          calendarFiles(rec),
		Readonly:       !isToday,
		IsToday:        isToday,
		IsPast:         !isToday && rec.Date.Before(today),
		Priority:       model.PriorityNormal,
		Notes:          rec.Notes,
		CompletedAt:    rec.CompletedAt,
		CreatedAt:      rec.CreatedAt,
		UpdatedAt:      rec.UpdatedAt,
	}
	if rec.Disk != nil {
		e.DiskName = rec.Disk.Name
	}
	if e.IsPast && !e.Completed {
		e.Priority = model.PriorityHigh
	}
	return e
}

func calendarTitle(done, total int, completed bool) string {
	switch {
	case completed:
		return fmt.Sprintf("Бэкап выполнен (%d/%d)", done, total)
	case done == 0:
		return fmt.Sprintf("Бэкап не начат (0/%d)", total)
	default:
		return fmt.Sprintf("Бэкап: %d/%d", done, total)
	}
}

// calendarFiles возвращает разбивку по файлам. Для записей старого формата
// разбивка строится по четырём фиксированным полям.
func calendarFiles(rec *model.DailyRecord) []model.CalendarFile {
	if len(rec.Files) == 0 && rec.Legacy != nil {
		legacy := completion.Legacy(*rec.Legacy)
		files := make([]model.CalendarFile, 0, len(completion.LegacyFields))
		for _, f := range completion.LegacyFields {
			done, _ := legacy.Value(f.Code)
			files = append(files, model.CalendarFile{
				FileTypeCode: f.Code,
				FileTypeName: f.Name,
				IsFinal:      done,
			})
		}
		return files
	}

	files := make([]model.CalendarFile, 0, len(rec.Files))
	for _, e := range rec.Files {
		f := model.CalendarFile{FileTypeCode: e.FileTypeID, IsFinal: e.IsFinal()}
		if e.FileType != nil {
			f.FileTypeCode = e.FileType.Code
			f.FileTypeName = e.FileType.Name
		}
		if e.Status != nil {
			f.StatusCode = e.Status.Code
			f.StatusLabel = e.Status.Label
		}
		files = append(files, f)
	}
	return files
}
