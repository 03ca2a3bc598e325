package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bigkaa/itadmin/internal/domain/model"
)

func TestProjectMonth_MaterializesToday(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	// 2 января: завершённый день
	e.clock.at(1, 10, 0)
	_, err := e.records.ToggleFile(ctx, "ZIP", "ivanov")
	require.NoError(t, err)
	_, err = e.records.ToggleFile(ctx, "DUMP", "ivanov")
	require.NoError(t, err)

	// 3 января: начатый и незавершённый день
	e.clock.at(2, 10, 0)
	_, err = e.records.ToggleFile(ctx, "ZIP", "ivanov")
	require.NoError(t, err)

	// 5 января — сегодня, записи ещё нет
	e.clock.at(4, 8, 0)
	entries, err := e.calendar.ProjectMonth(ctx, 2025, time.January)
	require.NoError(t, err)
	require.Len(t, entries, 3)
	assert.Len(t, e.store.records, 3)

	done, partial, today := entries[0], entries[1], entries[2]

	assert.Equal(t, refDate.AddDate(0, 0, 1), done.Date)
	assert.Equal(t, "Бэкап выполнен (2/2)", done.Title)
	assert.True(t, done.Completed)
	assert.True(t, done.Readonly)
	assert.True(t, done.IsPast)
	assert.False(t, done.IsToday)
	assert.Equal(t, model.PriorityNormal, done.Priority)
	assert.Equal(t, "B", done.DiskName)
	assert.NotNil(t, done.CompletedAt)

	assert.Equal(t, "Бэкап: 1/2", partial.Title)
	assert.Equal(t, model.PriorityHigh, partial.Priority)
	assert.True(t, partial.Readonly)
	require.Len(t, partial.Files, 2)
	assert.Equal(t, model.CalendarFile{FileTypeCode: "ZIP", FileTypeName: "Zip", StatusCode: "DONE", StatusLabel: "DONE", IsFinal: true}, partial.Files[0])
	assert.Equal(t, model.CalendarFile{FileTypeCode: "DUMP", FileTypeName: "Dump", StatusCode: "PENDING", StatusLabel: "PENDING"}, partial.Files[1])

	assert.Equal(t, refDate.AddDate(0, 0, 4), today.Date)
	assert.Equal(t, "Бэкап не начат (0/2)", today.Title)
	assert.True(t, today.IsToday)
	assert.False(t, today.Readonly)
	assert.False(t, today.IsPast)
	assert.Equal(t, model.PriorityNormal, today.Priority)
	assert.Equal(t, 0, today.CompletedFiles)
	assert.Equal(t, 2, today.TotalFiles)
}

func TestProjectMonth_OtherMonthDoesNotMaterialize(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	entries, err := e.calendar.ProjectMonth(ctx, 2024, time.December)
	require.NoError(t, err)
	assert.Empty(t, entries)
	assert.Empty(t, e.store.records)
}

func TestProjectMonth_TodaySyncsMatrix(t *testing.T) {
	e := newTestEnv(t)
	ctx := context.Background()

	_, err := e.records.GetToday(ctx)
	require.NoError(t, err)
	e.store.addFileType("LOGS", "Логи", 3)

	entries, err := e.calendar.ProjectMonth(ctx, 2025, time.January)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, 3, entries[0].TotalFiles)
	assert.True(t, entries[0].IsToday)
}

func TestProjectMonth_LegacyRecord(t *testing.T) {
	e := newTestEnv(t)
	e.store.putLegacyRecord(refDate.AddDate(0, 0, -5), e.diskC.ID, model.LegacyChecks{BackupZip: true, DatabaseDump: true})

	entries, err := e.calendar.ProjectMonth(context.Background(), 2024, time.December)
	require.NoError(t, err)
	require.Len(t, entries, 1)

	entry := entries[0]
	assert.Equal(t, "Бэкап: 2/4", entry.Title)
	assert.Equal(t, "C", entry.DiskName)
	assert.Equal(t, model.PriorityHigh, entry.Priority)
	require.Len(t, entry.Files, 4)
	assert.Equal(t, "BACKUP_ZIP", entry.Files[0].FileTypeCode)
	assert.True(t, entry.Files[0].IsFinal)
	assert.False(t, entry.Files[3].IsFinal)
}

func TestProjectMonth_InvalidMonth(t *testing.T) {
	e := newTestEnv(t)

	_, err := e.calendar.ProjectMonth(context.Background(), 2025, 0)
	assert.ErrorIs(t, err, ErrInvalidDate)
	assert.ErrorIs(t, err, ErrValidation)
}

func TestCalendarTitle(t *testing.T) {
	tests := []struct {
		done, total int
		completed   bool
		want        string
	}{
		{done: 3, total: 3, completed: true, want: "Бэкап выполнен (3/3)"},
		{done: 0, total: 3, want: "Бэкап не начат (0/3)"},
		{done: 2, total: 3, want: "Бэкап: 2/3"},
		{done: 0, total: 0, want: "Бэкап не начат (0/0)"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, calendarTitle(tt.done, tt.total, tt.completed))
	}
}
