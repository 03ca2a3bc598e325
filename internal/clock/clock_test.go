package clock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func fixed(t time.Time) Func {
	return func() time.Time { return t }
}

func TestCivil_Today(t *testing.T) {
	loc := time.FixedZone("MSK", 3*3600)
	// 22:30 UTC 9 мая — это уже 10 мая по Москве
	c := NewCivil(fixed(time.Date(2025, 5, 9, 22, 30, 0, 0, time.UTC)), loc)

	assert.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, loc), c.Today())
}

func TestCivil_Normalize(t *testing.T) {
	loc := time.FixedZone("MSK", 3*3600)
	c := NewCivil(nil, loc)

	// DATE из PostgreSQL приходит как полночь UTC
	got := c.Normalize(time.Date(2025, 5, 10, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, time.Date(2025, 5, 10, 0, 0, 0, 0, loc), got)
}

func TestCivil_MonthRange(t *testing.T) {
	c := NewCivil(nil, time.UTC)

	first, last := c.MonthRange(2024, time.February)
	assert.Equal(t, time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC), first)
	assert.Equal(t, time.Date(2024, 2, 29, 0, 0, 0, 0, time.UTC), last)

	first, last = c.MonthRange(2025, time.December)
	assert.Equal(t, time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC), first)
	assert.Equal(t, time.Date(2025, 12, 31, 0, 0, 0, 0, time.UTC), last)
}

func TestCivil_SameDay(t *testing.T) {
	loc := time.FixedZone("MSK", 3*3600)
	c := NewCivil(nil, loc)

	assert.True(t, c.SameDay(
		time.Date(2025, 5, 10, 0, 1, 0, 0, loc),
		time.Date(2025, 5, 10, 20, 0, 0, 0, time.UTC),
	))
	assert.False(t, c.SameDay(
		time.Date(2025, 5, 10, 0, 1, 0, 0, loc),
		time.Date(2025, 5, 10, 21, 0, 0, 0, time.UTC),
	))
}

func TestDaysBetween(t *testing.T) {
	berlin, err := time.LoadLocation("Europe/Berlin")
	if err != nil {
		t.Skipf("tzdata недоступна: %v", err)
	}

	// Через переход на летнее время (30 марта 2025) сутки короче 24 часов
	from := time.Date(2025, 3, 29, 0, 0, 0, 0, berlin)
	to := time.Date(2025, 3, 31, 0, 0, 0, 0, berlin)
	assert.Equal(t, 2, DaysBetween(from, to))
	assert.Equal(t, -2, DaysBetween(to, from))
	assert.Equal(t, 0, DaysBetween(from, from))
}
