package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// TimeOfDay — время суток «ЧЧ:ММ» без даты и часового пояса.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay разбирает строку формата «ЧЧ:ММ» (00:00–23:59).
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	hh, mm, ok := strings.Cut(strings.TrimSpace(s), ":")
	if !ok {
		return TimeOfDay{}, fmt.Errorf("некорректное время %q (ожидается ЧЧ:ММ)", s)
	}
	h, err := strconv.Atoi(hh)
	if err != nil || h < 0 || h > 23 {
		return TimeOfDay{}, fmt.Errorf("некорректный час в %q", s)
	}
	m, err := strconv.Atoi(mm)
	if err != nil || m < 0 || m > 59 || len(mm) != 2 {
		return TimeOfDay{}, fmt.Errorf("некорректные минуты в %q", s)
	}
	return TimeOfDay{Hour: h, Minute: m}, nil
}

// Before сообщает, наступает ли t раньше other в пределах суток.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.minutes() < other.minutes()
}

// On возвращает момент времени t в день day (в часовом поясе loc).
func (t TimeOfDay) On(day time.Time, loc *time.Location) time.Time {
	d := day.In(loc)
	return time.Date(d.Year(), d.Month(), d.Day(), t.Hour, t.Minute, 0, 0, loc)
}

// Next возвращает ближайший момент строго после now, когда наступает время t.
func (t TimeOfDay) Next(now time.Time, loc *time.Location) time.Time {
	candidate := t.On(now, loc)
	if !candidate.After(now) {
		n := now.In(loc)
		candidate = t.On(time.Date(n.Year(), n.Month(), n.Day()+1, 12, 0, 0, 0, loc), loc)
	}
	return candidate
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

func (t TimeOfDay) minutes() int {
	return t.Hour*60 + t.Minute
}
