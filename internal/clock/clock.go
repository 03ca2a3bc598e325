// Пакет clock — источник текущего времени и операции с календарными датами
// в фиксированном часовом поясе. Все вычисления «сегодня» идут через Civil,
// что делает их детерминированными в тестах.
package clock

import "time"

// Clock — источник текущего момента времени.
type Clock interface {
	Now() time.Time
}

// System — Clock на основе системных часов.
type System struct{}

// Now возвращает текущее системное время.
func (System) Now() time.Time { return time.Now() }

// Func адаптирует функцию к интерфейсу Clock.
type Func func() time.Time

// Now вызывает f.
func (f Func) Now() time.Time { return f() }

// Civil вычисляет календарные даты (полночь) в часовом поясе Location.
type Civil struct {
	Clock    Clock
	Location *time.Location
}

// NewCivil создаёт Civil. nil-значения заменяются на System и UTC.
func NewCivil(c Clock, loc *time.Location) Civil {
	if c == nil {
		c = System{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return Civil{Clock: c, Location: loc}
}

// Now возвращает текущий момент в часовом поясе Location.
func (c Civil) Now() time.Time {
	return c.Clock.Now().In(c.Location)
}

// Today возвращает полночь текущей даты в часовом поясе Location.
func (c Civil) Today() time.Time {
	return c.StartOfDay(c.Clock.Now())
}

// StartOfDay возвращает полночь даты, на которую приходится момент t в Location.
func (c Civil) StartOfDay(t time.Time) time.Time {
	t = t.In(c.Location)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.Location)
}

// Normalize переносит год, месяц и день t (в его собственном поясе) на полночь в Location.
// Нужен для значений DATE, которые драйвер возвращает в UTC.
func (c Civil) Normalize(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, c.Location)
}

// MonthRange возвращает первый и последний день месяца (полночь в Location).
func (c Civil) MonthRange(year int, month time.Month) (first, last time.Time) {
	first = time.Date(year, month, 1, 0, 0, 0, 0, c.Location)
	last = first.AddDate(0, 1, -1)
	return first, last
}

// SameDay сообщает, совпадают ли календарные даты a и b в Location.
func (c Civil) SameDay(a, b time.Time) bool {
	return c.StartOfDay(a).Equal(c.StartOfDay(b))
}

// DaysBetween возвращает количество календарных дней от from до to
// (отрицательное, если to раньше from). Учитываются только год, месяц
// и день, поэтому переходы на летнее время не влияют на результат.
func DaysBetween(from, to time.Time) int {
	f := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	t := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(t.Sub(f).Hours() / 24)
}
