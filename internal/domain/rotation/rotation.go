// Пакет rotation — детерминированное назначение диска на календарную дату.
// Диск дня = активные диски (по Sequence)[(дни с опорной даты − 1) mod N].
// Учитывается каждый календарный день, включая выходные.
package rotation

import (
	"errors"
	"slices"
	"time"

	"github.com/bigkaa/itadmin/internal/clock"
	"github.com/bigkaa/itadmin/internal/domain/model"
)

var (
	// ErrNoActiveDisks — не настроено ни одного активного диска.
	ErrNoActiveDisks = errors.New("нет активных дисков для ротации")
	// ErrUnknownOrInactiveDisk — явно указанный диск не найден среди активных.
	ErrUnknownOrInactiveDisk = errors.New("диск не найден среди активных")
)

// Override — явный выбор диска по ID или по номеру в ротации.
// Если заданы оба поля, приоритет у ID.
type Override struct {
	ID       string
	Sequence *int
}

// IsZero сообщает, что переопределение не задано.
func (o *Override) IsZero() bool {
	return o == nil || (o.ID == "" && o.Sequence == nil)
}

// DaysSinceReference возвращает номер дня ротации (начиная с 1).
// Даты раньше опорной дают 1.
func DaysSinceReference(date, reference time.Time) int {
	days := clock.DaysBetween(reference, date) + 1
	return max(1, days)
}

// Index возвращает позицию диска в упорядоченном списке из n активных дисков.
func Index(date, reference time.Time, n int) int {
	return (DaysSinceReference(date, reference) - 1) % n
}

// Resolve возвращает диск для даты.
// С override — проверяет, что диск активен, иначе ErrUnknownOrInactiveDisk.
// Без override — вычисляет диск по ротации. Порядок active не важен:
// список сортируется по Sequence внутри.
func Resolve(date, reference time.Time, active []model.Disk, override *Override) (model.Disk, error) {
	if !override.IsZero() {
		for _, d := range active {
			if !d.IsActive {
				continue
			}
			if override.ID != "" {
				if d.ID == override.ID {
					return d, nil
				}
				continue
			}
			if d.Sequence == *override.Sequence {
				return d, nil
			}
		}
		return model.Disk{}, ErrUnknownOrInactiveDisk
	}

	ordered := make([]model.Disk, 0, len(active))
	for _, d := range active {
		if d.IsActive {
			ordered = append(ordered, d)
		}
	}
	if len(ordered) == 0 {
		return model.Disk{}, ErrNoActiveDisks
	}
	slices.SortStableFunc(ordered, func(a, b model.Disk) int {
		return a.Sequence - b.Sequence
	})

	return ordered[Index(date, reference, len(ordered))], nil
}
