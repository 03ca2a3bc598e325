// errors.go — ошибки бизнес-логики сервисного слоя.
// Конкретные ошибки оборачивают один из классов (ErrNotFound, ErrValidation,
// ErrConflict), поэтому проверяются через errors.Is как по классу, так и точно.
package service

import (
	"errors"
	"fmt"

	"github.com/bigkaa/itadmin/internal/repository"
)

var (
	// ErrNotFound — ресурс не найден.
	ErrNotFound = errors.New("ресурс не найден")
	// ErrConflict — конфликт состояния ресурса.
	ErrConflict = errors.New("конфликт состояния ресурса")
	// ErrValidation — ошибка валидации входных данных.
	ErrValidation = errors.New("ошибка валидации")
)

var (
	// ErrNoActiveDisks — не настроено ни одного активного диска.
	ErrNoActiveDisks = fmt.Errorf("%w: нет активных дисков", ErrNotFound)
	// ErrNoActiveStatuses — не настроено ни одного активного статуса.
	ErrNoActiveStatuses = fmt.Errorf("%w: нет активных статусов", ErrNotFound)
	// ErrNoActiveFileTypes — не настроено ни одного активного типа файла.
	ErrNoActiveFileTypes = fmt.Errorf("%w: нет активных типов файлов", ErrNotFound)
	// ErrRecordComponentNotFound — неизвестный диск, статус или тип файла.
	ErrRecordComponentNotFound = fmt.Errorf("%w: компонент записи не найден", ErrNotFound)
	// ErrInactiveReference — ссылка на деактивированный диск, статус или тип файла.
	ErrInactiveReference = fmt.Errorf("%w: ссылка на неактивный элемент справочника", ErrValidation)
	// ErrInvalidDate — некорректная дата или период.
	ErrInvalidDate = fmt.Errorf("%w: некорректная дата", ErrValidation)
	// ErrNoRecipients — у уведомления нет адресатов.
	ErrNoRecipients = fmt.Errorf("%w: нет адресатов уведомления", ErrValidation)
	// ErrLastActiveStatus — попытка деактивировать последний активный статус.
	ErrLastActiveStatus = fmt.Errorf("%w: должен оставаться хотя бы один активный статус", ErrConflict)
)

// componentNotFound формирует ErrRecordComponentNotFound с описанием ссылки.
// Ошибки, отличные от repository.ErrNotFound, возвращаются обёрнутыми как есть.
func componentNotFound(err error, kind, ref string) error {
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("%w: %s %q", ErrRecordComponentNotFound, kind, ref)
	}
	return fmt.Errorf("получение %s %q: %w", kind, ref, err)
}

// inactive формирует ErrInactiveReference с описанием ссылки.
func inactive(kind, ref string) error {
	return fmt.Errorf("%w: %s %q", ErrInactiveReference, kind, ref)
}
