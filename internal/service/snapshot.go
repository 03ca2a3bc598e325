package service

import (
	"context"
	"fmt"

	"github.com/bigkaa/itadmin/internal/domain/model"
	"github.com/bigkaa/itadmin/internal/repository"
)

// Snapshot — неизменяемый упорядоченный срез активных справочников,
// загружаемый один раз на операцию.
type Snapshot struct {
	// Disks упорядочены по Sequence
	Disks []model.Disk
	// Statuses упорядочены по SortOrder (порядок цикла переключения)
	Statuses []model.Status
	// FileTypes упорядочены по Sequence
	FileTypes []model.FileType
}

// LoadSnapshot загружает активные диски, статусы и типы файлов.
func LoadSnapshot(ctx context.Context, catalog repository.CatalogRepository) (*Snapshot, error) {
	disks, err := catalog.ListDisks(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("загрузка справочника дисков: %w", err)
	}
	statuses, err := catalog.ListStatuses(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("загрузка справочника статусов: %w", err)
	}
	fileTypes, err := catalog.ListFileTypes(ctx, true)
	if err != nil {
		return nil, fmt.Errorf("загрузка справочника типов файлов: %w", err)
	}
	return &Snapshot{Disks: disks, Statuses: statuses, FileTypes: fileTypes}, nil
}

// RequireComplete проверяет, что для создания записи дня настроены
// активные диски, статусы и типы файлов.
func (s *Snapshot) RequireComplete() error {
	switch {
	case len(s.Disks) == 0:
		return ErrNoActiveDisks
	case len(s.Statuses) == 0:
		return ErrNoActiveStatuses
	case len(s.FileTypes) == 0:
		return ErrNoActiveFileTypes
	}
	return nil
}

// DefaultStatus возвращает начальный статус файла: первый активный
// нефинальный статус, а если таких нет — первый активный.
func (s *Snapshot) DefaultStatus() (model.Status, error) {
	if len(s.Statuses) == 0 {
		return model.Status{}, ErrNoActiveStatuses
	}
	for _, st := range s.Statuses {
		if !st.IsFinal {
			return st, nil
		}
	}
	return s.Statuses[0], nil
}

// FirstFinalStatus возвращает первый активный финальный статус.
func (s *Snapshot) FirstFinalStatus() (model.Status, bool) {
	for _, st := range s.Statuses {
		if st.IsFinal {
			return st, true
		}
	}
	return model.Status{}, false
}

// NextStatus возвращает статус, следующий за statusID в цикле.
// Если statusID нет среди активных, возвращается первый статус.
func (s *Snapshot) NextStatus(statusID string) (model.Status, error) {
	if len(s.Statuses) == 0 {
		return model.Status{}, ErrNoActiveStatuses
	}
	idx := -1
	for i, st := range s.Statuses {
		if st.ID == statusID {
			idx = i
			break
		}
	}
	return s.Statuses[(idx+1)%len(s.Statuses)], nil
}

// Status ищет активный статус по ID.
func (s *Snapshot) Status(id string) (model.Status, bool) {
	for _, st := range s.Statuses {
		if st.ID == id {
			return st, true
		}
	}
	return model.Status{}, false
}

// FileType ищет активный тип файла по ID.
func (s *Snapshot) FileType(id string) (model.FileType, bool) {
	for _, ft := range s.FileTypes {
		if ft.ID == id {
			return ft, true
		}
	}
	return model.FileType{}, false
}

// FileTypeByCode ищет активный тип файла по коду.
func (s *Snapshot) FileTypeByCode(code string) (model.FileType, bool) {
	for _, ft := range s.FileTypes {
		if ft.Code == code {
			return ft, true
		}
	}
	return model.FileType{}, false
}

// MissingFileTypes возвращает активные типы файлов, которых нет в матрице записи.
func (s *Snapshot) MissingFileTypes(rec *model.DailyRecord) []model.FileType {
	var missing []model.FileType
	for _, ft := range s.FileTypes {
		if rec.Entry(ft.ID) == nil {
			missing = append(missing, ft)
		}
	}
	return missing
}
