// Пакет completion — вычисление завершённости дня по набору отслеживаемых файлов
// и определение переходов «не завершён ↔ завершён».
package completion

import (
	"time"

	"github.com/bigkaa/itadmin/internal/domain/model"
)

// Evaluator вычисляет завершённость записи дня.
type Evaluator interface {
	// Completed — все отслеживаемые файлы в финальном статусе.
	Completed() bool
	// Counts возвращает количество завершённых и общее количество файлов.
	Counts() (completed, total int)
	// Outstanding возвращает имена незавершённых файлов.
	Outstanding() []string
}

// For возвращает Evaluator для записи: по матрице файлов, а для записей
// старого формата без матрицы — по четырём фиксированным флагам.
func For(r *model.DailyRecord) Evaluator {
	if len(r.Files) == 0 && r.Legacy != nil {
		return Legacy(*r.Legacy)
	}
	return Matrix(r.Files)
}

// Matrix — Evaluator по матрице файлов дня.
// Пустая матрица не считается завершённой.
type Matrix []model.DailyFileEntry

func (m Matrix) Completed() bool {
	if len(m) == 0 {
		return false
	}
	for _, e := range m {
		if !e.IsFinal() {
			return false
		}
	}
	return true
}

func (m Matrix) Counts() (completed, total int) {
	for _, e := range m {
		if e.IsFinal() {
			completed++
		}
	}
	return completed, len(m)
}

func (m Matrix) Outstanding() []string {
	var names []string
	for _, e := range m {
		if e.IsFinal() {
			continue
		}
		switch {
		case e.FileType != nil:
			names = append(names, e.FileType.Name)
		default:
			names = append(names, e.FileTypeID)
		}
	}
	return names
}

// LegacyField — поле записи старого формата и соответствующий ему код типа файла.
type LegacyField struct {
	Alias string
	Code  string
	Name  string
}

// LegacyFields — фиксированное соответствие полей старого формата кодам типов файлов.
// Алиасы также принимаются при переключении статуса файла.
var LegacyFields = []LegacyField{
	{Alias: "backupZip", Code: "BACKUP_ZIP", Name: "Backup.zip"},
	{Alias: "databaseDump", Code: "DB_DUMP", Name: "Дамп базы данных"},
	{Alias: "configArchive", Code: "CONFIG_ARCHIVE", Name: "Архив конфигураций"},
	{Alias: "logArchive", Code: "LOG_ARCHIVE", Name: "Архив логов"},
}

// CodeForAlias возвращает код типа файла для алиаса старого формата.
// Если ref не является алиасом, возвращается как есть.
func CodeForAlias(ref string) string {
	for _, f := range LegacyFields {
		if f.Alias == ref {
			return f.Code
		}
	}
	return ref
}

// Legacy — Evaluator по флагам записи старого формата.
type Legacy model.LegacyChecks

func (l Legacy) values() []bool {
	return []bool{l.BackupZip, l.DatabaseDump, l.ConfigArchive, l.LogArchive}
}

func (l Legacy) Completed() bool {
	c, total := l.Counts()
	return c == total
}

func (l Legacy) Counts() (completed, total int) {
	for _, v := range l.values() {
		if v {
			completed++
		}
	}
	return completed, len(LegacyFields)
}

func (l Legacy) Outstanding() []string {
	var names []string
	for i, v := range l.values() {
		if !v {
			names = append(names, LegacyFields[i].Name)
		}
	}
	return names
}

// Value возвращает флаг старого формата по коду типа файла.
func (l Legacy) Value(code string) (value, ok bool) {
	for i, f := range LegacyFields {
		if f.Code == code {
			return l.values()[i], true
		}
	}
	return false, false
}

// Edge — переход состояния завершённости.
type Edge int

const (
	// EdgeNone — состояние не изменилось.
	EdgeNone Edge = iota
	// EdgeCompleted — день стал завершённым.
	EdgeCompleted
	// EdgeReopened — завершённый день снова стал незавершённым.
	EdgeReopened
)

func (e Edge) String() string {
	switch e {
	case EdgeCompleted:
		return "completed"
	case EdgeReopened:
		return "reopened"
	default:
		return "none"
	}
}

// Transition сравнивает сохранённое и вычисленное состояние.
func Transition(stored, derived bool) Edge {
	switch {
	case !stored && derived:
		return EdgeCompleted
	case stored && !derived:
		return EdgeReopened
	default:
		return EdgeNone
	}
}

// Evaluate вычисляет переход для записи по её текущей матрице.
func Evaluate(r *model.DailyRecord) Edge {
	return Transition(r.IsCompleted(), For(r).Completed())
}

// Apply применяет переход к записи: EdgeCompleted выставляет время
// и автора завершения, EdgeReopened их сбрасывает.
func Apply(r *model.DailyRecord, edge Edge, now time.Time, actorID string) {
	switch edge {
	case EdgeCompleted:
		r.CompletedAt = &now
		if actorID != "" {
			r.CompletedBy = &actorID
		} else {
			r.CompletedBy = nil
		}
	case EdgeReopened:
		r.CompletedAt = nil
		r.CompletedBy = nil
	}
}
