package service

import (
	"cmp"
	"context"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"slices"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/itadmin/internal/clock"
	"github.com/bigkaa/itadmin/internal/config"
	"github.com/bigkaa/itadmin/internal/domain/model"
	"github.com/bigkaa/itadmin/internal/repository"
)

// Опорная дата ротации в тестах.
var refDate = time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)

// testClock — управляемые часы.
type testClock struct {
	now time.Time
}

func (c *testClock) Now() time.Time { return c.now }

// at переводит часы на дату refDate+days и время hh:mm.
func (c *testClock) at(days, hh, mm int) {
	c.now = refDate.AddDate(0, 0, days).Add(time.Duration(hh)*time.Hour + time.Duration(mm)*time.Minute)
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// --- In-memory хранилище ---

type storedRecord struct {
	model.DailyRecord
	// entries — file_type_id → запись матрицы
	entries map[string]model.DailyFileEntry
}

// memStore — in-memory реализация репозиториев с транзакциями через снимок состояния.
type memStore struct {
	clock *testClock

	disks         map[string]model.Disk
	statuses      map[string]model.Status
	fileTypes     map[string]model.FileType
	settings      map[string]model.NotificationSetting
	records       map[string]*storedRecord // ключ — дата YYYY-MM-DD
	notifications []model.Notification

	// failUpsertEntry — ошибка, возвращаемая UpsertEntry
	failUpsertEntry error
	// txCount — количество выполненных транзакций
	txCount int
}

func newMemStore(c *testClock) *memStore {
	return &memStore{
		clock:     c,
		disks:     map[string]model.Disk{},
		statuses:  map[string]model.Status{},
		fileTypes: map[string]model.FileType{},
		settings:  map[string]model.NotificationSetting{},
		records:   map[string]*storedRecord{},
	}
}

func (s *memStore) addDisk(name string, seq int) model.Disk {
	d := model.Disk{ID: uuid.NewString(), Name: name, Sequence: seq, IsActive: true}
	s.disks[d.ID] = d
	return d
}

func (s *memStore) addStatus(code string, order int, final bool) model.Status {
	st := model.Status{ID: uuid.NewString(), Code: code, Label: code, SortOrder: order, IsFinal: final, IsActive: true}
	s.statuses[st.ID] = st
	return st
}

func (s *memStore) addFileType(code, name string, seq int) model.FileType {
	ft := model.FileType{ID: uuid.NewString(), Code: code, Name: name, Sequence: seq, IsActive: true}
	s.fileTypes[ft.ID] = ft
	return ft
}

func (s *memStore) addSetting(code, title, template, priority string) {
	s.settings[code] = model.NotificationSetting{
		Code: code, Title: title, MessageTemplate: template, Priority: priority, IsEnabled: true,
	}
}

func (s *memStore) setDiskActive(id string, active bool) {
	d := s.disks[id]
	d.IsActive = active
	s.disks[id] = d
}

func (s *memStore) setStatusActive(id string, active bool) {
	st := s.statuses[id]
	st.IsActive = active
	s.statuses[id] = st
}

func (s *memStore) setFileTypeActive(id string, active bool) {
	ft := s.fileTypes[id]
	ft.IsActive = active
	s.fileTypes[id] = ft
}

// putLegacyRecord добавляет запись старого формата без матрицы файлов.
func (s *memStore) putLegacyRecord(date time.Time, diskID string, legacy model.LegacyChecks) {
	s.records[dayKey(date)] = &storedRecord{
		DailyRecord: model.DailyRecord{
			ID: uuid.NewString(), Date: date, DiskID: diskID, Legacy: &legacy,
			CreatedAt: s.clock.now, UpdatedAt: s.clock.now,
		},
		entries: map[string]model.DailyFileEntry{},
	}
}

func (s *memStore) markers(marker string) []model.Notification {
	var out []model.Notification
	for _, n := range s.notifications {
		if n.Marker == marker {
			out = append(out, n)
		}
	}
	return out
}

func dayKey(t time.Time) string {
	return t.Format(time.DateOnly)
}

func (s *memStore) clone() *memStore {
	c := *s
	c.disks = maps.Clone(s.disks)
	c.statuses = maps.Clone(s.statuses)
	c.fileTypes = maps.Clone(s.fileTypes)
	c.settings = maps.Clone(s.settings)
	c.notifications = slices.Clone(s.notifications)
	c.records = make(map[string]*storedRecord, len(s.records))
	for k, r := range s.records {
		cp := *r
		cp.entries = maps.Clone(r.entries)
		if r.Legacy != nil {
			l := *r.Legacy
			cp.Legacy = &l
		}
		c.records[k] = &cp
	}
	return &c
}

func (s *memStore) restore(from *memStore) {
	s.disks, s.statuses, s.fileTypes, s.settings = from.disks, from.statuses, from.fileTypes, from.settings
	s.records, s.notifications = from.records, from.notifications
}

func (s *memStore) repos() *repository.Repositories {
	return &repository.Repositories{
		Catalog:       memCatalog{s},
		DailyRecords:  memRecords{s},
		Notifications: memNotifications{s},
	}
}

// WithinTx реализует repository.TxManager: при ошибке состояние откатывается.
func (s *memStore) WithinTx(_ context.Context, fn func(*repository.Repositories) error) error {
	backup := s.clone()
	if err := fn(s.repos()); err != nil {
		s.restore(backup)
		return err
	}
	s.txCount++
	return nil
}

func notFoundErr(kind, ref string) error {
	return fmt.Errorf("%w: %s %s", repository.ErrNotFound, kind, ref)
}

// --- Catalog ---

type memCatalog struct{ s *memStore }

func (c memCatalog) ListDisks(_ context.Context, activeOnly bool) ([]model.Disk, error) {
	out := filterActive(slices.Collect(maps.Values(c.s.disks)), activeOnly, func(d model.Disk) bool { return d.IsActive })
	slices.SortFunc(out, func(a, b model.Disk) int {
		return cmp.Or(cmp.Compare(a.Sequence, b.Sequence), cmp.Compare(a.Name, b.Name))
	})
	return out, nil
}

func (c memCatalog) ListStatuses(_ context.Context, activeOnly bool) ([]model.Status, error) {
	out := filterActive(slices.Collect(maps.Values(c.s.statuses)), activeOnly, func(st model.Status) bool { return st.IsActive })
	slices.SortFunc(out, func(a, b model.Status) int {
		return cmp.Or(cmp.Compare(a.SortOrder, b.SortOrder), cmp.Compare(a.Code, b.Code))
	})
	return out, nil
}

func (c memCatalog) ListFileTypes(_ context.Context, activeOnly bool) ([]model.FileType, error) {
	out := filterActive(slices.Collect(maps.Values(c.s.fileTypes)), activeOnly, func(ft model.FileType) bool { return ft.IsActive })
	slices.SortFunc(out, func(a, b model.FileType) int {
		return cmp.Or(cmp.Compare(a.Sequence, b.Sequence), cmp.Compare(a.Code, b.Code))
	})
	return out, nil
}

func filterActive[T any](items []T, activeOnly bool, active func(T) bool) []T {
	if !activeOnly {
		return items
	}
	out := items[:0]
	for _, it := range items {
		if active(it) {
			out = append(out, it)
		}
	}
	return out
}

func (c memCatalog) GetDisk(_ context.Context, id string) (*model.Disk, error) {
	d, ok := c.s.disks[id]
	if !ok {
		return nil, notFoundErr("диск", id)
	}
	return &d, nil
}

func (c memCatalog) GetDiskBySequence(_ context.Context, sequence int) (*model.Disk, error) {
	var found *model.Disk
	for _, d := range c.s.disks {
		if d.Sequence != sequence {
			continue
		}
		if d.IsActive {
			return &d, nil
		}
		found = &d
	}
	if found == nil {
		return nil, notFoundErr("диск", fmt.Sprint(sequence))
	}
	return found, nil
}

func (c memCatalog) GetStatus(_ context.Context, id string) (*model.Status, error) {
	st, ok := c.s.statuses[id]
	if !ok {
		return nil, notFoundErr("статус", id)
	}
	return &st, nil
}

func (c memCatalog) GetStatusByCode(_ context.Context, code string) (*model.Status, error) {
	for _, st := range c.s.statuses {
		if st.Code == code {
			return &st, nil
		}
	}
	return nil, notFoundErr("статус", code)
}

func (c memCatalog) GetFileType(_ context.Context, id string) (*model.FileType, error) {
	ft, ok := c.s.fileTypes[id]
	if !ok {
		return nil, notFoundErr("тип файла", id)
	}
	return &ft, nil
}

func (c memCatalog) GetFileTypeByCode(_ context.Context, code string) (*model.FileType, error) {
	for _, ft := range c.s.fileTypes {
		if ft.Code == code {
			return &ft, nil
		}
	}
	return nil, notFoundErr("тип файла", code)
}

func (c memCatalog) GetNotificationSetting(_ context.Context, code string) (*model.NotificationSetting, error) {
	ns, ok := c.s.settings[code]
	if !ok {
		return nil, notFoundErr("настройка", code)
	}
	return &ns, nil
}

func (c memCatalog) UpsertDisk(_ context.Context, d *model.Disk) error {
	for id, existing := range c.s.disks {
		if existing.Name == d.Name {
			d.ID = id
		}
	}
	if d.IsActive {
		for id, other := range c.s.disks {
			if id != d.ID && other.IsActive && other.Sequence == d.Sequence {
				return fmt.Errorf("%w: sequence %d занят", repository.ErrConflict, d.Sequence)
			}
		}
	}
	if d.ID == "" {
		d.ID = uuid.NewString()
	}
	c.s.disks[d.ID] = *d
	return nil
}

func (c memCatalog) UpsertStatus(_ context.Context, st *model.Status) error {
	for id, existing := range c.s.statuses {
		if existing.Code == st.Code {
			st.ID = id
		}
	}
	if st.ID == "" {
		st.ID = uuid.NewString()
	}
	c.s.statuses[st.ID] = *st
	return nil
}

func (c memCatalog) UpsertFileType(_ context.Context, ft *model.FileType) error {
	for id, existing := range c.s.fileTypes {
		if existing.Code == ft.Code {
			ft.ID = id
		}
	}
	if ft.ID == "" {
		ft.ID = uuid.NewString()
	}
	c.s.fileTypes[ft.ID] = *ft
	return nil
}

func (c memCatalog) UpsertNotificationSetting(_ context.Context, ns *model.NotificationSetting) error {
	c.s.settings[ns.Code] = *ns
	return nil
}

func (c memCatalog) SetDiskActive(_ context.Context, id string, active bool) error {
	if _, ok := c.s.disks[id]; !ok {
		return notFoundErr("диск", id)
	}
	c.s.setDiskActive(id, active)
	return nil
}

func (c memCatalog) SetStatusActive(_ context.Context, id string, active bool) error {
	if _, ok := c.s.statuses[id]; !ok {
		return notFoundErr("статус", id)
	}
	c.s.setStatusActive(id, active)
	return nil
}

func (c memCatalog) SetFileTypeActive(_ context.Context, id string, active bool) error {
	if _, ok := c.s.fileTypes[id]; !ok {
		return notFoundErr("тип файла", id)
	}
	c.s.setFileTypeActive(id, active)
	return nil
}

// --- Daily records ---

type memRecords struct{ s *memStore }

// build собирает модель записи с диском и матрицей, упорядоченной по sequence.
func (m memRecords) build(r *storedRecord) *model.DailyRecord {
	rec := r.DailyRecord
	if d, ok := m.s.disks[rec.DiskID]; ok {
		rec.Disk = &d
	}
	if r.Legacy != nil {
		l := *r.Legacy
		rec.Legacy = &l
	}
	rec.Files = nil
	for _, e := range r.entries {
		ft := m.s.fileTypes[e.FileTypeID]
		st := m.s.statuses[e.StatusID]
		e.FileType, e.Status = &ft, &st
		rec.Files = append(rec.Files, e)
	}
	slices.SortFunc(rec.Files, func(a, b model.DailyFileEntry) int {
		return cmp.Or(cmp.Compare(a.FileType.Sequence, b.FileType.Sequence), cmp.Compare(a.FileType.Code, b.FileType.Code))
	})
	return &rec
}

func (m memRecords) byID(id string) *storedRecord {
	for _, r := range m.s.records {
		if r.ID == id {
			return r
		}
	}
	return nil
}

func (m memRecords) GetByDate(_ context.Context, date time.Time) (*model.DailyRecord, error) {
	r, ok := m.s.records[dayKey(date)]
	if !ok {
		return nil, notFoundErr("запись", dayKey(date))
	}
	return m.build(r), nil
}

func (m memRecords) Create(_ context.Context, rec *model.DailyRecord) (bool, error) {
	key := dayKey(rec.Date)
	if _, ok := m.s.records[key]; ok {
		return false, nil
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	stored := &storedRecord{DailyRecord: *rec, entries: map[string]model.DailyFileEntry{}}
	stored.Files, stored.Disk = nil, nil
	stored.CreatedAt, stored.UpdatedAt = m.s.clock.now, m.s.clock.now
	m.s.records[key] = stored
	return true, nil
}

func (m memRecords) Update(_ context.Context, rec *model.DailyRecord) error {
	r := m.byID(rec.ID)
	if r == nil {
		return notFoundErr("запись", rec.ID)
	}
	r.DiskID = rec.DiskID
	r.Notes = rec.Notes
	r.CompletedAt = rec.CompletedAt
	r.CompletedBy = rec.CompletedBy
	r.Legacy = nil
	if rec.Legacy != nil {
		l := *rec.Legacy
		r.Legacy = &l
	}
	r.UpdatedAt = m.s.clock.now
	rec.UpdatedAt = r.UpdatedAt
	return nil
}

func (m memRecords) UpsertEntry(_ context.Context, recordID, fileTypeID, statusID string) error {
	if m.s.failUpsertEntry != nil {
		return m.s.failUpsertEntry
	}
	r := m.byID(recordID)
	if r == nil {
		return notFoundErr("запись", recordID)
	}
	r.entries[fileTypeID] = model.DailyFileEntry{
		DailyRecordID: recordID, FileTypeID: fileTypeID, StatusID: statusID, UpdatedAt: m.s.clock.now,
	}
	return nil
}

func (m memRecords) AddMissingEntries(_ context.Context, recordID string, fileTypeIDs []string, statusID string) (int, error) {
	r := m.byID(recordID)
	if r == nil {
		return 0, notFoundErr("запись", recordID)
	}
	added := 0
	for _, id := range fileTypeIDs {
		if _, ok := r.entries[id]; ok {
			continue
		}
		r.entries[id] = model.DailyFileEntry{
			DailyRecordID: recordID, FileTypeID: id, StatusID: statusID, UpdatedAt: m.s.clock.now,
		}
		added++
	}
	return added, nil
}

func (m memRecords) sorted(desc bool) []*storedRecord {
	out := slices.Collect(maps.Values(m.s.records))
	slices.SortFunc(out, func(a, b *storedRecord) int {
		if desc {
			return b.Date.Compare(a.Date)
		}
		return a.Date.Compare(b.Date)
	})
	return out
}

func (m memRecords) ListByDateRange(_ context.Context, from, to time.Time) ([]*model.DailyRecord, error) {
	var out []*model.DailyRecord
	for _, r := range m.sorted(false) {
		k := dayKey(r.Date)
		if k >= dayKey(from) && k <= dayKey(to) {
			out = append(out, m.build(r))
		}
	}
	return out, nil
}

func (m memRecords) List(_ context.Context, limit, offset int) ([]*model.DailyRecord, error) {
	all := m.sorted(true)
	var out []*model.DailyRecord
	for i := offset; i < len(all) && i < offset+limit; i++ {
		out = append(out, m.build(all[i]))
	}
	return out, nil
}

func (m memRecords) Count(_ context.Context) (int, error) {
	return len(m.s.records), nil
}

func (m memRecords) Summary(_ context.Context) (total, completed int, err error) {
	for _, r := range m.s.records {
		if r.CompletedAt != nil {
			completed++
		}
	}
	return len(m.s.records), completed, nil
}

func (m memRecords) CompletedDates(_ context.Context, limit int) ([]time.Time, error) {
	var out []time.Time
	for _, r := range m.sorted(true) {
		if r.CompletedAt != nil && len(out) < limit {
			out = append(out, r.Date)
		}
	}
	return out, nil
}

func (m memRecords) DiskUsage(_ context.Context) (map[string]int, error) {
	usage := map[string]int{}
	for _, r := range m.s.records {
		usage[m.s.disks[r.DiskID].Name]++
	}
	return usage, nil
}

func (m memRecords) ListLegacy(_ context.Context, limit int) ([]*model.DailyRecord, error) {
	var out []*model.DailyRecord
	for _, r := range m.sorted(false) {
		if r.Legacy != nil && len(out) < limit {
			out = append(out, m.build(r))
		}
	}
	return out, nil
}

// --- Notifications ---

type memNotifications struct{ s *memStore }

func (m memNotifications) Create(_ context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.NewString()
	}
	n.CreatedAt = m.s.clock.now
	m.s.notifications = append(m.s.notifications, *n)
	return nil
}

func (m memNotifications) FindLatest(_ context.Context, marker string, since time.Time) (*model.Notification, error) {
	for i := len(m.s.notifications) - 1; i >= 0; i-- {
		n := m.s.notifications[i]
		if n.Marker == marker && !n.CreatedAt.Before(since) {
			return &n, nil
		}
	}
	return nil, notFoundErr("уведомление", marker)
}

func (m memNotifications) ListRecent(_ context.Context, limit int) ([]*model.Notification, error) {
	var out []*model.Notification
	for i := len(m.s.notifications) - 1; i >= 0 && len(out) < limit; i-- {
		n := m.s.notifications[i]
		out = append(out, &n)
	}
	return out, nil
}

// --- Окружение сервисов ---

// failingNotifier — Notifier, у которого Send всегда возвращает ошибку.
type failingNotifier struct {
	Notifier
	err error
}

func (f failingNotifier) Send(context.Context, Dispatch) error { return f.err }

type testEnv struct {
	clock         *testClock
	store         *memStore
	loc           *time.Location
	civil         clock.Civil
	catalog       *CatalogService
	notifications *NotificationService
	scheduler     *ReminderScheduler
	records       *DailyRecordService
	calendar      *CalendarService

	// Справочники по умолчанию
	diskA, diskB, diskC model.Disk
	pending, done       model.Status
	zip, dump           model.FileType
}

// newTestEnv создаёт окружение из примера: диски [A, B, C], типы файлов
// [Zip, Dump], статусы [PENDING, DONE]. Часы — refDate 10:00 UTC.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	c := &testClock{}
	c.at(0, 10, 0)
	store := newMemStore(c)

	e := &testEnv{clock: c, store: store}
	e.diskA = store.addDisk("A", 1)
	e.diskB = store.addDisk("B", 2)
	e.diskC = store.addDisk("C", 3)
	e.pending = store.addStatus("PENDING", 0, false)
	e.done = store.addStatus("DONE", 1, true)
	e.zip = store.addFileType("ZIP", "Zip", 1)
	e.dump = store.addFileType("DUMP", "Dump", 2)
	store.addSetting(SettingMorningReminder, "Резервное копирование", "Сегодня диск {{disk}}", "")
	store.addSetting(SettingAfternoonReminder, "Бэкап не завершён", "Диск {{disk}}: бэкап не завершён", "")
	store.addSetting(SettingCompletionNotice, "Бэкап выполнен", "{{user}} завершил бэкап на {{disk}}", "")

	e.wire(nil)
	return e
}

// wire создаёт сервисы. notifier == nil — NotificationService поверх store.
func (e *testEnv) wire(notifier Notifier) {
	logger := discardLogger()
	repos := e.store.repos()
	e.civil = clock.NewCivil(e.clock, e.loc)
	e.catalog = NewCatalogService(repos.Catalog, e.store, 16, time.Minute, logger)
	e.notifications = NewNotificationService(repos.Notifications, logger)
	if notifier == nil {
		notifier = e.notifications
	}
	e.scheduler = NewReminderScheduler(repos, e.catalog, notifier, e.civil, ReminderConfig{
		Reference:   refDate,
		MorningAt:   config.TimeOfDay{Hour: 9},
		AfternoonAt: config.TimeOfDay{Hour: 14},
	}, logger)
	e.records = NewDailyRecordService(repos, e.store, e.civil, refDate, e.scheduler, logger)
	e.calendar = NewCalendarService(e.records, e.civil)
}

// inLocation пересоздаёт сервисы с часовым поясом loc.
func (e *testEnv) inLocation(loc *time.Location) *testEnv {
	e.loc = loc
	e.wire(nil)
	return e
}

// statusOf возвращает код статуса файла в записи.
func statusOf(rec *model.DailyRecord, fileTypeID string) string {
	if e := rec.Entry(fileTypeID); e != nil && e.Status != nil {
		return e.Status.Code
	}
	return ""
}
