// reminders.go — напоминания о ежедневном резервном копировании.
//
// ReminderScheduler запускает две фоновые горутины (errgroup), которые
// срабатывают в заданное время суток в часовом поясе сервиса:
//   - утренняя проверка (IA_MORNING_REMINDER_AT) — напоминание о незавершённом дне
//   - дневная проверка (IA_AFTERNOON_REMINDER_AT) — эскалация с прогрессом по файлам
//
// Время из поля schedule настройки уведомления имеет приоритет над конфигурацией.
// Каждая проверка:
//  1. Настройка уведомления отсутствует или выключена → пропуск
//  2. Запись сегодняшнего дня завершена → пропуск
//     Записи нет и диск по ротации не определён (нет активных дисков) → пропуск
//  3. Уведомление с тем же маркером уже отправлено с полуночи → пропуск
//  4. Рассылка сообщения по шаблону
//
// Запись дня при проверке не создаётся: при её отсутствии используется диск
// по ротации, а все активные типы файлов считаются незавершёнными.
// Ошибки доставки логируются и не возвращаются.
//
// Prometheus-метрики:
//   - itadmin_reminders_sent_total{kind} — отправленные напоминания
//   - itadmin_reminders_skipped_total{kind, reason} — пропущенные проверки
//   - itadmin_reminder_failures_total{kind} — ошибки доставки
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"golang.org/x/sync/errgroup"

	"github.com/bigkaa/itadmin/internal/clock"
	"github.com/bigkaa/itadmin/internal/config"
	"github.com/bigkaa/itadmin/internal/domain/completion"
	"github.com/bigkaa/itadmin/internal/domain/model"
	"github.com/bigkaa/itadmin/internal/domain/rotation"
	"github.com/bigkaa/itadmin/internal/repository"
)

// Коды настроек уведомлений; совпадают с маркерами отправленных уведомлений.
const (
	SettingMorningReminder   = "daily_backup_morning"
	SettingAfternoonReminder = "daily_backup_afternoon"
	SettingCompletionNotice  = "daily_backup_completed"
)

var (
	remindersSent = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itadmin_reminders_sent_total",
		Help: "Количество отправленных напоминаний",
	}, []string{"kind"})

	remindersSkipped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itadmin_reminders_skipped_total",
		Help: "Количество пропущенных проверок напоминаний",
	}, []string{"kind", "reason"}) // reason: no_setting, disabled, completed, no_disk, duplicate

	reminderFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "itadmin_reminder_failures_total",
		Help: "Количество ошибок доставки напоминаний",
	}, []string{"kind"})
)

// SettingsProvider возвращает настройку уведомления по коду.
// Отсутствующая настройка — ошибка, оборачивающая ErrNotFound.
type SettingsProvider interface {
	NotificationSetting(ctx context.Context, code string) (*model.NotificationSetting, error)
}

// reminderKind — вид проверки по расписанию.
type reminderKind struct {
	name            string
	code            string
	defaultPriority string
	// progress — добавлять в сообщение прогресс по файлам
	progress bool
}

var (
	morningReminder   = reminderKind{name: "morning", code: SettingMorningReminder, defaultPriority: model.PriorityNormal}
	afternoonReminder = reminderKind{name: "afternoon", code: SettingAfternoonReminder, defaultPriority: model.PriorityHigh, progress: true}
)

// ReminderConfig — параметры расписания напоминаний.
type ReminderConfig struct {
	// Reference — опорная дата ротации дисков
	Reference   time.Time
	MorningAt   config.TimeOfDay
	AfternoonAt config.TimeOfDay
}

// ReminderScheduler — планировщик напоминаний и уведомлений о завершении дня.
type ReminderScheduler struct {
	repos    *repository.Repositories
	settings SettingsProvider
	notifier Notifier
	civil    clock.Civil
	cfg      ReminderConfig
	logger   *slog.Logger

	cancel context.CancelFunc
	group  *errgroup.Group
}

// NewReminderScheduler создаёт планировщик напоминаний.
func NewReminderScheduler(
	repos *repository.Repositories,
	settings SettingsProvider,
	notifier Notifier,
	civil clock.Civil,
	cfg ReminderConfig,
	logger *slog.Logger,
) *ReminderScheduler {
	cfg.Reference = civil.Normalize(cfg.Reference)
	return &ReminderScheduler{
		repos:    repos,
		settings: settings,
		notifier: notifier,
		civil:    civil,
		cfg:      cfg,
		logger:   logger.With(slog.String("component", "reminders")),
	}
}

// Start запускает фоновые проверки. Остановка — через Stop или отмену ctx.
func (s *ReminderScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	s.group = g

	g.Go(func() error {
		s.loop(gctx, morningReminder, s.cfg.MorningAt)
		return nil
	})
	g.Go(func() error {
		s.loop(gctx, afternoonReminder, s.cfg.AfternoonAt)
		return nil
	})

	s.logger.Info("Планировщик напоминаний запущен",
		slog.String("morning", s.cfg.MorningAt.String()),
		slog.String("afternoon", s.cfg.AfternoonAt.String()),
		slog.String("timezone", s.civil.Location.String()),
	)
}

// Stop останавливает фоновые проверки и ждёт завершения.
func (s *ReminderScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	if s.group != nil {
		_ = s.group.Wait()
	}
}

// loop ждёт ближайшего срабатывания и выполняет проверку, пока ctx не отменён.
func (s *ReminderScheduler) loop(ctx context.Context, kind reminderKind, fallback config.TimeOfDay) {
	for {
		at := s.triggerTime(ctx, kind, fallback)
		now := s.civil.Now()
		next := at.Next(now, s.civil.Location)

		s.logger.Debug("Следующая проверка напоминания",
			slog.String("kind", kind.name),
			slog.Time("at", next),
		)

		timer := time.NewTimer(next.Sub(now))
		select {
		case <-ctx.Done():
			timer.Stop()
			s.logger.Info("Проверка напоминаний остановлена", slog.String("kind", kind.name))
			return
		case <-timer.C:
		}

		if _, err := s.runCheck(ctx, kind); err != nil {
			s.logger.Error("Ошибка проверки напоминания",
				slog.String("kind", kind.name),
				slog.String("error", err.Error()),
			)
		}
	}
}

// triggerTime возвращает время срабатывания: из настройки, если оно задано,
// иначе из конфигурации.
func (s *ReminderScheduler) triggerTime(ctx context.Context, kind reminderKind, fallback config.TimeOfDay) config.TimeOfDay {
	setting, err := s.settings.NotificationSetting(ctx, kind.code)
	if err != nil || setting.Schedule == "" {
		return fallback
	}
	at, err := config.ParseTimeOfDay(setting.Schedule)
	if err != nil {
		s.logger.Warn("Некорректное расписание в настройке уведомления",
			slog.String("code", kind.code),
			slog.String("schedule", setting.Schedule),
		)
		return fallback
	}
	return at
}

// RunMorningCheck выполняет утреннюю проверку. Возвращает true, если
// напоминание отправлено.
func (s *ReminderScheduler) RunMorningCheck(ctx context.Context) (bool, error) {
	return s.runCheck(ctx, morningReminder)
}

// RunAfternoonCheck выполняет дневную проверку с эскалацией.
func (s *ReminderScheduler) RunAfternoonCheck(ctx context.Context) (bool, error) {
	return s.runCheck(ctx, afternoonReminder)
}

func (s *ReminderScheduler) runCheck(ctx context.Context, kind reminderKind) (bool, error) {
	setting, ok, err := s.enabledSetting(ctx, kind.code)
	if err != nil {
		return false, err
	}
	if !ok {
		remindersSkipped.WithLabelValues(kind.name, skipReason(setting)).Inc()
		return false, nil
	}

	state, err := s.todayState(ctx)
	if err != nil {
		return false, err
	}
	if state.completed {
		remindersSkipped.WithLabelValues(kind.name, "completed").Inc()
		s.logger.Debug("День завершён, напоминание не требуется", slog.String("kind", kind.name))
		return false, nil
	}
	if state.noDisk {
		remindersSkipped.WithLabelValues(kind.name, "no_disk").Inc()
		s.logger.Warn("Диск дня не определён: нет активных дисков, напоминание не отправлено",
			slog.String("kind", kind.name),
			slog.String("date", state.date.Format(time.DateOnly)),
		)
		return false, nil
	}

	prev, err := s.notifier.FindRecent(ctx, kind.code, state.date)
	if err != nil {
		return false, fmt.Errorf("поиск отправленных напоминаний: %w", err)
	}
	if prev != nil {
		remindersSkipped.WithLabelValues(kind.name, "duplicate").Inc()
		s.logger.Debug("Напоминание уже отправлено сегодня",
			slog.String("kind", kind.name),
			slog.String("notification_id", prev.ID),
		)
		return false, nil
	}

	message := render(setting.MessageTemplate, state.placeholders(""))
	if kind.progress && !strings.Contains(setting.MessageTemplate, "{{pending}}") {
		message += "\n" + state.progressLine()
	}

	d := Dispatch{
		Marker:    kind.code,
		Title:     setting.Title,
		Message:   message,
		Priority:  priorityOr(setting.Priority, kind.defaultPriority),
		Broadcast: true,
		Metadata:  state.metadata(),
	}
	if err := s.notifier.Send(ctx, d); err != nil {
		reminderFailures.WithLabelValues(kind.name).Inc()
		s.logger.Error("Ошибка отправки напоминания",
			slog.String("kind", kind.name),
			slog.String("error", err.Error()),
		)
		return false, nil
	}

	remindersSent.WithLabelValues(kind.name).Inc()
	s.logger.Info("Напоминание отправлено",
		slog.String("kind", kind.name),
		slog.String("disk", state.disk),
		slog.Int("completed", state.done),
		slog.Int("total", state.total),
	)
	return true, nil
}

// NotifyCompleted отправляет уведомление о завершении дня.
// Вызывается один раз на переход «не завершён → завершён».
func (s *ReminderScheduler) NotifyCompleted(ctx context.Context, rec *model.DailyRecord, actorID string) {
	setting, ok, err := s.enabledSetting(ctx, SettingCompletionNotice)
	if err != nil {
		reminderFailures.WithLabelValues("completed").Inc()
		s.logger.Error("Ошибка получения настройки уведомления о завершении",
			slog.String("error", err.Error()),
		)
		return
	}
	if !ok {
		remindersSkipped.WithLabelValues("completed", skipReason(setting)).Inc()
		return
	}

	state := recordState(rec, nil)
	d := Dispatch{
		Marker:    SettingCompletionNotice,
		Title:     setting.Title,
		Message:   render(setting.MessageTemplate, state.placeholders(actorID)),
		Priority:  priorityOr(setting.Priority, model.PriorityLow),
		Broadcast: true,
		Metadata:  state.metadata(),
	}
	if actorID != "" {
		d.Metadata["completed_by"] = actorID
	}
	if err := s.notifier.Send(ctx, d); err != nil {
		reminderFailures.WithLabelValues("completed").Inc()
		s.logger.Error("Ошибка отправки уведомления о завершении",
			slog.String("date", state.date.Format(time.DateOnly)),
			slog.String("error", err.Error()),
		)
		return
	}
	remindersSent.WithLabelValues("completed").Inc()
}

// enabledSetting возвращает настройку и признак того, что уведомление включено.
// Отсутствующая настройка — не ошибка: возвращается (nil, false, nil).
func (s *ReminderScheduler) enabledSetting(ctx context.Context, code string) (*model.NotificationSetting, bool, error) {
	setting, err := s.settings.NotificationSetting(ctx, code)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			s.logger.Debug("Настройка уведомления не найдена", slog.String("code", code))
			return nil, false, nil
		}
		return nil, false, err
	}
	return setting, setting.IsEnabled, nil
}

func skipReason(setting *model.NotificationSetting) string {
	if setting == nil {
		return "no_setting"
	}
	return "disabled"
}

func priorityOr(priority, fallback string) string {
	switch priority {
	case model.PriorityLow, model.PriorityNormal, model.PriorityHigh:
		return priority
	default:
		return fallback
	}
}

// --- Состояние дня ---

// dayState — состояние сегодняшнего дня для текста уведомлений.
type dayState struct {
	date        time.Time
	disk        string
	completed   bool
	done, total int
	outstanding []string
	// noDisk — записи нет, и ротация не дала диска
	noDisk bool
}

// todayState читает состояние сегодняшнего дня без создания записи.
func (s *ReminderScheduler) todayState(ctx context.Context) (*dayState, error) {
	day := s.civil.Today()
	snap, err := LoadSnapshot(ctx, s.repos.Catalog)
	if err != nil {
		return nil, err
	}

	rec, err := s.repos.DailyRecords.GetByDate(ctx, day)
	switch {
	case err == nil:
		return recordState(rec, snap), nil
	case errors.Is(err, repository.ErrNotFound):
		state := &dayState{date: day, total: len(snap.FileTypes)}
		d, err := rotation.Resolve(day, s.cfg.Reference, snap.Disks, nil)
		if err != nil {
			state.noDisk = true
		} else {
			state.disk = d.Name
		}
		for _, ft := range snap.FileTypes {
			state.outstanding = append(state.outstanding, ft.Name)
		}
		return state, nil
	default:
		return nil, err
	}
}

// recordState вычисляет состояние по записи. Активные типы файлов из snap,
// которых ещё нет в матрице, считаются незавершёнными.
func recordState(rec *model.DailyRecord, snap *Snapshot) *dayState {
	ev := completion.For(rec)
	state := &dayState{
		date:        rec.Date,
		completed:   ev.Completed(),
		outstanding: ev.Outstanding(),
	}
	state.done, state.total = ev.Counts()
	if rec.Disk != nil {
		state.disk = rec.Disk.Name
	}

	if snap != nil && rec.Legacy == nil {
		for _, ft := range snap.MissingFileTypes(rec) {
			state.total++
			state.outstanding = append(state.outstanding, ft.Name)
			state.completed = false
		}
	}
	return state
}

func (st *dayState) pending() string {
	if len(st.outstanding) == 0 {
		return "нет"
	}
	return strings.Join(st.outstanding, ", ")
}

func (st *dayState) progressLine() string {
	return fmt.Sprintf("Выполнено %d из %d. Осталось: %s", st.done, st.total, st.pending())
}

func (st *dayState) placeholders(user string) map[string]string {
	return map[string]string{
		"disk":      st.disk,
		"user":      user,
		"completed": strconv.Itoa(st.done),
		"total":     strconv.Itoa(st.total),
		"pending":   st.pending(),
	}
}

func (st *dayState) metadata() map[string]string {
	return map[string]string{
		"date":      st.date.Format(time.DateOnly),
		"disk":      st.disk,
		"completed": strconv.Itoa(st.done),
		"total":     strconv.Itoa(st.total),
	}
}

// render подставляет значения в плейсхолдеры вида {{name}}.
func render(template string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.NewReplacer(pairs...).Replace(template)
}
