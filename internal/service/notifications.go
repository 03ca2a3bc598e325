package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/bigkaa/itadmin/internal/domain/model"
	"github.com/bigkaa/itadmin/internal/repository"
)

// Dispatch — уведомление к отправке.
type Dispatch struct {
	Marker     string `validate:"required,max=64"`
	Title      string `validate:"required,max=255"`
	Message    string `validate:"required"`
	Priority   string
	Recipients []string `validate:"dive,required"`
	Broadcast  bool
	Metadata   map[string]string
}

// Notifier — канал доставки уведомлений операторам.
type Notifier interface {
	// Send отправляет уведомление.
	Send(ctx context.Context, d Dispatch) error
	// FindRecent возвращает последнее уведомление с маркером, отправленное
	// не раньше since, или nil.
	FindRecent(ctx context.Context, marker string, since time.Time) (*model.Notification, error)
}

// NotificationService — входящие уведомления in-app. Каждое отправленное
// уведомление сохраняется в таблицу notifications, по ней же выполняется
// дедупликация напоминаний.
type NotificationService struct {
	notifications repository.NotificationRepository
	logger        *slog.Logger
}

// NewNotificationService создаёт сервис уведомлений.
func NewNotificationService(notifications repository.NotificationRepository, logger *slog.Logger) *NotificationService {
	return &NotificationService{
		notifications: notifications,
		logger:        logger.With(slog.String("component", "notifications")),
	}
}

// Send сохраняет уведомление во входящих.
func (s *NotificationService) Send(ctx context.Context, d Dispatch) error {
	if len(d.Recipients) == 0 && !d.Broadcast {
		return ErrNoRecipients
	}
	if err := validateStruct(d); err != nil {
		return err
	}

	priority := d.Priority
	switch priority {
	case model.PriorityLow, model.PriorityNormal, model.PriorityHigh:
	default:
		priority = model.PriorityNormal
	}

	n := &model.Notification{
		Marker:     d.Marker,
		Title:      d.Title,
		Message:    d.Message,
		Priority:   priority,
		Recipients: d.Recipients,
		Broadcast:  d.Broadcast,
		Metadata:   d.Metadata,
	}
	if err := s.notifications.Create(ctx, n); err != nil {
		return fmt.Errorf("сохранение уведомления %s: %w", d.Marker, err)
	}

	s.logger.Info("Уведомление отправлено",
		slog.String("id", n.ID),
		slog.String("marker", n.Marker),
		slog.String("priority", n.Priority),
		slog.Bool("broadcast", n.Broadcast),
	)
	return nil
}

// FindRecent возвращает последнее уведомление с маркером начиная с since.
func (s *NotificationService) FindRecent(ctx context.Context, marker string, since time.Time) (*model.Notification, error) {
	n, err := s.notifications.FindLatest(ctx, marker, since)
	if err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return n, nil
}

// Inbox возвращает последние уведомления, не более limit (1..100).
func (s *NotificationService) Inbox(ctx context.Context, limit int) ([]*model.Notification, error) {
	if limit < 1 || limit > 100 {
		return nil, fmt.Errorf("%w: limit должен быть в диапазоне 1..100", ErrValidation)
	}
	return s.notifications.ListRecent(ctx, limit)
}
