package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bigkaa/itadmin/internal/domain/model"
)

// NotificationRepository — интерфейс для таблицы notifications.
type NotificationRepository interface {
	// Create сохраняет уведомление. ID генерируется, если пуст.
	Create(ctx context.Context, n *model.Notification) error
	// FindLatest возвращает последнее уведомление с маркером, созданное
	// не раньше since, или ErrNotFound.
	FindLatest(ctx context.Context, marker string, since time.Time) (*model.Notification, error)
	// ListRecent возвращает последние уведомления от новых к старым.
	ListRecent(ctx context.Context, limit int) ([]*model.Notification, error)
}

// notificationRepo — реализация NotificationRepository.
type notificationRepo struct {
	db DBTX
}

// NewNotificationRepository создаёт репозиторий уведомлений.
func NewNotificationRepository(db DBTX) NotificationRepository {
	return &notificationRepo{db: db}
}

const notificationColumns = `id, marker, title, message, priority, recipients, broadcast, metadata, created_at`

func scanNotification(row rowScanner) (*model.Notification, error) {
	n := &model.Notification{}
	err := row.Scan(
		&n.ID, &n.Marker, &n.Title, &n.Message, &n.Priority,
		&n.Recipients, &n.Broadcast, &n.Metadata, &n.CreatedAt,
	)
	return n, err
}

func (r *notificationRepo) Create(ctx context.Context, n *model.Notification) error {
	if n.ID == "" {
		n.ID = uuid.New().String()
	}
	recipients := n.Recipients
	if recipients == nil {
		recipients = []string{}
	}
	metadata := n.Metadata
	if metadata == nil {
		metadata = map[string]string{}
	}

	query := `
		INSERT INTO notifications (id, marker, title, message, priority, recipients, broadcast, metadata)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at`

	err := r.db.QueryRow(ctx, query,
		n.ID, n.Marker, n.Title, n.Message, n.Priority, recipients, n.Broadcast, metadata,
	).Scan(&n.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: уведомление %s уже существует", ErrConflict, n.ID)
		}
		return fmt.Errorf("ошибка сохранения уведомления %s: %w", n.Marker, err)
	}
	return nil
}

func (r *notificationRepo) FindLatest(ctx context.Context, marker string, since time.Time) (*model.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		WHERE marker = $1 AND created_at >= $2
		ORDER BY created_at DESC
		LIMIT 1`

	n, err := scanNotification(r.db.QueryRow(ctx, query, marker, since))
	if err != nil {
		return nil, notFound(err, "ошибка поиска уведомления %s", marker)
	}
	return n, nil
}

func (r *notificationRepo) ListRecent(ctx context.Context, limit int) ([]*model.Notification, error) {
	query := `SELECT ` + notificationColumns + `
		FROM notifications
		ORDER BY created_at DESC
		LIMIT $1`

	rows, err := r.db.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("ошибка получения уведомлений: %w", err)
	}
	defer rows.Close()

	var result []*model.Notification
	for rows.Next() {
		n, err := scanNotification(rows)
		if err != nil {
			return nil, fmt.Errorf("ошибка сканирования уведомления: %w", err)
		}
		result = append(result, n)
	}
	return result, rows.Err()
}
