package model

import "time"

// Notification — отправленное уведомление (входящие in-app).
// Хранится в таблице notifications и служит историей для дедупликации.
type Notification struct {
	// ID — UUID записи
	ID string
	// Marker — код вида уведомления (совпадает с кодом NotificationSetting)
	Marker string
	Title   string
	Message string
	// Priority — low, normal, high
	Priority string
	// Recipients — адресаты; пусто при Broadcast
	Recipients []string
	// Broadcast — уведомление для всех операторов
	Broadcast bool
	// Metadata — произвольные атрибуты (дата, диск, счётчики)
	Metadata map[string]string
	// CreatedAt — время отправки
	CreatedAt time.Time
}
