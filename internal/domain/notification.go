package domain

import "time"

// NotificationType classifies user-facing notifications.
type NotificationType string

const (
	// NotificationOrderStatus is sent to the other party when an order changes status.
	NotificationOrderStatus NotificationType = "order_status"
	// NotificationOrderRated is sent to the helper when the customer rates an order.
	NotificationOrderRated NotificationType = "order_rated"
	// NotificationReaction is sent to a target owner when someone likes their content.
	NotificationReaction NotificationType = "reaction"
)

// Notification is the payload handed to a notification dispatcher.
type Notification struct {
	ID        string
	Type      NotificationType
	Title     string
	Content   string
	Data      map[string]string
	CreatedAt time.Time
}
