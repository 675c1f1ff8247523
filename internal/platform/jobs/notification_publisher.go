package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"

	"github.com/campushub/api/internal/services"
)

// NotificationMessage is the JSON payload consumed by the notification delivery workers.
type NotificationMessage struct {
	ID        string            `json:"id"`
	UserID    string            `json:"userId"`
	Type      string            `json:"type"`
	Title     string            `json:"title"`
	Content   string            `json:"content"`
	Data      map[string]string `json:"data,omitempty"`
	CreatedAt time.Time         `json:"createdAt"`
}

// NotificationPublisher hands notifications to a Pub/Sub topic for asynchronous delivery.
type NotificationPublisher struct {
	topic   *pubsub.Topic
	marshal func(any) ([]byte, error)
}

var _ services.NotificationDispatcher = (*NotificationPublisher)(nil)

// NewNotificationPublisher constructs a Pub/Sub backed notification dispatcher.
func NewNotificationPublisher(topic *pubsub.Topic) (*NotificationPublisher, error) {
	if topic == nil {
		return nil, errors.New("notification publisher: topic is required")
	}
	return &NotificationPublisher{
		topic:   topic,
		marshal: json.Marshal,
	}, nil
}

// Notify publishes the notification and waits for the server to acknowledge it.
func (p *NotificationPublisher) Notify(ctx context.Context, userID string, notification services.Notification) error {
	if p == nil || p.topic == nil {
		return errors.New("notification publisher: not initialised")
	}
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("notification publisher: recipient is required")
	}

	data, err := p.marshal(NotificationMessage{
		ID:        notification.ID,
		UserID:    userID,
		Type:      string(notification.Type),
		Title:     notification.Title,
		Content:   notification.Content,
		Data:      notification.Data,
		CreatedAt: notification.CreatedAt.UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal notification: %w", err)
	}

	attrs := make(map[string]string)
	setAttr(attrs, "userId", userID)
	setAttr(attrs, "type", string(notification.Type))
	setAttr(attrs, "notificationId", notification.ID)
	if orderID := notification.Data["orderId"]; orderID != "" {
		attrs["orderId"] = orderID
	}

	result := p.topic.Publish(ctx, &pubsub.Message{
		Data:       data,
		Attributes: attrs,
	})
	if _, err := result.Get(ctx); err != nil {
		return fmt.Errorf("publish notification: %w", err)
	}
	return nil
}

// Stop flushes pending messages and stops the topic's background goroutines.
func (p *NotificationPublisher) Stop() {
	if p != nil && p.topic != nil {
		p.topic.Stop()
	}
}

func setAttr(attrs map[string]string, key string, value string) {
	if v := strings.TrimSpace(value); v != "" {
		attrs[key] = v
	}
}
