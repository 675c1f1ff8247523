package services

import (
	"context"
	"errors"
	"strings"
)

// LogNotificationDispatcher writes notifications to the event logger instead of delivering them.
// It backs local development and the log notifications driver.
type LogNotificationDispatcher struct {
	logger func(context.Context, string, map[string]any)
}

// NewLogNotificationDispatcher constructs a dispatcher that only logs.
func NewLogNotificationDispatcher(logger func(ctx context.Context, event string, fields map[string]any)) *LogNotificationDispatcher {
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &LogNotificationDispatcher{logger: logger}
}

func (d *LogNotificationDispatcher) Notify(ctx context.Context, userID string, notification Notification) error {
	d.logger(ctx, "notification.logged", map[string]any{
		"userId":         userID,
		"notificationId": notification.ID,
		"type":           string(notification.Type),
		"title":          notification.Title,
	})
	return nil
}

// MultiNotificationDispatcher fans a notification out to every dispatcher and joins failures.
type MultiNotificationDispatcher []NotificationDispatcher

func (m MultiNotificationDispatcher) Notify(ctx context.Context, userID string, notification Notification) error {
	if strings.TrimSpace(userID) == "" {
		return errors.New("notification: recipient is required")
	}
	var errs []error
	for _, d := range m {
		if d == nil {
			continue
		}
		if err := d.Notify(ctx, userID, notification); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
