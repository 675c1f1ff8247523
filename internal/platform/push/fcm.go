// Package push delivers notifications to devices through Firebase Cloud Messaging.
package push

import (
	"context"
	"errors"
	"fmt"
	"strings"

	firebase "firebase.google.com/go/v4"
	"firebase.google.com/go/v4/messaging"

	"github.com/campushub/api/internal/services"
)

// FCM limits a multicast to 500 tokens.
const maxMulticastTokens = 500

// Sender is the subset of the FCM client used by the dispatcher.
type Sender interface {
	SendEachForMulticast(ctx context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error)
}

// TokenStore looks up and prunes the device tokens registered for a user.
type TokenStore interface {
	DeviceTokens(ctx context.Context, userID string) ([]string, error)
	RemoveDeviceTokens(ctx context.Context, userID string, tokens []string) error
}

// Dispatcher sends each notification to every device of the recipient and forgets tokens FCM
// reports as unregistered.
type Dispatcher struct {
	sender Sender
	tokens TokenStore
	logger func(context.Context, string, map[string]any)
	// unregistered classifies per-token send errors; messaging.IsUnregistered outside tests.
	unregistered func(error) bool
}

var _ services.NotificationDispatcher = (*Dispatcher)(nil)

// NewMessagingClient returns the FCM client of app.
func NewMessagingClient(ctx context.Context, app *firebase.App) (*messaging.Client, error) {
	if app == nil {
		return nil, errors.New("push: firebase app is required")
	}
	client, err := app.Messaging(ctx)
	if err != nil {
		return nil, fmt.Errorf("push: messaging client: %w", err)
	}
	return client, nil
}

// NewDispatcher constructs an FCM dispatcher.
func NewDispatcher(sender Sender, tokens TokenStore, logger func(ctx context.Context, event string, fields map[string]any)) (*Dispatcher, error) {
	if sender == nil {
		return nil, errors.New("push: sender is required")
	}
	if tokens == nil {
		return nil, errors.New("push: token store is required")
	}
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &Dispatcher{sender: sender, tokens: tokens, logger: logger, unregistered: messaging.IsUnregistered}, nil
}

// Notify delivers to all devices of userID. A user without devices is not an error.
func (d *Dispatcher) Notify(ctx context.Context, userID string, notification services.Notification) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return errors.New("push: recipient is required")
	}
	tokens, err := d.tokens.DeviceTokens(ctx, userID)
	if err != nil {
		return fmt.Errorf("push: load device tokens: %w", err)
	}
	if len(tokens) == 0 {
		return nil
	}

	data := make(map[string]string, len(notification.Data)+2)
	for k, v := range notification.Data {
		data[k] = v
	}
	data["notificationId"] = notification.ID
	data["type"] = string(notification.Type)

	var stale []string
	var failed int
	for start := 0; start < len(tokens); start += maxMulticastTokens {
		end := min(start+maxMulticastTokens, len(tokens))
		batch := tokens[start:end]
		resp, err := d.sender.SendEachForMulticast(ctx, &messaging.MulticastMessage{
			Tokens: batch,
			Notification: &messaging.Notification{
				Title: notification.Title,
				Body:  notification.Content,
			},
			Data: data,
		})
		if err != nil {
			return fmt.Errorf("push: send: %w", err)
		}
		for i, r := range resp.Responses {
			if r == nil || r.Success {
				continue
			}
			if d.unregistered(r.Error) {
				stale = append(stale, batch[i])
				continue
			}
			failed++
		}
	}

	if len(stale) > 0 {
		if err := d.tokens.RemoveDeviceTokens(ctx, userID, stale); err != nil {
			d.logger(ctx, "push.tokens.prune.failed", map[string]any{"userId": userID, "error": err.Error()})
		}
	}
	if failed > 0 && failed+len(stale) == len(tokens) {
		return fmt.Errorf("push: delivery failed for all %d devices", failed)
	}
	return nil
}
