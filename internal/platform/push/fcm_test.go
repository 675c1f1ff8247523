package push

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"testing"

	"firebase.google.com/go/v4/messaging"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/services"
)

var errUnregistered = errors.New("registration-token-not-registered")

type stubSender struct {
	messages []*messaging.MulticastMessage
	fail     map[string]error
	err      error
}

func (s *stubSender) SendEachForMulticast(_ context.Context, message *messaging.MulticastMessage) (*messaging.BatchResponse, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.messages = append(s.messages, message)
	resp := &messaging.BatchResponse{}
	for _, token := range message.Tokens {
		if err := s.fail[token]; err != nil {
			resp.FailureCount++
			resp.Responses = append(resp.Responses, &messaging.SendResponse{Error: err})
			continue
		}
		resp.SuccessCount++
		resp.Responses = append(resp.Responses, &messaging.SendResponse{Success: true, MessageID: "m-" + token})
	}
	return resp, nil
}

type stubTokens struct {
	tokens  map[string][]string
	removed []string
}

func (s *stubTokens) DeviceTokens(_ context.Context, userID string) ([]string, error) {
	return s.tokens[userID], nil
}

func (s *stubTokens) RemoveDeviceTokens(_ context.Context, _ string, tokens []string) error {
	s.removed = append(s.removed, tokens...)
	return nil
}

func newTestDispatcher(t *testing.T, sender *stubSender, tokens *stubTokens) *Dispatcher {
	t.Helper()
	d, err := NewDispatcher(sender, tokens, nil)
	if err != nil {
		t.Fatalf("NewDispatcher: %v", err)
	}
	d.unregistered = func(err error) bool { return errors.Is(err, errUnregistered) }
	return d
}

var notification = services.Notification{
	ID:      "n-1",
	Type:    domain.NotificationOrderStatus,
	Title:   "Order PKG-20260301-0001 updated",
	Content: "Your parcel has been picked up.",
	Data:    map[string]string{"orderId": "ord_1"},
}

func TestDispatcherSendsAndPrunesStaleTokens(t *testing.T) {
	sender := &stubSender{fail: map[string]error{"stale": errUnregistered}}
	tokens := &stubTokens{tokens: map[string][]string{"cust": {"phone", "stale", "tablet"}}}
	d := newTestDispatcher(t, sender, tokens)

	if err := d.Notify(context.Background(), "cust", notification); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.messages) != 1 {
		t.Fatalf("expected one multicast, got %d", len(sender.messages))
	}
	msg := sender.messages[0]
	if msg.Notification.Title != notification.Title || msg.Notification.Body != notification.Content {
		t.Fatalf("unexpected notification %+v", msg.Notification)
	}
	if msg.Data["orderId"] != "ord_1" || msg.Data["notificationId"] != "n-1" || msg.Data["type"] != "order_status" {
		t.Fatalf("unexpected data %+v", msg.Data)
	}
	if !slices.Equal(tokens.removed, []string{"stale"}) {
		t.Fatalf("expected stale token to be pruned, got %v", tokens.removed)
	}
}

func TestDispatcherBatchesLargeTokenSets(t *testing.T) {
	many := make([]string, 0, 1203)
	for i := 0; i < 1203; i++ {
		many = append(many, fmt.Sprintf("t%d", i))
	}
	sender := &stubSender{}
	d := newTestDispatcher(t, sender, &stubTokens{tokens: map[string][]string{"cust": many}})

	if err := d.Notify(context.Background(), "cust", notification); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if len(sender.messages) != 3 || len(sender.messages[2].Tokens) != 203 {
		t.Fatalf("expected batches of 500, got %d", len(sender.messages))
	}
}

func TestDispatcherFailures(t *testing.T) {
	boom := errors.New("quota exceeded")

	d := newTestDispatcher(t, &stubSender{fail: map[string]error{"a": boom, "b": boom}}, &stubTokens{tokens: map[string][]string{"cust": {"a", "b"}}})
	if err := d.Notify(context.Background(), "cust", notification); err == nil {
		t.Fatal("expected error when every device fails")
	}

	d = newTestDispatcher(t, &stubSender{err: boom}, &stubTokens{tokens: map[string][]string{"cust": {"a"}}})
	if err := d.Notify(context.Background(), "cust", notification); !errors.Is(err, boom) {
		t.Fatalf("expected send error, got %v", err)
	}

	sender := &stubSender{}
	d = newTestDispatcher(t, sender, &stubTokens{})
	if err := d.Notify(context.Background(), "nobody", notification); err != nil {
		t.Fatalf("users without devices must not fail, got %v", err)
	}
	if len(sender.messages) != 0 {
		t.Fatalf("expected nothing sent, got %d", len(sender.messages))
	}
}
