package services

import (
	"context"
	"errors"
	"fmt"
	"html"
	"slices"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/microcosm-cc/bluemonday"
	"github.com/oklog/ulid/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/text/language"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/platform/observability"
	"github.com/campushub/api/internal/repositories"
)

const (
	orderIDPrefix = "ord_"

	defaultOrderAttempts     = 3
	defaultOrderAcceptWindow = 24 * time.Hour
	defaultOrderNumberPrefix = "PKG"

	maxNoteLength          = 500
	maxDescriptionLength   = 1000
	maxPaymentStatusLength = 32
)

var orderTransitions = map[domain.OrderStatus][]domain.OrderStatus{
	domain.OrderStatusPending:   {domain.OrderStatusAccepted, domain.OrderStatusCancelled},
	domain.OrderStatusAccepted:  {domain.OrderStatusPicked, domain.OrderStatusCancelled},
	domain.OrderStatusPicked:    {domain.OrderStatusDelivered, domain.OrderStatusCancelled},
	domain.OrderStatusDelivered: {domain.OrderStatusCompleted},
}

// timeline labels recorded for each status an order can move into
var statusLabels = map[domain.OrderStatus]string{
	domain.OrderStatusAccepted:  "Order accepted",
	domain.OrderStatusPicked:    "Parcel picked up",
	domain.OrderStatusDelivered: "Parcel delivered",
	domain.OrderStatusCompleted: "Order completed",
	domain.OrderStatusCancelled: "Order cancelled",
}

// CanTransition reports whether the lifecycle table allows from → to.
func CanTransition(from, to domain.OrderStatus) bool {
	return slices.Contains(orderTransitions[from], to)
}

// AllowedTransitions lists the statuses reachable from status. Terminal statuses return nil.
func AllowedTransitions(status domain.OrderStatus) []domain.OrderStatus {
	return slices.Clone(orderTransitions[status])
}

// OrderServiceDeps bundles collaborators required to construct the order service.
type OrderServiceDeps struct {
	Orders       repositories.OrderRepository
	Counters     repositories.CounterRepository
	Notifier     NotificationDispatcher
	MaxAttempts  int
	AcceptWindow time.Duration
	NumberPrefix string
	Locale       language.Tag
	Clock        func() time.Time
	IDGenerator  func() string
	Metrics      *observability.Metrics
	Logger       func(ctx context.Context, event string, fields map[string]any)
}

type orderService struct {
	orders       repositories.OrderRepository
	counters     repositories.CounterRepository
	notifier     NotificationDispatcher
	maxAttempts  int
	acceptWindow time.Duration
	numberPrefix string
	copy         notificationCopy
	clock        func() time.Time
	newID        func() string
	sanitizer    *bluemonday.Policy
	metrics      *observability.Metrics
	logger       func(context.Context, string, map[string]any)
}

var _ OrderService = (*orderService)(nil)

// NewOrderService wires dependencies into a concrete OrderService implementation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Orders == nil {
		return nil, errors.New("order service: order repository is required")
	}
	if deps.Counters == nil {
		return nil, errors.New("order service: counter repository is required")
	}

	attempts := deps.MaxAttempts
	if attempts <= 0 {
		attempts = defaultOrderAttempts
	}
	window := deps.AcceptWindow
	if window <= 0 {
		window = defaultOrderAcceptWindow
	}
	prefix := strings.ToUpper(strings.TrimSpace(deps.NumberPrefix))
	if prefix == "" {
		prefix = defaultOrderNumberPrefix
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = func() string {
			return ulid.Make().String()
		}
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &orderService{
		orders:       deps.Orders,
		counters:     deps.Counters,
		notifier:     deps.Notifier,
		maxAttempts:  attempts,
		acceptWindow: window,
		numberPrefix: prefix,
		copy:         copyFor(deps.Locale),
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:     idGen,
		sanitizer: bluemonday.StrictPolicy(),
		metrics:   deps.Metrics,
		logger:    logger,
	}, nil
}

func (s *orderService) Create(ctx context.Context, cmd CreateOrderCommand) (Order, error) {
	customer := strings.TrimSpace(cmd.Customer.ID)
	if customer == "" {
		return Order{}, fmt.Errorf("order create: %w: customer is required", ErrInvalidInput)
	}
	description := s.clean(cmd.Description, maxDescriptionLength)
	destination := s.clean(cmd.Destination, maxDescriptionLength)
	if description == "" || destination == "" {
		return Order{}, fmt.Errorf("order create: %w: description and destination are required", ErrInvalidInput)
	}
	if cmd.Reward < 0 {
		return Order{}, fmt.Errorf("order create: %w: reward must not be negative", ErrInvalidInput)
	}
	if cmd.ExpiresIn < 0 {
		return Order{}, fmt.Errorf("order create: %w: expiry must be in the future", ErrInvalidInput)
	}

	now := s.clock()
	number, err := s.nextOrderNumber(ctx, now)
	if err != nil {
		return Order{}, mapRepositoryError("order create", err)
	}
	window := s.acceptWindow
	if cmd.ExpiresIn > 0 {
		window = cmd.ExpiresIn
	}

	order := Order{
		ID:          orderIDPrefix + s.newID(),
		OrderNumber: number,
		CustomerID:  customer,
		Status:      domain.OrderStatusPending,
		Description: description,
		PickupCode:  s.clean(cmd.PickupCode, 64),
		Destination: destination,
		Reward:      cmd.Reward,
		Timeline:    []TimelineEntry{},
		ExpiresAt:   now.Add(window),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.orders.Insert(ctx, order); err != nil {
		return Order{}, mapRepositoryError("order create", err)
	}
	return order, nil
}

func (s *orderService) Get(ctx context.Context, orderID string, actor Actor) (Order, error) {
	orderID = strings.TrimSpace(orderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("order get: %w: order id is required", ErrInvalidInput)
	}
	order, err := s.orders.FindByID(ctx, orderID)
	if err != nil {
		return Order{}, mapRepositoryError("order get", err)
	}
	if !actor.IsAdmin() && !order.IsParticipant(actor.ID) {
		return Order{}, fmt.Errorf("order get: %w", ErrForbidden)
	}
	return order, nil
}

// Transition evaluates the guards against the stored order and writes the new status with a
// single conditional update. A concurrent writer forces the whole evaluation to run again.
func (s *orderService) Transition(ctx context.Context, cmd TransitionOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("order transition: %w: order id is required", ErrInvalidInput)
	}
	target := domain.OrderStatus(strings.ToLower(strings.TrimSpace(cmd.Status)))
	if _, known := statusLabels[target]; !known {
		return Order{}, fmt.Errorf("order transition: %w: unsupported status %q", ErrInvalidInput, cmd.Status)
	}
	actor := cmd.Actor
	actor.ID = strings.TrimSpace(actor.ID)
	if actor.ID == "" {
		return Order{}, fmt.Errorf("order transition: %w: actor is required", ErrForbidden)
	}
	note := s.clean(cmd.Note, maxNoteLength)

	ctx, span := observability.Tracer().Start(ctx, "OrderService.Transition", trace.WithAttributes(
		attribute.String("order.id", orderID),
		attribute.String("order.target_status", string(target)),
	))
	defer span.End()

	var from domain.OrderStatus
	order, err := s.mutate(ctx, "order transition", orderID, func(order *Order, now time.Time) error {
		from = order.Status
		if !actor.IsAdmin() && !order.IsParticipant(actor.ID) && target != domain.OrderStatusAccepted {
			return fmt.Errorf("order transition: %w: actor is not a participant", ErrForbidden)
		}
		if target == domain.OrderStatusAccepted {
			if actor.ID == order.CustomerID {
				return fmt.Errorf("order transition: %w: customers cannot accept their own order", ErrForbidden)
			}
			if !now.Before(order.ExpiresAt) {
				return fmt.Errorf("order transition: %w: expired at %s", ErrExpired, order.ExpiresAt.Format(time.RFC3339))
			}
		}
		if !CanTransition(order.Status, target) {
			return fmt.Errorf("order transition: %w: %s -> %s", ErrInvalidTransition, order.Status, target)
		}

		if target == domain.OrderStatusAccepted {
			order.HelperID = actor.ID
		}
		order.Status = target
		order.Timeline = append(order.Timeline, TimelineEntry{
			Action:     statusLabels[target],
			Status:     target,
			Timestamp:  now,
			OperatorID: actor.ID,
			Note:       note,
		})
		return nil
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "transition failed")
		return Order{}, err
	}

	s.metrics.OrderTransitioned(ctx, string(from), string(order.Status))
	title, content := s.copy.orderStatus(order)
	s.notify(ctx, order, order.Counterparty(actor.ID), Notification{
		Type:    domain.NotificationOrderStatus,
		Title:   title,
		Content: content,
		Data: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"status":      string(order.Status),
			"operatorId":  actor.ID,
		},
	})
	return order, nil
}

// Rate stores the customer's rating through the same conditional write as transitions, so a
// rating cannot interleave with a status change on the same order.
func (s *orderService) Rate(ctx context.Context, cmd RateOrderCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("order rate: %w: order id is required", ErrInvalidInput)
	}
	if cmd.Score < 1 || cmd.Score > 5 {
		return Order{}, fmt.Errorf("order rate: %w: score must be between 1 and 5", ErrInvalidInput)
	}
	actorID := strings.TrimSpace(cmd.Actor.ID)
	comment := s.clean(cmd.Comment, maxNoteLength)

	order, err := s.mutate(ctx, "order rate", orderID, func(order *Order, now time.Time) error {
		if actorID == "" || actorID != order.CustomerID {
			return fmt.Errorf("order rate: %w: only the customer can rate", ErrForbidden)
		}
		if order.Rating != nil {
			return fmt.Errorf("order rate: %w", ErrAlreadyRated)
		}
		if order.Status != domain.OrderStatusCompleted {
			return fmt.Errorf("order rate: %w: order is %s, not completed", ErrInvalidTransition, order.Status)
		}
		order.Rating = &OrderRating{Score: cmd.Score, Comment: comment, RatedBy: actorID, CreatedAt: now}
		return nil
	})
	if err != nil {
		return Order{}, err
	}

	title, content := s.copy.orderRated(order, cmd.Score)
	s.notify(ctx, order, order.HelperID, Notification{
		Type:    domain.NotificationOrderRated,
		Title:   title,
		Content: content,
		Data: map[string]string{
			"orderId":     order.ID,
			"orderNumber": order.OrderNumber,
			"score":       fmt.Sprint(cmd.Score),
		},
	})
	return order, nil
}

func (s *orderService) SetPaymentStatus(ctx context.Context, cmd SetPaymentStatusCommand) (Order, error) {
	orderID := strings.TrimSpace(cmd.OrderID)
	if orderID == "" {
		return Order{}, fmt.Errorf("order payment: %w: order id is required", ErrInvalidInput)
	}
	status := strings.ToLower(strings.TrimSpace(cmd.Status))
	if status == "" || utf8.RuneCountInString(status) > maxPaymentStatusLength {
		return Order{}, fmt.Errorf("order payment: %w: payment status must be 1-%d characters", ErrInvalidInput, maxPaymentStatusLength)
	}
	actor := cmd.Actor
	return s.mutate(ctx, "order payment", orderID, func(order *Order, _ time.Time) error {
		if !actor.IsAdmin() && (actor.ID == "" || actor.ID != order.CustomerID) {
			return fmt.Errorf("order payment: %w: only the customer or an admin can set payment status", ErrForbidden)
		}
		order.PaymentStatus = status
		return nil
	})
}

// mutate loads the order, lets apply evaluate guards and change it, and writes it back on the
// condition that status and revision are unchanged. Guard errors are returned as is; only
// store conflicts are retried, each time from a fresh read.
func (s *orderService) mutate(ctx context.Context, scope, orderID string, apply func(order *Order, now time.Time) error) (Order, error) {
	for attempt := 1; ; attempt++ {
		order, err := s.orders.FindByID(ctx, orderID)
		if err != nil {
			return Order{}, mapRepositoryError(scope, err)
		}
		expect := repositories.OrderExpectation{Status: order.Status, Revision: order.Revision}
		now := s.clock()
		if err := apply(&order, now); err != nil {
			return Order{}, err
		}
		order.UpdatedAt = now
		order.Revision = expect.Revision + 1

		err = s.orders.Update(ctx, order, expect)
		if err == nil {
			return order, nil
		}
		if !repositories.IsConflict(err) || attempt >= s.maxAttempts || ctx.Err() != nil {
			return Order{}, mapRepositoryError(scope, err)
		}
		s.metrics.ConflictRetried(ctx, "orders.update")
		s.logger(ctx, "order.write.retry", map[string]any{
			"order":   orderID,
			"scope":   scope,
			"attempt": attempt,
			"error":   err.Error(),
		})
	}
}

// notify runs after the write committed; failures are logged and never returned.
func (s *orderService) notify(ctx context.Context, order Order, recipient string, notification Notification) {
	if s.notifier == nil || recipient == "" {
		return
	}
	notification.ID = uuid.NewString()
	notification.CreatedAt = s.clock()
	if err := s.notifier.Notify(ctx, recipient, notification); err != nil {
		s.logger(ctx, "order.notify.failed", map[string]any{
			"order":     order.ID,
			"recipient": recipient,
			"type":      string(notification.Type),
			"error":     err.Error(),
		})
	}
}

func (s *orderService) nextOrderNumber(ctx context.Context, now time.Time) (string, error) {
	day := now.Format("20060102")
	seq, err := s.counters.Next(ctx, "orders:"+day, 1)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s-%s-%04d", s.numberPrefix, day, seq), nil
}

// clean strips markup and truncates to limit runes.
// clean strips markup and returns plain text; the sanitizer's entity escaping is undone before
// truncation so stored text matches what the user typed and entities are never cut in half.
func (s *orderService) clean(value string, limit int) string {
	value = strings.TrimSpace(html.UnescapeString(s.sanitizer.Sanitize(value)))
	if utf8.RuneCountInString(value) <= limit {
		return value
	}
	runes := []rune(value)
	return strings.TrimSpace(string(runes[:limit]))
}
