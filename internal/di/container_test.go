package di

import (
	"context"
	"strings"
	"testing"
	"time"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/platform/config"
	"github.com/campushub/api/internal/repositories/memory"
	"github.com/campushub/api/internal/services"
)

func memoryConfig() config.Config {
	return config.Config{
		Store:         config.StoreConfig{Driver: config.StoreDriverMemory},
		Notifications: config.NotificationsConfig{Driver: config.NotificationsDriverLog, Locale: "en"},
		Orders:        config.OrdersConfig{AcceptWindow: time.Hour, NumberPrefix: "PKG"},
		Security:      config.SecurityConfig{Environment: "test"},
	}
}

func TestNewContainerMemoryDriver(t *testing.T) {
	ctx := context.Background()
	c, err := NewContainer(ctx, memoryConfig())
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}
	defer c.Close(ctx)

	if c.Repositories == nil || c.Idempotency == nil || c.Notifier == nil {
		t.Fatalf("expected repositories, idempotency store, and notifier to be wired: %+v", c)
	}
	if c.Services.Reactions == nil || c.Services.Orders == nil || c.Services.Reconcile == nil || c.Services.System == nil {
		t.Fatalf("expected every service to be built: %+v", c.Services)
	}

	report, err := c.Services.System.HealthReport(ctx)
	if err != nil {
		t.Fatalf("HealthReport: %v", err)
	}
	if report.Status != domain.HealthStatusOK || report.Environment != "test" {
		t.Fatalf("unexpected health report %+v", report)
	}
}

func TestContainerServicesShareRegistry(t *testing.T) {
	ctx := context.Background()
	reg := memory.NewRegistry()
	reg.PutTarget(domain.ReactableTarget{Ref: domain.TargetRef{ID: "p1", Kind: domain.TargetKindPost}, OwnerID: "author"})
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	c, err := NewContainer(ctx, memoryConfig(), WithRegistry(reg), WithClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewContainer: %v", err)
	}

	if _, err := c.Services.Reactions.Toggle(ctx, services.ToggleReactionCommand{UserID: "u1", TargetID: "p1", TargetKind: "post", Type: "like"}); err != nil {
		t.Fatalf("Toggle: %v", err)
	}
	if got := reg.Reputation("author"); got != 1 {
		t.Fatalf("expected reputation through the shared registry, got %d", got)
	}

	order, err := c.Services.Orders.Create(ctx, services.CreateOrderCommand{
		Customer:    services.Actor{ID: "cust", Role: domain.ActorRoleUser},
		Description: "parcel",
		Destination: "Dorm 3",
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	if !strings.HasPrefix(order.OrderNumber, "PKG") {
		t.Fatalf("expected configured prefix, got %s", order.OrderNumber)
	}

	report, err := c.Services.Reconcile.Run(ctx, services.ReconcileOptions{})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if report.Scanned != 1 || len(report.Drifted) != 0 {
		t.Fatalf("expected clean reconcile, got %+v", report)
	}
}

func TestNewContainerRejectsUnknownDrivers(t *testing.T) {
	ctx := context.Background()

	cfg := memoryConfig()
	cfg.Store.Driver = "cassandra"
	if _, err := NewContainer(ctx, cfg); err == nil || !strings.Contains(err.Error(), "store driver") {
		t.Fatalf("expected store driver error, got %v", err)
	}

	cfg = memoryConfig()
	cfg.Notifications.Driver = "carrier-pigeon"
	if _, err := NewContainer(ctx, cfg); err == nil || !strings.Contains(err.Error(), "notifications driver") {
		t.Fatalf("expected notifications driver error, got %v", err)
	}
}
