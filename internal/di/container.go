package di

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"cloud.google.com/go/pubsub"
	gcs "cloud.google.com/go/storage"
	firebase "firebase.google.com/go/v4"
	"go.uber.org/zap"
	"golang.org/x/text/language"

	"github.com/campushub/api/internal/platform/auth"
	"github.com/campushub/api/internal/platform/config"
	pfirestore "github.com/campushub/api/internal/platform/firestore"
	"github.com/campushub/api/internal/platform/idempotency"
	"github.com/campushub/api/internal/platform/jobs"
	"github.com/campushub/api/internal/platform/observability"
	"github.com/campushub/api/internal/platform/push"
	"github.com/campushub/api/internal/platform/storage"
	"github.com/campushub/api/internal/repositories"
	firestoreRepo "github.com/campushub/api/internal/repositories/firestore"
	"github.com/campushub/api/internal/repositories/memory"
	mongoRepo "github.com/campushub/api/internal/repositories/mongo"
	"github.com/campushub/api/internal/services"
)

const (
	idempotencyFirestoreCollection = "idempotencyKeys"
	idempotencyMongoCollection     = "idempotency_keys"
)

// Services bundles the service-layer contracts that handlers rely upon.
type Services struct {
	Reactions services.ReactionService
	Orders    services.OrderService
	Reconcile services.ReconciliationService
	System    services.SystemService
}

// Container wires repositories, services, and background infrastructure for runtime use.
type Container struct {
	Config       config.Config
	Repositories repositories.Registry
	Idempotency  idempotency.Store
	Notifier     services.NotificationDispatcher
	Services     Services

	closers []func(context.Context) error
	probes  map[string]services.DeliveryProbe
}

// Option customises container construction.
type Option func(*options)

type options struct {
	logger      *zap.Logger
	registry    repositories.Registry
	idempotency idempotency.Store
	firebaseApp *firebase.App
	reports     services.ReconcileReportWriter
	build       services.BuildInfo
	clock       func() time.Time
}

// WithLogger sets the base logger services derive their event loggers from.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithRegistry supplies a ready repository registry instead of dialling cfg.Store.Driver.
func WithRegistry(reg repositories.Registry) Option {
	return func(o *options) { o.registry = reg }
}

// WithIdempotencyStore overrides the idempotency store chosen for the store driver.
func WithIdempotencyStore(store idempotency.Store) Option {
	return func(o *options) { o.idempotency = store }
}

// WithFirebaseApp shares the Firebase app used for authentication with the FCM driver.
func WithFirebaseApp(app *firebase.App) Option {
	return func(o *options) { o.firebaseApp = app }
}

// WithReportWriter overrides the reconcile report archive.
func WithReportWriter(w services.ReconcileReportWriter) Option {
	return func(o *options) { o.reports = w }
}

// WithBuildInfo sets the metadata reported by health endpoints.
func WithBuildInfo(info services.BuildInfo) Option {
	return func(o *options) { o.build = info }
}

// WithClock overrides the clock handed to services.
func WithClock(clock func() time.Time) Option {
	return func(o *options) { o.clock = clock }
}

// NewContainer constructs the runtime dependencies. Tests pass a memory registry through
// WithRegistry; production dials the backend named by cfg.Store.Driver.
func NewContainer(ctx context.Context, cfg config.Config, opts ...Option) (_ *Container, err error) {
	o := options{clock: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	c := &Container{Config: cfg}
	defer func() {
		if err != nil {
			_ = c.Close(context.Background())
		}
	}()

	if o.registry != nil {
		c.Repositories = o.registry
		c.Idempotency = o.idempotency
		if c.Idempotency == nil {
			c.Idempotency = idempotency.NewMemoryStore()
		}
	} else if err = c.openStore(ctx, cfg, o.idempotency); err != nil {
		return nil, err
	}

	if c.Notifier, err = c.buildNotifier(ctx, cfg, o); err != nil {
		return nil, err
	}

	reports := o.reports
	if reports == nil && strings.TrimSpace(cfg.Reconcile.Bucket) != "" {
		if reports, err = c.buildReportArchive(ctx, cfg.Reconcile.Bucket); err != nil {
			return nil, err
		}
	}

	if c.Services, err = buildServices(cfg, c.Repositories, c.Notifier, reports, c.probes, o); err != nil {
		return nil, err
	}
	return c, nil
}

// Close releases clients in reverse order of creation, then the repository registry.
func (c *Container) Close(ctx context.Context) error {
	if c == nil {
		return nil
	}
	var errs []error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](ctx); err != nil {
			errs = append(errs, err)
		}
	}
	c.closers = nil
	if c.Repositories != nil {
		if err := c.Repositories.Close(ctx); err != nil {
			errs = append(errs, err)
		}
		c.Repositories = nil
	}
	return errors.Join(errs...)
}

func (c *Container) openStore(ctx context.Context, cfg config.Config, override idempotency.Store) error {
	switch cfg.Store.Driver {
	case config.StoreDriverFirestore:
		provider := pfirestore.NewProvider(cfg.Firestore)
		reg, err := firestoreRepo.NewRegistry(provider, cfg.Reactions.MaxAttempts, nil)
		if err != nil {
			return fmt.Errorf("build firestore registry: %w", err)
		}
		c.Repositories = reg
		if override != nil {
			c.Idempotency = override
			return nil
		}
		client, err := provider.Client(ctx)
		if err != nil {
			return fmt.Errorf("open firestore client: %w", err)
		}
		c.Idempotency, err = idempotency.NewFirestoreStore(client, idempotencyFirestoreCollection)
		if err != nil {
			return fmt.Errorf("build idempotency store: %w", err)
		}
	case config.StoreDriverMongo:
		client, err := mongoRepo.Connect(ctx, cfg.Mongo)
		if err != nil {
			return err
		}
		reg, err := mongoRepo.NewRegistry(client, cfg.Mongo.Database, nil)
		if err != nil {
			_ = client.Disconnect(context.Background())
			return fmt.Errorf("build mongo registry: %w", err)
		}
		c.Repositories = reg
		db := client.Database(cfg.Mongo.Database)
		if err := mongoRepo.EnsureIndexes(ctx, db); err != nil {
			return fmt.Errorf("ensure mongo indexes: %w", err)
		}
		if override != nil {
			c.Idempotency = override
			return nil
		}
		store, err := idempotency.NewMongoStore(db, idempotencyMongoCollection)
		if err != nil {
			return fmt.Errorf("build idempotency store: %w", err)
		}
		if err := store.EnsureIndexes(ctx); err != nil {
			return fmt.Errorf("ensure idempotency indexes: %w", err)
		}
		c.Idempotency = store
	case config.StoreDriverMemory:
		c.Repositories = memory.NewRegistry()
		c.Idempotency = override
		if c.Idempotency == nil {
			c.Idempotency = idempotency.NewMemoryStore()
		}
	default:
		return fmt.Errorf("unsupported store driver %q", cfg.Store.Driver)
	}
	return nil
}

// buildNotifier always logs notifications and additionally hands them to the configured
// delivery driver.
func (c *Container) buildNotifier(ctx context.Context, cfg config.Config, o options) (services.NotificationDispatcher, error) {
	logged := services.NewLogNotificationDispatcher(observability.EventLogger(o.logger.Named("notifications"), "notification"))

	switch cfg.Notifications.Driver {
	case config.NotificationsDriverLog, "":
		return logged, nil
	case config.NotificationsDriverPubSub:
		client, err := pubsub.NewClient(ctx, cfg.Notifications.ProjectID)
		if err != nil {
			return nil, fmt.Errorf("open pubsub client: %w", err)
		}
		c.closers = append(c.closers, func(context.Context) error { return client.Close() })
		topic := client.Topic(cfg.Notifications.Topic)
		publisher, err := jobs.NewNotificationPublisher(topic)
		if err != nil {
			return nil, err
		}
		c.addProbe("notifications", func(ctx context.Context) error {
			ok, err := topic.Exists(ctx)
			if err != nil {
				return err
			}
			if !ok {
				return fmt.Errorf("topic %s not found", topic.ID())
			}
			return nil
		})
		c.closers = append(c.closers, func(context.Context) error {
			publisher.Stop()
			return nil
		})
		return services.MultiNotificationDispatcher{publisher, logged}, nil
	case config.NotificationsDriverFCM:
		app := o.firebaseApp
		if app == nil {
			var err error
			if app, err = auth.NewFirebaseApp(ctx, cfg.Firebase); err != nil {
				return nil, err
			}
		}
		client, err := push.NewMessagingClient(ctx, app)
		if err != nil {
			return nil, err
		}
		dispatcher, err := push.NewDispatcher(client, c.Repositories.Users(), observability.EventLogger(o.logger.Named("push"), "push"))
		if err != nil {
			return nil, err
		}
		return services.MultiNotificationDispatcher{dispatcher, logged}, nil
	default:
		return nil, fmt.Errorf("unsupported notifications driver %q", cfg.Notifications.Driver)
	}
}

func (c *Container) addProbe(name string, probe services.DeliveryProbe) {
	if c.probes == nil {
		c.probes = make(map[string]services.DeliveryProbe)
	}
	c.probes[name] = probe
}

func (c *Container) buildReportArchive(ctx context.Context, bucket string) (services.ReconcileReportWriter, error) {
	client, err := gcs.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("open storage client: %w", err)
	}
	c.closers = append(c.closers, func(context.Context) error { return client.Close() })
	store, err := storage.NewGCSStore(client)
	if err != nil {
		return nil, err
	}
	return storage.NewReportArchive(store, bucket)
}

func buildServices(cfg config.Config, reg repositories.Registry, notifier services.NotificationDispatcher, reports services.ReconcileReportWriter, probes map[string]services.DeliveryProbe, o options) (Services, error) {
	var svc Services
	locale := language.Make(cfg.Notifications.Locale)
	metrics := observability.DefaultMetrics()

	reactions, err := services.NewReactionService(services.ReactionServiceDeps{
		Reactions:   reg.Reactions(),
		Targets:     reg.Targets(),
		Users:       reg.Users(),
		Notifier:    notifier,
		MaxAttempts: cfg.Reactions.MaxAttempts,
		Locale:      locale,
		Clock:       o.clock,
		Metrics:     metrics,
		Logger:      observability.EventLogger(o.logger.Named("reactions"), "reaction service"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build reaction service: %w", err)
	}
	svc.Reactions = reactions

	orders, err := services.NewOrderService(services.OrderServiceDeps{
		Orders:       reg.Orders(),
		Counters:     reg.Counters(),
		Notifier:     notifier,
		MaxAttempts:  cfg.Orders.MaxAttempts,
		AcceptWindow: cfg.Orders.AcceptWindow,
		NumberPrefix: cfg.Orders.NumberPrefix,
		Locale:       locale,
		Clock:        o.clock,
		Metrics:      metrics,
		Logger:       observability.EventLogger(o.logger.Named("orders"), "order service"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build order service: %w", err)
	}
	svc.Orders = orders

	reconcile, err := services.NewReconciliationService(services.ReconciliationServiceDeps{
		Reactions: reg.Reactions(),
		Targets:   reg.Targets(),
		Reports:   reports,
		BatchSize: cfg.Reconcile.BatchSize,
		Clock:     o.clock,
		Metrics:   metrics,
		Logger:    observability.EventLogger(o.logger.Named("reconcile"), "reconciliation"),
	})
	if err != nil {
		return Services{}, fmt.Errorf("build reconciliation service: %w", err)
	}
	svc.Reconcile = reconcile

	build := o.build
	if build.Environment == "" {
		build.Environment = cfg.Security.Environment
	}
	system, err := services.NewSystemService(services.SystemServiceDeps{
		HealthRepository: reg.Health(),
		DeliveryProbes:   probes,
		Clock:            o.clock,
		Build:            build,
	})
	if err != nil {
		return Services{}, fmt.Errorf("build system service: %w", err)
	}
	svc.System = system

	return svc, nil
}
