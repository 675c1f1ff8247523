// Package secrets resolves secret:// configuration references against Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"os"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/joho/godotenv"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/campushub/api/internal/platform/config"
)

const (
	defaultCacheTTL     = 10 * time.Minute
	defaultFallbackPath = ".secrets.local"
	meterName           = "github.com/campushub/api/internal/platform/secrets"
)

var _ config.SecretResolver = (*Resolver)(nil)

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver looks up secret:// references. References take the form secret://<name> or
// secret://<project>/<name>, optionally with ?version=<n>. Values are cached for a TTL and, outside
// production, a local dotenv file keyed by secret name answers when Secret Manager cannot.
type Resolver struct {
	client     accessor
	ownsClient bool
	project    string
	ttl        time.Duration
	logger     *zap.Logger
	now        func() time.Time

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string

	mu    sync.Mutex
	cache map[string]cached

	lookups metric.Int64Counter
}

type cached struct {
	value     string
	expiresAt time.Time
}

type options struct {
	client       accessor
	clientOpts   []option.ClientOption
	project      string
	ttl          time.Duration
	logger       *zap.Logger
	fallbackPath string
	allowLocal   bool
	now          func() time.Time
}

// Option customises a Resolver.
type Option func(*options)

// WithProject sets the project used by references that do not name one.
func WithProject(projectID string) Option {
	return func(o *options) { o.project = strings.TrimSpace(projectID) }
}

// WithCacheTTL overrides how long resolved values are reused.
func WithCacheTTL(ttl time.Duration) Option {
	return func(o *options) {
		if ttl > 0 {
			o.ttl = ttl
		}
	}
}

// WithLogger sets the logger.
func WithLogger(logger *zap.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithLocalFallback enables the local fallback file. An empty path uses .secrets.local.
func WithLocalFallback(path string) Option {
	return func(o *options) {
		o.allowLocal = true
		if strings.TrimSpace(path) != "" {
			o.fallbackPath = path
		}
	}
}

// WithClientOptions forwards options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(o *options) { o.clientOpts = append(o.clientOpts, opts...) }
}

func withAccessor(client accessor) Option {
	return func(o *options) { o.client = client }
}

func withClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// NewResolver constructs a resolver. A Secret Manager client that cannot be created is only fatal
// when no local fallback is allowed.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	o := options{ttl: defaultCacheTTL, fallbackPath: defaultFallbackPath, now: time.Now}
	for _, opt := range opts {
		if opt != nil {
			opt(&o)
		}
	}
	if o.logger == nil {
		o.logger = zap.NewNop()
	}

	r := &Resolver{
		client:  o.client,
		project: o.project,
		ttl:     o.ttl,
		logger:  o.logger,
		now:     o.now,
		cache:   make(map[string]cached),
	}
	if o.allowLocal {
		r.fallbackPath = o.fallbackPath
	}

	if r.client == nil {
		client, err := secretmanager.NewClient(ctx, o.clientOpts...)
		if err != nil {
			if !o.allowLocal {
				return nil, fmt.Errorf("secrets: secret manager client: %w", err)
			}
			o.logger.Warn("secrets: secret manager unavailable, using local fallback only", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}

	lookups, err := otel.GetMeterProvider().Meter(meterName).Int64Counter(
		"secrets.lookups",
		metric.WithDescription("Secret resolutions by source"),
	)
	if err != nil {
		o.logger.Warn("secrets: unable to register lookup metric", zap.Error(err))
	}
	r.lookups = lookups
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret implements config.SecretResolver.
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	parsed, err := parseReference(ref, r.project)
	if err != nil {
		return "", err
	}
	key := parsed.resource()

	r.mu.Lock()
	entry, ok := r.cache[key]
	r.mu.Unlock()
	if ok && r.now().Before(entry.expiresAt) {
		r.count(ctx, "cache")
		return entry.value, nil
	}

	if r.client != nil && parsed.project != "" {
		value, err := r.access(ctx, key)
		if err == nil {
			r.remember(key, value)
			r.count(ctx, "remote")
			return value, nil
		}
		if r.fallbackPath == "" || !fallbackEligible(err) {
			return "", fmt.Errorf("secrets: access %s: %w", parsed.name, err)
		}
		r.logger.Debug("secrets: falling back to local file", zap.String("secret", parsed.name), zap.Error(err))
	}

	if value, ok := r.lookupFallback(parsed); ok {
		r.remember(key, value)
		r.count(ctx, "fallback")
		return value, nil
	}
	return "", fmt.Errorf("secrets: %s not found", parsed.name)
}

func (r *Resolver) access(ctx context.Context, resource string) (string, error) {
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: resource},
		gax.WithRetry(func() gax.Retryer {
			return gax.OnCodes([]codes.Code{codes.Unavailable, codes.ResourceExhausted}, gax.Backoff{
				Initial:    100 * time.Millisecond,
				Max:        2 * time.Second,
				Multiplier: 2,
			})
		}),
	)
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", errors.New("empty payload")
	}
	return string(resp.GetPayload().GetData()), nil
}

func (r *Resolver) remember(key, value string) {
	r.mu.Lock()
	r.cache[key] = cached{value: value, expiresAt: r.now().Add(r.ttl)}
	r.mu.Unlock()
}

func (r *Resolver) count(ctx context.Context, source string) {
	if r.lookups == nil {
		return
	}
	r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
}

func (r *Resolver) lookupFallback(ref reference) (string, bool) {
	if r.fallbackPath == "" {
		return "", false
	}
	r.fallbackOnce.Do(func() {
		values, err := godotenv.Read(r.fallbackPath)
		if err != nil {
			if !errors.Is(err, os.ErrNotExist) {
				r.logger.Warn("secrets: unable to read fallback file", zap.String("path", r.fallbackPath), zap.Error(err))
			}
			values = map[string]string{}
		}
		r.fallback = values
	})
	value, ok := r.fallback[ref.name]
	return value, ok
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded, codes.NotFound:
		return true
	default:
		return false
	}
}

type reference struct {
	project string
	name    string
	version string
}

func (r reference) resource() string {
	return fmt.Sprintf("projects/%s/secrets/%s/versions/%s", r.project, r.name, r.version)
}

func parseReference(ref, defaultProject string) (reference, error) {
	trimmed := strings.TrimSpace(ref)
	if strings.HasPrefix(trimmed, "sm://") {
		trimmed = "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	u, err := url.Parse(trimmed)
	if err != nil {
		return reference{}, fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" {
		return reference{}, fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	segments := strings.Split(strings.Trim(u.Host+u.Path, "/"), "/")
	out := reference{project: defaultProject, version: "latest"}
	switch len(segments) {
	case 1:
		out.name = segments[0]
	case 2:
		out.project, out.name = segments[0], segments[1]
	default:
		return reference{}, fmt.Errorf("secrets: malformed reference %q", ref)
	}
	if out.name == "" {
		return reference{}, fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	if v := strings.TrimSpace(u.Query().Get("version")); v != "" {
		out.version = v
	}
	return out, nil
}
