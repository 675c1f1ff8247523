package config

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultStoreDriver          = StoreDriverFirestore
	defaultMongoDatabase        = "campus"
	defaultMongoTimeout         = 10 * time.Second
	defaultNotificationsDriver  = NotificationsDriverLog
	defaultNotificationsTopic   = "user-notifications"
	defaultNotificationsLocale  = "en"
	defaultReactionAttempts     = 3
	defaultOrderAttempts        = 3
	defaultOrderAcceptWindow    = 24 * time.Hour
	defaultOrderNumberPrefix    = "PKG"
	defaultReconcileBatchSize   = 200
	defaultSecurityEnvironment  = "local"
	defaultOIDCJWKSURL          = "https://www.googleapis.com/oauth2/v3/certs"
	defaultSecurityIssuer       = "https://accounts.google.com"
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
)

// Store drivers.
const (
	StoreDriverFirestore = "firestore"
	StoreDriverMongo     = "mongo"
	StoreDriverMemory    = "memory"
)

// Notification drivers.
const (
	NotificationsDriverPubSub = "pubsub"
	NotificationsDriverFCM    = "fcm"
	NotificationsDriverLog    = "log"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server        ServerConfig
	Store         StoreConfig
	Firebase      FirebaseConfig
	Firestore     FirestoreConfig
	Mongo         MongoConfig
	Notifications NotificationsConfig
	Reactions     ReactionsConfig
	Orders        OrdersConfig
	Reconcile     ReconcileConfig
	Security      SecurityConfig
	Idempotency   IdempotencyConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

// StoreConfig selects the persistence backend.
type StoreConfig struct {
	Driver string
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores database parameters.
type FirestoreConfig struct {
	ProjectID       string
	EmulatorHost    string
	CredentialsFile string
}

// MongoConfig stores connection parameters for the MongoDB backend.
type MongoConfig struct {
	URI      string
	Database string
	Timeout  time.Duration
}

// NotificationsConfig selects how user notifications leave the service.
type NotificationsConfig struct {
	Driver    string
	ProjectID string
	Topic     string
	// Locale picks the language of notification copy.
	Locale string
}

// ReactionsConfig tunes the toggle engine.
type ReactionsConfig struct {
	MaxAttempts int
}

// OrdersConfig tunes the order lifecycle.
type OrdersConfig struct {
	MaxAttempts  int
	AcceptWindow time.Duration
	NumberPrefix string
}

// ReconcileConfig controls the counter reconciliation job.
type ReconcileConfig struct {
	Bucket    string
	BatchSize int
	Repair    bool
}

// SecurityConfig groups server-to-server authentication settings.
type SecurityConfig struct {
	Environment string
	OIDC        OIDCConfig
}

// OIDCConfig controls Google-signed token verification for internal routes.
type OIDCConfig struct {
	JWKSURL  string
	Audience string
	Issuers  []string
}

// IdempotencyConfig controls idempotency middleware behaviour.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

// MissingSecretsError indicates that one or more required secrets resolved to empty values.
type MissingSecretsError struct {
	names []string
}

// Error implements the error interface.
func (e *MissingSecretsError) Error() string {
	return fmt.Sprintf("missing required secrets [%s]", strings.Join(e.RedactedNames(), ", "))
}

// RedactedNames returns hashed identifiers safe for logs.
func (e *MissingSecretsError) RedactedNames() []string {
	if e == nil {
		return nil
	}
	out := make([]string, 0, len(e.names))
	for _, name := range e.names {
		sum := sha256.Sum256([]byte(name))
		out = append(out, hex.EncodeToString(sum[:8]))
	}
	sort.Strings(out)
	return out
}

// Names returns the underlying field names.
func (e *MissingSecretsError) Names() []string {
	if e == nil {
		return nil
	}
	out := append([]string(nil), e.names...)
	sort.Strings(out)
	return out
}

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile         string
	envMap          map[string]string
	useSystemEnv    bool
	secret          SecretResolver
	requiredSecrets []string
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects an explicit key/value map. Values in the map take precedence over
// system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "Mongo.URI") that must resolve to a value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// EnvironmentValues returns the merged environment (dotenv < OS env < explicit map) so callers
// can build dependencies such as the secret fetcher before calling Load.
func EnvironmentValues(opts ...Option) (map[string]string, error) {
	options := newLoaderOptions(opts)
	lookup, err := options.lookup()
	if err != nil {
		return nil, err
	}
	return lookup.snapshot(), nil
}

// Load assembles the application configuration by combining defaults, .env overrides,
// environment variables, and optional secret manager lookups.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)
	env, err := options.lookup()
	if err != nil {
		return Config{}, err
	}
	get := env.get

	cfg := Config{
		Server: ServerConfig{
			Port:         stringWithDefault(get, "API_SERVER_PORT", defaultPort),
			ReadTimeout:  durationWithDefault(get, "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout: durationWithDefault(get, "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:  durationWithDefault(get, "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
		},
		Store: StoreConfig{
			Driver: strings.ToLower(stringWithDefault(get, "API_STORE_DRIVER", defaultStoreDriver)),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(get, "API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(get, "API_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:       stringWithDefault(get, "API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost:    stringWithDefault(get, "API_FIRESTORE_EMULATOR_HOST", ""),
			CredentialsFile: stringWithDefault(get, "API_FIRESTORE_CREDENTIALS_FILE", ""),
		},
		Mongo: MongoConfig{
			URI:      stringWithDefault(get, "API_MONGO_URI", ""),
			Database: stringWithDefault(get, "API_MONGO_DATABASE", defaultMongoDatabase),
			Timeout:  durationWithDefault(get, "API_MONGO_TIMEOUT", defaultMongoTimeout),
		},
		Notifications: NotificationsConfig{
			Driver:    strings.ToLower(stringWithDefault(get, "API_NOTIFICATIONS_DRIVER", defaultNotificationsDriver)),
			ProjectID: stringWithDefault(get, "API_NOTIFICATIONS_PROJECT_ID", ""),
			Topic:     stringWithDefault(get, "API_NOTIFICATIONS_TOPIC", defaultNotificationsTopic),
			Locale:    stringWithDefault(get, "API_NOTIFICATIONS_LOCALE", defaultNotificationsLocale),
		},
		Reactions: ReactionsConfig{
			MaxAttempts: intWithDefault(get, "API_REACTIONS_MAX_ATTEMPTS", defaultReactionAttempts),
		},
		Orders: OrdersConfig{
			MaxAttempts:  intWithDefault(get, "API_ORDERS_MAX_ATTEMPTS", defaultOrderAttempts),
			AcceptWindow: durationWithDefault(get, "API_ORDERS_ACCEPT_WINDOW", defaultOrderAcceptWindow),
			NumberPrefix: stringWithDefault(get, "API_ORDERS_NUMBER_PREFIX", defaultOrderNumberPrefix),
		},
		Reconcile: ReconcileConfig{
			Bucket:    stringWithDefault(get, "API_RECONCILE_BUCKET", ""),
			BatchSize: intWithDefault(get, "API_RECONCILE_BATCH_SIZE", defaultReconcileBatchSize),
			Repair:    boolWithDefault(get, "API_RECONCILE_REPAIR", false),
		},
		Security: SecurityConfig{
			Environment: strings.ToLower(stringWithDefault(get, "API_SECURITY_ENVIRONMENT", defaultSecurityEnvironment)),
			OIDC: OIDCConfig{
				JWKSURL:  stringWithDefault(get, "API_SECURITY_OIDC_JWKS_URL", defaultOIDCJWKSURL),
				Audience: stringWithDefault(get, "API_SECURITY_OIDC_AUDIENCE", ""),
				Issuers:  csvWithDefault(get, "API_SECURITY_OIDC_ISSUERS"),
			},
		},
		Idempotency: IdempotencyConfig{
			Header:           stringWithDefault(get, "API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              durationWithDefault(get, "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  durationWithDefault(get, "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: intWithDefault(get, "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.Firestore.CredentialsFile == "" {
		cfg.Firestore.CredentialsFile = cfg.Firebase.CredentialsFile
	}
	if cfg.Notifications.ProjectID == "" {
		cfg.Notifications.ProjectID = cfg.Firebase.ProjectID
	}
	if len(cfg.Security.OIDC.Issuers) == 0 {
		cfg.Security.OIDC.Issuers = []string{defaultSecurityIssuer}
	}

	resolver := options.secret
	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"Mongo.URI", &cfg.Mongo.URI},
		{"Firebase.CredentialsFile", &cfg.Firebase.CredentialsFile},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, resolver)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	var missing []string
	for _, name := range options.requiredSecrets {
		name = strings.TrimSpace(name)
		if name != "" && resolved[name] == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		return Config{}, &MissingSecretsError{names: missing}
	}

	return cfg, nil
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

type envLookup struct {
	explicit map[string]string
	system   bool
	dotenv   map[string]string
}

func (o loaderOptions) lookup() (envLookup, error) {
	dotenv, err := readDotEnv(o.envFile)
	if err != nil {
		return envLookup{}, err
	}
	return envLookup{explicit: o.envMap, system: o.useSystemEnv, dotenv: dotenv}, nil
}

func (l envLookup) get(key string) (string, bool) {
	if value, ok := l.explicit[key]; ok {
		return value, true
	}
	if l.system {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
	}
	value, ok := l.dotenv[key]
	return value, ok
}

func (l envLookup) snapshot() map[string]string {
	values := make(map[string]string, len(l.dotenv)+len(l.explicit))
	for k, v := range l.dotenv {
		values[k] = v
	}
	if l.system {
		for _, entry := range os.Environ() {
			key, value, ok := strings.Cut(entry, "=")
			if ok && strings.TrimSpace(key) != "" {
				values[key] = value
			}
		}
	}
	for k, v := range l.explicit {
		values[k] = v
	}
	return values
}

func readDotEnv(path string) (map[string]string, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	values, err := godotenv.Read(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", path, err)
	}
	return values, nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	trimmed := strings.TrimSpace(value)
	if !strings.HasPrefix(trimmed, "secret://") && !strings.HasPrefix(trimmed, "sm://") {
		return value, nil
	}
	ref := "secret://" + strings.TrimPrefix(strings.TrimPrefix(trimmed, "secret://"), "sm://")
	if resolver == nil {
		return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, ref)
	if err != nil {
		return "", &SecretError{Ref: ref, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var invalid []string

	if cfg.Server.Port == "" {
		invalid = append(invalid, "Server.Port")
	}
	switch cfg.Store.Driver {
	case StoreDriverFirestore:
		if cfg.Firestore.ProjectID == "" {
			invalid = append(invalid, "Firestore.ProjectID")
		}
	case StoreDriverMongo:
		if cfg.Mongo.URI == "" {
			invalid = append(invalid, "Mongo.URI")
		}
		if cfg.Mongo.Database == "" {
			invalid = append(invalid, "Mongo.Database")
		}
	case StoreDriverMemory:
	default:
		invalid = append(invalid, "Store.Driver")
	}
	switch cfg.Notifications.Driver {
	case NotificationsDriverPubSub:
		if cfg.Notifications.ProjectID == "" {
			invalid = append(invalid, "Notifications.ProjectID")
		}
		if cfg.Notifications.Topic == "" {
			invalid = append(invalid, "Notifications.Topic")
		}
	case NotificationsDriverFCM:
		if cfg.Firebase.ProjectID == "" {
			invalid = append(invalid, "Firebase.ProjectID")
		}
	case NotificationsDriverLog:
	default:
		invalid = append(invalid, "Notifications.Driver")
	}
	if cfg.Reactions.MaxAttempts <= 0 {
		invalid = append(invalid, "Reactions.MaxAttempts")
	}
	if cfg.Orders.MaxAttempts <= 0 {
		invalid = append(invalid, "Orders.MaxAttempts")
	}
	if cfg.Orders.AcceptWindow <= 0 {
		invalid = append(invalid, "Orders.AcceptWindow")
	}
	if cfg.Reconcile.BatchSize <= 0 {
		invalid = append(invalid, "Reconcile.BatchSize")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		invalid = append(invalid, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		invalid = append(invalid, "Idempotency.TTL")
	}

	if len(invalid) > 0 {
		return &ValidationError{fields: invalid}
	}
	return nil
}

func stringWithDefault(lookup func(string) (string, bool), key, fallback string) string {
	if value, ok := lookup(key); ok && strings.TrimSpace(value) != "" {
		return strings.TrimSpace(value)
	}
	return fallback
}

func durationWithDefault(lookup func(string) (string, bool), key string, fallback time.Duration) time.Duration {
	if value, ok := lookup(key); ok && value != "" {
		if d, err := time.ParseDuration(strings.TrimSpace(value)); err == nil {
			return d
		}
	}
	return fallback
}

func intWithDefault(lookup func(string) (string, bool), key string, fallback int) int {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.Atoi(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func boolWithDefault(lookup func(string) (string, bool), key string, fallback bool) bool {
	if value, ok := lookup(key); ok && value != "" {
		if parsed, err := strconv.ParseBool(strings.TrimSpace(value)); err == nil {
			return parsed
		}
	}
	return fallback
}

func csvWithDefault(lookup func(string) (string, bool), key string) []string {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
