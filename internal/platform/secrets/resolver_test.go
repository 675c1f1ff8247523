package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type fakeAccessor struct {
	mu     sync.Mutex
	values map[string]string
	errs   map[string]error
	calls  map[string]int
}

func newFakeAccessor() *fakeAccessor {
	return &fakeAccessor{values: map[string]string{}, errs: map[string]error{}, calls: map[string]int{}}
}

func (f *fakeAccessor) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls[req.GetName()]++
	if err := f.errs[req.GetName()]; err != nil {
		return nil, err
	}
	value, ok := f.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "missing")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)}}, nil
}

func (f *fakeAccessor) Close() error { return nil }

func TestResolveCachesUntilTTL(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()
	resource := "projects/campus/secrets/mongo_uri/versions/latest"
	client.values[resource] = "mongodb://remote"

	now := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	r, err := NewResolver(ctx, withAccessor(client), WithProject("campus"), WithCacheTTL(time.Minute), withClock(func() time.Time { return now }))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	defer r.Close()

	for i := 0; i < 2; i++ {
		got, err := r.ResolveSecret(ctx, "secret://mongo_uri")
		if err != nil || got != "mongodb://remote" {
			t.Fatalf("resolve %d: %q %v", i, got, err)
		}
	}
	if client.calls[resource] != 1 {
		t.Fatalf("expected one remote call, got %d", client.calls[resource])
	}

	now = now.Add(2 * time.Minute)
	if _, err := r.ResolveSecret(ctx, "secret://mongo_uri"); err != nil {
		t.Fatalf("resolve after ttl: %v", err)
	}
	if client.calls[resource] != 2 {
		t.Fatalf("expected refetch after ttl, got %d", client.calls[resource])
	}
}

func TestResolveProjectAndVersionFromReference(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()
	client.values["projects/other/secrets/fcm_key/versions/3"] = "pinned"

	r, err := NewResolver(ctx, withAccessor(client), WithProject("campus"))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	got, err := r.ResolveSecret(ctx, "sm://other/fcm_key?version=3")
	if err != nil || got != "pinned" {
		t.Fatalf("unexpected %q %v", got, err)
	}
}

func TestResolveFallsBackToLocalFile(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("# local\nmongo_uri=mongodb://localhost:27017\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}

	client := newFakeAccessor()
	client.errs["projects/campus/secrets/mongo_uri/versions/latest"] = status.Error(codes.PermissionDenied, "denied")

	r, err := NewResolver(ctx, withAccessor(client), WithProject("campus"), WithLocalFallback(path))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	got, err := r.ResolveSecret(ctx, "secret://mongo_uri")
	if err != nil || got != "mongodb://localhost:27017" {
		t.Fatalf("unexpected %q %v", got, err)
	}
}

func TestResolveErrors(t *testing.T) {
	ctx := context.Background()
	client := newFakeAccessor()
	boom := status.Error(codes.Internal, "boom")
	client.errs["projects/campus/secrets/api_key/versions/latest"] = boom

	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte("api_key=local\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	r, err := NewResolver(ctx, withAccessor(client), WithProject("campus"), WithLocalFallback(path))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	if _, err := r.ResolveSecret(ctx, "secret://api_key"); !errors.Is(err, boom) {
		t.Fatalf("internal errors must not fall back, got %v", err)
	}
	if _, err := r.ResolveSecret(ctx, "https://api_key"); err == nil {
		t.Fatal("expected unsupported scheme error")
	}
	if _, err := r.ResolveSecret(ctx, "secret://a/b/c"); err == nil {
		t.Fatal("expected malformed reference error")
	}

	strict, err := NewResolver(ctx, withAccessor(newFakeAccessor()), WithProject("campus"))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	if _, err := strict.ResolveSecret(ctx, "secret://absent"); err == nil {
		t.Fatal("expected not found without fallback")
	}
}
