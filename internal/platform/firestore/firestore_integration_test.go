//go:build integration

package firestore_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"

	pconfig "github.com/campushub/api/internal/platform/config"
	pfirestore "github.com/campushub/api/internal/platform/firestore"
)

// emulatorProvider connects to the emulator named by FIRESTORE_EMULATOR_HOST, e.g. one started
// with `gcloud emulators firestore start --host-port=127.0.0.1:8787`.
func emulatorProvider(t *testing.T) *pfirestore.Provider {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    fmt.Sprintf("platform-it-%d", time.Now().UnixNano()),
		EmulatorHost: host,
	})
	t.Cleanup(func() { _ = provider.Close(context.Background()) })
	return provider
}

func TestProviderTransactionAndScan(t *testing.T) {
	provider := emulatorProvider(t)
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Second)
	defer cancel()

	if err := provider.Ping(ctx); err != nil {
		t.Fatalf("ping: %v", err)
	}
	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}

	coll := client.Collection("scan_items")
	for i := 0; i < 5; i++ {
		if _, err := coll.Doc(fmt.Sprintf("item-%02d", i)).Set(ctx, map[string]any{"n": i}); err != nil {
			t.Fatalf("seed: %v", err)
		}
	}

	var seen []string
	cursor := ""
	for {
		docs, next, err := pfirestore.ScanPage(ctx, coll.Query, cursor, 2)
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		for _, doc := range docs {
			seen = append(seen, doc.Ref.ID)
		}
		if next == "" {
			break
		}
		cursor = next
	}
	if len(seen) != 5 || seen[0] != "item-00" || seen[4] != "item-04" {
		t.Fatalf("unexpected scan order %v", seen)
	}

	ref := coll.Doc("item-00")
	err = provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if _, err := tx.Get(ref); err != nil {
			return err
		}
		return pfirestore.ConflictError("guard", errors.New("status changed"))
	})
	type conflictClassifier interface{ IsConflict() bool }
	var cls conflictClassifier
	if !errors.As(err, &cls) || !cls.IsConflict() {
		t.Fatalf("expected conflict classification, got %v", err)
	}

	if _, err := coll.Doc("missing").Get(ctx); !pfirestore.IsNotFound(pfirestore.WrapError("get", err)) {
		t.Fatalf("expected not found, got %v", err)
	}

	cancelled, stop := context.WithCancel(context.Background())
	stop()
	if err := provider.RunTransaction(cancelled, func(context.Context, *firestore.Transaction) error { return nil }); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context canceled, got %v", err)
	}
}
