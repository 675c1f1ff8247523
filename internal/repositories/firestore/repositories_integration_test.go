//go:build integration

package firestore

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	domain "github.com/campushub/api/internal/domain"
	pconfig "github.com/campushub/api/internal/platform/config"
	pfirestore "github.com/campushub/api/internal/platform/firestore"
	"github.com/campushub/api/internal/repositories"
)

func newEmulatorRegistry(t *testing.T) (*Registry, *pfirestore.Provider) {
	t.Helper()
	host := os.Getenv("FIRESTORE_EMULATOR_HOST")
	if host == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set")
	}
	provider := pfirestore.NewProvider(pconfig.FirestoreConfig{
		ProjectID:    fmt.Sprintf("repos-it-%d", time.Now().UnixNano()),
		EmulatorHost: host,
	})
	reg, err := NewRegistry(provider, 10, nil)
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(func() { _ = reg.Close(context.Background()) })
	return reg, provider
}

func TestReactionToggleConcurrentUsersKeepCountersConsistent(t *testing.T) {
	reg, provider := newEmulatorRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	client, err := provider.Client(ctx)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if _, err := client.Collection(postsCollection).Doc("p1").Set(ctx, map[string]any{
		"authorId": "author",
		"title":    "lost umbrella",
		"stats":    map[string]any{"likes": 0, "dislikes": 0},
	}); err != nil {
		t.Fatalf("seed post: %v", err)
	}

	const users = 8
	var wg sync.WaitGroup
	errs := make(chan error, users)
	for i := 0; i < users; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			key := domain.ReactionKey{UserID: fmt.Sprintf("u%d", i), TargetID: "p1", TargetKind: domain.TargetKindPost}
			typ := domain.ReactionLike
			if i%2 == 1 {
				typ = domain.ReactionDislike
			}
			_, err := reg.Reactions().Toggle(ctx, key, func(existing *domain.Reaction, target domain.ReactableTarget) (domain.ToggleOutcome, error) {
				return domain.DecideToggle(key, existing, typ, target.OwnerID, time.Now()), nil
			})
			errs <- err
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatalf("toggle: %v", err)
		}
	}

	ref := domain.TargetRef{ID: "p1", Kind: domain.TargetKindPost}
	target, err := reg.Targets().Get(ctx, ref)
	if err != nil {
		t.Fatalf("get target: %v", err)
	}
	counted, err := reg.Reactions().CountByTarget(ctx, ref)
	if err != nil {
		t.Fatalf("count: %v", err)
	}
	if target.Stats != counted || counted.Likes != users/2 || counted.Dislikes != users/2 {
		t.Fatalf("stored %+v counted %+v", target.Stats, counted)
	}
	if rep, _ := reg.Users().Reputation(ctx, "author"); rep != users/2 {
		t.Fatalf("expected reputation %d, got %d", users/2, rep)
	}

	missing := domain.ReactionKey{UserID: "u1", TargetID: "ghost", TargetKind: domain.TargetKindPost}
	_, err = reg.Reactions().Toggle(ctx, missing, func(*domain.Reaction, domain.ReactableTarget) (domain.ToggleOutcome, error) {
		t.Fatalf("decider must not run for a missing target")
		return domain.ToggleOutcome{}, nil
	})
	if !repositories.IsNotFound(err) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestOrderUpdateRejectsStaleExpectation(t *testing.T) {
	reg, _ := newEmulatorRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	order := domain.Order{ID: "o1", OrderNumber: "PKG-20260301-1", CustomerID: "c1", Status: domain.OrderStatusPending, Revision: 1, ExpiresAt: time.Now().Add(time.Hour)}
	if err := reg.Orders().Insert(ctx, order); err != nil {
		t.Fatalf("insert: %v", err)
	}
	if err := reg.Orders().Insert(ctx, order); !repositories.IsConflict(err) {
		t.Fatalf("expected duplicate insert conflict, got %v", err)
	}

	accepted := order
	accepted.Status = domain.OrderStatusAccepted
	accepted.HelperID = "h1"
	accepted.Revision = 2
	accepted.Timeline = []domain.TimelineEntry{{Action: "accepted", Status: domain.OrderStatusAccepted, OperatorID: "h1", Timestamp: time.Now()}}
	expect := repositories.OrderExpectation{Status: domain.OrderStatusPending, Revision: 1}
	if err := reg.Orders().Update(ctx, accepted, expect); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := reg.Orders().Update(ctx, accepted, expect); !repositories.IsConflict(err) {
		t.Fatalf("expected stale update conflict, got %v", err)
	}

	stored, err := reg.Orders().FindByID(ctx, "o1")
	if err != nil {
		t.Fatalf("find: %v", err)
	}
	if stored.HelperID != "h1" || len(stored.Timeline) != 1 || stored.Revision != 2 {
		t.Fatalf("unexpected stored order %+v", stored)
	}
}

func TestCounterNextIsSequentialUnderContention(t *testing.T) {
	reg, _ := newEmulatorRegistry(t)
	ctx, cancel := context.WithTimeout(context.Background(), 60*time.Second)
	defer cancel()

	const workers = 4
	seen := make(map[int64]bool, workers)
	var mu sync.Mutex
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			v, err := reg.Counters().Next(ctx, "orders:20260301", 1)
			if err != nil {
				t.Errorf("next: %v", err)
				return
			}
			mu.Lock()
			seen[v] = true
			mu.Unlock()
		}()
	}
	wg.Wait()
	for v := int64(1); v <= workers; v++ {
		if !seen[v] {
			t.Fatalf("missing sequence value %d in %v", v, seen)
		}
	}
}
