package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/campushub/api/internal/domain"
)

func TestDependencyHealthRepositoryCollect(t *testing.T) {
	ok := func(context.Context) error { return nil }
	slow := func(ctx context.Context) error {
		select {
		case <-time.After(200 * time.Millisecond):
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	tests := []struct {
		name         string
		checks       []DependencyCheck
		wantStatus   string
		failing      string
		failingState string
		detail       string
	}{
		{
			name:       "all healthy",
			checks:     []DependencyCheck{{Name: "store", Check: ok}, {Name: "secrets", Check: ok}},
			wantStatus: domain.HealthStatusOK,
		},
		{
			name:         "probe error degrades",
			checks:       []DependencyCheck{{Name: "store", Check: func(context.Context) error { return errors.New("boom") }}, {Name: "pubsub", Check: ok}},
			wantStatus:   domain.HealthStatusDegraded,
			failing:      "store",
			failingState: domain.HealthStatusDegraded,
			detail:       "boom",
		},
		{
			name:         "timeout is an error",
			checks:       []DependencyCheck{{Name: "secrets", Timeout: 5 * time.Millisecond, Check: slow}, {Name: "store", Check: func(context.Context) error { return errors.New("slow") }}},
			wantStatus:   domain.HealthStatusError,
			failing:      "secrets",
			failingState: domain.HealthStatusError,
			detail:       "timeout",
		},
	}

	now := time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			repo, err := NewDependencyHealthRepository(tc.checks, WithDependencyClock(func() time.Time { return now }))
			if err != nil {
				t.Fatalf("NewDependencyHealthRepository: %v", err)
			}
			report, err := repo.Collect(context.Background())
			if err != nil {
				t.Fatalf("Collect: %v", err)
			}
			if report.Status != tc.wantStatus {
				t.Fatalf("expected status %s, got %s", tc.wantStatus, report.Status)
			}
			if len(report.Checks) != len(tc.checks) {
				t.Fatalf("expected %d checks, got %d", len(tc.checks), len(report.Checks))
			}
			if !report.GeneratedAt.Equal(now) {
				t.Fatalf("expected generatedAt %s, got %s", now, report.GeneratedAt)
			}
			if tc.failing == "" {
				return
			}
			check := report.Checks[tc.failing]
			if check.Status != tc.failingState || check.Detail != tc.detail {
				t.Fatalf("unexpected %s result %+v", tc.failing, check)
			}
		})
	}
}

func TestNewDependencyHealthRepositoryRejectsIncompleteChecks(t *testing.T) {
	if _, err := NewDependencyHealthRepository(nil); err == nil {
		t.Fatalf("expected error for empty check set")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: " ", Check: func(context.Context) error { return nil }}}); err == nil {
		t.Fatalf("expected error for unnamed check")
	}
	if _, err := NewDependencyHealthRepository([]DependencyCheck{{Name: "store"}}); err == nil {
		t.Fatalf("expected error for missing probe")
	}
}
