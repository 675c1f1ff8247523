package services

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/platform/observability"
	"github.com/campushub/api/internal/repositories"
)

const defaultReconcileBatchSize = 200

// ReconcileReportWriter persists a finished report and returns where it was stored.
type ReconcileReportWriter interface {
	WriteReport(ctx context.Context, report ReconcileReport) (string, error)
}

// ReconciliationServiceDeps bundles collaborators required to construct the reconciliation service.
type ReconciliationServiceDeps struct {
	Reactions   repositories.ReactionRepository
	Targets     repositories.TargetRepository
	Reports     ReconcileReportWriter
	BatchSize   int
	Clock       func() time.Time
	IDGenerator func() string
	Metrics     *observability.Metrics
	Logger      func(ctx context.Context, event string, fields map[string]any)
}

type reconciliationService struct {
	reactions repositories.ReactionRepository
	targets   repositories.TargetRepository
	reports   ReconcileReportWriter
	batchSize int
	clock     func() time.Time
	newID     func() string
	metrics   *observability.Metrics
	logger    func(context.Context, string, map[string]any)
}

var _ ReconciliationService = (*reconciliationService)(nil)

// NewReconciliationService wires dependencies into a ReconciliationService.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Reactions == nil {
		return nil, errors.New("reconciliation service: reaction repository is required")
	}
	if deps.Targets == nil {
		return nil, errors.New("reconciliation service: target repository is required")
	}
	batch := deps.BatchSize
	if batch <= 0 {
		batch = defaultReconcileBatchSize
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	idGen := deps.IDGenerator
	if idGen == nil {
		idGen = uuid.NewString
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &reconciliationService{
		reactions: deps.Reactions,
		targets:   deps.Targets,
		reports:   deps.Reports,
		batchSize: batch,
		clock: func() time.Time {
			return clock().UTC()
		},
		newID:   idGen,
		metrics: deps.Metrics,
		logger:  logger,
	}, nil
}

// Run walks every post and comment, recounts its reaction rows and compares the result with
// the cached counters. With opts.Repair set, drifted counters are overwritten, but only while
// they still hold the value that was compared.
func (s *reconciliationService) Run(ctx context.Context, opts ReconcileOptions) (ReconcileReport, error) {
	batch := opts.BatchSize
	if batch <= 0 {
		batch = s.batchSize
	}
	report := ReconcileReport{RunID: s.newID(), Drifted: []domain.CounterDrift{}, StartedAt: s.clock()}

	ctx, span := observability.Tracer().Start(ctx, "ReconciliationService.Run", trace.WithAttributes(
		attribute.String("reconcile.run_id", report.RunID),
		attribute.Bool("reconcile.repair", opts.Repair),
	))
	defer span.End()

	for _, kind := range []domain.TargetKind{domain.TargetKindPost, domain.TargetKindComment} {
		if err := s.scanKind(ctx, kind, batch, opts, &report); err != nil {
			span.RecordError(err)
			return report, err
		}
	}
	report.CompletedAt = s.clock()
	s.metrics.DriftDetected(ctx, len(report.Drifted))
	span.SetAttributes(attribute.Int("reconcile.scanned", report.Scanned), attribute.Int("reconcile.drifted", len(report.Drifted)))

	if s.reports != nil {
		uri, err := s.reports.WriteReport(ctx, report)
		if err != nil {
			s.logger(ctx, "reconcile.report.failed", map[string]any{"runId": report.RunID, "error": err.Error()})
		}
		// A partially failed write may still have produced a durable object.
		report.ReportURI = uri
	}
	s.logger(ctx, "reconcile.completed", map[string]any{
		"runId":    report.RunID,
		"scanned":  report.Scanned,
		"drifted":  len(report.Drifted),
		"repaired": report.Repaired,
		"skipped":  report.Skipped,
	})
	return report, nil
}

func (s *reconciliationService) scanKind(ctx context.Context, kind domain.TargetKind, batch int, opts ReconcileOptions, report *ReconcileReport) error {
	scanned := 0
	cursor := ""
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		targets, next, err := s.targets.Scan(ctx, kind, cursor, batch)
		if err != nil {
			return mapRepositoryError("reconcile scan", err)
		}
		for _, target := range targets {
			if opts.Limit > 0 && scanned >= opts.Limit {
				return nil
			}
			scanned++
			report.Scanned++
			if err := s.check(ctx, target, opts.Repair, report); err != nil {
				return err
			}
		}
		if next == "" {
			return nil
		}
		cursor = next
	}
}

func (s *reconciliationService) check(ctx context.Context, target domain.ReactableTarget, repair bool, report *ReconcileReport) error {
	counted, err := s.reactions.CountByTarget(ctx, target.Ref)
	if err != nil {
		return mapRepositoryError("reconcile count", err)
	}
	drift := domain.CounterDrift{Target: target.Ref, Stored: target.Stats, Computed: counted}
	if !drift.Drifted() {
		return nil
	}
	report.Drifted = append(report.Drifted, drift)
	s.logger(ctx, "reconcile.drift", map[string]any{
		"target":           target.Ref.String(),
		"storedLikes":      target.Stats.Likes,
		"storedDislikes":   target.Stats.Dislikes,
		"computedLikes":    counted.Likes,
		"computedDislikes": counted.Dislikes,
	})
	if !repair {
		return nil
	}
	err = s.targets.RepairStats(ctx, target.Ref, target.Stats, counted)
	switch {
	case err == nil:
		report.Repaired++
	case repositories.IsConflict(err):
		report.Skipped++
		s.logger(ctx, "reconcile.repair.skipped", map[string]any{"target": target.Ref.String()})
	default:
		return mapRepositoryError("reconcile repair", err)
	}
	return nil
}
