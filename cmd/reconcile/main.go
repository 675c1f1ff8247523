// Command reconcile recounts reaction rows against the cached counters once and exits. It is
// run as a Cloud Run job; the report is archived when API_RECONCILE_BUCKET is set.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/campushub/api/internal/di"
	"github.com/campushub/api/internal/platform/config"
	"github.com/campushub/api/internal/platform/observability"
	"github.com/campushub/api/internal/platform/secrets"
	"github.com/campushub/api/internal/services"
)

func main() {
	var (
		repair    bool
		limit     int
		batchSize int
		timeout   time.Duration
	)
	flag.BoolVar(&repair, "repair", false, "overwrite drifted counters (defaults to API_RECONCILE_REPAIR)")
	flag.IntVar(&limit, "limit", 0, "maximum targets scanned per kind, 0 for all")
	flag.IntVar(&batchSize, "batch", 0, "targets read per page, 0 for the configured size")
	flag.DurationVar(&timeout, "timeout", 30*time.Minute, "overall run deadline")
	flag.Parse()

	baseLogger, err := observability.NewLogger()
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()
	logger := baseLogger.Named("reconcile")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(observability.WithLogger(ctx, logger), timeout)
	defer cancel()

	if err := run(ctx, logger, repair, limit, batchSize); err != nil {
		logger.Error("reconcile run failed", zap.Error(err))
		_ = baseLogger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, logger *zap.Logger, repair bool, limit, batchSize int) error {
	envValues, err := config.EnvironmentValues()
	if err != nil {
		return fmt.Errorf("read environment: %w", err)
	}
	project := strings.TrimSpace(envValues["API_SECRETS_PROJECT_ID"])
	if project == "" {
		project = strings.TrimSpace(envValues["API_FIREBASE_PROJECT_ID"])
	}
	resolver, err := secrets.NewResolver(ctx, secrets.WithProject(project), secrets.WithLogger(logger.Named("secrets")))
	if err != nil {
		return err
	}
	defer resolver.Close()

	cfg, err := config.Load(ctx, config.WithSecretResolver(resolver))
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	if !flagPassed("repair") {
		repair = cfg.Reconcile.Repair
	}

	container, err := di.NewContainer(ctx, cfg, di.WithLogger(logger))
	if err != nil {
		return fmt.Errorf("initialise dependencies: %w", err)
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := container.Close(closeCtx); err != nil {
			logger.Warn("container close error", zap.Error(err))
		}
	}()

	report, err := container.Services.Reconcile.Run(ctx, services.ReconcileOptions{
		Repair:    repair,
		Limit:     limit,
		BatchSize: batchSize,
	})
	if err != nil {
		return err
	}
	logger.Info("reconcile finished",
		zap.String("runId", report.RunID),
		zap.Int("scanned", report.Scanned),
		zap.Int("drifted", len(report.Drifted)),
		zap.Int("repaired", report.Repaired),
		zap.Int("skipped", report.Skipped),
		zap.String("report", report.ReportURI),
		zap.Duration("elapsed", report.CompletedAt.Sub(report.StartedAt)),
	)
	return nil
}

func flagPassed(name string) bool {
	passed := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == name {
			passed = true
		}
	})
	return passed
}
