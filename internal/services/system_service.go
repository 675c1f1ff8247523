package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	domain "github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/repositories"
)

// BuildInfo captures runtime metadata exposed via health endpoints.
type BuildInfo struct {
	Version     string
	CommitSHA   string
	Environment string
	StartedAt   time.Time
}

// DeliveryProbe checks a best-effort dependency such as the notification topic. A failing probe
// degrades readiness but never fails it: reactions and orders commit without notifications.
type DeliveryProbe func(ctx context.Context) error

// SystemServiceDeps bundles collaborators required to construct a system service.
type SystemServiceDeps struct {
	HealthRepository repositories.HealthRepository
	DeliveryProbes   map[string]DeliveryProbe
	ProbeTimeout     time.Duration
	Clock            func() time.Time
	Build            BuildInfo
}

type systemService struct {
	store        repositories.HealthRepository
	probes       map[string]DeliveryProbe
	probeTimeout time.Duration
	now          func() time.Time
	build        BuildInfo
}

var _ SystemService = (*systemService)(nil)

// NewSystemService assembles the service backing /readyz.
func NewSystemService(deps SystemServiceDeps) (SystemService, error) {
	if deps.HealthRepository == nil {
		return nil, errors.New("system service: health repository is required")
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	timeout := deps.ProbeTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	svc := &systemService{
		store:        deps.HealthRepository,
		probes:       make(map[string]DeliveryProbe, len(deps.DeliveryProbes)),
		probeTimeout: timeout,
		now:          func() time.Time { return clock().UTC() },
		build:        deps.Build,
	}
	for name, probe := range deps.DeliveryProbes {
		if probe != nil && strings.TrimSpace(name) != "" {
			svc.probes[name] = probe
		}
	}
	if svc.build.StartedAt.IsZero() {
		svc.build.StartedAt = svc.now()
	}
	return svc, nil
}

func (s *systemService) HealthReport(ctx context.Context) (SystemHealthReport, error) {
	report, err := s.store.Collect(ctx)
	if err != nil {
		return SystemHealthReport{}, err
	}
	if report.Checks == nil {
		report.Checks = map[string]domain.SystemHealthCheck{}
	}

	names := make([]string, 0, len(s.probes))
	for name := range s.probes {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		report.Checks[name] = s.runProbe(ctx, s.probes[name])
	}

	now := s.now()
	if report.GeneratedAt.IsZero() {
		report.GeneratedAt = now
	}
	if report.Version == "" {
		report.Version = s.build.Version
	}
	if report.CommitSHA == "" {
		report.CommitSHA = s.build.CommitSHA
	}
	if report.Environment == "" {
		report.Environment = s.build.Environment
	}
	if report.Uptime <= 0 {
		report.Uptime = now.Sub(s.build.StartedAt)
	}
	report.Status = deriveStatus(report.Checks)
	return report, nil
}

func (s *systemService) runProbe(ctx context.Context, probe DeliveryProbe) domain.SystemHealthCheck {
	probeCtx, cancel := context.WithTimeout(ctx, s.probeTimeout)
	defer cancel()

	started := s.now()
	err := probe(probeCtx)
	check := domain.SystemHealthCheck{
		Status:    domain.HealthStatusOK,
		Latency:   s.now().Sub(started),
		CheckedAt: started,
	}
	if err != nil {
		check.Status = domain.HealthStatusDegraded
		check.Error = err.Error()
	}
	return check
}

// deriveStatus folds per-check results: any error fails readiness, anything else non-ok degrades it.
func deriveStatus(checks map[string]domain.SystemHealthCheck) string {
	status := domain.HealthStatusOK
	for _, check := range checks {
		switch check.Status {
		case domain.HealthStatusOK, "":
		case domain.HealthStatusError:
			return domain.HealthStatusError
		default:
			status = domain.HealthStatusDegraded
		}
	}
	return status
}
