// Package storage archives operational reports in Cloud Storage.
package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/campushub/api/internal/domain"
	"github.com/campushub/api/internal/services"
)

const reportContentType = "application/json"

// ReportArchive writes reconciliation reports as JSON objects and keeps a latest.json copy.
type ReportArchive struct {
	store  ObjectStore
	bucket string
}

var _ services.ReconcileReportWriter = (*ReportArchive)(nil)

// NewReportArchive constructs an archive writing to bucket.
func NewReportArchive(store ObjectStore, bucket string) (*ReportArchive, error) {
	if store == nil {
		return nil, errors.New("storage: object store is required")
	}
	bucket = strings.TrimSpace(bucket)
	if bucket == "" {
		return nil, errors.New("storage: bucket name is required")
	}
	return &ReportArchive{store: store, bucket: bucket}, nil
}

type reportDocument struct {
	RunID       string          `json:"runId"`
	Scanned     int             `json:"scanned"`
	Repaired    int             `json:"repaired"`
	Skipped     int             `json:"skipped"`
	Drifted     []driftDocument `json:"drifted"`
	StartedAt   time.Time       `json:"startedAt"`
	CompletedAt time.Time       `json:"completedAt"`
}

type driftDocument struct {
	TargetKind string     `json:"targetKind"`
	TargetID   string     `json:"targetId"`
	Stored     statsEntry `json:"stored"`
	Computed   statsEntry `json:"computed"`
}

type statsEntry struct {
	Likes    int64 `json:"likes"`
	Dislikes int64 `json:"dislikes"`
}

// WriteReport uploads report and returns its gs:// URI. When only the latest.json refresh fails
// the URI of the durable dated object is returned alongside the error.
func (a *ReportArchive) WriteReport(ctx context.Context, report services.ReconcileReport) (string, error) {
	object, err := BuildObjectPath(ReportReconcile, PathParams{RunID: report.RunID, StartedAt: report.StartedAt})
	if err != nil {
		return "", err
	}
	payload, err := json.MarshalIndent(toReportDocument(report), "", "  ")
	if err != nil {
		return "", fmt.Errorf("storage: encode report: %w", err)
	}
	if err := a.store.Write(ctx, a.bucket, object, reportContentType, payload); err != nil {
		return "", err
	}
	uri := fmt.Sprintf("gs://%s/%s", a.bucket, object)
	if err := a.store.Copy(ctx, a.bucket, object, a.bucket, LatestObjectPath(ReportReconcile)); err != nil {
		return uri, fmt.Errorf("storage: refresh latest report: %w", err)
	}
	return uri, nil
}

func toReportDocument(report domain.ReconcileReport) reportDocument {
	doc := reportDocument{
		RunID:       report.RunID,
		Scanned:     report.Scanned,
		Repaired:    report.Repaired,
		Skipped:     report.Skipped,
		Drifted:     make([]driftDocument, 0, len(report.Drifted)),
		StartedAt:   report.StartedAt.UTC(),
		CompletedAt: report.CompletedAt.UTC(),
	}
	for _, d := range report.Drifted {
		doc.Drifted = append(doc.Drifted, driftDocument{
			TargetKind: string(d.Target.Kind),
			TargetID:   d.Target.ID,
			Stored:     statsEntry{Likes: d.Stored.Likes, Dislikes: d.Stored.Dislikes},
			Computed:   statsEntry{Likes: d.Computed.Likes, Dislikes: d.Computed.Dislikes},
		})
	}
	return doc
}
