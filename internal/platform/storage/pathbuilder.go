package storage

import (
	"fmt"
	"strings"
	"time"
)

// ReportKind names a family of archived reports.
type ReportKind string

const (
	// ReportReconcile is the output of a counter reconciliation run.
	ReportReconcile ReportKind = "reconcile"
)

// PathParams provide the identifiers needed to compose a report object key.
type PathParams struct {
	RunID     string
	StartedAt time.Time
}

// BuildObjectPath resolves the object key of a report. Reports are partitioned by UTC day so
// lifecycle rules can expire whole prefixes.
func BuildObjectPath(kind ReportKind, params PathParams) (string, error) {
	switch kind {
	case ReportReconcile:
	default:
		return "", fmt.Errorf("storage: unsupported report kind %q", kind)
	}
	runID, err := validateSegment("runID", params.RunID)
	if err != nil {
		return "", err
	}
	if params.StartedAt.IsZero() {
		return "", fmt.Errorf("storage: startedAt is required")
	}
	day := params.StartedAt.UTC().Format("2006/01/02")
	return fmt.Sprintf("reports/%s/%s/%s.json", kind, day, runID), nil
}

// LatestObjectPath is the stable key that always holds the newest report of kind.
func LatestObjectPath(kind ReportKind) string {
	return fmt.Sprintf("reports/%s/latest.json", kind)
}

func validateSegment(name, value string) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", fmt.Errorf("storage: %s is required", name)
	}
	if strings.ContainsAny(value, "/\\") {
		return "", fmt.Errorf("storage: %s contains invalid path characters", name)
	}
	if strings.Contains(value, "..") {
		return "", fmt.Errorf("storage: %s contains invalid traversal sequence", name)
	}
	return value, nil
}
