// Package report provides the durable store for user reports: an
// append-only log with create and list operations, backed by PostgreSQL in
// production and by memory in tests and single-box setups. A background
// writer keeps the durable path off the coordinator's state-mutation lock.
package report

import (
	"context"
	"fmt"
	"time"
)

// validReasons mirrors the CHECK constraint on the reports table and the
// protocol's closed ReportReason enumeration.
var validReasons = map[string]bool{
	"inappropriate": true,
	"spam":          true,
	"offensive":     true,
	"other":         true,
}

// Report is one filed report. Immutable once created.
type Report struct {
	ReporterID string    `json:"reporterId"`
	ReportedID string    `json:"reportedId"`
	Reason     string    `json:"reason"`
	Details    string    `json:"details,omitempty"`
	Timestamp  time.Time `json:"timestamp"`
}

// Validate checks that both participants are present and the reason is in
// the closed set. Details are optional.
func (r *Report) Validate() error {
	if r.ReporterID == "" {
		return fmt.Errorf("report: missing reporter id")
	}
	if r.ReportedID == "" {
		return fmt.Errorf("report: missing reported id")
	}
	if !validReasons[r.Reason] {
		return fmt.Errorf("report: invalid reason %q", r.Reason)
	}
	return nil
}

// Store is the durable report log consumed by the coordinator and the
// moderation read-side.
type Store interface {
	Create(ctx context.Context, r *Report) error
	List(ctx context.Context) ([]Report, error)
}
