// Package usage tracks per-organization consumption counters for the
// current calendar month.
package usage

import (
	"time"

	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/period"
	"github.com/xraph/tollgate/types"
)

// Well-known metric names.
const (
	MetricDocuments = "documents"
	MetricStorage   = "storage" // bytes
)

// Record is the counter for one (organization, metric, period).
type Record struct {
	types.Entity
	ID          id.UsageID `json:"id"`
	OrgID       id.OrgID   `json:"org_id"`
	Metric      string     `json:"metric"`
	Count       int64      `json:"count"`
	PeriodStart time.Time  `json:"period_start"`
	PeriodEnd   time.Time  `json:"period_end"`
	LastResetAt *time.Time `json:"last_reset_at,omitempty"`
}

// Window returns the period the record counts.
func (r *Record) Window() period.Window {
	return period.Window{Start: r.PeriodStart, End: r.PeriodEnd}
}

// NewRecord returns a zero-count record for the window.
func NewRecord(orgID id.OrgID, metric string, w period.Window, now time.Time) *Record {
	return &Record{
		Entity:      types.EntityAt(now),
		ID:          id.NewUsageID(),
		OrgID:       orgID,
		Metric:      metric,
		PeriodStart: w.Start,
		PeriodEnd:   w.End,
	}
}
