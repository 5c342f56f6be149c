package gate

import (
	"sync"

	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/usage"
)

// Unit describes how a usage counter relates to the plan limit guarding it.
type Unit string

const (
	// UnitCount compares the counter to the limit as-is.
	UnitCount Unit = "count"
	// UnitMegabytes counts bytes against a limit declared in megabytes.
	UnitMegabytes Unit = "MB"
)

const bytesPerMB = 1024 * 1024

// Factor is what a limit is multiplied by to compare it with raw usage.
func (u Unit) Factor() int64 {
	if u == UnitMegabytes {
		return bytesPerMB
	}
	return 1
}

// Metric ties a plan limit key to the usage counter it caps.
type Metric struct {
	LimitKey string `json:"limit_key"`
	UsageKey string `json:"usage_key"`
	Unit     Unit   `json:"unit"`
}

// Registry maps limit keys and usage metrics to each other. Keys it has
// never seen resolve to a count metric whose limit and usage keys match.
type Registry struct {
	mu      sync.RWMutex
	byLimit map[string]Metric
	byUsage map[string]Metric
}

// NewRegistry creates a registry holding metrics.
func NewRegistry(metrics ...Metric) *Registry {
	r := &Registry{
		byLimit: make(map[string]Metric),
		byUsage: make(map[string]Metric),
	}
	for _, m := range metrics {
		r.Register(m)
	}
	return r
}

// DefaultRegistry knows maxDocuments (document count) and maxStorage
// (bytes stored, limit in MB).
func DefaultRegistry() *Registry {
	return NewRegistry(
		Metric{LimitKey: plan.LimitMaxDocuments, UsageKey: usage.MetricDocuments, Unit: UnitCount},
		Metric{LimitKey: plan.LimitMaxStorage, UsageKey: usage.MetricStorage, Unit: UnitMegabytes},
	)
}

// Register adds or replaces m.
func (r *Registry) Register(m Metric) {
	if m.Unit == "" {
		m.Unit = UnitCount
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byLimit[m.LimitKey] = m
	r.byUsage[m.UsageKey] = m
}

// ForLimit returns the metric capped by limitKey.
func (r *Registry) ForLimit(limitKey string) Metric {
	r.mu.RLock()
	m, ok := r.byLimit[limitKey]
	r.mu.RUnlock()
	if ok {
		return m
	}
	return Metric{LimitKey: limitKey, UsageKey: limitKey, Unit: UnitCount}
}

// ForUsage returns the metric whose counter is usageKey.
func (r *Registry) ForUsage(usageKey string) Metric {
	r.mu.RLock()
	m, ok := r.byUsage[usageKey]
	r.mu.RUnlock()
	if ok {
		return m
	}
	return Metric{LimitKey: usageKey, UsageKey: usageKey, Unit: UnitCount}
}
