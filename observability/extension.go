// Package observability provides a metrics extension for tollgate that
// records enforcement decisions and lifecycle events as Prometheus metrics.
package observability

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/xraph/tollgate/gate"
	"github.com/xraph/tollgate/id"
	"github.com/xraph/tollgate/organization"
	"github.com/xraph/tollgate/plan"
	"github.com/xraph/tollgate/plugin"
	"github.com/xraph/tollgate/subscription"
)

// Ensure MetricsExtension implements required interfaces.
var (
	_ plugin.Plugin                = (*MetricsExtension)(nil)
	_ plugin.OnPlanCreated         = (*MetricsExtension)(nil)
	_ plugin.OnPlanArchived        = (*MetricsExtension)(nil)
	_ plugin.OnOrganizationCreated = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionChanged = (*MetricsExtension)(nil)
	_ plugin.OnSubscriptionExpired = (*MetricsExtension)(nil)
	_ plugin.OnDecision            = (*MetricsExtension)(nil)
	_ plugin.OnFeatureDenied       = (*MetricsExtension)(nil)
	_ plugin.OnLimitReached        = (*MetricsExtension)(nil)
	_ plugin.OnUsageCommitted      = (*MetricsExtension)(nil)
	_ plugin.OnUsageReleased       = (*MetricsExtension)(nil)
	_ plugin.OnUsageDrift          = (*MetricsExtension)(nil)
)

// Namespace prefixes every metric name.
const Namespace = "tollgate"

// MetricsExtension records system-wide enforcement metrics.
// Register it as a tollgate plugin to track them automatically.
type MetricsExtension struct {
	// Catalog and tenant metrics
	PlansCreated         prometheus.Counter
	PlansArchived        prometheus.Counter
	OrganizationsCreated prometheus.Counter

	// Subscription metrics
	SubscriptionChanges *prometheus.CounterVec
	SubscriptionExpired prometheus.Counter

	// Decision metrics
	Decisions        *prometheus.CounterVec
	DecisionDuration prometheus.Histogram
	FeatureDenied    *prometheus.CounterVec
	LimitReached     *prometheus.CounterVec

	// Usage metrics
	UsageCommitted *prometheus.CounterVec
	UsageReleased  *prometheus.CounterVec
	UsageDrift     *prometheus.CounterVec
}

// NewMetricsExtension creates a MetricsExtension and registers its
// collectors with reg. A nil reg uses prometheus.DefaultRegisterer.
func NewMetricsExtension(reg prometheus.Registerer) *MetricsExtension {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}

	m := &MetricsExtension{
		PlansCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "plans_created_total",
			Help:      "Total number of plans created",
		}),
		PlansArchived: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "plans_archived_total",
			Help:      "Total number of plans archived",
		}),
		OrganizationsCreated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "organizations_created_total",
			Help:      "Total number of organizations created",
		}),
		SubscriptionChanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "subscription_changes_total",
				Help:      "Total number of plan changes",
			},
			[]string{"direction"},
		),
		SubscriptionExpired: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Name:      "subscriptions_expired_total",
			Help:      "Total number of subscriptions expired on read",
		}),
		Decisions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "decisions_total",
				Help:      "Total number of enforcement decisions",
			},
			[]string{"capability", "reason"},
		),
		DecisionDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: Namespace,
			Name:      "decision_duration_seconds",
			Help:      "Time spent deciding whether a request may proceed",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 2, 12),
		}),
		FeatureDenied: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "feature_denied_total",
				Help:      "Total number of requests denied by the feature gate",
			},
			[]string{"feature", "plan"},
		),
		LimitReached: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "limit_reached_total",
				Help:      "Total number of requests denied by a usage limit",
			},
			[]string{"metric"},
		),
		UsageCommitted: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "usage_committed_total",
				Help:      "Units added to usage counters",
			},
			[]string{"metric"},
		),
		UsageReleased: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "usage_released_total",
				Help:      "Units given back to usage counters",
			},
			[]string{"metric"},
		),
		UsageDrift: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "usage_drift_total",
				Help:      "Counter adjustments that could not be applied",
			},
			[]string{"metric"},
		),
	}

	reg.MustRegister(
		m.PlansCreated,
		m.PlansArchived,
		m.OrganizationsCreated,
		m.SubscriptionChanges,
		m.SubscriptionExpired,
		m.Decisions,
		m.DecisionDuration,
		m.FeatureDenied,
		m.LimitReached,
		m.UsageCommitted,
		m.UsageReleased,
		m.UsageDrift,
	)

	return m
}

// Name implements plugin.Plugin.
func (m *MetricsExtension) Name() string { return "observability-metrics" }

// OnPlanCreated implements plugin.OnPlanCreated.
func (m *MetricsExtension) OnPlanCreated(_ context.Context, _ *plan.Plan) error {
	m.PlansCreated.Inc()
	return nil
}

// OnPlanArchived implements plugin.OnPlanArchived.
func (m *MetricsExtension) OnPlanArchived(_ context.Context, _ id.PlanID) error {
	m.PlansArchived.Inc()
	return nil
}

// OnOrganizationCreated implements plugin.OnOrganizationCreated.
func (m *MetricsExtension) OnOrganizationCreated(_ context.Context, _ *organization.Organization, _ *subscription.Subscription) error {
	m.OrganizationsCreated.Inc()
	return nil
}

// OnSubscriptionChanged implements plugin.OnSubscriptionChanged.
func (m *MetricsExtension) OnSubscriptionChanged(_ context.Context, _ *subscription.Subscription, oldPlan, newPlan *plan.Plan) error {
	direction := "upgrade"
	if oldPlan != nil && newPlan.Price.Amount < oldPlan.Price.Amount {
		direction = "downgrade"
	}
	m.SubscriptionChanges.WithLabelValues(direction).Inc()
	return nil
}

// OnSubscriptionExpired implements plugin.OnSubscriptionExpired.
func (m *MetricsExtension) OnSubscriptionExpired(_ context.Context, _ *subscription.Subscription) error {
	m.SubscriptionExpired.Inc()
	return nil
}

// OnDecision implements plugin.OnDecision.
func (m *MetricsExtension) OnDecision(_ context.Context, _ id.OrgID, capability plan.Feature, reason string, elapsed time.Duration) error {
	if reason == "" {
		reason = "allowed"
	}
	m.Decisions.WithLabelValues(string(capability), reason).Inc()
	m.DecisionDuration.Observe(elapsed.Seconds())
	return nil
}

// OnFeatureDenied implements plugin.OnFeatureDenied.
func (m *MetricsExtension) OnFeatureDenied(_ context.Context, _ id.OrgID, denied *gate.FeatureDeniedError) error {
	m.FeatureDenied.WithLabelValues(string(denied.Feature), denied.Plan).Inc()
	return nil
}

// OnLimitReached implements plugin.OnLimitReached.
func (m *MetricsExtension) OnLimitReached(_ context.Context, _ id.OrgID, reached *gate.LimitReachedError) error {
	m.LimitReached.WithLabelValues(reached.Metric).Inc()
	return nil
}

// OnUsageCommitted implements plugin.OnUsageCommitted.
func (m *MetricsExtension) OnUsageCommitted(_ context.Context, _ id.OrgID, deltas map[string]int64) error {
	for metric, delta := range deltas {
		m.UsageCommitted.WithLabelValues(metric).Add(float64(delta))
	}
	return nil
}

// OnUsageReleased implements plugin.OnUsageReleased.
func (m *MetricsExtension) OnUsageReleased(_ context.Context, _ id.OrgID, deltas map[string]int64) error {
	for metric, delta := range deltas {
		m.UsageReleased.WithLabelValues(metric).Add(float64(delta))
	}
	return nil
}

// OnUsageDrift implements plugin.OnUsageDrift.
func (m *MetricsExtension) OnUsageDrift(_ context.Context, _ id.OrgID, metric string, _ int64, _ error) error {
	m.UsageDrift.WithLabelValues(metric).Inc()
	return nil
}
