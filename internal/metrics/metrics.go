package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/omnistrate-community/resource-scheduler/internal/resource"
)

const namespace = "resource_scheduler"

// Metrics holds the Prometheus instruments of the scheduler. A nil *Metrics
// is valid and records nothing.
type Metrics struct {
	invocations        *prometheus.CounterVec
	invocationDuration *prometheus.HistogramVec
	outcomes           *prometheus.CounterVec
	kindDuration       *prometheus.HistogramVec
	readinessChecks    *prometheus.CounterVec
	databasesAvailable prometheus.Gauge

	registry *prometheus.Registry
}

// New creates the instruments on a dedicated registry.
func New() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,

		invocations: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "invocations_total",
				Help:      "Total number of lifecycle invocations by action and status code",
			},
			[]string{"action", "status_code"},
		),
		invocationDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "invocation_duration_seconds",
				Help:      "Duration of lifecycle invocations in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"action"},
		),
		outcomes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "transition_outcomes_total",
				Help:      "Total number of per-resource transition outcomes",
			},
			[]string{"resource_kind", "action", "succeeded", "reason"},
		),
		kindDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "kind_transition_duration_seconds",
				Help:      "Duration of one controller transition in seconds",
				Buckets:   prometheus.DefBuckets,
			},
			[]string{"resource_kind", "action"},
		),
		readinessChecks: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "readiness_checks_total",
				Help:      "Total number of database readiness checks by verdict",
			},
			[]string{"verdict"},
		),
		databasesAvailable: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "databases_available",
				Help:      "Last readiness verdict (1=available, 0=not available)",
			},
		),
	}

	registry.MustRegister(
		m.invocations,
		m.invocationDuration,
		m.outcomes,
		m.kindDuration,
		m.readinessChecks,
		m.databasesAvailable,
	)

	return m
}

// invalidAction labels invocations whose action is neither start nor stop, so
// caller input never becomes a label value.
const invalidAction = "invalid"

// RecordInvocation records a finished invocation.
func (m *Metrics) RecordInvocation(action resource.Action, statusCode int, duration time.Duration) {
	if m == nil {
		return
	}
	label := string(action)
	if !action.Valid() {
		label = invalidAction
	}
	m.invocations.WithLabelValues(label, strconv.Itoa(statusCode)).Inc()
	m.invocationDuration.WithLabelValues(label).Observe(duration.Seconds())
}

// RecordKind records the outcomes and duration of one controller run.
func (m *Metrics) RecordKind(kind resource.Kind, action resource.Action, outcomes []resource.Outcome, duration time.Duration) {
	if m == nil {
		return
	}
	for _, o := range outcomes {
		succeeded := "false"
		if o.Succeeded {
			succeeded = "true"
		}
		m.outcomes.WithLabelValues(kind.String(), string(action), succeeded, string(o.Reason)).Inc()
	}
	m.kindDuration.WithLabelValues(kind.String(), string(action)).Observe(duration.Seconds())
}

// RecordReadiness records a readiness verdict.
func (m *Metrics) RecordReadiness(verdict resource.Availability) {
	if m == nil {
		return
	}
	m.readinessChecks.WithLabelValues(string(verdict)).Inc()
	if verdict == resource.Available {
		m.databasesAvailable.Set(1)
	} else {
		m.databasesAvailable.Set(0)
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
