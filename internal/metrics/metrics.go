package metrics

import (
	"database/sql"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds the engine and API collectors on a private registry. A nil *Metrics records
// nothing, so library callers and tests can leave it unset.
type Metrics struct {
	registry *prometheus.Registry

	itemEdits          *prometheus.CounterVec
	validationFailures *prometheus.CounterVec
	transitions        *prometheus.CounterVec
	violations         *prometheus.CounterVec
	syncs              *prometheus.CounterVec
	analyses           *prometheus.HistogramVec
	scores             prometheus.Histogram
	checklistsByStatus *prometheus.GaugeVec
	apiRequests        *prometheus.CounterVec
	apiDuration        *prometheus.HistogramVec
	dbOpen             prometheus.Gauge
	dbIdle             prometheus.Gauge
}

func New() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		itemEdits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vesselcheck_item_edits_total",
			Help: "Item edits by resulting item status",
		}, []string{"status"}),
		validationFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vesselcheck_validation_failures_total",
			Help: "Validation rule failures reported on item edits",
		}, []string{"severity"}),
		transitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vesselcheck_workflow_transitions_total",
			Help: "Accepted workflow commands",
		}, []string{"step", "action"}),
		violations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vesselcheck_workflow_violations_total",
			Help: "Rejected workflow commands by failed precondition",
		}, []string{"action", "precondition"}),
		syncs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vesselcheck_sync_total",
			Help: "Sync reconciliations by outcome",
		}, []string{"outcome"}),
		analyses: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vesselcheck_analysis_duration_seconds",
			Help:    "AI analysis round trip",
			Buckets: prometheus.DefBuckets,
		}, []string{"outcome"}),
		scores: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "vesselcheck_compliance_score",
			Help:    "Compliance score after each scored mutation",
			Buckets: []float64{10, 20, 30, 40, 50, 60, 70, 80, 90, 100},
		}),
		checklistsByStatus: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "vesselcheck_checklists",
			Help: "Stored checklists by status",
		}, []string{"status"}),
		apiRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "vesselcheck_api_requests_total",
			Help: "Total number of API requests",
		}, []string{"method", "path", "status"}),
		apiDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "vesselcheck_api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		}, []string{"method", "path"}),
		dbOpen: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vesselcheck_db_connections_open",
			Help: "Open database connections",
		}),
		dbIdle: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "vesselcheck_db_connections_idle",
			Help: "Idle database connections",
		}),
	}
	m.registry.MustRegister(
		m.itemEdits, m.validationFailures, m.transitions, m.violations, m.syncs, m.analyses,
		m.scores, m.checklistsByStatus, m.apiRequests, m.apiDuration, m.dbOpen, m.dbIdle,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Registry exposes the underlying registry for tests and custom exporters.
func (m *Metrics) Registry() *prometheus.Registry {
	return m.registry
}

func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *Metrics) RecordItemEdit(status string, failures map[string]int) {
	if m == nil {
		return
	}
	m.itemEdits.WithLabelValues(status).Inc()
	for sev, n := range failures {
		m.validationFailures.WithLabelValues(sev).Add(float64(n))
	}
}

func (m *Metrics) RecordTransition(step, action string) {
	if m == nil {
		return
	}
	m.transitions.WithLabelValues(step, action).Inc()
}

func (m *Metrics) RecordViolation(action, precondition string) {
	if m == nil {
		return
	}
	m.violations.WithLabelValues(action, precondition).Inc()
}

// RecordSync counts one reconciliation: merged, created, conflict or failed.
func (m *Metrics) RecordSync(outcome string) {
	if m == nil {
		return
	}
	m.syncs.WithLabelValues(outcome).Inc()
}

func (m *Metrics) ObserveAnalysis(outcome string, seconds float64) {
	if m == nil {
		return
	}
	m.analyses.WithLabelValues(outcome).Observe(seconds)
}

func (m *Metrics) ObserveScore(score *int) {
	if m == nil || score == nil {
		return
	}
	m.scores.Observe(float64(*score))
}

func (m *Metrics) SetChecklistsByStatus(counts map[string]int) {
	if m == nil {
		return
	}
	m.checklistsByStatus.Reset()
	for status, n := range counts {
		m.checklistsByStatus.WithLabelValues(status).Set(float64(n))
	}
}

func (m *Metrics) RecordAPIRequest(method, path string, status int, seconds float64) {
	if m == nil {
		return
	}
	statusText := http.StatusText(status)
	if statusText == "" {
		statusText = fmt.Sprintf("%d", status)
	}
	m.apiRequests.WithLabelValues(method, path, statusText).Inc()
	m.apiDuration.WithLabelValues(method, path).Observe(seconds)
}

func (m *Metrics) UpdateDatabaseConnections(db *sql.DB) {
	if m == nil || db == nil {
		return
	}
	stats := db.Stats()
	m.dbOpen.Set(float64(stats.OpenConnections))
	m.dbIdle.Set(float64(stats.Idle))
}
