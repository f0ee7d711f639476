package observability

import (
	"time"

	"github.com/boddenberg/ledger-bfa/internal/domain"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	dto "github.com/prometheus/client_model/go"
)

// Trigger dispositions recorded by IncrTrigger.
const (
	TriggerStarted   = "started"
	TriggerQueued    = "queued"
	TriggerCoalesced = "coalesced"
	TriggerRejected  = "rejected"
)

// Metrics holds all Prometheus metrics for the BFA.
type Metrics struct {
	// Registry is the Prometheus registry that owns these metrics.
	// Exposed so the /metrics endpoint can use it.
	Registry *prometheus.Registry

	requestDuration *prometheus.HistogramVec
	fetchDuration   prometheus.Histogram
	fetches         *prometheus.CounterVec
	triggers        *prometheus.CounterVec
	staleDiscarded  prometheus.Counter
	recordsDropped  *prometheus.CounterVec
	externalErrors  *prometheus.CounterVec
	snapshotSize    prometheus.Gauge
	activeEngines   prometheus.Gauge
	eventsPublished *prometheus.CounterVec
}

// NewMetrics creates a dedicated Prometheus registry and registers all
// application metrics in it. Using a private registry avoids "duplicate
// collector" panics when NewMetrics is called more than once (e.g. in tests).
func NewMetrics() *Metrics {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)

	return &Metrics{
		Registry: reg,

		requestDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "ledger_request_duration_seconds",
				Help:    "Duration of HTTP handlers by route.",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route"},
		),
		fetchDuration: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "ledger_fetch_duration_seconds",
				Help:    "Duration of remote transaction fetches.",
				Buckets: prometheus.DefBuckets,
			},
		),
		fetches: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_fetches_total",
				Help: "Completed fetches by outcome.",
			},
			[]string{"outcome"},
		),
		triggers: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_triggers_total",
				Help: "Refresh triggers by disposition.",
			},
			[]string{"disposition"},
		),
		staleDiscarded: factory.NewCounter(
			prometheus.CounterOpts{
				Name: "ledger_stale_results_discarded_total",
				Help: "Fetch results dropped because a newer fetch was started or applied.",
			},
		),
		recordsDropped: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_records_dropped_total",
				Help: "Raw records excluded by the normalizer, by reason.",
			},
			[]string{"reason"},
		),
		externalErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_external_errors_total",
				Help: "Total errors from external services.",
			},
			[]string{"service"},
		),
		snapshotSize: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_snapshot_transactions",
				Help: "Transactions in the most recently published snapshot.",
			},
		),
		activeEngines: factory.NewGauge(
			prometheus.GaugeOpts{
				Name: "ledger_active_engines",
				Help: "Refresh coordinators currently held for live sessions.",
			},
		),
		eventsPublished: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "ledger_events_published_total",
				Help: "Snapshot events pushed to the broker, by result.",
			},
			[]string{"result"},
		),
	}
}

// RecordRequestDuration records the duration of an HTTP route.
func (m *Metrics) RecordRequestDuration(route string, d time.Duration) {
	m.requestDuration.WithLabelValues(route).Observe(d.Seconds())
}

// RecordFetch records a completed fetch and its outcome (success, failure, stale).
func (m *Metrics) RecordFetch(outcome string, d time.Duration) {
	m.fetchDuration.Observe(d.Seconds())
	m.fetches.WithLabelValues(outcome).Inc()
}

// IncrTrigger counts a trigger by disposition.
func (m *Metrics) IncrTrigger(disposition string) {
	m.triggers.WithLabelValues(disposition).Inc()
}

// IncrStaleDiscarded counts a discarded stale result.
func (m *Metrics) IncrStaleDiscarded() {
	m.staleDiscarded.Inc()
}

// AddDropped adds dropped-record counts by reason.
func (m *Metrics) AddDropped(reasons map[string]int) {
	for reason, n := range reasons {
		m.recordsDropped.WithLabelValues(reason).Add(float64(n))
	}
}

// IncrExternalError increments the external error counter.
func (m *Metrics) IncrExternalError(service string) {
	m.externalErrors.WithLabelValues(service).Inc()
}

// SetSnapshotSize records the size of the latest published snapshot.
func (m *Metrics) SetSnapshotSize(n int) {
	m.snapshotSize.Set(float64(n))
}

// SetActiveEngines records the number of live coordinators.
func (m *Metrics) SetActiveEngines(n int) {
	m.activeEngines.Set(float64(n))
}

// IncrEventPublished counts a broker publish attempt.
func (m *Metrics) IncrEventPublished(ok bool) {
	result := "ok"
	if !ok {
		result = "error"
	}
	m.eventsPublished.WithLabelValues(result).Inc()
}

// GetEngineSnapshot returns a snapshot of refresh metrics suitable for the
// GET /v1/metrics/engine endpoint.
func (m *Metrics) GetEngineSnapshot() *domain.EngineMetrics {
	succeeded := getCounterValue(m.fetches, "success")
	failed := getCounterValue(m.fetches, "failure")

	failureRate := float64(0)
	if total := succeeded + failed; total > 0 {
		failureRate = failed / total
	}

	return &domain.EngineMetrics{
		FetchesSucceeded:  succeeded,
		FetchesFailed:     failed,
		StaleDiscarded:    metricValue(m.staleDiscarded),
		TriggersStarted:   getCounterValue(m.triggers, TriggerStarted),
		TriggersQueued:    getCounterValue(m.triggers, TriggerQueued),
		TriggersCoalesced: getCounterValue(m.triggers, TriggerCoalesced),
		TriggersRejected:  getCounterValue(m.triggers, TriggerRejected),
		RecordsDropped:    sumCounterVec(m.recordsDropped),
		FailureRate:       failureRate,
		ActiveEngines:     metricValue(m.activeEngines),
	}
}

// getCounterValue extracts the current float64 value from a CounterVec for a given label.
func getCounterValue(cv *prometheus.CounterVec, label string) float64 {
	return metricValue(cv.WithLabelValues(label))
}

// metricValue reads a counter or gauge back through the client model.
func metricValue(c prometheus.Metric) float64 {
	m := &dto.Metric{}
	if err := c.Write(m); err != nil {
		return 0
	}
	switch {
	case m.Counter != nil && m.Counter.Value != nil:
		return *m.Counter.Value
	case m.Gauge != nil && m.Gauge.Value != nil:
		return *m.Gauge.Value
	}
	return 0
}

// sumCounterVec adds up every child of a CounterVec.
func sumCounterVec(cv *prometheus.CounterVec) float64 {
	ch := make(chan prometheus.Metric, 16)
	go func() {
		cv.Collect(ch)
		close(ch)
	}()
	var total float64
	for metric := range ch {
		total += metricValue(metric)
	}
	return total
}
