package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics holds the service collectors. A nil *Metrics is valid and records nothing,
// so components can be built without a registry in tests.
type Metrics struct {
	DocumentOps         *prometheus.CounterVec
	LockWait            prometheus.Histogram
	SnapshotsIngested   prometheus.Counter
	EventsAppended      *prometheus.CounterVec
	NotificationsTotal  *prometheus.CounterVec
	JanitorSweeps       prometheus.Counter
	JanitorPruned       prometheus.Counter
	AnalyticsRecomputes *prometheus.CounterVec
	StreamClients       prometheus.Gauge
}

// New creates the collectors and registers them with reg.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		DocumentOps: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petcare",
				Subsystem: "store",
				Name:      "operations_total",
				Help:      "Document store operations by operation and outcome",
			},
			[]string{"op", "outcome"},
		),
		LockWait: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: "petcare",
				Subsystem: "store",
				Name:      "lock_wait_seconds",
				Help:      "Time spent queued behind other operations on the same document",
				Buckets:   []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1},
			},
		),
		SnapshotsIngested: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "petcare",
				Subsystem: "ingest",
				Name:      "snapshots_total",
				Help:      "Sensor snapshots dispatched to detectors",
			},
		),
		EventsAppended: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petcare",
				Subsystem: "eventlog",
				Name:      "appended_total",
				Help:      "Events appended per log",
			},
			[]string{"log"},
		),
		NotificationsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petcare",
				Subsystem: "notifications",
				Name:      "total",
				Help:      "Notifications by outcome (recorded, suppressed)",
			},
			[]string{"outcome"},
		),
		JanitorSweeps: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "petcare",
				Subsystem: "retention",
				Name:      "sweeps_total",
				Help:      "Completed retention sweeps",
			},
		),
		JanitorPruned: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: "petcare",
				Subsystem: "retention",
				Name:      "pruned_entries_total",
				Help:      "Entries removed by retention sweeps",
			},
		),
		AnalyticsRecomputes: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: "petcare",
				Subsystem: "analytics",
				Name:      "recomputes_total",
				Help:      "Analysis recomputations by section and outcome",
			},
			[]string{"section", "outcome"},
		),
		StreamClients: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: "petcare",
				Subsystem: "stream",
				Name:      "clients",
				Help:      "Connected notification stream clients",
			},
		),
	}

	if reg != nil {
		reg.MustRegister(
			m.DocumentOps,
			m.LockWait,
			m.SnapshotsIngested,
			m.EventsAppended,
			m.NotificationsTotal,
			m.JanitorSweeps,
			m.JanitorPruned,
			m.AnalyticsRecomputes,
			m.StreamClients,
		)
	}
	return m
}

func (m *Metrics) DocumentOp(op string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.DocumentOps.WithLabelValues(op, outcome).Inc()
}

func (m *Metrics) ObserveLockWait(d time.Duration) {
	if m == nil {
		return
	}
	m.LockWait.Observe(d.Seconds())
}

func (m *Metrics) SnapshotIngested() {
	if m == nil {
		return
	}
	m.SnapshotsIngested.Inc()
}

func (m *Metrics) EventAppended(log string) {
	if m == nil {
		return
	}
	m.EventsAppended.WithLabelValues(log).Inc()
}

func (m *Metrics) Notification(recorded bool) {
	if m == nil {
		return
	}
	if recorded {
		m.NotificationsTotal.WithLabelValues("recorded").Inc()
		return
	}
	m.NotificationsTotal.WithLabelValues("suppressed").Inc()
}

func (m *Metrics) Sweep(pruned int) {
	if m == nil {
		return
	}
	m.JanitorSweeps.Inc()
	m.JanitorPruned.Add(float64(pruned))
}

func (m *Metrics) Recompute(section string, err error) {
	if m == nil {
		return
	}
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	m.AnalyticsRecomputes.WithLabelValues(section, outcome).Inc()
}

func (m *Metrics) StreamClientDelta(delta int) {
	if m == nil {
		return
	}
	m.StreamClients.Add(float64(delta))
}
