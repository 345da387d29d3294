package persistence

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/roach88/feedstore/internal/store"
)

// Metrics are the Facade's Prometheus collectors.
type Metrics struct {
	OperationsTotal       *prometheus.CounterVec
	SnapshotWritesTotal   *prometheus.CounterVec
	SnapshotBytes         prometheus.Gauge
	SnapshotSeconds       prometheus.Histogram
	ActiveBackend         *prometheus.GaugeVec
	QuarantinedBlobsTotal prometheus.Counter
	UserCacheLookupsTotal *prometheus.CounterVec
}

// NewMetrics registers the Facade's collectors with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	factory := promauto.With(reg)
	return &Metrics{
		OperationsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedstore_operations_total",
			Help: "Cumulative number of Facade operations, by operation and outcome.",
		}, []string{"op", "status"}),
		SnapshotWritesTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedstore_snapshot_writes_total",
			Help: "Cumulative number of snapshot writes, by backend and outcome.",
		}, []string{"backend", "status"}),
		SnapshotBytes: factory.NewGauge(prometheus.GaugeOpts{
			Name: "feedstore_snapshot_bytes",
			Help: "Encoded size of the most recently written snapshot.",
		}),
		SnapshotSeconds: factory.NewHistogram(prometheus.HistogramOpts{
			Name:    "feedstore_snapshot_duration_seconds",
			Help:    "Duration of export, encode and save for one snapshot.",
			Buckets: prometheus.ExponentialBuckets(0.0005, 2, 14),
		}),
		ActiveBackend: factory.NewGaugeVec(prometheus.GaugeOpts{
			Name: "feedstore_active_backend",
			Help: "1 for the backend serving operations, 0 otherwise.",
		}, []string{"backend"}),
		QuarantinedBlobsTotal: factory.NewCounter(prometheus.CounterOpts{
			Name: "feedstore_quarantined_snapshots_total",
			Help: "Cumulative number of undecodable snapshots moved to quarantine.",
		}),
		UserCacheLookupsTotal: factory.NewCounterVec(prometheus.CounterOpts{
			Name: "feedstore_user_cache_lookups_total",
			Help: "User-by-id cache lookups, by result.",
		}, []string{"result"}),
	}
}

const (
	statusOK       = "ok"
	statusError    = "error"
	statusNotFound = "not_found"
)

func (m *Metrics) observeOp(op string, err error) {
	status := statusOK
	if err != nil {
		status = statusError
		if code := store.CodeOf(err); code != "" {
			status = string(code)
		}
	}
	m.OperationsTotal.WithLabelValues(op, status).Inc()
}

func (m *Metrics) setActive(kind store.Kind) {
	for _, k := range []store.Kind{store.KindRelational, store.KindFallback} {
		v := 0.0
		if k == kind {
			v = 1
		}
		m.ActiveBackend.WithLabelValues(k.String()).Set(v)
	}
}

func (m *Metrics) observeLookup(op string, found bool, err error) {
	if err == nil && !found {
		m.OperationsTotal.WithLabelValues(op, statusNotFound).Inc()
		return
	}
	m.observeOp(op, err)
}
