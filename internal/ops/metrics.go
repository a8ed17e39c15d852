package ops

import "github.com/prometheus/client_golang/prometheus"

// Metrics holds the workflow counters exported at /metrics. The workflow
// increments them directly; the ops server scrapes the backing registry.
type Metrics struct {
	// Requests counts finished link requests by outcome:
	// delivered, photos, cached, failed.
	Requests *prometheus.CounterVec

	// CacheHits counts links answered from the delivered-file cache.
	CacheHits prometheus.Counter

	// RelayTimeouts counts relayed uploads whose delivery never came back
	// within the configured bound.
	RelayTimeouts prometheus.Counter

	// UnmatchedDeliveries counts inbound media events that carried a
	// caption no registered waiter was waiting on.
	UnmatchedDeliveries prometheus.Counter

	reg *prometheus.Registry
}

// NewMetrics creates the metric set on a fresh prometheus registry.
// pending, when non-nil, is exported as the tikrelay_pending_waiters gauge.
func NewMetrics(pending func() int) *Metrics {
	reg := prometheus.NewRegistry()

	m := &Metrics{
		Requests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "tikrelay_requests_total",
			Help: "Finished link requests by outcome.",
		}, []string{"outcome"}),
		CacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tikrelay_cache_hits_total",
			Help: "Links answered from the delivered-file cache.",
		}),
		RelayTimeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tikrelay_relay_timeouts_total",
			Help: "Relayed uploads that timed out awaiting delivery.",
		}),
		UnmatchedDeliveries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tikrelay_unmatched_deliveries_total",
			Help: "Inbound media events with no matching waiter.",
		}),
		reg: reg,
	}

	reg.MustRegister(m.Requests, m.CacheHits, m.RelayTimeouts, m.UnmatchedDeliveries)

	if pending != nil {
		reg.MustRegister(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
			Name: "tikrelay_pending_waiters",
			Help: "Requests currently awaiting a relayed delivery.",
		}, func() float64 { return float64(pending()) }))
	}

	return m
}

// Registry exposes the backing prometheus registry for the /metrics handler.
func (m *Metrics) Registry() *prometheus.Registry { return m.reg }
