package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Outcome labels for captures_total.
const (
	OutcomeSuccess  = "success"
	OutcomeFailure  = "failure"
	OutcomeCacheHit = "cache_hit"
)

// Metrics holds the pipeline's Prometheus collectors. A nil *Metrics is
// valid and records nothing, so instrumentation stays optional.
type Metrics struct {
	reg             prometheus.Registerer
	capturesTotal   *prometheus.CounterVec
	captureDuration prometheus.Histogram
	retriesTotal    prometheus.Counter
	cacheEntries    prometheus.Gauge
	queueInFlight   prometheus.GaugeFunc
	queueWaiting    prometheus.GaugeFunc
}

// Gauges are read live from the owning components instead of being pushed.
type queueStats interface {
	InFlight() int
	Waiting() int
}

// New creates and registers the capture collectors. Queue gauges are
// attached separately with WatchQueue once the queue exists.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		reg: reg,
		capturesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "portrait_captures_total",
			Help: "Finished capture requests by outcome.",
		}, []string{"outcome"}),
		captureDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "portrait_capture_duration_seconds",
			Help:    "End-to-end capture duration.",
			Buckets: prometheus.DefBuckets,
		}),
		retriesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "portrait_capture_retries_total",
			Help: "Capture attempts beyond the first.",
		}),
		cacheEntries: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "portrait_cache_entries",
			Help: "Current capture cache size.",
		}),
	}
	reg.MustRegister(m.capturesTotal, m.captureDuration, m.retriesTotal, m.cacheEntries)
	return m
}

// WatchQueue registers live gauges over the admission queue.
func (m *Metrics) WatchQueue(q queueStats) {
	if m == nil {
		return
	}
	m.queueInFlight = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "portrait_queue_in_flight",
		Help: "Admission slots currently held.",
	}, func() float64 { return float64(q.InFlight()) })
	m.queueWaiting = prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Name: "portrait_queue_waiting",
		Help: "Callers blocked waiting for an admission slot.",
	}, func() float64 { return float64(q.Waiting()) })
	m.reg.MustRegister(m.queueInFlight, m.queueWaiting)
}

// ObserveCapture records one finished request.
func (m *Metrics) ObserveCapture(outcome string, d time.Duration, attempts int) {
	if m == nil {
		return
	}
	m.capturesTotal.WithLabelValues(outcome).Inc()
	m.captureDuration.Observe(d.Seconds())
	if attempts > 1 {
		m.retriesTotal.Add(float64(attempts - 1))
	}
}

// SetCacheSize updates the cache size gauge.
func (m *Metrics) SetCacheSize(n int) {
	if m == nil {
		return
	}
	m.cacheEntries.Set(float64(n))
}
