package dashboard

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Metrics exposes Prometheus collectors for selection cycles and the view cache.
type Metrics struct {
	cycles        *prometheus.CounterVec
	cycleDuration *prometheus.HistogramVec
	cacheHits     *prometheus.CounterVec
	cacheMisses   *prometheus.CounterVec
	buildDuration prometheus.Histogram
}

// NewMetrics registers the dashboard collectors. Collectors that are already
// registered are reused so the constructor can be called more than once.
func NewMetrics(reg prometheus.Registerer) (*Metrics, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	m := &Metrics{
		cycles: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "covidboard_cycles_total",
			Help: "Selection cycles partitioned by cause and outcome.",
		}, []string{"cause", "outcome"}),
		cycleDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "covidboard_cycle_duration_seconds",
			Help:    "Time spent applying an event and deriving the view.",
			Buckets: prometheus.DefBuckets,
		}, []string{"cause"}),
		cacheHits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "covidboard_view_cache_hits_total",
			Help: "View cache hits by metric.",
		}, []string{"metric"}),
		cacheMisses: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "covidboard_view_cache_miss_total",
			Help: "View cache misses by metric.",
		}, []string{"metric"}),
		buildDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "covidboard_view_build_duration_seconds",
			Help:    "Duration required to derive a view model.",
			Buckets: prometheus.DefBuckets,
		}),
	}

	if err := register(reg, m.cycles, func(c prometheus.Collector) { m.cycles = c.(*prometheus.CounterVec) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.cycleDuration, func(c prometheus.Collector) { m.cycleDuration = c.(*prometheus.HistogramVec) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.cacheHits, func(c prometheus.Collector) { m.cacheHits = c.(*prometheus.CounterVec) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.cacheMisses, func(c prometheus.Collector) { m.cacheMisses = c.(*prometheus.CounterVec) }); err != nil {
		return nil, err
	}
	if err := register(reg, m.buildDuration, func(c prometheus.Collector) { m.buildDuration = c.(prometheus.Histogram) }); err != nil {
		return nil, err
	}
	return m, nil
}

func register(reg prometheus.Registerer, c prometheus.Collector, reuse func(prometheus.Collector)) error {
	if err := reg.Register(c); err != nil {
		var already prometheus.AlreadyRegisteredError
		if errors.As(err, &already) {
			reuse(already.ExistingCollector)
			return nil
		}
		return err
	}
	return nil
}

// ObserveCycle implements CycleObserver.
func (m *Metrics) ObserveCycle(cause Cause, outcome string, elapsed time.Duration) {
	if m == nil {
		return
	}
	m.cycles.WithLabelValues(string(cause), outcome).Inc()
	m.cycleDuration.WithLabelValues(string(cause)).Observe(elapsed.Seconds())
}

func (m *Metrics) recordCacheHit(metric MetricKind) {
	if m == nil {
		return
	}
	m.cacheHits.WithLabelValues(metric.Key()).Inc()
}

func (m *Metrics) recordCacheMiss(metric MetricKind) {
	if m == nil {
		return
	}
	m.cacheMisses.WithLabelValues(metric.Key()).Inc()
}

func (m *Metrics) observeBuild(d time.Duration) {
	if m == nil {
		return
	}
	m.buildDuration.Observe(d.Seconds())
}
