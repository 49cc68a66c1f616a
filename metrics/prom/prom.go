// Package prom implements cache.Metrics on top of
// github.com/prometheus/client_golang.
package prom

import (
	"strconv"
	"time"

	"github.com/hexshard/objcache/cache"
	"github.com/prometheus/client_golang/prometheus"
)

// Adapter implements cache.Metrics. Safe for concurrent use: every
// Prometheus metric type is goroutine-safe.
type Adapter struct {
	hits   prometheus.Counter
	misses prometheus.Counter
	evicts *prometheus.CounterVec

	entries  *prometheus.GaugeVec
	pressure *prometheus.GaugeVec

	trimDuration prometheus.Histogram
	trimBefore   prometheus.Counter
	trimmed      prometheus.Counter
}

// New constructs a Prometheus metrics adapter.
//   - reg:         registry to register metrics with (nil => prometheus.DefaultRegisterer)
//   - ns, sub:      Prometheus namespace and subsystem
//   - constLabels:  static labels applied to all metrics (may be nil)
func New(reg prometheus.Registerer, ns, sub string, constLabels prometheus.Labels) *Adapter {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	a := &Adapter{
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "hits_total",
			Help: "Cache hits", ConstLabels: constLabels,
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "misses_total",
			Help: "Cache misses", ConstLabels: constLabels,
		}),
		evicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "evictions_total",
			Help: "Cache entry removals by reason", ConstLabels: constLabels,
		}, []string{"reason"}),
		entries: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "size_entries",
			Help: "Number of resident entries, by shard index", ConstLabels: constLabels,
		}, []string{"shard"}),
		pressure: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: ns, Subsystem: sub, Name: "pressure_percent",
			Help: "Last sampled pressure percentage by monitor name", ConstLabels: constLabels,
		}, []string{"monitor"}),
		trimDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: ns, Subsystem: sub, Name: "trim_duration_seconds",
			Help: "Duration of statistics-loop trim passes", ConstLabels: constLabels,
			Buckets: prometheus.DefBuckets,
		}),
		trimBefore: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "trim_before_total",
			Help: "Sum of entry counts observed before each trim pass", ConstLabels: constLabels,
		}),
		trimmed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: ns, Subsystem: sub, Name: "trimmed_total",
			Help: "Sum of entries removed by trim passes", ConstLabels: constLabels,
		}),
	}
	reg.MustRegister(a.hits, a.misses, a.evicts, a.entries, a.pressure,
		a.trimDuration, a.trimBefore, a.trimmed)
	return a
}

func (a *Adapter) Hit()  { a.hits.Inc() }
func (a *Adapter) Miss() { a.misses.Inc() }

func (a *Adapter) Evict(reason cache.RemovedReason) {
	a.evicts.WithLabelValues(reason.String()).Inc()
}

func (a *Adapter) Size(entries int, shard int) {
	a.entries.WithLabelValues(strconv.Itoa(shard)).Set(float64(entries))
}

func (a *Adapter) Pressure(name string, pct int) {
	a.pressure.WithLabelValues(name).Set(float64(pct))
}

func (a *Adapter) TrimObserved(before, trimmed int, dur time.Duration) {
	a.trimBefore.Add(float64(before))
	a.trimmed.Add(float64(trimmed))
	a.trimDuration.Observe(dur.Seconds())
}

var _ cache.Metrics = (*Adapter)(nil)
