package cache

import "time"

// Metrics exposes cache-level observability hooks. A NoopMetrics
// implementation is used by default; plug metrics/prom.Adapter to export to
// Prometheus.
type Metrics interface {
	Hit()
	Miss()
	Evict(reason RemovedReason)
	Size(entries int, shard int)

	// Pressure reports a memory monitor's last sampled percentage. name is
	// "physical" or "cache".
	Pressure(name string, pct int)
	// TrimObserved reports one statistics-loop trimming pass.
	TrimObserved(before, trimmed int, dur time.Duration)
}

// NoopMetrics is a drop-in Metrics implementation that does nothing. It is
// safe for concurrent use and is the default when no observability backend
// is configured.
type NoopMetrics struct{}

func (NoopMetrics) Hit()                                        {}
func (NoopMetrics) Miss()                                       {}
func (NoopMetrics) Evict(RemovedReason)                          {}
func (NoopMetrics) Size(entries int, shard int)                  {}
func (NoopMetrics) Pressure(name string, pct int)                {}
func (NoopMetrics) TrimObserved(before, trimmed int, _ time.Duration) {}

var _ Metrics = NoopMetrics{}
