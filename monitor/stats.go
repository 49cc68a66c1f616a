package monitor

import "time"

// Trimmer is the minimal surface the statistics loop needs from a cache
// instance. objcache's cache[V] satisfies this structurally, so the
// monitor package never imports the generic cache type directly.
type Trimmer interface {
	Trim(percent int) int
	Count() int
}

const (
	defaultPollingInterval  = 20 * time.Second
	narrowedPollingInterval = 5 * time.Second
	widenedPollingInterval  = 30 * time.Second
)

// StatsConfig configures a StatsLoop. The Log*/Report* hooks let the owning
// package (cache) route observability through its own Logger/Metrics seams
// without this package importing those types directly — cache.Fields is a
// named map type, so a cache.Logger method value isn't directly assignable
// to a plain func(string, map[string]any); the owner wraps it in a closure
// instead, which keeps this package free of any import on cache and avoids
// the cycle that owning a Logger/Metrics interface here would create.
type StatsConfig struct {
	// PollingInterval is the idle cadence. <= 0 defaults to 20s.
	PollingInterval time.Duration
	// CacheMemoryLimitMB is the cache_memory_limit named in §4.5. <= 0
	// derives a default from RAM and pointer width.
	CacheMemoryLimitMB int64
	// CacheID is passed to Sizer.ApproxSizeBytes and to the metrics/log
	// side channel to distinguish multiple caches in one process.
	CacheID string

	LogDebug       func(msg string, fields map[string]any)
	LogWarn        func(msg string, fields map[string]any)
	ReportPressure func(name string, pct int)
	ReportTrim     func(before, trimmed int, dur time.Duration)
}

func (c StatsConfig) pollingInterval() time.Duration {
	if c.PollingInterval > 0 {
		return c.PollingInterval
	}
	return defaultPollingInterval
}

func (c StatsConfig) logDebug(msg string, fields map[string]any) {
	if c.LogDebug != nil {
		c.LogDebug(msg, fields)
	}
}

func (c StatsConfig) logWarn(msg string, fields map[string]any) {
	if c.LogWarn != nil {
		c.LogWarn(msg, fields)
	}
}

func (c StatsConfig) reportPressure(name string, pct int) {
	if c.ReportPressure != nil {
		c.ReportPressure(name, pct)
	}
}

func (c StatsConfig) reportTrim(before, trimmed int, dur time.Duration) {
	if c.ReportTrim != nil {
		c.ReportTrim(before, trimmed, dur)
	}
}

// StatsLoop is the periodic callback described in §4.5: every tick it
// samples both monitors, adjusts its own cadence, and trims the cache when
// pressure warrants it.
type StatsLoop struct {
	cb       *PeriodicCallback
	physical *PhysicalMonitor
	cacheMem *CacheMemoryMonitor

	trimmer Trimmer
	sizer   Sizer
	cfg     StatsConfig
}

// NewStatsLoop constructs a statistics loop. Call Start to begin ticking.
func NewStatsLoop(trimmer Trimmer, sizer Sizer, cfg StatsConfig) *StatsLoop {
	sl := &StatsLoop{
		physical: NewPhysicalMonitor(),
		cacheMem: NewCacheMemoryMonitor(cfg.CacheMemoryLimitMB),
		trimmer:  trimmer,
		sizer:    sizer,
		cfg:      cfg,
	}
	sl.cb = NewPeriodicCallback(cfg.pollingInterval(), sl.tick)
	return sl
}

func (sl *StatsLoop) Start() { sl.cb.Start() }
func (sl *StatsLoop) Stop()  { sl.cb.Stop() }

// Physical and CacheMemory expose the underlying monitors for tests and
// diagnostics.
func (sl *StatsLoop) Physical() *PhysicalMonitor       { return sl.physical }
func (sl *StatsLoop) CacheMemory() *CacheMemoryMonitor { return sl.cacheMem }

func (sl *StatsLoop) tick() {
	physPct := sl.physical.Sample()
	cachePct := sl.cacheMem.Sample(sl.sizer, sl.cfg.CacheID)
	sl.cfg.reportPressure("physical", int(physPct))
	sl.cfg.reportPressure("cache", int(cachePct))

	above := sl.physical.AboveHigh() || sl.cacheMem.AboveHigh()
	below := sl.physical.BelowLow() && sl.cacheMem.BelowLow()
	cur := sl.cb.Interval()
	switch {
	case above && cur != narrowedPollingInterval:
		sl.cb.SetIntervalInPlace(narrowedPollingInterval)
		cur = narrowedPollingInterval
	case !above && below && cur != widenedPollingInterval:
		sl.cb.SetIntervalInPlace(widenedPollingInterval)
		cur = widenedPollingInterval
	case !above && !below && cur != sl.cfg.pollingInterval():
		sl.cb.SetIntervalInPlace(sl.cfg.pollingInterval())
		cur = sl.cfg.pollingInterval()
	}

	percent := sl.physical.PercentToTrim(cur)
	if cp := sl.cacheMem.PercentToTrim(cur); cp > percent {
		percent = cp
	}

	sl.cfg.logDebug("monitor: tick", map[string]any{
		"physical_pct": physPct, "cache_pct": cachePct, "interval": cur.String(),
	})
	if percent <= 0 {
		return
	}

	before := sl.trimmer.Count()
	start := time.Now()
	trimmed := sl.trimmer.Trim(percent)
	dur := time.Since(start)

	sl.cfg.reportTrim(before, trimmed, dur)
	sl.cfg.logWarn("monitor: trim", map[string]any{
		"percent": percent, "before": before, "trimmed": trimmed, "duration_ms": dur.Milliseconds(),
	})
}
