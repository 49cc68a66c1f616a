package monitor

import (
	"sync"
	"testing"
	"time"
)

type fakeTrimmer struct {
	mu      sync.Mutex
	count   int
	percent int // last percent passed to Trim
	trimmed int // value Trim returns
}

func (f *fakeTrimmer) Trim(percent int) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.percent = percent
	return f.trimmed
}

func (f *fakeTrimmer) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.count
}

func TestStatsLoop_TickReportsPressureForBothMonitors(t *testing.T) {
	t.Parallel()

	var reported []string
	trimmer := &fakeTrimmer{}
	sl := NewStatsLoop(trimmer, fakeSizer{}, StatsConfig{
		ReportPressure: func(name string, pct int) { reported = append(reported, name) },
	})
	sl.physical.sampler = fakeSampler{ok: false} // degrade to 0, deterministic

	sl.tick()

	if len(reported) != 2 || reported[0] != "physical" || reported[1] != "cache" {
		t.Fatalf("reported pressure names = %v, want [physical cache]", reported)
	}
}

func TestStatsLoop_TickTrimsWhenAboveHighWatermark(t *testing.T) {
	t.Parallel()

	trimmer := &fakeTrimmer{count: 100, trimmed: 7}
	var gotTrim struct{ before, trimmed int }
	sl := NewStatsLoop(trimmer, fakeSizer{bytes: 1000}, StatsConfig{
		CacheMemoryLimitMB: 0,
		ReportTrim: func(before, trimmed int, _ time.Duration) {
			gotTrim.before, gotTrim.trimmed = before, trimmed
		},
	})
	// Force the physical monitor above its high watermark deterministically.
	sl.physical.sampler = fakeSampler{total: 100, free: 0, ok: true}
	sl.physical.base.setWatermarks(50, 10)

	sl.tick()

	if gotTrim.before != 100 || gotTrim.trimmed != 7 {
		t.Fatalf("ReportTrim got (%d, %d), want (100, 7)", gotTrim.before, gotTrim.trimmed)
	}
	if trimmer.percent <= 0 {
		t.Fatal("Trim must be called with a positive percent once pressure crosses the high watermark")
	}
}

func TestStatsLoop_TickSkipsTrimBelowWatermark(t *testing.T) {
	t.Parallel()

	trimmer := &fakeTrimmer{count: 100}
	sl := NewStatsLoop(trimmer, fakeSizer{}, StatsConfig{})
	sl.physical.sampler = fakeSampler{total: 100, free: 99, ok: true} // 1% used
	sl.physical.base.setWatermarks(95, 86)

	sl.tick()

	if trimmer.percent != 0 {
		t.Fatalf("Trim should not be invoked below the high watermark, got percent=%d", trimmer.percent)
	}
}

func TestStatsLoop_TickNarrowsCadenceAboveHighWatermark(t *testing.T) {
	t.Parallel()

	trimmer := &fakeTrimmer{}
	sl := NewStatsLoop(trimmer, fakeSizer{}, StatsConfig{})
	sl.physical.sampler = fakeSampler{total: 100, free: 0, ok: true}
	sl.physical.base.setWatermarks(50, 10)

	sl.tick()

	if got := sl.cb.Interval(); got != narrowedPollingInterval {
		t.Fatalf("Interval() = %v, want the narrowed %v cadence", got, narrowedPollingInterval)
	}
}

func TestStatsLoop_TickWidensCadenceBelowLowWatermark(t *testing.T) {
	t.Parallel()

	trimmer := &fakeTrimmer{}
	sl := NewStatsLoop(trimmer, fakeSizer{}, StatsConfig{})
	sl.cb.SetIntervalInPlace(narrowedPollingInterval) // simulate having been narrowed
	sl.physical.sampler = fakeSampler{total: 100, free: 99, ok: true}
	sl.physical.base.setWatermarks(95, 86)

	sl.tick()

	if got := sl.cb.Interval(); got != widenedPollingInterval {
		t.Fatalf("Interval() = %v, want the widened %v cadence", got, widenedPollingInterval)
	}
}

func TestStatsConfig_HooksDefaultToNoOps(t *testing.T) {
	t.Parallel()

	var cfg StatsConfig
	// None of these must panic with every hook left nil.
	cfg.logDebug("x", nil)
	cfg.logWarn("x", nil)
	cfg.reportPressure("x", 0)
	cfg.reportTrim(0, 0, 0)
	if got := cfg.pollingInterval(); got != defaultPollingInterval {
		t.Fatalf("pollingInterval() default = %v, want %v", got, defaultPollingInterval)
	}
}
