package monitor

import (
	"math/bits"
	"time"
)

// Sizer is the minimal surface CacheMemoryMonitor needs from a cache
// instance: an approximate resident byte count, pushed through the
// cache's registered SizeHook as a side effect. objcache's cache[V]
// satisfies this structurally via ApproxSizeBytes.
type Sizer interface {
	ApproxSizeBytes(cacheID string) int64
}

const (
	mib = 1 << 20
	tib = 1 << 40
)

// CacheMemoryMonitor samples a cache's own approximate byte size against a
// configured or derived byte cap, per §4.5.
type CacheMemoryMonitor struct {
	base pressureBase

	capBytes int64 // 0 means "uncapped": Sample always reports 0 pressure
}

// NewCacheMemoryMonitor constructs a cache-memory monitor. limitMB, if > 0,
// is used verbatim as the byte cap (cache_memory_limit). If limitMB <= 0,
// a default cap is derived from total physical RAM and pointer width:
// 64-bit hosts get min(60% RAM, 1 TiB); 32-bit hosts get min(60% RAM, 800
// MiB) (1800 MiB for large-address-aware builds is not distinguishable at
// the Go runtime level, so the narrower default is used uniformly). If RAM
// cannot be sampled on this platform, the monitor is left uncapped and
// Sample always reports 0 pressure ("never trigger"), per §7's degrade
// rule.
func NewCacheMemoryMonitor(limitMB int64) *CacheMemoryMonitor {
	m := &CacheMemoryMonitor{}
	if limitMB > 0 {
		m.capBytes = limitMB * mib
	} else {
		m.capBytes = defaultCacheMemoryCap()
	}
	if m.capBytes > 0 {
		m.base.setWatermarks(100, 80)
	} else {
		m.base.setWatermarks(99, 97) // never triggers: Sample never records above 0
	}
	return m
}

func defaultCacheMemoryCap() int64 {
	total, _, ok := newPhysicalSampler().sample()
	if !ok || total == 0 {
		return 0
	}
	sixtyPct := int64(total) * 60 / 100
	if bits.UintSize == 32 {
		const cap32 = 800 * mib
		if sixtyPct > cap32 {
			return cap32
		}
		return sixtyPct
	}
	if sixtyPct > tib {
		return tib
	}
	return sixtyPct
}

// Sample estimates sizer's byte size under cacheID, records it as a
// percentage of the configured cap, and returns that percentage (0 if
// uncapped).
func (m *CacheMemoryMonitor) Sample(sizer Sizer, cacheID string) int32 {
	if m.capBytes <= 0 {
		m.base.record(0)
		return 0
	}
	bytes := sizer.ApproxSizeBytes(cacheID)
	pct := int32(bytes * 100 / m.capBytes)
	if pct > 100 {
		pct = 100
	}
	m.base.record(pct)
	return pct
}

func (m *CacheMemoryMonitor) AboveHigh() bool { return m.base.AboveHigh() }
func (m *CacheMemoryMonitor) BelowLow() bool  { return m.base.BelowLow() }
func (m *CacheMemoryMonitor) Last() int32     { return m.base.last() }
func (m *CacheMemoryMonitor) CapBytes() int64 { return m.capBytes }

// PercentToTrim mirrors PhysicalMonitor.PercentToTrim: 0 below the high
// watermark, else a target amortizing a full pass over roughly five
// minutes, clamped to [10,50].
func (m *CacheMemoryMonitor) PercentToTrim(pollingInterval time.Duration) int {
	if !m.base.AboveHigh() {
		return 0
	}
	const fullPassTarget = 5 * time.Minute
	pct := int(float64(pollingInterval) / float64(fullPassTarget) * 100)
	if pct < 10 {
		pct = 10
	}
	if pct > 50 {
		pct = 50
	}
	return pct
}
