package monitor

import "time"

// physicalSampler abstracts the syscall used to read host memory load. ok is
// false when the platform doesn't support the query; the monitor degrades
// to reporting 0 pressure in that case (§7: "Resource errors ... monitor
// treats pressure as 0, trimming is disabled").
type physicalSampler interface {
	sample() (totalBytes, freeBytes uint64, ok bool)
}

const (
	gib = 1 << 30
)

// highWatermarkForRAM picks a high watermark from a table keyed on total
// RAM, per §4.5's "95-99%": machines with less memory get a lower ceiling
// since the same absolute headroom represents a larger fraction of RAM.
func highWatermarkForRAM(totalBytes uint64) int32 {
	switch {
	case totalBytes <= 1*gib:
		return 95
	case totalBytes <= 4*gib:
		return 96
	case totalBytes <= 16*gib:
		return 97
	case totalBytes <= 64*gib:
		return 98
	default:
		return 99
	}
}

// PhysicalMonitor samples global memory load. It implements the trimming
// trigger described in §4.5.
type PhysicalMonitor struct {
	base    pressureBase
	sampler physicalSampler

	totalBytes uint64
}

// NewPhysicalMonitor constructs a physical-memory monitor using the
// platform's native sampler (unix.Sysinfo on Linux; a stub reporting
// unsupported everywhere else).
func NewPhysicalMonitor() *PhysicalMonitor {
	m := &PhysicalMonitor{sampler: newPhysicalSampler()}
	m.base.setWatermarks(95, 95-9)
	return m
}

// Sample reads current memory load and records it. It returns the sampled
// percentage (0 if the platform query is unsupported).
func (m *PhysicalMonitor) Sample() int32 {
	total, free, ok := m.sampler.sample()
	if !ok || total == 0 {
		m.base.record(0)
		return 0
	}
	m.totalBytes = total
	high := highWatermarkForRAM(total)
	m.base.setWatermarks(high, high-9)

	used := total - free
	pct := int32(used * 100 / total)
	m.base.record(pct)
	return pct
}

func (m *PhysicalMonitor) AboveHigh() bool { return m.base.AboveHigh() }
func (m *PhysicalMonitor) BelowLow() bool  { return m.base.BelowLow() }
func (m *PhysicalMonitor) Last() int32     { return m.base.last() }
func (m *PhysicalMonitor) Watermarks() (high, low int32) {
	return m.base.Watermarks()
}

// PercentToTrim returns 0 when pressure is below the high watermark;
// otherwise a percentage sized to amortize to one full pass over the cache
// in roughly five minutes at the given polling cadence, clamped to [10,50]
// (§4.5).
func (m *PhysicalMonitor) PercentToTrim(pollingInterval time.Duration) int {
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
