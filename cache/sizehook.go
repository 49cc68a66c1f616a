package cache

import "sync/atomic"

// SizeHook is the external size-accounting seam named in §9: a host that
// embeds objcache in a larger process can inject an accountant that
// receives the cache's own byte estimate. The flow is one-way: the
// cache-memory monitor's pressure is computed from that self-estimate
// alone, and nothing the host accounts for is read back.
//
// objcache never constructs a SizeHook implementation; it only provides the
// seam. ApproxSizeBytes calls UpdateCacheSize on every sample; nothing in
// this package calls ReleaseCache. Wiring a concrete implementation (a process-wide
// registry, a cgroup reader, ...) is the host's responsibility, per §1's
// exclusion of "the host service-locator seam ... We describe only the
// hook."
type SizeHook interface {
	// UpdateCacheSize reports the current approximate byte size the host
	// attributes to cacheID.
	UpdateCacheSize(bytes int64, cacheID string)
	// ReleaseCache tells the host cacheID is gone and any accounting for it
	// can be dropped.
	ReleaseCache(cacheID string)
}

// globalSizeHook is process-wide, matching §5's "accessed through an atomic
// compare-and-set-once pointer; a once-set, never-reset discipline."
var globalSizeHook atomic.Pointer[SizeHook]

// RegisterSizeHook sets the process-wide SizeHook exactly once. A second
// call returns ErrAlreadySet and leaves the existing hook untouched.
func RegisterSizeHook(h SizeHook) error {
	if h == nil {
		return assertOrPanic(ErrNilHook)
	}
	if !globalSizeHook.CompareAndSwap(nil, &h) {
		return ErrAlreadySet
	}
	return nil
}

// sizeHook returns the registered hook, or nil if none was ever set.
func sizeHook() SizeHook {
	p := globalSizeHook.Load()
	if p == nil {
		return nil
	}
	return *p
}
