package cache

// Cache is the public surface a caller gets back from New/DefaultCache.
// Returning this interface rather than the unexported *cache[V] type avoids
// an unexported-return lint, matching the teacher's own cache/api.go.
type Cache[V any] interface {
	// AddOrGetExisting implements §4.1's add_or_get_existing.
	AddOrGetExisting(key string, val V, policy Policy[V], releaseUnused bool) (existing V, state EntryState, ok bool, err error)
	// Set implements §4.1's set: unconditional replace.
	Set(key string, val V, policy Policy[V]) error
	// Get implements §4.1's get.
	Get(key string) (val V, state EntryState, found bool)
	// Remove implements §4.1's remove.
	Remove(key string, reason RemovedReason) (val V, found bool)
	// Contains implements §4.1's contains.
	Contains(key string) bool
	// Count implements §4.1's count.
	Count() int
	// GetValues implements §4.1's get_values.
	GetValues(keys []string) map[string]V
	// Trim implements §4.1's trim.
	Trim(percent int) int
	// CreateCacheEntryChangeMonitor implements §4.1/§4.5.
	CreateCacheEntryChangeMonitor(keys []string) (*CacheEntryChangeMonitor, error)
	// Close stops every background task owned by the cache. Idempotent.
	Close()
	// ApproxSizeBytes estimates the cache's own resident byte size.
	ApproxSizeBytes(cacheID string) int64
	// Capabilities reports the capability flags implemented by this package.
	Capabilities() Capabilities
}

var _ Cache[any] = (*cache[any])(nil)
