package cache

import "sync"

// defaultCache backs DefaultCache: a lazily-created, process-wide cache of
// opaque values, matching §9's "Singleton 'default cache' ... Model as lazy
// process-wide state with a guarded initialiser." Kept to V=any since a
// process-wide singleton cannot itself be parameterized per call site.
var (
	defaultCacheOnce sync.Once
	defaultCacheInst Cache[any]
)

// DefaultCache returns the process-wide default cache, creating it on first
// use under a guarded initializer. Every call in the process observes the
// same instance.
func DefaultCache() Cache[any] {
	defaultCacheOnce.Do(func() {
		defaultCacheInst = New[any](Config{})
	})
	return defaultCacheInst
}
