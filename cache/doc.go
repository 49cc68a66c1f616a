// Package cache implements an in-process object cache bounded by time,
// change-notification dependencies, and memory pressure.
//
// # Design
//
// A Cache hash-shards its key space across shards sized to
// runtime.NumCPU(). Each shard owns a key->entry map, one expiration wheel
// (a 30-bucket ring covering a 600-second cycle) and one usage ladder (an
// approximate-LRU structure used for pressure-driven trimming). Entries
// support absolute or sliding expiration, at most one of a removal or
// update callback, and dependency on external ChangeMonitors.
//
// New starts a background statistics loop (see package monitor) that
// samples physical and cache-local memory pressure and calls Trim when
// pressure crosses a high watermark. Close stops it. Set
// Config.DisableStatsLoop to opt out and drive Trim externally instead.
//
// # Basic usage
//
//	c := cache.New[string](cache.Config{})
//	c.Set("greeting", "hello", cache.Policy[string]{})
//	v, _, ok := c.Get("greeting")
//
// # With expiration
//
//	c.Set("session:42", tok, cache.Policy[string]{
//		SlidingExpiration: 30 * time.Minute,
//	})
//
// # With an update callback
//
//	c.Set("config", cfg, cache.Policy[Config]{
//		AbsoluteExpiration: time.Now().Add(time.Minute),
//		UpdateCallback: func(key string, reason cache.RemovedReason) (Config, cache.Policy[Config], bool) {
//			fresh, err := reload(key)
//			if err != nil {
//				return Config{}, cache.Policy[Config]{}, false
//			}
//			return fresh, cache.Policy[Config]{AbsoluteExpiration: time.Now().Add(time.Minute)}, true
//		},
//	})
package cache
