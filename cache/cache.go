package cache

import (
	"io"
	"runtime"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hexshard/objcache/internal/util"
	"github.com/hexshard/objcache/monitor"
)

// Config configures a Cache. The zero value is valid: it yields a cache
// sized to runtime.NumCPU() shards, a NopLogger, and NoopMetrics.
type Config struct {
	// Shards overrides the shard count. <= 0 means runtime.NumCPU().
	Shards int
	// Logger receives structured log lines. nil defaults to NopLogger.
	Logger Logger
	// Metrics receives observability callbacks. nil defaults to NoopMetrics.
	Metrics Metrics
	// UseInsertBlock enables the per-shard insert-block gate described in
	// §4.2: while a wheel flush is splicing expired entries out of a shard,
	// new inserts that would register with the usage ladder wait (bounded)
	// for the flush to finish.
	UseInsertBlock bool

	// DisableStatsLoop skips starting the background statistics loop
	// (physical + cache-memory monitors driving periodic trims). Tests and
	// short-lived caches that want no background goroutines set this.
	DisableStatsLoop bool
	// StatsPollingInterval is the statistics loop's idle cadence. <= 0
	// defaults to 20s.
	StatsPollingInterval time.Duration
	// CacheMemoryLimitMB bounds the cache-memory monitor. <= 0 derives a
	// default from total RAM and pointer width.
	CacheMemoryLimitMB int64
	// CacheID distinguishes this cache in logs, metrics, and the size hook
	// when a process runs more than one.
	CacheID string
}

func (c Config) shardCount() int {
	if c.Shards > 0 {
		return c.Shards
	}
	return runtime.NumCPU()
}

func (c Config) logger() Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return NopLogger{}
}

func (c Config) metrics() Metrics {
	if c.Metrics != nil {
		return c.Metrics
	}
	return NoopMetrics{}
}

// cache hash-shards the key space across a fixed array of shards and
// exposes the public surface described in §4.1.
type cache[V any] struct {
	shards []*shard[V]
	logger Logger
	metric Metrics
	stats  *monitor.StatsLoop

	closed    atomic.Bool
	closeOnce sync.Once
}

// New constructs a Cache. It never returns an error and never panics: every
// Config field has a default for its zero or non-positive value, so no
// Config is rejected.
func New[V any](cfg Config) Cache[V] {
	n := cfg.shardCount()
	if n <= 0 {
		n = 1
	}
	logger := cfg.logger()
	metric := cfg.metrics()
	c := &cache[V]{
		shards: make([]*shard[V], n),
		logger: logger,
		metric: metric,
	}
	for i := range c.shards {
		c.shards[i] = newShard[V](i, logger, metric)
		c.shards[i].useInsertBlock = cfg.UseInsertBlock
	}
	if !cfg.DisableStatsLoop {
		c.stats = monitor.NewStatsLoop(c, c, monitor.StatsConfig{
			PollingInterval:    cfg.StatsPollingInterval,
			CacheMemoryLimitMB: cfg.CacheMemoryLimitMB,
			CacheID:            cfg.CacheID,
			LogDebug:           func(msg string, f map[string]any) { logger.Debug(msg, Fields(f)) },
			LogWarn:            func(msg string, f map[string]any) { logger.Warn(msg, Fields(f)) },
			ReportPressure:     metric.Pressure,
			ReportTrim:         metric.TrimObserved,
		})
		c.stats.Start()
	}
	return c
}

func (c *cache[V]) shardFor(key string) *shard[V] {
	return c.shards[util.ShardIndex(key, len(c.shards))]
}

// AddOrGetExisting implements §4.1's add_or_get_existing. If no live entry
// exists for key, val is inserted under policy and the returned ok is
// false. If a live entry already exists, its current value/state are
// returned and ok is true; releaseUnused controls whether the caller's
// losing val is released in that case, per §4.1: "the caller supplies a
// flag choosing whether to release the unused new value". Release is a
// no-op unless val implements io.Closer.
func (c *cache[V]) AddOrGetExisting(key string, val V, policy Policy[V], releaseUnused bool) (existing V, state EntryState, ok bool, err error) {
	if err = c.checkWritable(key, policy); err != nil {
		return
	}
	now := time.Now().UTC()
	if policy.UpdateCallback == nil {
		existing, state, ok, _ = c.shardFor(key).addOrGetExisting(key, val, policy, now)
	} else {
		existing, state, ok, _ = c.shardFor(key).addOrGetExisting(key, val, realEntryPolicy(policy), now)
		if !ok {
			c.installSentinel(key, policy, now)
		}
	}
	if !ok {
		c.wireChangeMonitors(key, policy.ChangeMonitors)
	} else if releaseUnused {
		releaseValue(val)
	}
	return
}

// Set implements §4.1's set: unconditional replace.
func (c *cache[V]) Set(key string, val V, policy Policy[V]) error {
	if err := c.checkWritable(key, policy); err != nil {
		return err
	}
	now := time.Now().UTC()
	if policy.UpdateCallback == nil {
		c.shardFor(key).set(key, val, policy, now)
	} else {
		c.shardFor(key).set(key, val, realEntryPolicy(policy), now)
		c.installSentinel(key, policy, now)
	}
	c.wireChangeMonitors(key, policy.ChangeMonitors)
	return nil
}

// wireChangeMonitors registers key's removal, with reason
// ChangeMonitorChanged, as the callback for every monitor the entry depends
// on (§6 "change_monitors"). Mirrors installSentinel's pattern of wiring an
// external trigger to Remove right after the entry that depends on it is
// inserted.
func (c *cache[V]) wireChangeMonitors(key string, monitors []ChangeMonitor) {
	for _, m := range monitors {
		m.NotifyOnChanged(func() { c.Remove(key, ChangeMonitorChanged) })
	}
}

// releaseValue closes val if it implements io.Closer, and is a no-op
// otherwise. objcache never takes ownership of caller values (§3), so this
// is the only release mechanism it can offer generically.
func releaseValue[V any](val V) {
	if closer, ok := any(val).(io.Closer); ok {
		_ = closer.Close()
	}
}

// realEntryPolicy strips the caller's expiration and callbacks from policy,
// producing the policy actually applied to the real half of an
// update-sentinel pair: NotRemovable, never-expiring (§3).
func realEntryPolicy[V any](policy Policy[V]) Policy[V] {
	return Policy[V]{
		Priority:       NotRemovable,
		ChangeMonitors: policy.ChangeMonitors,
	}
}

// Get implements §4.1's get.
func (c *cache[V]) Get(key string) (val V, state EntryState, found bool) {
	if c.closed.Load() || key == "" {
		return
	}
	return c.shardFor(key).get(key, time.Now().UTC())
}

// Remove implements §4.1's remove.
func (c *cache[V]) Remove(key string, reason RemovedReason) (val V, found bool) {
	if c.closed.Load() || key == "" {
		return
	}
	val, found = c.shardFor(key).remove(key, reason)
	c.shardFor(sentinelKey(key)).remove(sentinelKey(key), reason)
	return
}

// Contains implements §4.1's contains.
func (c *cache[V]) Contains(key string) bool {
	if c.closed.Load() || key == "" {
		return false
	}
	return c.shardFor(key).contains(key, time.Now().UTC())
}

// Count implements §4.1's count: the sum of all shards' live entry counts,
// including sentinel entries.
func (c *cache[V]) Count() int {
	total := 0
	for _, s := range c.shards {
		total += s.count()
	}
	return total
}

// GetValues implements §4.1's get_values.
func (c *cache[V]) GetValues(keys []string) map[string]V {
	out := make(map[string]V, len(keys))
	for _, k := range keys {
		if v, _, ok := c.Get(k); ok {
			out[k] = v
		}
	}
	return out
}

// Trim implements §4.1's trim: evict up to percent% of entries from each
// shard's ladder, after flushing expired entries.
func (c *cache[V]) Trim(percent int) int {
	if c.closed.Load() {
		return 0
	}
	now := time.Now().UTC()
	total := 0
	for _, s := range c.shards {
		total += s.trim(percent, now)
	}
	return total
}

// CreateCacheEntryChangeMonitor implements §4.1/§4.5: a composite monitor
// over keys that fires once any of them leaves AddedToCache.
func (c *cache[V]) CreateCacheEntryChangeMonitor(keys []string) (*CacheEntryChangeMonitor, error) {
	if len(keys) == 0 {
		return nil, assertOrPanic(ErrEmptyKey)
	}
	liveKeys := make([]string, 0, len(keys))
	entries := make([]*entry[V], 0, len(keys))
	created := make([]time.Time, 0, len(keys))
	latest := time.Time{}
	for _, k := range keys {
		s := c.shardFor(k)
		e, ok := s.lookup(k)
		if !ok {
			continue
		}
		liveKeys = append(liveKeys, k)
		entries = append(entries, e)
		created = append(created, e.createdUTC)
		if e.createdUTC.After(latest) {
			latest = e.createdUTC
		}
	}

	m := &CacheEntryChangeMonitor{
		keys:         keys,
		uniqueID:     buildCompositeID(liveKeys, created),
		lastModified: latest,
	}
	for _, e := range entries {
		e.addDependent(m)
	}
	m.unregister = func() {
		for _, e := range entries {
			e.removeDependent(m)
		}
	}
	return m, nil
}

func (c *cache[V]) checkWritable(key string, policy Policy[V]) error {
	if c.closed.Load() {
		for _, m := range policy.ChangeMonitors {
			m.Dispose()
		}
		return ErrClosed
	}
	if key == "" {
		return assertOrPanic(ErrEmptyKey)
	}
	if err := policy.validate(); err != nil {
		return assertOrPanic(err)
	}
	return nil
}

func sentinelKey(realKey string) string { return sentinelKeyPrefix + realKey }

// installSentinel implements the second half of the update-sentinel pair
// from §3: an auxiliary sentinel entry keyed sentinelKeyPrefix+key, carrying
// the real expiry. The real entry (NotRemovable, never-expire) has already
// been inserted by the caller via realEntryPolicy. When the sentinel
// expires, its removal callback runs the update callback and either
// refreshes the real entry or removes it.
func (c *cache[V]) installSentinel(key string, policy Policy[V], now time.Time) {
	deadline := policy.absoluteDeadline(now)

	if cur, ok := c.shardFor(key).lookup(key); ok {
		cur.mu.Lock()
		cur.pairKey = sentinelKey(key)
		cur.mu.Unlock()
	}

	sk := sentinelKey(key)
	sentinelPolicy := Policy[V]{
		AbsoluteExpiration: deadline,
		Priority:           NotRemovable,
		RemovedCallback: func(_ string, _ V, reason RemovedReason) {
			c.fireUpdateCallback(key, policy.UpdateCallback, reason)
		},
	}
	var zero V
	sentShard := c.shardFor(sk)
	sentShard.set(sk, zero, sentinelPolicy, now)
	if e, ok := sentShard.lookup(sk); ok {
		e.mu.Lock()
		e.isSentinel = true
		e.pairKey = key
		e.mu.Unlock()
	}
}

func (c *cache[V]) fireUpdateCallback(key string, cb UpdateCallback[V], reason RemovedReason) {
	if cb == nil || reason == Disposing {
		return
	}
	val, policy, ok := cb(key, reason)
	if !ok {
		c.Remove(key, reason)
		return
	}
	policy.UpdateCallback = cb
	_ = c.Set(key, val, policy)
}

// Close stops every background task owned by the cache: the statistics loop
// and its periodic callback goroutine, joined via monitor.StatsLoop.Stop.
// Close is idempotent. Removal callbacks are not fired on Close: entries are
// simply abandoned, matching §7's "never with reason Disposing in the
// default configuration".
func (c *cache[V]) Close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		if c.stats != nil {
			c.stats.Stop()
		}
	})
}

// ApproxSizeBytes estimates the cache's own resident byte size as
// count * a fixed per-entry overhead estimate, and reports it to the
// registered SizeHook (if any) under cacheID. Used by
// monitor.CacheMemoryMonitor, which treats objcache as a Sizer via this
// method rather than reaching into shard internals.
func (c *cache[V]) ApproxSizeBytes(cacheID string) int64 {
	const perEntryEstimate = 64
	bytes := int64(c.Count()) * perEntryEstimate
	if h := sizeHook(); h != nil {
		h.UpdateCacheSize(bytes, cacheID)
	}
	return bytes
}

// Capabilities satisfies the cache[V] receiver declared in reason.go.
