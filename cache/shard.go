package cache

import (
	"sync"
	"time"

	"github.com/hexshard/objcache/internal/util"
)

// insertGate is the per-shard manual-reset event described in §4.2: while
// closed, new inserts that would register with the usage ladder wait (up to
// insertGateWait) so the wheel can briefly quiesce admissions while it
// splices a batch of expired entries out of the shard.
type insertGate struct {
	mu     sync.Mutex
	isOpen bool
	ch     chan struct{}
}

func newInsertGate() *insertGate { return &insertGate{isOpen: true} }

func (g *insertGate) close() {
	g.mu.Lock()
	if g.isOpen {
		g.isOpen = false
		g.ch = make(chan struct{})
	}
	g.mu.Unlock()
}

func (g *insertGate) open() {
	g.mu.Lock()
	if !g.isOpen {
		g.isOpen = true
		close(g.ch)
		g.ch = nil
	}
	g.mu.Unlock()
}

// wait blocks until the gate opens or timeout elapses. A timeout is not an
// error: per §7, "proceed with the insert; at worst the wheel flushes a
// freshly-inserted entry unnecessarily".
func (g *insertGate) wait(timeout time.Duration) {
	g.mu.Lock()
	if g.isOpen {
		g.mu.Unlock()
		return
	}
	ch := g.ch
	g.mu.Unlock()

	select {
	case <-ch:
	case <-time.After(timeout):
	}
}

// shard is the cache's concurrency unit: an independent key->entry map, one
// expiration wheel, and one usage ladder, all reachable only through this
// shard's single mutex (§4.2, §5).
type shard[V any] struct {
	index int

	mu      sync.Mutex
	entries map[string]*entry[V]

	wheel  *expirationWheel[V]
	ladder *usageLadder[V]

	gate           *insertGate
	useInsertBlock bool

	logger  Logger
	metrics Metrics

	_            util.CacheLinePad // separates the mutex-guarded fields above from the atomics below
	hits, misses util.PaddedAtomicInt64
}

func newShard[V any](index int, logger Logger, metrics Metrics) *shard[V] {
	return &shard[V]{
		index:   index,
		entries: make(map[string]*entry[V]),
		wheel:   newExpirationWheel[V](),
		ladder:  newUsageLadder[V](),
		gate:    newInsertGate(),
		logger:  logger,
		metrics: metrics,
	}
}

// registerNew links a newly inserted entry into the wheel (if it has a
// finite expiry) and the ladder (if priority != NotRemovable and, when it
// also expires, its remaining lifetime is >= minLadderWindow), per §4.2
// step 3.
func (s *shard[V]) registerNew(e *entry[V], now time.Time) {
	s.wheel.add(e)
	if e.priority != NotRemovable {
		if !e.hasFiniteExpiry() || e.absoluteExpiry().Sub(now) >= minLadderWindow {
			s.ladder.add(e, now)
		}
	}
}

func (s *shard[V]) unregisterPartial(e *entry[V]) {
	s.wheel.remove(e)
	s.ladder.remove(e)
}

// waitForGateIfNeeded implements §4.2 step 1: if the shard is quiescing
// inserts and the candidate entry would track usage, wait (bounded).
func (s *shard[V]) waitForGateIfNeeded(pol policyLike) {
	if s.useInsertBlock && pol.priorityFor() != NotRemovable {
		s.gate.wait(insertGateWait)
	}
}

// policyLike is the minimal surface shard needs from a Policy[V] without
// taking on V as a type parameter for the gate-wait helper.
type policyLike interface{ priorityFor() Priority }

func (p Policy[V]) priorityFor() Priority { return p.Priority }

// addOrGetExisting implements §4.2's add_or_get_existing algorithm.
func (s *shard[V]) addOrGetExisting(key string, val V, pol Policy[V], now time.Time) (existingVal V, existingState EntryState, existed bool, added *entry[V]) {
	s.waitForGateIfNeeded(pol)

	s.mu.Lock()
	if cur, ok := s.entries[key]; ok {
		if !cur.isExpired(now) {
			existingVal, existingState, existed = cur.val, cur.getState(), true
			s.mu.Unlock()
			s.refreshSliding(cur, now)
			s.touchUsage(cur, now)
			return
		}
		// Stale: mark for deferred release and replace.
		cur.setState(RemovingFromCache)
		delete(s.entries, key)
		stale := cur

		ne := newEntry(key, val, pol, now)
		ne.setState(AddingToCache)
		s.entries[key] = ne
		s.mu.Unlock()

		s.registerNew(ne, now)
		if !ne.casState(AddingToCache, AddedToCache) {
			s.unregisterPartial(ne)
		}
		s.unregisterPartial(stale)
		stale.release(Expired, s.logger)
		s.metrics.Evict(Expired)

		added = ne
		s.reportSize()
		return
	}

	ne := newEntry(key, val, pol, now)
	ne.setState(AddingToCache)
	s.entries[key] = ne
	s.mu.Unlock()

	s.registerNew(ne, now)
	if !ne.casState(AddingToCache, AddedToCache) {
		s.unregisterPartial(ne)
	}
	added = ne
	s.reportSize()
	return
}

// set implements §4.2's set algorithm: unconditional replace.
func (s *shard[V]) set(key string, val V, pol Policy[V], now time.Time) *entry[V] {
	s.waitForGateIfNeeded(pol)

	s.mu.Lock()
	prior, hadPrior := s.entries[key]
	if hadPrior {
		prior.setState(RemovingFromCache)
	}
	ne := newEntry(key, val, pol, now)
	ne.setState(AddingToCache)
	s.entries[key] = ne
	s.mu.Unlock()

	s.registerNew(ne, now)
	if !ne.casState(AddingToCache, AddedToCache) {
		s.unregisterPartial(ne)
	}

	if hadPrior {
		s.unregisterPartial(prior)
		reason := Removed
		if prior.isExpired(now) {
			reason = Expired
		}
		prior.release(reason, s.logger)
		s.metrics.Evict(reason)
	}
	s.reportSize()
	return ne
}

// get implements §4.2's get algorithm.
func (s *shard[V]) get(key string, now time.Time) (val V, state EntryState, found bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		s.misses.Add(1)
		s.metrics.Miss()
		return
	}
	if e.isExpired(now) {
		e.setState(RemovingFromCache)
		delete(s.entries, key)
		s.mu.Unlock()

		s.unregisterPartial(e)
		e.release(Expired, s.logger)
		s.metrics.Evict(Expired)
		s.reportSize()
		s.misses.Add(1)
		s.metrics.Miss()
		return
	}
	val, state, found = e.val, e.getState(), true
	s.mu.Unlock()

	s.refreshSliding(e, now)
	s.touchUsage(e, now)
	s.hits.Add(1)
	s.metrics.Hit()
	return
}

// remove implements §4.2's remove algorithm.
func (s *shard[V]) remove(key string, reason RemovedReason) (val V, found bool) {
	s.mu.Lock()
	e, ok := s.entries[key]
	if !ok {
		s.mu.Unlock()
		return
	}
	e.setState(RemovingFromCache)
	delete(s.entries, key)
	val, found = e.val, true
	s.mu.Unlock()

	s.unregisterPartial(e)
	e.setState(RemovedFromCache)
	e.release(reason, s.logger)
	s.metrics.Evict(reason)
	s.reportSize()
	return
}

// contains is a read-only observer; unlike get it never mutates expiry or
// usage state.
func (s *shard[V]) contains(key string, now time.Time) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return ok && !e.isExpired(now)
}

func (s *shard[V]) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}

func (s *shard[V]) lookup(key string) (*entry[V], bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.entries[key]
	return e, ok
}

// reportSize pushes this shard's current resident entry count through the
// Metrics seam, following the teacher's practice of reporting size after
// every mutating operation rather than only on a timer.
func (s *shard[V]) reportSize() {
	s.metrics.Size(s.count(), s.index)
}

// refreshSliding re-anchors e's deadline to now+sliding, but only if the
// new deadline decreases or increases by at least minUpdateDelta (§4.2).
func (s *shard[V]) refreshSliding(e *entry[V], now time.Time) {
	if e.slidingExpiry <= 0 {
		return
	}
	newDeadline := now.Add(e.slidingExpiry)
	cur := e.absoluteExpiry()
	if newDeadline.Before(cur) || newDeadline.Sub(cur) >= minUpdateDelta {
		e.absExpiryNanos.Store(newDeadline.UnixNano())
		s.wheel.update(e, newDeadline)
	}
}

// touchUsage updates e's ladder position, debounced to at most once per
// correlatedRequestTimeout (§4.2, §4.4).
func (s *shard[V]) touchUsage(e *entry[V], now time.Time) {
	if e.useBucket == ladderNotTracked {
		return
	}
	last := e.lastUsageNanos.Load()
	if now.UnixNano()-last < int64(correlatedRequestTimeout) {
		return
	}
	if e.lastUsageNanos.CompareAndSwap(last, now.UnixNano()) {
		s.ladder.update(e, now)
	}
}

// runWheelFlush flushes expired entries from this shard's wheel, toggling
// the insert gate around the splice when the shard is configured to do so.
func (s *shard[V]) runWheelFlush(now time.Time) int {
	var gate *insertGate
	if s.useInsertBlock {
		gate = s.gate
	}
	return s.wheel.flush(now, gate, func(e *entry[V]) { s.finishExpire(e) })
}

func (s *shard[V]) finishExpire(e *entry[V]) {
	s.mu.Lock()
	if cur, ok := s.entries[e.key]; ok && cur == e {
		delete(s.entries, e.key)
	}
	s.mu.Unlock()

	s.ladder.remove(e)
	e.setState(RemovedFromCache)
	e.release(Expired, s.logger)
	s.metrics.Evict(Expired)
	s.reportSize()
}

func (s *shard[V]) evictFromLadder(e *entry[V]) {
	s.mu.Lock()
	if cur, ok := s.entries[e.key]; ok && cur == e {
		delete(s.entries, e.key)
	}
	s.mu.Unlock()

	s.wheel.remove(e)
	e.setState(RemovedFromCache)
	e.release(Evicted, s.logger)
	s.metrics.Evict(Evicted)
	s.reportSize()
}

// trim flushes expired entries, then evicts up to percent% of the
// remaining entries, rounded up to a whole entry, from the usage ladder's
// LRU tail (§4.1, §4.4).
func (s *shard[V]) trim(percent int, now time.Time) int {
	s.runWheelFlush(now)

	if percent <= 0 {
		return 0
	}
	n := s.count()
	if n == 0 {
		return 0
	}
	target := (n*percent + 99) / 100
	if target <= 0 {
		return 0
	}
	return s.ladder.flushUnderUsed(target, now, func(e *entry[V]) { s.evictFromLadder(e) })
}
