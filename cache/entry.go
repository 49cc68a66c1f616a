package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// sentinelKeyPrefix prefixes the auxiliary entry of an update-sentinel pair
// (see §3 "Update-sentinel pair").
const sentinelKeyPrefix = "OnUpdateSentinel"

// entry holds one cached key/value plus the metadata, state, and back-links
// into its shard's wheel and ladder described in §3. The state field
// monotonically advances through the EntryState machine; every advancement
// is a single CAS so exactly one actor performs it (§4.7).
type entry[V any] struct {
	key string
	val V

	createdUTC time.Time
	// absExpiryNanos stores the effective absolute deadline as UTC
	// UnixNano. It is read and written outside the shard lock when the
	// sliding-expiration debounce lets a Get re-anchor it (§4.2), so it is
	// atomic rather than a plain time.Time field.
	absExpiryNanos atomic.Int64
	slidingExpiry  time.Duration
	priority       Priority

	state atomic.Int32 // EntryState

	// expBucket/expHandle: back-link into the owning shard's expiration
	// wheel. expBucket is -1 when expHandle is invalid.
	expBucket int8
	expHandle handle

	// useBucket/useHandle: back-link into the owning shard's usage ladder.
	// useBucket is ladderNotTracked (255) when the entry is not tracked
	// (priority == NotRemovable, or too short-lived to be worth tracking).
	useBucket uint8
	useHandle handle

	// lastUsageNanos debounces ladder Update calls (§4.4): skipped unless
	// >= 1s has elapsed since the previous update for this entry. Atomic
	// for the same reason as absExpiryNanos.
	lastUsageNanos atomic.Int64

	removedCallback func(key string, val V, reason RemovedReason)
	updateCallback  UpdateCallback[V]

	// mu guards dependents, which grows under concurrent
	// CreateCacheEntryChangeMonitor calls and shrinks under Dispose; both
	// happen outside the shard's entries lock.
	mu         sync.Mutex
	dependents []dependentMonitor

	// sentinel plumbing: isSentinel marks the auxiliary entry of an
	// update-sentinel pair; pairKey points at its counterpart (the real
	// entry's sentinel key, or the sentinel's real key).
	isSentinel bool
	pairKey    string

	released atomic.Bool // guards "removal callback fires at most once"
}

const ladderNotTracked uint8 = 255

func newEntry[V any](key string, val V, pol Policy[V], now time.Time) *entry[V] {
	e := &entry[V]{
		key:           key,
		val:           val,
		createdUTC:    now,
		slidingExpiry: pol.SlidingExpiration,
		priority:      pol.Priority,
		expBucket:     -1,
		useBucket:     ladderNotTracked,
	}
	e.absExpiryNanos.Store(pol.absoluteDeadline(now).UnixNano())
	if pol.RemovedCallback != nil {
		e.removedCallback = pol.RemovedCallback
	}
	e.updateCallback = pol.UpdateCallback
	return e
}

func (e *entry[V]) absoluteExpiry() time.Time {
	return time.Unix(0, e.absExpiryNanos.Load()).UTC()
}

func (e *entry[V]) hasFiniteExpiry() bool {
	return e.absExpiryNanos.Load() < NeverExpires.UnixNano()
}

func (e *entry[V]) isExpired(now time.Time) bool {
	return e.hasFiniteExpiry() && now.After(e.absoluteExpiry())
}

func (e *entry[V]) getState() EntryState { return EntryState(e.state.Load()) }

// casState performs the one legal transition from 'from' to 'to'. Only the
// actor that wins the CAS may proceed with the corresponding side effects.
func (e *entry[V]) casState(from, to EntryState) bool {
	return e.state.CompareAndSwap(int32(from), int32(to))
}

func (e *entry[V]) setState(to EntryState) { e.state.Store(int32(to)) }

// addDependent registers m to be notified when this entry leaves
// AddedToCache. Safe to call concurrently with removal: if the entry has
// already released, m is notified immediately instead of being queued.
func (e *entry[V]) addDependent(m dependentMonitor) {
	e.mu.Lock()
	if e.released.Load() {
		e.mu.Unlock()
		m.notifyEntryChanged(e.key, e.createdUTC)
		return
	}
	e.dependents = append(e.dependents, m)
	e.mu.Unlock()
}

func (e *entry[V]) removeDependent(m dependentMonitor) {
	e.mu.Lock()
	defer e.mu.Unlock()
	for i, d := range e.dependents {
		if d == m {
			e.dependents = append(e.dependents[:i], e.dependents[i+1:]...)
			return
		}
	}
}

// release fires the removal callback at most once, with the given reason,
// and notifies every dependent monitor. cache.go Close does not release
// entries, so teardown never invokes a callback with reason Disposing.
func (e *entry[V]) release(reason RemovedReason, logger Logger) {
	if !e.released.CompareAndSwap(false, true) {
		return
	}
	e.setState(Closed)

	e.mu.Lock()
	deps := e.dependents
	e.dependents = nil
	e.mu.Unlock()
	for _, d := range deps {
		d.notifyEntryChanged(e.key, e.createdUTC)
	}

	if e.removedCallback == nil {
		return
	}
	defer func() {
		if r := recover(); r != nil && logger != nil {
			logger.Error("cache: removal callback panicked", Fields{"key": e.key, "panic": r})
		}
	}()
	e.removedCallback(e.key, e.val, reason)
}
