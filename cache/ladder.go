package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// ladderSlot is the payload stored in one usage-ladder page-table slot: the
// entry itself, its intrusive MRU/LRU list links, and the instant it joined
// the ladder (used to decide whether it is "seasoned" during eviction).
type ladderSlot[V any] struct {
	ent        *entry[V]
	prev, next handle
	addedNanos int64
}

// usageLadder approximates LRU with a single active bucket (§4.4): every
// tracked entry lives in one intrusive doubly-linked list ordered
// most-recently-used to least, backed by the same page-table layout as the
// expiration wheel. Entries with Priority == NotRemovable are never linked
// in (their useBucket stays ladderNotTracked).
type usageLadder[V any] struct {
	mu sync.Mutex
	pt *pageTable[ladderSlot[V]]

	mru, lru handle // head (most recently used), tail (least recently used)
	count    int

	flushing atomic.Bool // single in-flight flag for flushUnderUsed
}

func newUsageLadder[V any]() *usageLadder[V] {
	return &usageLadder[V]{pt: newPageTable[ladderSlot[V]]()}
}

func (l *usageLadder[V]) slotAt(h handle) *ladderSlot[V] {
	p := l.pt.pages[h.page()]
	return &p.slots[h.slot()].val
}

// pushFront links h at the MRU end of the list.
func (l *usageLadder[V]) pushFront(h handle) {
	s := l.slotAt(h)
	s.prev = invalidHandle
	s.next = l.mru
	if l.mru.valid() {
		l.slotAt(l.mru).prev = h
	} else {
		l.lru = h
	}
	l.mru = h
}

// unlink removes h from wherever it sits in the list.
func (l *usageLadder[V]) unlink(h handle) {
	s := l.slotAt(h)
	if s.prev.valid() {
		l.slotAt(s.prev).next = s.next
	} else {
		l.mru = s.next
	}
	if s.next.valid() {
		l.slotAt(s.next).prev = s.prev
	} else {
		l.lru = s.prev
	}
	s.prev, s.next = invalidHandle, invalidHandle
}

// add links e into the ladder at the MRU end. No-op for NotRemovable
// priority entries, which are never tracked (§3, §4.4).
func (l *usageLadder[V]) add(e *entry[V], now time.Time) {
	if e.priority == NotRemovable {
		return
	}
	l.mu.Lock()
	p, idx := l.pt.alloc()
	h := newHandle(p.idx, idx)
	p.slots[idx].val = ladderSlot[V]{ent: e, addedNanos: now.UnixNano()}
	l.pushFront(h)
	l.count++
	l.mu.Unlock()

	e.useBucket = 0
	e.useHandle = h
}

// remove unlinks e from the ladder. No-op if e is not tracked.
func (l *usageLadder[V]) remove(e *entry[V]) {
	if e.useBucket == ladderNotTracked || !e.useHandle.valid() {
		return
	}
	l.mu.Lock()
	h := e.useHandle
	l.unlink(h)
	p := l.pt.pages[h.page()]
	l.pt.free(p, h.slot())
	l.count--
	l.mu.Unlock()

	e.useBucket = ladderNotTracked
	e.useHandle = invalidHandle
}

// update moves e to the MRU end, recording a fresh touch. It leaves
// addedNanos untouched: seasoning is measured from when an entry first
// joined the ladder, not from its most recent touch.
func (l *usageLadder[V]) update(e *entry[V], now time.Time) {
	if e.useBucket == ladderNotTracked || !e.useHandle.valid() {
		return
	}
	l.mu.Lock()
	h := e.useHandle
	if l.mru == h {
		l.mu.Unlock()
		return
	}
	l.unlink(h)
	l.pushFront(h)
	l.mu.Unlock()
}

// flushUnderUsed evicts entries from the LRU tail until target entries have
// been removed from the ladder or ladderFlushCap is hit, whichever comes
// first (§4.4). The first pass only considers "seasoned" entries — those
// that have sat on the ladder at least newAddInterval — so entries added
// moments ago by a cold-start burst aren't punished before anything has had
// a chance to touch them; it stops at the first unseasoned entry found at
// the LRU tail. A second pass evicts anything if the target is still unmet.
// Only one flush runs at a time per ladder.
func (l *usageLadder[V]) flushUnderUsed(target int, now time.Time, onEvict func(*entry[V])) int {
	if target <= 0 {
		return 0
	}
	if target > ladderFlushCap {
		target = ladderFlushCap
	}
	if !l.flushing.CompareAndSwap(false, true) {
		return 0
	}
	defer l.flushing.Store(false)

	evicted := 0
	evicted += l.sweep(target-evicted, now, true, onEvict)
	if evicted < target {
		evicted += l.sweep(target-evicted, now, false, onEvict)
	}
	return evicted
}

func (l *usageLadder[V]) sweep(remaining int, now time.Time, seasonedOnly bool, onEvict func(*entry[V])) int {
	evicted := 0
	for evicted < remaining && evicted < ladderFlushCap {
		l.mu.Lock()
		h := l.lru
		if !h.valid() {
			l.mu.Unlock()
			break
		}
		s := l.slotAt(h)
		if seasonedOnly && now.UnixNano()-s.addedNanos < int64(newAddInterval) {
			l.mu.Unlock()
			// LRU tail is unseasoned: the pass ends here. Seasoned entries
			// that update moved ahead of it are not reached by this pass.
			break
		}
		ent := s.ent
		l.unlink(h)
		p := l.pt.pages[h.page()]
		l.pt.free(p, h.slot())
		l.count--
		l.mu.Unlock()

		ent.useBucket = ladderNotTracked
		ent.useHandle = invalidHandle
		onEvict(ent)
		evicted++
	}
	return evicted
}
