package cache

import (
	"sync"
	"sync/atomic"
	"time"
)

// wheelSlot is the payload stored in one expiration-wheel page-table slot:
// the entry's absolute deadline (for the quick expiry test during flush)
// and the entry itself.
type wheelSlot[V any] struct {
	expiryNanos int64
	ent         *entry[V]
}

// wheelBucket is one of the wheel's 30 time-sliced buckets (§4.3).
type wheelBucket[V any] struct {
	mu          sync.Mutex
	pt          *pageTable[wheelSlot[V]]
	histogram   [histogramSlices]int32
	liveCount   int32
	blockReduce bool
}

// expirationWheel buckets entries by absolute deadline. A flush walks every
// bucket that holds live entries and tests each used slot's deadline; the
// per-bucket histogram is maintained but is not consulted to skip buckets.
type expirationWheel[V any] struct {
	buckets   [wheelBuckets]*wheelBucket[V]
	lastFlush atomic.Int64 // UnixNano of the last successful flush
}

func newExpirationWheel[V any]() *expirationWheel[V] {
	w := &expirationWheel[V]{}
	for i := range w.buckets {
		w.buckets[i] = &wheelBucket[V]{pt: newPageTable[wheelSlot[V]]()}
	}
	return w
}

// add links e into the wheel. It is a no-op if e has no finite expiry.
func (w *expirationWheel[V]) add(e *entry[V]) {
	if !e.hasFiniteExpiry() {
		return
	}
	deadline := e.absoluteExpiry()
	bi := bucketIndex(deadline)
	b := w.buckets[bi]

	b.mu.Lock()
	p, idx := b.pt.alloc()
	p.slots[idx].val = wheelSlot[V]{expiryNanos: deadline.UnixNano(), ent: e}
	b.histogram[histogramSlice(deadline)]++
	b.liveCount++
	b.mu.Unlock()

	e.expBucket = int8(bi)
	e.expHandle = newHandle(p.idx, idx)
}

// remove unlinks e from the wheel. It is a no-op if e is not linked.
func (w *expirationWheel[V]) remove(e *entry[V]) {
	if !e.expHandle.valid() {
		return
	}
	bi := e.expBucket
	b := w.buckets[bi]
	h := e.expHandle

	b.mu.Lock()
	p := b.pt.pages[h.page()]
	idx := h.slot()
	expiry := time.Unix(0, p.slots[idx].val.expiryNanos).UTC()
	b.histogram[histogramSlice(expiry)]--
	if b.histogram[histogramSlice(expiry)] < 0 {
		b.histogram[histogramSlice(expiry)] = 0
	}
	b.liveCount--
	b.pt.free(p, idx)
	shouldCompact := !b.blockReduce && b.pt.needsCompaction()
	if shouldCompact {
		w.compactBucket(b)
	}
	b.mu.Unlock()

	e.expBucket = -1
	e.expHandle = invalidHandle
}

// update re-links e after its deadline changes. If the new deadline falls
// in the same bucket the slot is overwritten in place; otherwise the entry
// is removed and re-added.
func (w *expirationWheel[V]) update(e *entry[V], newDeadline time.Time) {
	if !e.expHandle.valid() {
		w.add(e)
		return
	}
	newBucket := bucketIndex(newDeadline)
	if int(e.expBucket) == newBucket {
		b := w.buckets[newBucket]
		b.mu.Lock()
		p := b.pt.pages[e.expHandle.page()]
		idx := e.expHandle.slot()
		old := p.slots[idx].val.expiryNanos
		b.histogram[histogramSlice(time.Unix(0, old).UTC())]--
		b.histogram[histogramSlice(newDeadline)]++
		p.slots[idx].val.expiryNanos = newDeadline.UnixNano()
		b.mu.Unlock()
		return
	}
	w.remove(e)
	w.add(e)
}

// flush removes every entry whose deadline has elapsed, across all
// buckets, and invokes onExpired for each (outside any bucket lock). It is
// rate-limited to once per minFlushInterval, matching §4.3. gate, if
// non-nil, is toggled around the splice when the shard uses an insert
// block (§4.2/§4.3).
func (w *expirationWheel[V]) flush(now time.Time, gate *insertGate, onExpired func(*entry[V])) int {
	last := w.lastFlush.Load()
	if now.UnixNano()-last < int64(minFlushInterval) {
		return 0
	}
	if !w.lastFlush.CompareAndSwap(last, now.UnixNano()) {
		return 0 // another goroutine is already flushing
	}

	if gate != nil {
		gate.close()
		defer gate.open()
	}

	removed := 0
	for _, b := range w.buckets {
		expiredSlots := w.collectExpired(b, now)
		for _, ent := range expiredSlots {
			onExpired(ent)
			removed++
		}
	}
	return removed
}

// collectExpired walks one bucket under its lock, unlinking every slot
// whose deadline has passed, and returns their entries for the caller to
// process outside the lock.
func (w *expirationWheel[V]) collectExpired(b *wheelBucket[V], now time.Time) []*entry[V] {
	b.mu.Lock()
	if b.liveCount == 0 {
		b.mu.Unlock()
		return nil
	}
	var out []*entry[V]
	b.blockReduce = true
	for _, p := range b.pt.pages {
		if p.isVirgin {
			continue
		}
		for i := 1; i < pageSlots; i++ {
			s := &p.slots[i]
			if !s.used {
				continue
			}
			if s.val.expiryNanos > now.UnixNano() {
				continue
			}
			ent := s.val.ent
			if !ent.casState(AddedToCache, RemovingFromCache) {
				continue // lost the race with a concurrent remove/update
			}
			b.histogram[histogramSlice(time.Unix(0, s.val.expiryNanos).UTC())] = 0
			b.liveCount--
			b.pt.free(p, uint8(i))
			ent.expBucket = -1
			ent.expHandle = invalidHandle
			out = append(out, ent)
		}
	}
	b.blockReduce = false
	b.mu.Unlock()
	return out
}

// needsCompaction reports whether the page table has dropped below 50%
// occupancy, the trigger named in §4.3.
func (pt *pageTable[T]) needsCompaction() bool {
	allocated, used := pt.occupancy()
	return allocated > 0 && used*2 < allocated*(pageSlots-1)
}

func (w *expirationWheel[V]) compactBucket(b *wheelBucket[V]) {
	b.pt.compact(func(val wheelSlot[V], _ *page[wheelSlot[V]], _ uint8, to *page[wheelSlot[V]], toIdx uint8) {
		val.ent.expHandle = newHandle(to.idx, toIdx)
	})
}
