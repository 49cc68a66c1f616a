package cache

// pageSlots is the number of slots per page, including the header at index
// 0 (so 127 usable data slots per page) — the layout described for both the
// expiration wheel (§4.3) and the usage ladder (§4.4).
const pageSlots = 128

// slot holds one data payload, or (when unused) the index of the next free
// slot in its page's free chain.
type slot[T any] struct {
	used bool
	free uint8 // free-chain successor; 0 = end of chain
	val  T
}

// page is one page of a pageTable: a fixed array of slots (slot 0 is the
// reserved header and never holds data), free-list bookkeeping in the
// freeCount/freeHead fields, and free-entry-list links so a pageTable can
// find the next page with room in O(1).
type page[T any] struct {
	idx       int
	slots     [pageSlots]slot[T]
	freeCount int // usable data slots currently free
	freeHead  uint8
	isVirgin  bool

	inFreeList bool
	prev, next *page[T]
}

// pageTable is a growable array of pages plus two free lists: virgin pages
// (never initialized, or returned once every slot has been freed) and the
// free-entry list (initialized pages with at least one free slot), matching
// §4.3's "free-page list" / "free-entry list". alloc/free are O(1);
// occupancy and compact walk every page.
type pageTable[T any] struct {
	pages  []*page[T]
	virgin []*page[T]

	feHead, feTail *page[T]
}

func newPageTable[T any]() *pageTable[T] { return &pageTable[T]{} }

// grow appends max(10, min(cur+340, 2*cur)) new virgin pages, matching the
// wheel/ladder page-array growth rule in §4.3.
func (pt *pageTable[T]) grow() {
	cur := len(pt.pages)
	add := 10
	if cur > 0 {
		add = cur + 340
		if d := 2 * cur; d < add {
			add = d
		}
		if add < 10 {
			add = 10
		}
	}
	for i := 0; i < add; i++ {
		p := &page[T]{idx: len(pt.pages), isVirgin: true}
		pt.pages = append(pt.pages, p)
		pt.virgin = append(pt.virgin, p)
	}
}

func (pt *pageTable[T]) popVirgin() *page[T] {
	if len(pt.virgin) == 0 {
		pt.grow()
	}
	n := len(pt.virgin) - 1
	p := pt.virgin[n]
	pt.virgin = pt.virgin[:n]
	return p
}

func (p *page[T]) initialize() {
	p.isVirgin = false
	p.freeCount = pageSlots - 1
	for i := 1; i < pageSlots; i++ {
		next := uint8(0)
		if i+1 < pageSlots {
			next = uint8(i + 1)
		}
		p.slots[i] = slot[T]{free: next}
	}
	p.freeHead = 1
}

func (pt *pageTable[T]) pushFreeList(p *page[T]) {
	if p.inFreeList {
		return
	}
	p.inFreeList = true
	p.prev = pt.feTail
	p.next = nil
	if pt.feTail != nil {
		pt.feTail.next = p
	} else {
		pt.feHead = p
	}
	pt.feTail = p
}

func (pt *pageTable[T]) removeFreeList(p *page[T]) {
	if !p.inFreeList {
		return
	}
	p.inFreeList = false
	if p.prev != nil {
		p.prev.next = p.next
	} else {
		pt.feHead = p.next
	}
	if p.next != nil {
		p.next.prev = p.prev
	} else {
		pt.feTail = p.prev
	}
	p.prev, p.next = nil, nil
}

// alloc returns a page and slot index for a fresh entry. The caller must
// set slot.val; alloc only reserves the slot.
func (pt *pageTable[T]) alloc() (*page[T], uint8) {
	p := pt.feHead
	if p == nil {
		p = pt.popVirgin()
		p.initialize()
		pt.pushFreeList(p)
	}
	idx := p.freeHead
	s := &p.slots[idx]
	p.freeHead = s.free
	s.used = true
	p.freeCount--
	if p.freeCount == 0 {
		pt.removeFreeList(p)
	}
	return p, idx
}

// free releases slot idx of p. If p becomes completely empty it is returned
// to the virgin pool immediately, per §4.3's "if the page is now all-free,
// release it back to the free-page list".
func (pt *pageTable[T]) free(p *page[T], idx uint8) {
	s := &p.slots[idx]
	var zero T
	s.used = false
	s.val = zero
	wasFull := p.freeCount == 0
	s.free = p.freeHead
	p.freeHead = idx
	p.freeCount++
	if wasFull {
		pt.pushFreeList(p)
	}
	if p.freeCount == pageSlots-1 {
		pt.removeFreeList(p)
		p.isVirgin = true
		pt.virgin = append(pt.virgin, p)
	}
}

// occupancy returns the number of pages currently carved (initialized
// and not fully empty/virgin) and the total used slots among them, used to
// decide whether compaction is worthwhile (§4.3: "≥50% occupancy is the
// trigger to start compacting" — read as "below 50%").
func (pt *pageTable[T]) occupancy() (allocatedPages, usedSlots int) {
	for _, p := range pt.pages {
		if p.isVirgin {
			continue
		}
		allocatedPages++
		usedSlots += (pageSlots - 1) - p.freeCount
	}
	return
}

// compact migrates used slots out of underused pages into earlier pages
// with room, then returns fully-drained pages to the virgin pool. onMove is
// called for every migrated slot so the owner (wheel/ladder) can rewrite
// the entry's back-link.
func (pt *pageTable[T]) compact(onMove func(val T, fromPage *page[T], fromIdx uint8, toPage *page[T], toIdx uint8)) {
	allocated, used := pt.occupancy()
	if allocated == 0 || used*2 >= allocated*(pageSlots-1) {
		return // at or above 50% occupancy: not worth compacting
	}

	// Walk from the highest-index allocated page backward, migrating its
	// used slots into the first earlier page (lowest index) with room.
	for hi := len(pt.pages) - 1; hi >= 0; hi-- {
		from := pt.pages[hi]
		if from.isVirgin {
			continue
		}
		for slotIdx := 1; slotIdx < pageSlots; slotIdx++ {
			s := &from.slots[slotIdx]
			if !s.used {
				continue
			}
			to := pt.findEarlierRoom(from.idx)
			if to == nil {
				continue // no earlier page has room; leave this slot in place
			}
			val := s.val
			pt.free(from, uint8(slotIdx))
			toSlot, newIdx := pt.allocInto(to)
			toSlot.val = val
			onMove(val, from, uint8(slotIdx), to, newIdx)
		}
	}
}

// findEarlierRoom returns a page with idx < before that has a free slot, or
// nil. The free-entry list is small in practice (pages with room), so a
// linear scan is acceptable and keeps the data structure simple.
func (pt *pageTable[T]) findEarlierRoom(before int) *page[T] {
	for p := pt.feHead; p != nil; p = p.next {
		if p.idx < before && p.freeCount > 0 {
			return p
		}
	}
	return nil
}

// allocInto allocates a free slot on page p, which the caller has already
// confirmed has room.
func (pt *pageTable[T]) allocInto(p *page[T]) (*slot[T], uint8) {
	idx := p.freeHead
	s := &p.slots[idx]
	p.freeHead = s.free
	s.used = true
	p.freeCount--
	if p.freeCount == 0 {
		pt.removeFreeList(p)
	}
	return s, idx
}

func (pt *pageTable[T]) get(p *page[T], idx uint8) *T {
	return &p.slots[idx].val
}
