package cache

import (
	"testing"
	"time"
)

func TestUsageLadder_NotRemovableNeverTracked(t *testing.T) {
	t.Parallel()

	l := newUsageLadder[string]()
	now := time.Now().UTC()
	e := newEntry("k", "v", Policy[string]{Priority: NotRemovable}, now)

	l.add(e, now)
	if e.useHandle.valid() || e.useBucket != ladderNotTracked {
		t.Fatal("NotRemovable entries must never be linked into the ladder")
	}
}

func TestUsageLadder_AddUpdateOrdering(t *testing.T) {
	t.Parallel()

	l := newUsageLadder[string]()
	now := time.Now().UTC()
	a := newEntry("a", "1", Policy[string]{}, now)
	b := newEntry("b", "2", Policy[string]{}, now)
	c := newEntry("c", "3", Policy[string]{}, now)

	l.add(a, now)
	l.add(b, now.Add(time.Second))
	l.add(c, now.Add(2*time.Second))

	// MRU order after three adds: c, b, a (each add goes to the front).
	if l.mru != c.useHandle {
		t.Fatal("most recently added entry must be MRU")
	}
	if l.lru != a.useHandle {
		t.Fatal("least recently added entry must be LRU")
	}

	// Touching a moves it to MRU.
	l.update(a, now.Add(3*time.Second))
	if l.mru != a.useHandle {
		t.Fatal("update must move the entry to MRU")
	}
	if l.lru != b.useHandle {
		t.Fatal("b should now be LRU after a is promoted")
	}
}

func TestUsageLadder_RemovePreservesListIntegrity(t *testing.T) {
	t.Parallel()

	l := newUsageLadder[string]()
	now := time.Now().UTC()
	a := newEntry("a", "1", Policy[string]{}, now)
	b := newEntry("b", "2", Policy[string]{}, now)
	c := newEntry("c", "3", Policy[string]{}, now)
	l.add(a, now)
	l.add(b, now)
	l.add(c, now)

	l.remove(b) // remove the middle entry

	if l.mru != c.useHandle || l.lru != a.useHandle {
		t.Fatal("removing the middle entry must not disturb the MRU/LRU ends")
	}
	if l.count != 2 {
		t.Fatalf("count = %d, want 2", l.count)
	}
	if b.useHandle.valid() || b.useBucket != ladderNotTracked {
		t.Fatal("removed entry must have its back-link cleared")
	}
}

func TestUsageLadder_FlushUnderUsedSeasonedFirst(t *testing.T) {
	t.Parallel()

	l := newUsageLadder[string]()
	base := time.Now().UTC()

	// old: seasoned (added newAddInterval+ ago)
	old := newEntry("old", "v", Policy[string]{}, base)
	l.add(old, base)
	// fresh: added just now, not yet seasoned
	fresh := newEntry("fresh", "v", Policy[string]{}, base)
	l.add(fresh, base.Add(newAddInterval).Add(time.Second))

	now := base.Add(newAddInterval).Add(time.Second)

	var evicted []string
	n := l.flushUnderUsed(2, now, func(e *entry[string]) { evicted = append(evicted, e.key) })

	if n != 2 || len(evicted) != 2 || evicted[0] != "old" || evicted[1] != "fresh" {
		t.Fatalf("expected the seasoned entry to be evicted before the unseasoned one, got %v (n=%d)", evicted, n)
	}
}

func TestUsageLadder_FlushUnderUsedSecondPassTakesUnseasoned(t *testing.T) {
	t.Parallel()

	l := newUsageLadder[string]()
	base := time.Now().UTC()
	old := newEntry("old", "v", Policy[string]{}, base)
	l.add(old, base)
	fresh := newEntry("fresh", "v", Policy[string]{}, base)
	l.add(fresh, base)

	now := base.Add(newAddInterval).Add(time.Second) // old is seasoned, fresh is not

	n := l.flushUnderUsed(2, now, func(*entry[string]) {})
	if n != 2 {
		t.Fatalf("target of 2 should drain both entries across the two passes, got %d", n)
	}
}

func TestUsageLadder_FlushUnderUsedSingleInFlight(t *testing.T) {
	t.Parallel()

	l := newUsageLadder[string]()
	l.flushing.Store(true) // simulate a flush already running
	n := l.flushUnderUsed(10, time.Now().UTC(), func(*entry[string]) {})
	if n != 0 {
		t.Fatal("a concurrent flushUnderUsed call must be swallowed, not double-run")
	}
}

func TestUsageLadder_FlushUnderUsedZeroTarget(t *testing.T) {
	t.Parallel()

	l := newUsageLadder[string]()
	if n := l.flushUnderUsed(0, time.Now().UTC(), func(*entry[string]) {}); n != 0 {
		t.Fatalf("flushUnderUsed(0) = %d, want 0", n)
	}
}
