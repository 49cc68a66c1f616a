package cache

import (
	"testing"
	"time"
)

func newTestShard() *shard[string] {
	return newShard[string](0, NopLogger{}, NoopMetrics{})
}

func TestShard_AddOrGetExistingFreshInsert(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	_, _, existed, added := s.addOrGetExisting("k", "v1", Policy[string]{}, now)
	if existed {
		t.Fatal("fresh key must not report existed")
	}
	if added == nil || added.val != "v1" {
		t.Fatal("fresh insert must return the new entry")
	}
	if s.count() != 1 {
		t.Fatalf("count = %d, want 1", s.count())
	}
}

func TestShard_AddOrGetExistingCollisionReturnsWinner(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	s.addOrGetExisting("k", "first", Policy[string]{}, now)

	existingVal, _, existed, added := s.addOrGetExisting("k", "second", Policy[string]{}, now)
	if !existed {
		t.Fatal("second call on a live key must report existed=true")
	}
	if existingVal != "first" {
		t.Fatalf("existingVal = %q, want %q (the original winner)", existingVal, "first")
	}
	if added != nil {
		t.Fatal("a collision must not report an added entry")
	}
	if s.count() != 1 {
		t.Fatalf("count = %d, want 1 (still just the original)", s.count())
	}
}

func TestShard_AddOrGetExistingReplacesStaleEntry(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	s.addOrGetExisting("k", "old", Policy[string]{AbsoluteExpiration: now.Add(time.Millisecond)}, now)

	later := now.Add(time.Hour)
	_, _, existed, added := s.addOrGetExisting("k", "new", Policy[string]{}, later)
	if existed {
		t.Fatal("a stale (expired) entry must be treated as absent")
	}
	if added == nil || added.val != "new" {
		t.Fatal("expected the stale entry to be replaced with the new value")
	}
	if s.count() != 1 {
		t.Fatalf("count = %d, want 1", s.count())
	}
}

func TestShard_SetUnconditionallyReplaces(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	s.addOrGetExisting("k", "old", Policy[string]{}, now)
	ne := s.set("k", "new", Policy[string]{}, now)

	if ne.val != "new" {
		t.Fatalf("set entry val = %q, want %q", ne.val, "new")
	}
	val, _, found := s.get("k", now)
	if !found || val != "new" {
		t.Fatalf("get after set = (%q, %v), want (%q, true)", val, found, "new")
	}
	if s.count() != 1 {
		t.Fatalf("count = %d, want 1", s.count())
	}
}

func TestShard_GetMissingKeyCountsMiss(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	_, _, found := s.get("nope", time.Now().UTC())
	if found {
		t.Fatal("get on a missing key must report found=false")
	}
	if s.misses.Load() != 1 {
		t.Fatalf("misses = %d, want 1", s.misses.Load())
	}
}

func TestShard_GetExpiredKeyEvictsLazily(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	s.addOrGetExisting("k", "v", Policy[string]{AbsoluteExpiration: now.Add(time.Millisecond)}, now)

	later := now.Add(time.Hour)
	_, _, found := s.get("k", later)
	if found {
		t.Fatal("get past the deadline must report found=false")
	}
	if s.count() != 0 {
		t.Fatalf("expired entry must be removed from the map on access, count = %d", s.count())
	}
}

func TestShard_GetHitCountsHit(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	s.addOrGetExisting("k", "v", Policy[string]{}, now)
	_, _, found := s.get("k", now)
	if !found {
		t.Fatal("expected a hit")
	}
	if s.hits.Load() != 1 {
		t.Fatalf("hits = %d, want 1", s.hits.Load())
	}
}

func TestShard_GetRefreshesSlidingDeadline(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	s.addOrGetExisting("k", "v", Policy[string]{SlidingExpiration: time.Minute}, now)
	e, _ := s.lookup("k")
	firstDeadline := e.absoluteExpiry()

	// Advance well past minUpdateDelta so the refresh is not debounced away.
	later := now.Add(time.Minute / 2)
	s.get("k", later)
	if !e.absoluteExpiry().After(firstDeadline) {
		t.Fatal("sliding get should push the deadline forward")
	}
}

func TestShard_RemoveDeletesAndReturnsValue(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	s.addOrGetExisting("k", "v", Policy[string]{}, now)

	val, found := s.remove("k", Removed)
	if !found || val != "v" {
		t.Fatalf("remove = (%q, %v), want (%q, true)", val, found, "v")
	}
	if s.count() != 0 {
		t.Fatalf("count = %d, want 0", s.count())
	}
	if _, found := s.remove("k", Removed); found {
		t.Fatal("removing an already-removed key must report found=false")
	}
}

func TestShard_ContainsDoesNotMutateState(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	s.addOrGetExisting("k", "v", Policy[string]{SlidingExpiration: time.Minute}, now)
	e, _ := s.lookup("k")
	before := e.absoluteExpiry()

	if !s.contains("k", now.Add(time.Minute/2)) {
		t.Fatal("contains should report true for a live entry")
	}
	if !e.absoluteExpiry().Equal(before) {
		t.Fatal("contains must never re-anchor a sliding deadline")
	}
}

func TestShard_ContainsReportsFalseForExpired(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	s.addOrGetExisting("k", "v", Policy[string]{AbsoluteExpiration: now.Add(time.Millisecond)}, now)
	if s.contains("k", now.Add(time.Hour)) {
		t.Fatal("contains must report false past the deadline even though it leaves the entry in place")
	}
}

func TestShard_TrimEvictsRequestedPercent(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	base := time.Now().UTC()
	for i := 0; i < 10; i++ {
		s.addOrGetExisting(string(rune('a'+i)), "v", Policy[string]{}, base)
	}

	// Make every entry seasoned so the first (seasoned-only) pass can evict.
	later := base.Add(newAddInterval).Add(time.Second)
	evicted := s.trim(50, later)
	if evicted != 5 {
		t.Fatalf("trim(50%%) on 10 entries evicted %d, want 5", evicted)
	}
	if s.count() != 5 {
		t.Fatalf("count after trim = %d, want 5", s.count())
	}
}

func TestShard_TrimZeroPercentOnlyFlushesExpired(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	now := time.Now().UTC()
	s.addOrGetExisting("k", "v", Policy[string]{AbsoluteExpiration: now.Add(time.Millisecond)}, now)

	evicted := s.trim(0, now.Add(time.Hour))
	if evicted != 0 {
		t.Fatalf("trim(0) must not evict from the ladder, got %d", evicted)
	}
	if s.count() != 0 {
		t.Fatal("trim(0) must still flush the already-expired entry from the wheel")
	}
}

func TestShard_InsertGateWaitDoesNotBlockForever(t *testing.T) {
	t.Parallel()

	s := newTestShard()
	s.useInsertBlock = true
	s.gate.close()

	done := make(chan struct{})
	go func() {
		s.addOrGetExisting("k", "v", Policy[string]{}, time.Now().UTC())
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(insertGateWait + time.Second):
		t.Fatal("insert must proceed once the gate wait times out, not block forever")
	}
}
