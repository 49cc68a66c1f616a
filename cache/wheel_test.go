package cache

import (
	"testing"
	"time"
)

func TestBucketIndex_Formula(t *testing.T) {
	t.Parallel()

	cycleSecs := int64(wheelCycle / time.Second)
	windowSecs := int64(wheelBucketWindow / time.Second)
	for _, secs := range []int64{0, 19, 20, 599, 600, 601, cycleSecs * 3} {
		t.Run("", func(t *testing.T) {
			tm := time.Unix(secs, 0).UTC()
			got := bucketIndex(tm)
			mod := secs % cycleSecs
			if mod < 0 {
				mod += cycleSecs
			}
			want := int((mod/windowSecs + 1) % wheelBuckets)
			if got != want {
				t.Fatalf("bucketIndex(%ds) = %d, want %d", secs, got, want)
			}
			if got < 0 || got >= wheelBuckets {
				t.Fatalf("bucketIndex out of range: %d", got)
			}
		})
	}
}

func TestExpirationWheel_AddRemoveRoundTrip(t *testing.T) {
	t.Parallel()

	w := newExpirationWheel[string]()
	now := time.Now().UTC()
	e := newEntry("k", "v", Policy[string]{AbsoluteExpiration: now.Add(time.Minute)}, now)

	w.add(e)
	if !e.expHandle.valid() {
		t.Fatal("add must link a valid handle for a finite-expiry entry")
	}

	w.remove(e)
	if e.expHandle.valid() || e.expBucket != -1 {
		t.Fatal("remove must unlink and reset the back-link")
	}
}

func TestExpirationWheel_AddSkipsNeverExpiring(t *testing.T) {
	t.Parallel()

	w := newExpirationWheel[string]()
	now := time.Now().UTC()
	e := newEntry("k", "v", Policy[string]{}, now)

	w.add(e)
	if e.expHandle.valid() {
		t.Fatal("an entry with no finite expiry must never be linked into the wheel")
	}
}

func TestExpirationWheel_UpdateSameBucketRewritesInPlace(t *testing.T) {
	t.Parallel()

	w := newExpirationWheel[string]()
	now := time.Now().UTC()
	e := newEntry("k", "v", Policy[string]{AbsoluteExpiration: now.Add(time.Minute)}, now)
	w.add(e)
	h := e.expHandle

	// A small nudge that stays within the same 20s bucket.
	newDeadline := now.Add(time.Minute + time.Second)
	w.update(e, newDeadline)

	if e.expHandle != h {
		t.Fatal("an in-bucket update should rewrite the slot, not reallocate a handle")
	}
}

func TestExpirationWheel_FlushRemovesExpiredAndRateLimits(t *testing.T) {
	t.Parallel()

	w := newExpirationWheel[string]()
	now := time.Now().UTC()
	e := newEntry("k", "v", Policy[string]{AbsoluteExpiration: now.Add(time.Millisecond)}, now)
	e.setState(AddedToCache)
	w.add(e)

	later := now.Add(time.Hour) // well past the deadline
	var expired []*entry[string]
	removed := w.flush(later, nil, func(ent *entry[string]) { expired = append(expired, ent) })
	if removed != 1 || len(expired) != 1 || expired[0] != e {
		t.Fatalf("flush should have expired exactly e, got removed=%d expired=%v", removed, expired)
	}

	// A second flush within minFlushInterval of the first must be a no-op,
	// even with another expired entry present.
	e2 := newEntry("k2", "v", Policy[string]{AbsoluteExpiration: now.Add(time.Millisecond)}, now)
	e2.setState(AddedToCache)
	w.add(e2)
	removed2 := w.flush(later.Add(time.Millisecond), nil, func(*entry[string]) {})
	if removed2 != 0 {
		t.Fatalf("flush called again within minFlushInterval must return 0, got %d", removed2)
	}
}

func TestExpirationWheel_FlushTogglesInsertGate(t *testing.T) {
	t.Parallel()

	w := newExpirationWheel[string]()
	now := time.Now().UTC()
	e := newEntry("k", "v", Policy[string]{AbsoluteExpiration: now.Add(time.Millisecond)}, now)
	e.setState(AddedToCache)
	w.add(e)

	gate := newInsertGate()
	var sawClosed bool
	w.flush(now.Add(time.Hour), gate, func(*entry[string]) {
		sawClosed = !gate.isOpen
	})
	if !sawClosed {
		t.Fatal("the gate must be closed while the splice runs")
	}
	if !gate.isOpen {
		t.Fatal("the gate must be reopened once flush returns")
	}
}
