package cache

import (
	"fmt"
	"time"
)

// NeverExpires is the sentinel absolute-expiration instant meaning "this
// entry has no absolute deadline". It maps to a fixed far-future instant
// rather than a zero time so arithmetic on it (e.g. "is now past expiry")
// never needs a special case.
var NeverExpires = time.Date(9999, 12, 31, 23, 59, 59, 0, time.UTC)

// maxSlidingExpiration is the spec's "sliding ≤ one year" bound.
const maxSlidingExpiration = 365 * 24 * time.Hour

// RemovedCallback is invoked at most once per entry, and never with reason
// Disposing in the default configuration.
type RemovedCallback[V any] func(key string, val V, reason RemovedReason)

// UpdateCallback is invoked when the sentinel half of an update-sentinel
// pair expires. It returns the refreshed value/policy pair and whether the
// real entry should be kept; a false ok removes the real entry instead.
type UpdateCallback[V any] func(key string, reason RemovedReason) (val V, policy Policy[V], ok bool)

// Policy configures one cache entry.
type Policy[V any] struct {
	// AbsoluteExpiration is the UTC instant after which the entry is
	// eligible for Expired removal. Zero means "unset"; use NeverExpires
	// to make that explicit, or leave both expiration fields zero for an
	// entry that never expires.
	AbsoluteExpiration time.Time

	// SlidingExpiration re-anchors AbsoluteExpiration to now+duration on
	// every successful Get. Zero disables sliding expiration. Mutually
	// exclusive with a non-zero AbsoluteExpiration.
	SlidingExpiration time.Duration

	// Priority controls eligibility for usage-based trimming.
	Priority Priority

	// ChangeMonitors are external monitors this entry depends on: when any
	// of them reports a change, the entry is removed with reason
	// ChangeMonitorChanged.
	ChangeMonitors []ChangeMonitor

	// RemovedCallback fires on eviction for any reason except Disposing.
	// Mutually exclusive with UpdateCallback.
	RemovedCallback RemovedCallback[V]

	// UpdateCallback, if set, causes the cache to store an update-sentinel
	// pair (see entry.go) instead of a plain entry: the real value never
	// expires on its own, and the sentinel's expiration invokes this
	// callback to refresh it. Mutually exclusive with RemovedCallback.
	UpdateCallback UpdateCallback[V]
}

// validate checks the mutual-exclusion and range rules from §6. Violations
// are programming errors: the caller supplied a contradictory policy.
func (p Policy[V]) validate() error {
	hasAbsolute := !p.AbsoluteExpiration.IsZero() && !p.AbsoluteExpiration.Equal(NeverExpires)
	if hasAbsolute && p.SlidingExpiration > 0 {
		return fmt.Errorf("%w: absolute and sliding expiration are mutually exclusive", ErrInvalidPolicy)
	}
	if p.SlidingExpiration < 0 {
		return fmt.Errorf("%w: sliding expiration must not be negative", ErrInvalidPolicy)
	}
	if p.SlidingExpiration > maxSlidingExpiration {
		return fmt.Errorf("%w: sliding expiration must be <= 1 year", ErrInvalidPolicy)
	}
	if p.RemovedCallback != nil && p.UpdateCallback != nil {
		return fmt.Errorf("%w: RemovedCallback and UpdateCallback are mutually exclusive", ErrInvalidPolicy)
	}
	if p.Priority != Default && p.Priority != NotRemovable {
		return fmt.Errorf("%w: unknown priority %v", ErrInvalidPolicy, p.Priority)
	}
	return nil
}

// absoluteDeadline resolves the entry's effective absolute deadline given
// its creation instant, per §3: "absolute_expiry = sliding > 0 ? created +
// sliding : given_absolute".
func (p Policy[V]) absoluteDeadline(created time.Time) time.Time {
	if p.SlidingExpiration > 0 {
		return created.Add(p.SlidingExpiration)
	}
	if p.AbsoluteExpiration.IsZero() {
		return NeverExpires
	}
	return p.AbsoluteExpiration
}
