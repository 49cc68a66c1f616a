package cache

import "time"

// Expiration wheel (§4.3).
const (
	wheelBuckets      = 30
	wheelBucketWindow = 20 * time.Second
	wheelCycle        = wheelBuckets * wheelBucketWindow
	minFlushInterval  = 1 * time.Second

	histogramSlices    = 4
	histogramSliceSize = wheelBucketWindow / histogramSlices
)

// Shard (§4.2).
const (
	insertGateWait = 10 * time.Second
)

// Usage ladder (§4.4).
const (
	minUpdateDelta            = 1 * time.Second // sliding-expiration debounce
	correlatedRequestTimeout  = 1 * time.Second // usage-update debounce
	minLadderWindow           = 10 * time.Second
	newAddInterval            = 10 * time.Second
	ladderFlushCap            = 1024
)

// bucketIndex maps an absolute-expiry instant to its wheel bucket, per
// §4.3: "((t.ticks mod 600s) / 20s + 1) mod 30".
func bucketIndex(t time.Time) int {
	secs := t.Unix()
	cycleSecs := int64(wheelCycle / time.Second)
	windowSecs := int64(wheelBucketWindow / time.Second)
	mod := secs % cycleSecs
	if mod < 0 {
		mod += cycleSecs
	}
	return int((mod/windowSecs + 1) % wheelBuckets)
}

// histogramSlice maps an absolute-expiry instant to its 5s sub-interval
// within its 20s bucket window.
func histogramSlice(t time.Time) int {
	secs := t.Unix()
	windowSecs := int64(wheelBucketWindow / time.Second)
	sliceSecs := int64(histogramSliceSize / time.Second)
	mod := secs % windowSecs
	if mod < 0 {
		mod += windowSecs
	}
	return int(mod / sliceSecs)
}
