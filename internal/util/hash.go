// Package util contains internal helpers shared by the cache and monitor
// packages (key hashing, shard dispatch, cache-line padding).
package util

import (
	"math"

	"github.com/cespare/xxhash/v2"
)

// ShardIndex maps key to a shard in [0, shards). Hashing uses xxhash, a
// fast non-cryptographic hash; dispatch is "non-negative hash(key) mod
// shards" with the sign bit masked off so the result is always in range
// regardless of how the hash's low bits fall.
func ShardIndex(key string, shards int) int {
	if shards <= 1 {
		return 0
	}
	h := xxhash.Sum64String(key)
	nonNegative := int64(h) & math.MaxInt64
	return int(nonNegative % int64(shards))
}
