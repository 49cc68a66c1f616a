package cache

import (
	"math/rand"
	"strconv"
	"sync/atomic"
	"testing"
)

// benchmarkMix exercises a read/write mix against a warm cache using
// parallel workers (RunParallel spawns GOMAXPROCS goroutines).
func benchmarkMix(b *testing.B, readsPct int) {
	c := New[string](Config{Shards: 32, DisableStatsLoop: true})
	b.Cleanup(c.Close)

	for i := 0; i < 50_000; i++ {
		c.Set("k:"+strconv.Itoa(i), "v", Policy[string]{})
	}

	b.ReportAllocs()
	b.ResetTimer()

	var seed int64 = 1
	keyMask := (1 << 16) - 1

	b.RunParallel(func(pb *testing.PB) {
		r := rand.New(rand.NewSource(atomic.AddInt64(&seed, 1)))
		i := 0
		for pb.Next() {
			k := "k:" + strconv.Itoa(i&keyMask)
			if r.Intn(100) < readsPct {
				c.Get(k)
			} else {
				c.Set(k, "v", Policy[string]{})
			}
			i++
		}
	})
}

func BenchmarkCache_90r10w(b *testing.B) { benchmarkMix(b, 90) }
func BenchmarkCache_50r50w(b *testing.B) { benchmarkMix(b, 50) }

// benchmarkTrim measures Trim's cost against a cache filled with entries
// added just before timing starts, so none are seasoned and Trim's second
// (unseasoned) ladder pass does the evicting.
func benchmarkTrim(b *testing.B, percent int) {
	c := New[string](Config{Shards: 32, DisableStatsLoop: true})
	b.Cleanup(c.Close)
	for i := 0; i < 50_000; i++ {
		c.Set("k:"+strconv.Itoa(i), "v", Policy[string]{})
	}

	b.ReportAllocs()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		c.Trim(percent)
	}
}

func BenchmarkCache_Trim10(b *testing.B) { benchmarkTrim(b, 10) }
