package shaping

import (
	"math"
	"sync"
	"time"
)

const defaultBucketWidth = 0.01

// tick is one aggregation window: a count of observations and a histogram
// of bucketed prediction values to their observation counts.
type tick struct {
	count   int64
	buckets map[int64]int64 // bucket index (value/bucketWidth rounded) -> count
	opened  time.Time
}

func newTick() *tick {
	return &tick{buckets: make(map[int64]int64), opened: time.Now()}
}

// QpsHistogram accumulates per-tick observations and, once a tick is
// cycled out, can answer threshold queries against it.
type QpsHistogram struct {
	mu          sync.Mutex
	active      *tick
	bucketWidth float64
}

func NewQpsHistogram() *QpsHistogram {
	return &QpsHistogram{active: newTick(), bucketWidth: defaultBucketWidth}
}

// Observe records one request at the given predicted metric value.
func (h *QpsHistogram) Observe(value float64) {
	bucket := int64(math.Round(value / h.bucketWidth))
	h.mu.Lock()
	h.active.count++
	h.active.buckets[bucket]++
	h.mu.Unlock()
}

// Tick is a cycled-out, read-only snapshot of one aggregation window.
type Tick struct {
	count       int64
	buckets     map[int64]int64
	bucketWidth float64
	duration    time.Duration
}

// QPS is the cross-tick-normalised observation rate for this tick.
func (t Tick) QPS() float64 {
	secs := t.duration.Seconds()
	if secs <= 0 {
		secs = 1
	}
	return float64(t.count) / secs
}

// cycle atomically replaces the active tick with a fresh empty one and
// returns the completed tick for threshold computation.
func (h *QpsHistogram) cycle() Tick {
	h.mu.Lock()
	old := h.active
	h.active = newTick()
	h.mu.Unlock()

	return Tick{
		count:       old.count,
		buckets:     old.buckets,
		bucketWidth: h.bucketWidth,
		duration:    time.Since(old.opened),
	}
}

// Cycle is the exported form of cycle, used by the per-shaper threshold task.
func (h *QpsHistogram) Cycle() Tick { return h.cycle() }

// Threshold walks buckets from highest value down, accumulating cross-tick
// QPS, and returns the first bucket value whose cumulative QPS meets or
// exceeds targetQPS. Returns 0 if even the lowest bucket's cumulative QPS
// never reaches the target (i.e. demand is lower than budget).
func (t Tick) Threshold(targetQPS float64) float64 {
	v, _ := t.ThresholdAndQPS(targetQPS)
	return v
}

// ThresholdAndQPS is Threshold but also returns the actual cross-tick QPS
// achieved at the chosen bucket, which the shaper needs to size its
// exploratory/boost bands for the next cycle.
func (t Tick) ThresholdAndQPS(targetQPS float64) (float64, float64) {
	if len(t.buckets) == 0 {
		return 0, 0
	}

	keys := make([]int64, 0, len(t.buckets))
	for k := range t.buckets {
		keys = append(keys, k)
	}
	// insertion sort descending; bucket counts are small (few hundred keys)
	for i := 1; i < len(keys); i++ {
		k := keys[i]
		j := i - 1
		for j >= 0 && keys[j] < k {
			keys[j+1] = keys[j]
			j--
		}
		keys[j+1] = k
	}

	secs := t.duration.Seconds()
	if secs <= 0 {
		secs = 1
	}

	var cumulative int64
	for _, k := range keys {
		cumulative += t.buckets[k]
		qps := float64(cumulative) / secs
		if qps >= targetQPS {
			return float64(k) * t.bucketWidth, qps
		}
	}
	return 0, 0
}
