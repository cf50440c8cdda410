/*
 * MIT License
 *
 * Copyright (c) 2024 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package metrics

import (
	"math"
	"sync"
	"time"
)

// float64BitsAdd adds delta to the float64 represented by bits and
// returns the result re-encoded as bits, used to accumulate Histogram's
// atomic sum field outside of its own CAS loop.
func float64BitsAdd(bits uint64, delta float64) uint64 {
	return math.Float64bits(math.Float64frombits(bits) + delta)
}

// DefaultWindowDuration and DefaultBucketCount are spec.md §4.11's
// defaults: a 60s window split into 6 buckets of 10s each.
const (
	DefaultWindowDuration = 60 * time.Second
	DefaultBucketCount    = 6
)

// timeBucket pairs a histogram with the start time of the window slice it
// covers.
type timeBucket struct {
	start time.Time
	hist  *Histogram
}

// SlidingHistogram is spec.md §3/§4.11's sliding time-window aggregation:
// a deque of equal-duration (start-time, histogram) buckets where record
// targets the current bucket, rotating in a fresh one once the newest
// bucket has aged out, and reads aggregate across non-expired buckets.
type SlidingHistogram struct {
	boundaries     []float64
	windowDuration time.Duration
	bucketDuration time.Duration

	mu      sync.Mutex
	buckets []timeBucket
}

// NewSlidingHistogram builds a SlidingHistogram over windowDuration split
// into bucketCount equal buckets, each recording observations against
// boundaries. Zero values fall back to spec.md §4.11's defaults (60s / 6).
func NewSlidingHistogram(boundaries []float64, windowDuration time.Duration, bucketCount int) *SlidingHistogram {
	if windowDuration <= 0 {
		windowDuration = DefaultWindowDuration
	}
	if bucketCount <= 0 {
		bucketCount = DefaultBucketCount
	}

	return &SlidingHistogram{
		boundaries:     boundaries,
		windowDuration: windowDuration,
		bucketDuration: windowDuration / time.Duration(bucketCount),
	}
}

// Record observes v against the current time bucket, expiring aged-out
// buckets and rotating in a fresh one as needed, per spec.md §4.11.
func (s *SlidingHistogram) Record(v float64) {
	now := time.Now()

	s.mu.Lock()
	s.expireLocked(now)

	if len(s.buckets) == 0 || now.Sub(s.buckets[len(s.buckets)-1].start) >= s.bucketDuration {
		s.buckets = append(s.buckets, timeBucket{
			start: now,
			hist:  NewHistogram(s.boundaries),
		})
	}

	cur := s.buckets[len(s.buckets)-1].hist
	s.mu.Unlock()

	cur.Record(v)
}

// expireLocked drops buckets older than now-windowDuration. Callers must
// hold s.mu.
func (s *SlidingHistogram) expireLocked(now time.Time) {
	cutoff := now.Add(-s.windowDuration)

	i := 0
	for i < len(s.buckets) && s.buckets[i].start.Before(cutoff) {
		i++
	}
	if i > 0 {
		s.buckets = s.buckets[i:]
	}
}

// Snapshot aggregates all non-expired buckets into a single Histogram,
// per spec.md §4.11: individual-bucket contributions are summed by
// converting each bucket's cumulative per-boundary counts to per-boundary
// deltas and summing across buckets. The summed deltas are stored as the
// result's per-bucket counts, like Record's, so cumulative counts are
// derived from them on read.
func (s *SlidingHistogram) Snapshot() *Histogram {
	s.mu.Lock()
	s.expireLocked(time.Now())
	buckets := make([]timeBucket, len(s.buckets))
	copy(buckets, s.buckets)
	s.mu.Unlock()

	out := NewHistogram(s.boundaries)
	if len(buckets) == 0 {
		return out
	}

	n := len(out.buckets)
	deltaSum := make([]uint64, n)

	for _, tb := range buckets {
		cum := tb.hist.cumulativeCounts()
		var prev uint64
		for i := 0; i < n; i++ {
			deltaSum[i] += cum[i] - prev
			prev = cum[i]
		}
		out.sumBits.Store(float64BitsAdd(out.sumBits.Load(), tb.hist.Sum()))
		out.casMin(tb.hist.Min())
		out.casMax(tb.hist.Max())
	}

	var total uint64
	for i := 0; i < n; i++ {
		total += deltaSum[i]
		out.buckets[i].count.Store(deltaSum[i])
	}
	out.totalCount.Store(total)

	return out
}
