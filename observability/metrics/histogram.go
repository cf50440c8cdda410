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

// Package metrics implements the bucketed histogram and sliding time-window
// aggregation of spec.md §3/§4.11: lock-free bucket/count/sum increments,
// compare-and-swap min/max tracking, and linear-interpolation percentile
// estimation.
package metrics

import (
	"fmt"
	"math"
	"strings"
	"sync/atomic"

	liberr "github.com/nabbar/nettransport/errors"
)

// DefaultLatencyBoundaries is the original implementation's
// histogram_config::default_latency_config() bucket boundary list, in
// milliseconds, supplemented per DESIGN.md since spec.md only specifies
// "boundaries: sorted vector of upper bounds" without a concrete default.
func DefaultLatencyBoundaries() []float64 {
	return []float64{
		0.1, 0.5, 1.0, 2.0, 5.0, 10.0, 25.0, 50.0, 100.0, 250.0, 500.0,
		1000.0, 2500.0, 5000.0, 10000.0,
	}
}

// bucket holds the atomically-updated count for one boundary.
type bucket struct {
	upper float64
	count atomic.Uint64
}

// Histogram is the spec.md §3/§4.11 bucketed histogram: record(v) is
// lock-free for bucket increment, total count, and sum; min/max use
// compare-and-swap loops.
type Histogram struct {
	buckets []bucket

	totalCount atomic.Uint64
	sumBits    atomic.Uint64 // math.Float64bits of the running sum

	minBits atomic.Uint64
	maxBits atomic.Uint64
}

// ValidateBoundaries reports whether boundaries is strictly ascending, the
// precondition both NewHistogram and NewSlidingHistogram require per
// spec.md §3's "boundaries: sorted vector of upper bounds".
func ValidateBoundaries(boundaries []float64) error {
	for i := 1; i < len(boundaries); i++ {
		if boundaries[i] <= boundaries[i-1] {
			return liberr.New(uint16(ErrorInvalidBoundaries), getMessage(ErrorInvalidBoundaries))
		}
	}
	return nil
}

// NewHistogram builds a Histogram over the given sorted upper-bound
// boundaries, plus a final bucket whose upper bound is +Inf.
func NewHistogram(boundaries []float64) *Histogram {
	h := &Histogram{
		buckets: make([]bucket, len(boundaries)+1),
	}
	for i, b := range boundaries {
		h.buckets[i].upper = b
	}
	h.buckets[len(boundaries)].upper = math.Inf(1)

	h.minBits.Store(math.Float64bits(math.Inf(1)))
	h.maxBits.Store(math.Float64bits(math.Inf(-1)))

	return h
}

// Record observes v: it increments the first bucket whose boundary is
// greater than or equal to v, the total count, and the running sum, and
// updates min/max via compare-and-swap loops.
func (h *Histogram) Record(v float64) {
	for i := range h.buckets {
		if v <= h.buckets[i].upper {
			h.buckets[i].count.Add(1)
			break
		}
	}

	h.totalCount.Add(1)
	h.addSum(v)
	h.casMin(v)
	h.casMax(v)
}

func (h *Histogram) addSum(v float64) {
	for {
		old := h.sumBits.Load()
		next := math.Float64bits(math.Float64frombits(old) + v)
		if h.sumBits.CompareAndSwap(old, next) {
			return
		}
	}
}

func (h *Histogram) casMin(v float64) {
	for {
		old := h.minBits.Load()
		if v >= math.Float64frombits(old) {
			return
		}
		if h.minBits.CompareAndSwap(old, math.Float64bits(v)) {
			return
		}
	}
}

func (h *Histogram) casMax(v float64) {
	for {
		old := h.maxBits.Load()
		if v <= math.Float64frombits(old) {
			return
		}
		if h.maxBits.CompareAndSwap(old, math.Float64bits(v)) {
			return
		}
	}
}

// Count returns the total number of observations recorded.
func (h *Histogram) Count() uint64 { return h.totalCount.Load() }

// Sum returns the running sum of all recorded observations.
func (h *Histogram) Sum() float64 { return math.Float64frombits(h.sumBits.Load()) }

// Min returns the smallest observation recorded, or +Inf if none.
func (h *Histogram) Min() float64 { return math.Float64frombits(h.minBits.Load()) }

// Max returns the largest observation recorded, or -Inf if none.
func (h *Histogram) Max() float64 { return math.Float64frombits(h.maxBits.Load()) }

// cumulativeCounts returns, for each bucket boundary index, the number of
// observations at or below that boundary.
func (h *Histogram) cumulativeCounts() []uint64 {
	out := make([]uint64, len(h.buckets))
	var running uint64
	for i := range h.buckets {
		running += h.buckets[i].count.Load()
		out[i] = running
	}
	return out
}

// Percentile locates the bucket covering the p*count-th observation and
// linearly interpolates between the bucket's lower and upper bounds using
// the cumulative counts at those bounds, per spec.md §4.11. An infinite
// upper bound returns the bucket's lower bound.
func (h *Histogram) Percentile(p float64) float64 {
	total := h.totalCount.Load()
	if total == 0 {
		return 0
	}
	if p <= 0 {
		return h.Min()
	}
	if p >= 1 {
		return h.Max()
	}

	target := p * float64(total)
	cum := h.cumulativeCounts()

	var lower float64
	for i := range h.buckets {
		upper := h.buckets[i].upper
		prevCum := uint64(0)
		if i > 0 {
			prevCum = cum[i-1]
		}

		if float64(cum[i]) >= target {
			if math.IsInf(upper, 1) {
				return lower
			}
			if cum[i] == prevCum {
				return lower
			}
			frac := (target - float64(prevCum)) / float64(cum[i]-prevCum)
			return lower + frac*(upper-lower)
		}
		lower = upper
	}

	return h.Max()
}

// Prometheus renders the histogram in Prometheus text exposition format,
// supplemented from the original implementation's
// histogram_snapshot::to_prometheus(name).
func (h *Histogram) Prometheus(name string) string {
	var sb strings.Builder
	var cumulative uint64

	for i := range h.buckets {
		cumulative += h.buckets[i].count.Load()
		le := "+Inf"
		if !math.IsInf(h.buckets[i].upper, 1) {
			le = fmt.Sprintf("%g", h.buckets[i].upper)
		}
		fmt.Fprintf(&sb, "%s_bucket{le=\"%s\"} %d\n", name, le, cumulative)
	}

	fmt.Fprintf(&sb, "%s_sum %g\n", name, h.Sum())
	fmt.Fprintf(&sb, "%s_count %d\n", name, h.Count())
	return sb.String()
}

// JSON renders a compact JSON snapshot of the histogram, supplemented from
// the original implementation's histogram_snapshot::to_json().
func (h *Histogram) JSON() string {
	return fmt.Sprintf(
		`{"count":%d,"sum":%g,"min":%g,"max":%g,"p50":%g,"p90":%g,"p99":%g}`,
		h.Count(), h.Sum(), h.Min(), h.Max(),
		h.Percentile(0.5), h.Percentile(0.9), h.Percentile(0.99),
	)
}
