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
	"github.com/prometheus/client_golang/prometheus"
)

// Collector adapts a SlidingHistogram to prometheus.Collector, so the
// transport's latency/throughput histograms can be registered directly
// into a Prometheus registry alongside the rest of a host application's
// metrics.
type Collector struct {
	desc *prometheus.Desc
	hist *SlidingHistogram
}

// NewCollector wraps hist as a prometheus.Collector exposing fqName with
// the given constant labels.
func NewCollector(fqName, help string, constLabels prometheus.Labels, hist *SlidingHistogram) *Collector {
	return &Collector{
		desc: prometheus.NewDesc(fqName, help, nil, constLabels),
		hist: hist,
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.desc
}

// Collect implements prometheus.Collector: it snapshots the sliding
// histogram's non-expired buckets and emits them as a prometheus.Histogram
// metric, converting the boundary/count representation to the
// client_golang constructor's expected cumulative-bucket map.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snap := c.hist.Snapshot()

	buckets := make(map[float64]uint64, len(snap.buckets))
	var cumulative uint64
	for i := range snap.buckets {
		cumulative += snap.buckets[i].count.Load()
		buckets[snap.buckets[i].upper] = cumulative
	}

	metric, err := prometheus.NewConstHistogram(c.desc, snap.Count(), snap.Sum(), buckets)
	if err != nil {
		return
	}
	ch <- metric
}
