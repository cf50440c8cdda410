package metrics_test

import (
	"sync"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/nettransport/observability/metrics"
)

var _ = Describe("Histogram", func() {
	It("rejects boundaries that are not strictly ascending", func() {
		Expect(metrics.ValidateBoundaries([]float64{1, 2, 3})).To(Succeed())
		Expect(metrics.ValidateBoundaries([]float64{1, 1, 3})).To(HaveOccurred())
		Expect(metrics.ValidateBoundaries([]float64{3, 2, 1})).To(HaveOccurred())
	})

	It("tracks count, sum, min and max across recorded observations", func() {
		h := metrics.NewHistogram(metrics.DefaultLatencyBoundaries())
		for _, v := range []float64{0.2, 1.5, 50, 9999} {
			h.Record(v)
		}

		Expect(h.Count()).To(Equal(uint64(4)))
		Expect(h.Sum()).To(BeNumerically("~", 0.2+1.5+50+9999, 1e-9))
		Expect(h.Min()).To(Equal(0.2))
		Expect(h.Max()).To(Equal(9999.0))
	})

	It("reports zero percentiles with no observations", func() {
		h := metrics.NewHistogram(metrics.DefaultLatencyBoundaries())
		Expect(h.Percentile(0.5)).To(Equal(0.0))
	})

	It("keeps percentile monotonic and bounded by min/max", func() {
		h := metrics.NewHistogram(metrics.DefaultLatencyBoundaries())
		for i := 1; i <= 1000; i++ {
			h.Record(float64(i % 500))
		}

		p0 := h.Percentile(0)
		p50 := h.Percentile(0.5)
		p99 := h.Percentile(0.99)
		p100 := h.Percentile(1)

		Expect(p0).To(BeNumerically("<=", p50))
		Expect(p50).To(BeNumerically("<=", p99))
		Expect(p99).To(BeNumerically("<=", p100))
		Expect(p0).To(Equal(h.Min()))
		Expect(p100).To(Equal(h.Max()))
	})

	It("is safe for concurrent Record calls", func() {
		h := metrics.NewHistogram(metrics.DefaultLatencyBoundaries())
		var wg sync.WaitGroup
		for i := 0; i < 50; i++ {
			wg.Add(1)
			go func(n int) {
				defer wg.Done()
				h.Record(float64(n))
			}(i)
		}
		wg.Wait()

		Expect(h.Count()).To(Equal(uint64(50)))
	})

	It("renders Prometheus and JSON snapshots", func() {
		h := metrics.NewHistogram([]float64{1, 2})
		h.Record(0.5)
		h.Record(1.5)

		Expect(h.Prometheus("latency")).To(ContainSubstring("latency_bucket"))
		Expect(h.Prometheus("latency")).To(ContainSubstring("latency_count 2"))
		Expect(h.JSON()).To(ContainSubstring(`"count":2`))
	})

	It("returns the lower bound when the matching bucket has an infinite upper boundary", func() {
		h := metrics.NewHistogram([]float64{1})
		h.Record(0.5)
		h.Record(5) // falls into the implicit +Inf bucket
		Expect(h.Percentile(0.99)).To(BeNumerically(">=", 1))
	})
})
