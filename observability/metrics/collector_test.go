package metrics_test

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/nettransport/observability/metrics"
)

var _ = Describe("Collector", func() {
	It("registers into a Prometheus registry and scrapes without error", func() {
		sh := metrics.NewSlidingHistogram(metrics.DefaultLatencyBoundaries(), 60*time.Second, 6)
		sh.Record(1.2)
		sh.Record(3.4)

		c := metrics.NewCollector("nettransport_latency_ms", "latency", nil, sh)

		reg := prometheus.NewRegistry()
		Expect(reg.Register(c)).To(Succeed())

		mfs, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())
		Expect(mfs).NotTo(BeEmpty())
	})
})
