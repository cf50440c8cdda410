package tracing_test

import (
	"context"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/nabbar/nettransport/observability/tracing"
)

var _ = Describe("Span", func() {
	var tracer *tracing.Tracer

	BeforeEach(func() {
		var err error
		tracer, err = tracing.NewTracer(context.Background(), tracing.Config{
			Exporter:    tracing.ExporterNone,
			ServiceName: "nettransport-test",
		}, "nettransport-test")
		Expect(err).NotTo(HaveOccurred())
	})

	It("propagates trace id from a root span to a child span and invalidates current after both end", func() {
		rootCtx, root := tracer.Start(context.Background(), "rpc.call", tracing.KindServer)

		childCtx, child := tracer.Start(rootCtx, "tx.write", tracing.KindInternal)
		captured := tracing.CurrentContext(childCtx).ToTraceParent()

		parsed := tracing.ParseTraceParent(captured)
		Expect(parsed.TraceID).To(Equal(root.Context().TraceID))

		parentID, ok := parsed.Parent()
		Expect(ok).To(BeTrue())
		Expect(parentID).To(Equal(root.Context().SpanID))

		child.End()
		root.End()

		Expect(tracing.CurrentContext(context.Background()).IsValid()).To(BeFalse())
	})

	It("is a no-op to mutate a span after End", func() {
		_, sp := tracer.Start(context.Background(), "op", tracing.KindInternal)
		sp.End()

		sp.SetAttribute("key", "value")
		sp.SetStatus(tracing.StatusOK, "done")
		sp.SetError("should be ignored")

		Expect(sp.Ended()).To(BeTrue())
	})

	It("still ends a span after SetError", func() {
		_, sp := tracer.Start(context.Background(), "op", tracing.KindInternal)
		sp.SetError("boom")
		sp.End()

		Expect(sp.Ended()).To(BeTrue())
	})

	It("hands every ended span to the registered processors exactly once", func() {
		var calls int
		tracer.RegisterProcessor(func(s *tracing.Span) { calls++ })

		_, sp := tracer.Start(context.Background(), "op", tracing.KindClient)
		sp.End()
		sp.End()

		Expect(calls).To(Equal(1))
	})

	It("Shutdown returns without error for the none exporter", func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		Expect(tracer.Shutdown(ctx)).To(Succeed())
	})
})
