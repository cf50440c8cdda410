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

package tracing

import (
	"context"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Kind is a span's role in a trace, per spec.md §3.
type Kind uint8

const (
	KindInternal Kind = iota
	KindServer
	KindClient
	KindProducer
	KindConsumer
)

func (k Kind) otel() oteltrace.SpanKind {
	switch k {
	case KindServer:
		return oteltrace.SpanKindServer
	case KindClient:
		return oteltrace.SpanKindClient
	case KindProducer:
		return oteltrace.SpanKindProducer
	case KindConsumer:
		return oteltrace.SpanKindConsumer
	default:
		return oteltrace.SpanKindInternal
	}
}

// Status is a span's completion status, per spec.md §3.
type Status uint8

const (
	StatusUnset Status = iota
	StatusOK
	StatusError
)

// Event is one entry in a span's event list: a name, a timestamp, and an
// attribute set, per spec.md §3.
type Event struct {
	Name  string
	Time  time.Time
	Attrs map[string]interface{}
}

// FuncProcessor receives every span exactly once, after End() has handed
// it to the configured exporter, per spec.md §4.11's "registered processor
// callback list".
type FuncProcessor func(*Span)

// Tracer owns the otel SDK wiring (exporter, resource, sampler) a Span
// delegates its actual export to, plus spec.md §4.11's processor callback
// list.
type Tracer struct {
	provider   *sdktrace.TracerProvider
	otelTracer oteltrace.Tracer

	mu         sync.Mutex
	processors []FuncProcessor
}

// NewTracer builds a Tracer from cfg, wiring the real otel SDK exporter
// named by cfg.Exporter.
func NewTracer(ctx context.Context, cfg Config, instrumentationName string) (*Tracer, error) {
	provider, err := NewProvider(ctx, cfg)
	if err != nil {
		return nil, err
	}
	return &Tracer{
		provider:   provider,
		otelTracer: provider.Tracer(instrumentationName),
	}, nil
}

// RegisterProcessor appends fn to the list invoked after every span ends.
func (t *Tracer) RegisterProcessor(fn FuncProcessor) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.processors = append(t.processors, fn)
}

// Shutdown flushes and stops the underlying otel exporter.
func (t *Tracer) Shutdown(ctx context.Context) error {
	return t.provider.Shutdown(ctx)
}

type spanContextKey struct{}

// CurrentContext returns the trace Context of the span currently "in
// scope" for ctx (per the caller's own context chain), or an invalid
// Context if none was started against ctx. This is the idiomatic Go
// substitute for the original's thread-local current-span pointer:
// context.Context is itself scoped per call tree, so the restore-on-end
// behavior spec.md §3 describes falls out of normal Go context handling
// rather than needing an explicit thread-local slot.
func CurrentContext(ctx context.Context) Context {
	if s, ok := ctx.Value(spanContextKey{}).(*Span); ok {
		return s.ctx
	}
	return Context{}
}

// CurrentSpan returns the *Span currently in scope for ctx, or nil.
func CurrentSpan(ctx context.Context) *Span {
	s, _ := ctx.Value(spanContextKey{}).(*Span)
	return s
}

// Span is the RAII-styled span of spec.md §3/§4.11. Construction (via
// Tracer.Start) records the start time and makes the span "current" for
// the returned context.Context; End() records the end time and hands the
// span to the tracer's exporter and processor list exactly once.
type Span struct {
	tracer *Tracer

	name   string
	kind   Kind
	ctx    Context
	otelSp oteltrace.Span

	mu     sync.Mutex
	status Status
	desc   string
	attrs  map[string]interface{}
	events []Event

	start time.Time
	end   time.Time
	ended bool
}

// Start begins a new span named name. If parentCtx already carries a
// current span, the new span shares its trace id and records it as
// parent, per spec.md §4.11's create_child_span semantics; otherwise a
// fresh root trace context is generated.
func (t *Tracer) Start(parentCtx context.Context, name string, kind Kind) (context.Context, *Span) {
	var tc Context
	if parent := CurrentSpan(parentCtx); parent != nil {
		tc = parent.ctx.NewChild()
	} else {
		tc = NewRootContext(true)
	}

	octx, otelSp := t.otelTracer.Start(parentCtx, name,
		oteltrace.WithSpanKind(kind.otel()),
		oteltrace.WithTimestamp(time.Now()),
	)

	s := &Span{
		tracer: t,
		name:   name,
		kind:   kind,
		ctx:    tc,
		otelSp: otelSp,
		attrs:  make(map[string]interface{}),
		start:  time.Now(),
	}

	octx = context.WithValue(octx, spanContextKey{}, s)
	return octx, s
}

// Context returns the span's W3C trace context.
func (s *Span) Context() Context { return s.ctx }

// Name returns the span's name.
func (s *Span) Name() string { return s.name }

// SetAttribute records a string/int64/float64/bool attribute. A no-op
// after End().
func (s *Span) SetAttribute(key string, value interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.attrs[key] = value
	s.otelSp.SetAttributes(toKeyValue(key, value))
}

// AddEvent appends an event with the given name and attributes. A no-op
// after End().
func (s *Span) AddEvent(name string, attrs map[string]interface{}) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.events = append(s.events, Event{Name: name, Time: time.Now(), Attrs: attrs})
	s.otelSp.AddEvent(name, oteltrace.WithAttributes(toKeyValues(attrs)...))
}

// SetStatus sets the span's completion status. A no-op after End().
func (s *Span) SetStatus(status Status, description string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.status = status
	s.desc = description
	s.otelSp.SetStatus(status.otel(), description)
}

// SetError marks the span as errored and appends an "exception" event
// carrying the error message, per spec.md §3's set_error semantics. A
// no-op after End().
func (s *Span) SetError(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ended {
		return
	}
	s.status = StatusError
	s.desc = msg
	s.events = append(s.events, Event{
		Name:  "exception",
		Time:  time.Now(),
		Attrs: map[string]interface{}{"exception.message": msg},
	})
	s.otelSp.SetStatus(codes.Error, msg)
	s.otelSp.AddEvent("exception", oteltrace.WithAttributes(attribute.String("exception.message", msg)))
}

// Ended reports whether End() has already run.
func (s *Span) Ended() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.ended
}

// End records the end time, finalizes the underlying otel span, and hands
// this span to every registered processor exactly once. Subsequent calls
// are no-ops, per spec.md §3's RAII lifecycle.
func (s *Span) End() {
	s.mu.Lock()
	if s.ended {
		s.mu.Unlock()
		return
	}
	s.ended = true
	s.end = time.Now()
	s.mu.Unlock()

	s.otelSp.End(oteltrace.WithTimestamp(s.end))

	s.tracer.mu.Lock()
	processors := append([]FuncProcessor(nil), s.tracer.processors...)
	s.tracer.mu.Unlock()

	for _, p := range processors {
		p(s)
	}
}

func (st Status) otel() codes.Code {
	switch st {
	case StatusOK:
		return codes.Ok
	case StatusError:
		return codes.Error
	default:
		return codes.Unset
	}
}

func toKeyValue(key string, value interface{}) attribute.KeyValue {
	switch v := value.(type) {
	case string:
		return attribute.String(key, v)
	case int64:
		return attribute.Int64(key, v)
	case int:
		return attribute.Int(key, v)
	case float64:
		return attribute.Float64(key, v)
	case bool:
		return attribute.Bool(key, v)
	default:
		return attribute.String(key, "")
	}
}

func toKeyValues(attrs map[string]interface{}) []attribute.KeyValue {
	out := make([]attribute.KeyValue, 0, len(attrs))
	for k, v := range attrs {
		out = append(out, toKeyValue(k, v))
	}
	return out
}
