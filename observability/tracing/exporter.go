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
	"time"

	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.24.0"

	liberr "github.com/nabbar/nettransport/errors"
)

// ExporterVariant selects the backend a Tracer ships ended spans to, per
// spec.md §6's {none, console, otlp-grpc, otlp-http, jaeger, zipkin}.
type ExporterVariant uint8

const (
	ExporterNone ExporterVariant = iota
	ExporterConsole
	ExporterOTLPGRPC
	ExporterOTLPHTTP
	ExporterJaeger
	ExporterZipkin
)

// Sampler selects the sampling policy of spec.md §6.
type Sampler uint8

const (
	SamplerAlwaysOn Sampler = iota
	SamplerAlwaysOff
	SamplerTraceIDRatio
	SamplerParentBased
)

// BatchConfig mirrors spec.md §6's "batch config (queue size, schedule
// delay, export timeout)".
type BatchConfig struct {
	QueueSize     int
	ScheduleDelay time.Duration
	ExportTimeout time.Duration
}

// Config enumerates every tracing configuration input named in spec.md
// §6: exporter variant, resource identity, sampler, sample rate, batch
// config, endpoint URL, insecure and debug flags.
type Config struct {
	Exporter ExporterVariant

	ServiceName      string
	ServiceNamespace string
	ServiceVersion   string
	ServiceInstance  string

	Sampler    Sampler
	SampleRate float64

	Batch BatchConfig

	Endpoint string
	Insecure bool
	Debug    bool
}

func (c Config) withDefaults() Config {
	if c.Batch.QueueSize <= 0 {
		c.Batch.QueueSize = 2048
	}
	if c.Batch.ScheduleDelay <= 0 {
		c.Batch.ScheduleDelay = 5 * time.Second
	}
	if c.Batch.ExportTimeout <= 0 {
		c.Batch.ExportTimeout = 30 * time.Second
	}
	return c
}

func (c Config) sampler() sdktrace.Sampler {
	switch c.Sampler {
	case SamplerAlwaysOff:
		return sdktrace.NeverSample()
	case SamplerTraceIDRatio:
		return sdktrace.TraceIDRatioBased(c.SampleRate)
	case SamplerParentBased:
		return sdktrace.ParentBased(sdktrace.TraceIDRatioBased(c.SampleRate))
	default:
		return sdktrace.AlwaysSample()
	}
}

// NewProvider builds an *sdktrace.TracerProvider wired to the exporter
// variant cfg names. ExporterJaeger and ExporterZipkin are accepted by the
// Config type (per spec.md §6's enumerated variants) but rejected at
// construction: this module's go.mod does not carry a Jaeger or Zipkin
// exporter dependency (see DESIGN.md), so wiring them would mean
// fabricating a client rather than using a real one.
func NewProvider(ctx context.Context, cfg Config) (*sdktrace.TracerProvider, error) {
	cfg = cfg.withDefaults()

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceNamespace(cfg.ServiceNamespace),
			semconv.ServiceVersion(cfg.ServiceVersion),
			semconv.ServiceInstanceID(cfg.ServiceInstance),
		),
	)
	if err != nil {
		return nil, liberr.New(uint16(ErrorResource), getMessage(ErrorResource), err)
	}

	opts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(cfg.sampler()),
	}

	switch cfg.Exporter {
	case ExporterNone:
		return sdktrace.NewTracerProvider(opts...), nil

	case ExporterConsole:
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, liberr.New(uint16(ErrorExporterInit), getMessage(ErrorExporterInit), err)
		}
		return sdktrace.NewTracerProvider(append(opts, batchOpt(exp, cfg.Batch))...), nil

	case ExporterOTLPGRPC:
		grpcOpts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			grpcOpts = append(grpcOpts, otlptracegrpc.WithInsecure())
		}
		exp, err := otlptracegrpc.New(ctx, grpcOpts...)
		if err != nil {
			return nil, liberr.New(uint16(ErrorExporterInit), getMessage(ErrorExporterInit), err)
		}
		return sdktrace.NewTracerProvider(append(opts, batchOpt(exp, cfg.Batch))...), nil

	case ExporterOTLPHTTP:
		httpOpts := []otlptracehttp.Option{otlptracehttp.WithEndpoint(cfg.Endpoint)}
		if cfg.Insecure {
			httpOpts = append(httpOpts, otlptracehttp.WithInsecure())
		}
		exp, err := otlptracehttp.New(ctx, httpOpts...)
		if err != nil {
			return nil, liberr.New(uint16(ErrorExporterInit), getMessage(ErrorExporterInit), err)
		}
		return sdktrace.NewTracerProvider(append(opts, batchOpt(exp, cfg.Batch))...), nil

	default:
		return nil, liberr.New(uint16(ErrorUnwiredExporter), getMessage(ErrorUnwiredExporter))
	}
}

func batchOpt(exp sdktrace.SpanExporter, b BatchConfig) sdktrace.TracerProviderOption {
	return sdktrace.WithBatcher(exp,
		sdktrace.WithMaxQueueSize(b.QueueSize),
		sdktrace.WithBatchTimeout(b.ScheduleDelay),
		sdktrace.WithExportTimeout(b.ExportTimeout),
	)
}
