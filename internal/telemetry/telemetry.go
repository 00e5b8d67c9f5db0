// Package telemetry wraps the OpenTelemetry tracer and meter used by the
// fingerprint pipeline and the dev session.
package telemetry

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
)

// ScopeName is the instrumentation scope for tracers and meters.
const ScopeName = "github.com/Avinash-1994/Nexxo-sub001"

// Options selects the providers. Nil providers fall back to the globals.
type Options struct {
	TracerProvider trace.TracerProvider
	MeterProvider  metric.MeterProvider
}

// Telemetry holds the tracer and the metric instruments. Instruments are
// created once in New. A nil *Telemetry is valid and records nothing.
type Telemetry struct {
	tracer trace.Tracer

	filesHashed   metric.Int64Counter
	digestHits    metric.Int64Counter
	invalidations metric.Int64Counter
	decisions     metric.Int64Counter
	batchDuration metric.Float64Histogram
}

// New creates instruments from the given providers.
func New(opts Options) (*Telemetry, error) {
	tp := opts.TracerProvider
	if tp == nil {
		tp = otel.GetTracerProvider()
	}
	mp := opts.MeterProvider
	if mp == nil {
		mp = otel.GetMeterProvider()
	}
	meter := mp.Meter(ScopeName)

	t := &Telemetry{tracer: tp.Tracer(ScopeName)}
	var err error

	t.filesHashed, err = meter.Int64Counter(
		"nexxo.fingerprint.files",
		metric.WithDescription("Source files hashed for input fingerprints"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create files counter: %w", err)
	}

	t.digestHits, err = meter.Int64Counter(
		"nexxo.fingerprint.digest_cache_hits",
		metric.WithDescription("File digests served from the digest cache"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create digest hit counter: %w", err)
	}

	t.invalidations, err = meter.Int64Counter(
		"nexxo.graph.invalidations",
		metric.WithDescription("Graph changes produced by invalidation batches"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create invalidation counter: %w", err)
	}

	t.decisions, err = meter.Int64Counter(
		"nexxo.hmr.decisions",
		metric.WithDescription("Hot-update decisions by level"),
		metric.WithUnit("1"),
	)
	if err != nil {
		return nil, fmt.Errorf("create decision counter: %w", err)
	}

	t.batchDuration, err = meter.Float64Histogram(
		"nexxo.session.batch_duration",
		metric.WithDescription("Time to apply one batch of file events in milliseconds"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, fmt.Errorf("create batch histogram: %w", err)
	}

	return t, nil
}

// Noop returns a Telemetry backed by no-op providers.
func Noop() *Telemetry {
	t, err := New(Options{
		TracerProvider: tracenoop.NewTracerProvider(),
		MeterProvider:  metricnoop.NewMeterProvider(),
	})
	if err != nil {
		// no-op instruments never fail
		panic(err)
	}
	return t
}

// Start opens a span. With a nil receiver ctx is returned unchanged with a
// non-recording span, so End never touches a span the caller owns.
func (t *Telemetry) Start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	if t == nil {
		return ctx, trace.SpanFromContext(context.Background())
	}
	return t.tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// End closes span, recording err when non-nil.
func End(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	span.End()
}

// RecordFiles counts hashed files and digest cache hits.
func (t *Telemetry) RecordFiles(ctx context.Context, files, hits int) {
	if t == nil {
		return
	}
	t.filesHashed.Add(ctx, int64(files))
	t.digestHits.Add(ctx, int64(hits))
}

// RecordBatch records one applied invalidation batch.
func (t *Telemetry) RecordBatch(ctx context.Context, changes int, d time.Duration) {
	if t == nil {
		return
	}
	t.invalidations.Add(ctx, int64(changes))
	t.batchDuration.Record(ctx, float64(d.Microseconds())/1000)
}

// RecordDecision counts a hot-update decision.
func (t *Telemetry) RecordDecision(ctx context.Context, level string) {
	if t == nil {
		return
	}
	t.decisions.Add(ctx, 1, metric.WithAttributes(attribute.String("level", level)))
}
