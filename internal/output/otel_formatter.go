package output

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/mrzor/atop-lifetimes/internal/stats"
	"github.com/mrzor/atop-lifetimes/internal/timesync"
)

// OTELFormatter exports every kept lifetime as a span, nested under one
// span covering the whole log.
type OTELFormatter struct {
	tracer   trace.Tracer
	conv     *timesync.Converter
	parent   trace.SpanContext
	runAttrs []attribute.KeyValue
}

// OTELOption configures an OTELFormatter.
type OTELOption func(*OTELFormatter)

// WithParent makes the run span a child of a span living in another
// process. Invalid span contexts are ignored.
func WithParent(sc trace.SpanContext) OTELOption {
	return func(f *OTELFormatter) {
		f.parent = sc
	}
}

// WithRunAttributes adds attributes to the run span.
func WithRunAttributes(attrs ...attribute.KeyValue) OTELOption {
	return func(f *OTELFormatter) {
		f.runAttrs = append(f.runAttrs, attrs...)
	}
}

// NewOTELFormatter creates a new OTELFormatter.
func NewOTELFormatter(tracer trace.Tracer, conv *timesync.Converter, opts ...OTELOption) *OTELFormatter {
	if conv == nil {
		conv = timesync.NewConverter()
	}
	f := &OTELFormatter{tracer: tracer, conv: conv}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Write emits the spans. Nothing is emitted for an empty summary.
func (f *OTELFormatter) Write(ctx context.Context, sum *stats.Summary) error {
	if len(sum.Details) == 0 {
		return nil
	}

	first, last := sum.Details[0].Record.Start, sum.Details[0].End
	for _, d := range sum.Details[1:] {
		first = min(first, d.Record.Start)
		last = max(last, d.End)
	}

	if f.parent.IsValid() {
		ctx = trace.ContextWithRemoteSpanContext(ctx, f.parent)
	}

	runCtx, run := f.tracer.Start(ctx, "atop.run",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(f.conv.EpochToWallClock(first)),
	)
	run.SetAttributes(
		attribute.Int("atop.lifetimes", len(sum.Details)),
		attribute.Int("atop.names", len(sum.Pivot)),
	)
	if len(f.runAttrs) > 0 {
		run.SetAttributes(f.runAttrs...)
	}

	for _, d := range sum.Details {
		if err := ctx.Err(); err != nil {
			run.SetStatus(codes.Error, err.Error())
			run.End(trace.WithTimestamp(f.conv.EpochToWallClock(last)))
			return fmt.Errorf("span export interrupted: %w", err)
		}
		f.lifetimeSpan(runCtx, d)
	}

	run.SetStatus(codes.Ok, "")
	run.End(trace.WithTimestamp(f.conv.EpochToWallClock(last)))
	return nil
}

func (f *OTELFormatter) lifetimeSpan(ctx context.Context, d *stats.Detail) {
	rec := d.Record

	_, span := f.tracer.Start(ctx, "process.lifetime",
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithTimestamp(f.conv.EpochToWallClock(rec.Start)),
	)

	span.SetAttributes(
		attribute.Int64("process.pid", rec.PID),
		attribute.Int64("process.tgid", rec.TGID),
		attribute.String("process.name", rec.Name),
		attribute.String("process.command", rec.Command),
		attribute.String("atop.lifetime.id", rec.ID.String()),
		attribute.Bool("atop.lifetime.ended", rec.HasEnd),
	)

	attrs := make([]attribute.KeyValue, 0, len(d.Attrs))
	for _, key := range stats.Keys {
		if v, ok := d.Attrs[key]; ok {
			attrs = append(attrs, attribute.Float64("atop."+string(key), v))
		}
	}
	span.SetAttributes(attrs...)

	if len(d.Extra) > 0 {
		span.SetAttributes(d.Extra...)
	}

	if rec.HasEnd {
		span.SetStatus(codes.Ok, "Process exited")
	}

	span.End(trace.WithTimestamp(f.conv.EpochToWallClock(d.End)))
}
