package otel

import (
	"context"
	"encoding/binary"
	"math/rand/v2"

	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

// RunIDGenerator hands out one fixed trace ID for root spans and random span
// IDs. Child spans inherit the trace ID of their parent and never ask for one.
type RunIDGenerator struct {
	traceID trace.TraceID
}

var _ sdktrace.IDGenerator = (*RunIDGenerator)(nil)

// NewRunIDGenerator creates a generator for traceID.
func NewRunIDGenerator(traceID trace.TraceID) *RunIDGenerator {
	return &RunIDGenerator{traceID: traceID}
}

// NewIDs returns the run trace ID and a new span ID.
func (g *RunIDGenerator) NewIDs(ctx context.Context) (trace.TraceID, trace.SpanID) {
	return g.traceID, g.NewSpanID(ctx, g.traceID)
}

// NewSpanID returns a random non-zero span ID.
func (g *RunIDGenerator) NewSpanID(_ context.Context, _ trace.TraceID) trace.SpanID {
	var sid trace.SpanID
	for !sid.IsValid() {
		binary.BigEndian.PutUint64(sid[:], rand.Uint64())
	}
	return sid
}
