package attributes

import (
	"crypto/sha256"
	"fmt"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Run describes one analysed recording. It is the environment of the trace
// ID and parent ID expressions.
type Run struct {
	Host      string
	Source    string
	First     int64 // earliest lifetime start
	Last      int64 // latest lifetime end
	Lifetimes int
}

var runEnv = map[string]interface{}{
	"host":      "",
	"source":    "",
	"first":     int64(0),
	"last":      int64(0),
	"lifetimes": 0,
}

func (r Run) env() map[string]interface{} {
	return map[string]interface{}{
		"host":      r.Host,
		"source":    r.Source,
		"first":     r.First,
		"last":      r.Last,
		"lifetimes": r.Lifetimes,
	}
}

// runExpr is an optional expression over a Run, rendered as a string.
type runExpr struct {
	flag    string // "trace-id" or "parent-id", for messages
	program *vm.Program
}

func compileRunExpr(flag, source string) (runExpr, error) {
	e := runExpr{flag: flag}
	if source == "" {
		return e, nil
	}
	program, err := expr.Compile(source, expr.Env(runEnv))
	if err != nil {
		return e, fmt.Errorf("failed to compile %s expression: %w", flag, err)
	}
	e.program = program
	return e, nil
}

// eval returns the rendered result, or ok=false when no expression is set.
func (e runExpr) eval(run Run) (result string, ok bool, err error) {
	if e.program == nil {
		return "", false, nil
	}
	output, err := expr.Run(e.program, run.env())
	if err != nil {
		return "", false, fmt.Errorf("failed to evaluate %s expression: %w", e.flag, err)
	}
	return fmt.Sprint(output), true, nil
}

// rejected builds the two warning attributes recorded when a result is not
// a usable ID.
func (e runExpr) rejected(prefix, result, fallback string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(prefix+"_expr_result", result),
		attribute.String(prefix+"_invalid_warning",
			fmt.Sprintf("%s result %q is not a valid hex ID, %s", e.flag, result, fallback)),
	}
}

// TraceIDEvaluator computes the trace all exported spans belong to.
type TraceIDEvaluator struct {
	runExpr
}

// NewTraceIDEvaluator compiles exprStr. An empty expression leaves the trace
// ID to the tracer provider.
func NewTraceIDEvaluator(exprStr string) (*TraceIDEvaluator, error) {
	e, err := compileRunExpr("trace-id", exprStr)
	if err != nil {
		return nil, err
	}
	return &TraceIDEvaluator{runExpr: e}, nil
}

// EvaluateAndValidate returns the trace ID and warnings to attach to the run
// span. A 32-char hex result is used as is. Anything else is hashed with
// SHA-256, so one recording always maps to the same trace.
func (e *TraceIDEvaluator) EvaluateAndValidate(run Run) (trace.TraceID, []attribute.KeyValue, error) {
	result, ok, err := e.eval(run)
	if err != nil || !ok {
		return trace.TraceID{}, nil, err
	}

	if id, err := trace.TraceIDFromHex(result); err == nil {
		return id, nil, nil
	}

	var id trace.TraceID
	sum := sha256.Sum256([]byte(result))
	copy(id[:], sum[:len(id)])
	return id, e.rejected("_trace_id", result, "used its SHA-256 hash instead"), nil
}

// ParentIDEvaluator computes the remote span the run span hangs under.
type ParentIDEvaluator struct {
	runExpr
}

// NewParentIDEvaluator compiles exprStr. An empty expression means no parent.
func NewParentIDEvaluator(exprStr string) (*ParentIDEvaluator, error) {
	e, err := compileRunExpr("parent-id", exprStr)
	if err != nil {
		return nil, err
	}
	return &ParentIDEvaluator{runExpr: e}, nil
}

// EvaluateAndValidate returns the parent span ID, or a zero ID with warnings
// when the result is not 16-char hex.
func (e *ParentIDEvaluator) EvaluateAndValidate(run Run) (trace.SpanID, []attribute.KeyValue, error) {
	result, ok, err := e.eval(run)
	if err != nil || !ok {
		return trace.SpanID{}, nil, err
	}

	if id, err := trace.SpanIDFromHex(result); err == nil {
		return id, nil, nil
	}
	return trace.SpanID{}, e.rejected("_parent_id", result, "running without a parent"), nil
}
