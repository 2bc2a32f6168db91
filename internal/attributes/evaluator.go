package attributes

import (
	"fmt"
	"reflect"
	"strings"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"
	"github.com/google/shlex"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mrzor/atop-lifetimes/internal/config"
	"github.com/mrzor/atop-lifetimes/internal/logutil"
	"github.com/mrzor/atop-lifetimes/internal/stats"
)

// exprEnv declares the variables available to lifetime expressions, for
// type checking at compile time.
var exprEnv = map[string]interface{}{
	"id":       "",
	"pid":      int64(0),
	"tgid":     int64(0),
	"name":     "",
	"command":  "",
	"args":     []string{},
	"start":    int64(0),
	"end":      int64(0),
	"ended":    false,
	"duration": int64(0),
	"samples":  0,
	"stats":    map[string]float64{},
}

// Env builds the evaluation environment of one lifetime.
func Env(d *stats.Detail) map[string]interface{} {
	rec := d.Record
	return map[string]interface{}{
		"id":       rec.ID.String(),
		"pid":      rec.PID,
		"tgid":     rec.TGID,
		"name":     rec.Name,
		"command":  rec.Command,
		"args":     splitCommand(rec.Command),
		"start":    rec.Start,
		"end":      d.End,
		"ended":    rec.HasEnd,
		"duration": d.End - rec.Start,
		"samples":  rec.Series.Len(),
		"stats":    d.Attrs.Map(),
	}
}

// splitCommand splits a command line the way a shell would. atop truncates
// long command lines, which may leave an unterminated quote: fall back to
// splitting on whitespace.
func splitCommand(command string) []string {
	args, err := shlex.Split(command)
	if err != nil {
		return strings.Fields(command)
	}
	if args == nil {
		return []string{}
	}
	return args
}

// Evaluator handles compilation and evaluation of custom attribute expressions.
type Evaluator struct {
	customAttrs   []config.CustomAttribute
	compiledExprs []*vm.Program
}

// NewEvaluator creates a new attribute evaluator.
// It pre-compiles all custom attribute expressions for efficiency.
func NewEvaluator(customAttrs []config.CustomAttribute) (*Evaluator, error) {
	seen := make(map[string]bool, len(customAttrs))
	for _, attr := range customAttrs {
		if stats.ReservedColumn(attr.Name) {
			return nil, fmt.Errorf("attribute %q collides with a built-in column", attr.Name)
		}
		folded := strings.ToLower(attr.Name)
		if seen[folded] {
			return nil, fmt.Errorf("attribute %q is defined twice", attr.Name)
		}
		seen[folded] = true
	}

	compiledExprs := make([]*vm.Program, len(customAttrs))
	for i, attr := range customAttrs {
		program, err := expr.Compile(attr.Expression, expr.Env(exprEnv))
		if err != nil {
			return nil, fmt.Errorf("failed to compile expression for attribute %q: %w", attr.Name, err)
		}
		compiledExprs[i] = program
	}

	return &Evaluator{
		customAttrs:   customAttrs,
		compiledExprs: compiledExprs,
	}, nil
}

// EvaluateCustomAttributes evaluates every custom attribute for one lifetime.
// An expression failing at run time is logged and skipped.
func (e *Evaluator) EvaluateCustomAttributes(d *stats.Detail) []attribute.KeyValue {
	if len(e.customAttrs) == 0 || d == nil {
		return nil
	}

	env := Env(d)
	var attrs []attribute.KeyValue
	for i, customAttr := range e.customAttrs {
		output, err := expr.Run(e.compiledExprs[i], env)
		if err != nil {
			logutil.GetLogger().Warn("failed to evaluate custom attribute",
				zap.String("attribute", customAttr.Name),
				zap.String("lifetime", d.Record.ID.String()),
				zap.Error(err))
			continue
		}
		attrs = append(attrs, expand(customAttr.Name, output)...)
	}
	return attrs
}

// Enrich attaches the custom attributes to d. It has the signature of a
// stats enricher.
func (e *Evaluator) Enrich(d *stats.Detail) error {
	d.Extra = append(d.Extra, e.EvaluateCustomAttributes(d)...)
	return nil
}

// expand turns a map result into one "name.key" attribute per entry and any
// other result into a single string attribute.
func expand(name string, output interface{}) []attribute.KeyValue {
	outputValue := reflect.ValueOf(output)
	if outputValue.Kind() != reflect.Map {
		return []attribute.KeyValue{attribute.String(name, fmt.Sprint(output))}
	}

	attrs := make([]attribute.KeyValue, 0, outputValue.Len())
	iter := outputValue.MapRange()
	for iter.Next() {
		key := sanitizeAttributeName(fmt.Sprintf("%v", iter.Key().Interface()))
		// Nested maps and slices use the default Go format too.
		attrs = append(attrs, attribute.String(name+"."+key, fmt.Sprintf("%v", iter.Value().Interface())))
	}
	return attrs
}

// sanitizeAttributeName replaces non-alphanumeric characters with underscores.
func sanitizeAttributeName(name string) string {
	result := make([]byte, len(name))
	for i := 0; i < len(name); i++ {
		c := name[i]
		if (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9') || c == '_' {
			result[i] = c
		} else {
			result[i] = '_'
		}
	}
	return string(result)
}

// Filter selects lifetimes with a boolean expression.
type Filter struct {
	program *vm.Program
	rawExpr string
}

// NewFilter compiles a filter. An empty expression keeps every lifetime.
func NewFilter(exprStr string) (*Filter, error) {
	if strings.TrimSpace(exprStr) == "" {
		return &Filter{}, nil
	}

	program, err := expr.Compile(exprStr, expr.Env(exprEnv), expr.AsBool())
	if err != nil {
		return nil, fmt.Errorf("failed to compile filter expression: %w", err)
	}
	return &Filter{program: program, rawExpr: exprStr}, nil
}

// Match reports whether d passes the filter. It has the signature of a
// stats filter.
func (f *Filter) Match(d *stats.Detail) (bool, error) {
	if f.program == nil {
		return true, nil
	}

	output, err := expr.Run(f.program, Env(d))
	if err != nil {
		return false, fmt.Errorf("failed to evaluate filter %q: %w", f.rawExpr, err)
	}
	keep, ok := output.(bool)
	if !ok {
		return false, fmt.Errorf("filter %q returned %T, want bool", f.rawExpr, output)
	}
	return keep, nil
}
