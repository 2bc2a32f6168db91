package record

import (
	"fmt"
	"strconv"

	"github.com/mrzor/atop-lifetimes/internal/schema"
)

// Sample is one decoded data line.
type Sample struct {
	Kind   schema.Kind
	Line   int
	Fields map[string]Value
}

// PID returns the sample's process id.
func (s *Sample) PID() int64 {
	n, _ := s.Fields["pid"].Int64()
	return n
}

// Epoch returns the sample timestamp.
func (s *Sample) Epoch() int64 {
	n, _ := s.Fields["epoch"].Int64()
	return n
}

// Int returns an integer field.
func (s *Sample) Int(name string) (int64, error) {
	n, ok := s.Fields[name].Int64()
	if !ok {
		return 0, fmt.Errorf("%s line %d: no integer field %q", s.Kind, s.Line, name)
	}
	return n, nil
}

// Str returns a string or category field, or "" when absent.
func (s *Sample) Str(name string) string {
	v, _ := s.Fields[name].Str()
	return v
}

// Subset copies the named fields into a new map. Absent fields are omitted.
func (s *Sample) Subset(names []string) map[string]Value {
	out := make(map[string]Value, len(names))
	for _, name := range names {
		if v, ok := s.Fields[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Reason explains why a line was skipped.
type Reason string

const (
	ReasonLabel    Reason = "label mismatch"
	ReasonShort    Reason = "too few fields"
	ReasonDecode   Reason = "decode failure"
	ReasonEncoding Reason = "invalid utf-8"
)

// SkipError reports a line that could not be turned into a Sample.
type SkipError struct {
	Kind   schema.Kind
	Line   int
	Reason Reason
	Field  string
	Err    error
}

func (e *SkipError) Error() string {
	msg := fmt.Sprintf("%s line %d: %s", e.Kind, e.Line, e.Reason)
	if e.Field != "" {
		msg += fmt.Sprintf(" (field %q)", e.Field)
	}
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *SkipError) Unwrap() error { return e.Err }

// Decoder turns raw lines of one kind into Samples according to a Plan.
type Decoder struct {
	plan *schema.Plan
}

// NewDecoder creates a decoder for kind that extracts the named fields.
// pid and epoch are always extracted.
func NewDecoder(kind schema.Kind, fields ...string) (*Decoder, error) {
	s, err := schema.For(kind)
	if err != nil {
		return nil, err
	}

	plan, err := s.Plan(append([]string{"label", "pid", "epoch"}, fields...)...)
	if err != nil {
		return nil, err
	}
	return &Decoder{plan: plan}, nil
}

// Kind returns the record kind this decoder accepts.
func (d *Decoder) Kind() schema.Kind {
	return d.plan.Kind
}

// Decode parses one data line. lineNo is only used for diagnostics.
// The returned error is always a *SkipError.
func (d *Decoder) Decode(lineNo int, line string) (*Sample, error) {
	tokens := Split(line, d.plan.Tokens())
	if len(tokens) == 0 || tokens[0] != string(d.plan.Kind) {
		return nil, &SkipError{Kind: d.plan.Kind, Line: lineNo, Reason: ReasonLabel}
	}
	if len(tokens) < d.plan.Tokens() {
		return nil, &SkipError{
			Kind:   d.plan.Kind,
			Line:   lineNo,
			Reason: ReasonShort,
			Err:    fmt.Errorf("got %d, need %d", len(tokens), d.plan.Tokens()),
		}
	}

	sample := &Sample{
		Kind:   d.plan.Kind,
		Line:   lineNo,
		Fields: make(map[string]Value, len(d.plan.Fields)),
	}
	for _, f := range d.plan.Fields {
		raw := tokens[f.Index]
		if f.Bracketed {
			raw = stripBrackets(raw)
		}

		v, err := decodeValue(f.Type, raw)
		if err != nil {
			return nil, &SkipError{Kind: d.plan.Kind, Line: lineNo, Reason: ReasonDecode, Field: f.Name, Err: err}
		}
		sample.Fields[f.Name] = v
	}
	return sample, nil
}

func decodeValue(typ schema.ValueType, raw string) (Value, error) {
	switch typ {
	case schema.TypeInt:
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil {
			return Value{}, err
		}
		return Int(n), nil
	case schema.TypeCategory:
		return Category(raw), nil
	default:
		return String(raw), nil
	}
}
