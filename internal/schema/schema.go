// Package schema describes the typed field layout of atop parseable-output records.
package schema

import (
	"errors"
	"fmt"
)

// Kind is the record label that opens every data line (PRG, PRC, ...).
type Kind string

// Record kinds handled by the reconstruction pipeline.
const (
	KindProcess     Kind = "PRG"
	KindCPU         Kind = "PRC"
	KindMemory      Kind = "PRM"
	KindAccelerator Kind = "PRE"
	KindStorage     Kind = "PRD"
)

// Boundary markers emitted by atop between samples.
const (
	MarkerSep   = "SEP"
	MarkerReset = "RESET"
)

var (
	// ErrUnknownKind is returned for labels outside the five supported kinds.
	ErrUnknownKind = errors.New("unknown record kind")
	// ErrUnknownField is returned when a plan references a field the kind does not have.
	ErrUnknownField = errors.New("unknown field")
)

// ValueType is the decoded type of a field.
type ValueType int

const (
	TypeInt ValueType = iota
	TypeString
	TypeCategory
)

func (t ValueType) String() string {
	switch t {
	case TypeInt:
		return "int"
	case TypeString:
		return "string"
	case TypeCategory:
		return "category"
	default:
		return "unknown"
	}
}

// Field is one positional column of a record kind.
type Field struct {
	Name      string
	Index     int
	Type      ValueType
	Bracketed bool // raw token is wrapped in parentheses
}

// Schema is the ordered field list of one record kind.
type Schema struct {
	Kind   Kind
	Fields []Field
	byName map[string]int
}

// Field looks up a field by name.
func (s *Schema) Field(name string) (Field, bool) {
	i, ok := s.byName[name]
	if !ok {
		return Field{}, false
	}
	return s.Fields[i], true
}

// Plan is the minimal set of fields a caller wants decoded from a line.
type Plan struct {
	Kind     Kind
	Fields   []Field
	MaxIndex int
}

// Tokens returns how many leading tokens a line must yield to satisfy the plan.
func (p *Plan) Tokens() int {
	return p.MaxIndex + 1
}

// Plan builds an extraction plan for the given field names.
// Duplicate names are collapsed; order follows the request.
func (s *Schema) Plan(names ...string) (*Plan, error) {
	plan := &Plan{Kind: s.Kind, MaxIndex: -1}
	seen := make(map[string]bool, len(names))
	for _, name := range names {
		if seen[name] {
			continue
		}
		seen[name] = true

		f, ok := s.Field(name)
		if !ok {
			return nil, fmt.Errorf("%s %q: %w", s.Kind, name, ErrUnknownField)
		}
		plan.Fields = append(plan.Fields, f)
		if f.Index > plan.MaxIndex {
			plan.MaxIndex = f.Index
		}
	}
	return plan, nil
}

// For returns the schema of a record kind.
func For(kind Kind) (*Schema, error) {
	s, ok := registry[kind]
	if !ok {
		return nil, fmt.Errorf("%q: %w", kind, ErrUnknownKind)
	}
	return s, nil
}

// MustFor is For for the built-in kinds; it panics on an unknown kind.
func MustFor(kind Kind) *Schema {
	s, err := For(kind)
	if err != nil {
		panic(err)
	}
	return s
}

// Secondary returns the kinds merged into an existing identity's time series.
func Secondary() []Kind {
	return []Kind{KindCPU, KindMemory, KindAccelerator, KindStorage}
}

// All returns every supported kind, primary first.
func All() []Kind {
	return append([]Kind{KindProcess}, Secondary()...)
}
