package record

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/mrzor/atop-lifetimes/internal/diag"
	"github.com/mrzor/atop-lifetimes/internal/schema"
)

// Result is the outcome of one data line: either a Sample or a skip.
type Result struct {
	Sample *Sample
	Skip   *SkipError
}

// Stream walks the lines of one record kind.
//
// Lines before the first SEP marker hold counters accumulated since boot and
// are discarded. SEP and RESET markers are never yielded. Blank lines are
// ignored.
type Stream struct {
	decoder *Decoder
	log     *diag.Log
}

// NewStream creates a stream that decodes with dec and records skips in log.
func NewStream(dec *Decoder, log *diag.Log) *Stream {
	return &Stream{decoder: dec, log: log}
}

// Results decodes every data line and returns one Result per data line, in
// order. Skips are returned, not logged.
func (s *Stream) Results(lines []string) []Result {
	var out []Result
	_ = s.walk(lines, func(r Result) error {
		out = append(out, r)
		return nil
	})
	return out
}

// Each calls fn for every successfully decoded sample, in file order.
// Skipped lines are recorded in the diagnostic log. Iteration stops at the
// first error returned by fn.
func (s *Stream) Each(lines []string, fn func(*Sample) error) error {
	return s.walk(lines, func(r Result) error {
		if r.Skip != nil {
			s.log.Malformed(r.Skip.Kind, r.Skip.Line, string(r.Skip.Reason), skipDetail(r.Skip))
			return nil
		}
		return fn(r.Sample)
	})
}

func (s *Stream) walk(lines []string, fn func(Result) error) error {
	kind := s.decoder.Kind()
	seenSep := false

	for i, line := range lines {
		lineNo := i + 1

		if isMarker(line, schema.MarkerSep) {
			seenSep = true
			continue
		}
		if !seenSep || isMarker(line, schema.MarkerReset) {
			continue
		}
		if strings.TrimSpace(line) == "" {
			continue
		}

		var r Result
		if !utf8.ValidString(line) {
			r.Skip = &SkipError{Kind: kind, Line: lineNo, Reason: ReasonEncoding}
		} else {
			sample, err := s.decoder.Decode(lineNo, line)
			if err != nil {
				var skip *SkipError
				if !errors.As(err, &skip) {
					skip = &SkipError{Kind: kind, Line: lineNo, Reason: ReasonDecode, Err: err}
				}
				r.Skip = skip
			} else {
				r.Sample = sample
			}
		}

		if err := fn(r); err != nil {
			return err
		}
	}
	return nil
}

func isMarker(line, marker string) bool {
	if !strings.HasPrefix(line, marker) {
		return false
	}
	rest := line[len(marker):]
	return rest == "" || rest[0] == ' ' || rest[0] == '\t'
}

func skipDetail(e *SkipError) string {
	msg := ""
	if e.Field != "" {
		msg = "field " + e.Field
	}
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}
	return msg
}
