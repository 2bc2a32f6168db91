// Package diag collects the run-level diagnostic log: every skipped line and
// every recovered data anomaly is recorded here and logged through zap.
package diag

import (
	"sync"

	"go.uber.org/zap"

	"github.com/mrzor/atop-lifetimes/internal/schema"
)

// Category classifies a diagnostic entry.
type Category int

const (
	// CategoryMalformed marks a line that was skipped.
	CategoryMalformed Category = iota
	// CategoryAnomaly marks source data that was corrected automatically.
	CategoryAnomaly
)

func (c Category) String() string {
	switch c {
	case CategoryMalformed:
		return "malformed"
	case CategoryAnomaly:
		return "anomaly"
	default:
		return "unknown"
	}
}

// Entry is one diagnostic.
type Entry struct {
	Category Category
	Kind     schema.Kind
	Line     int // 1-based line number in the stream, 0 when not line-bound
	Reason   string
	Detail   string
}

// Log accumulates entries. It is safe for concurrent use.
type Log struct {
	mu      sync.Mutex
	entries []Entry
	logger  *zap.Logger
}

// NewLog creates a diagnostic log writing warnings to logger.
// A nil logger discards log output but still records entries.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// Malformed records a skipped line.
func (l *Log) Malformed(kind schema.Kind, line int, reason, detail string) {
	l.add(Entry{Category: CategoryMalformed, Kind: kind, Line: line, Reason: reason, Detail: detail})
}

// Anomaly records automatically corrected source data.
func (l *Log) Anomaly(kind schema.Kind, reason, detail string) {
	l.add(Entry{Category: CategoryAnomaly, Kind: kind, Reason: reason, Detail: detail})
}

func (l *Log) add(e Entry) {
	if l == nil {
		return
	}

	l.mu.Lock()
	l.entries = append(l.entries, e)
	l.mu.Unlock()

	fields := []zap.Field{
		zap.Stringer("category", e.Category),
		zap.String("kind", string(e.Kind)),
		zap.String("reason", e.Reason),
	}
	if e.Line > 0 {
		fields = append(fields, zap.Int("line", e.Line))
	}
	if e.Detail != "" {
		fields = append(fields, zap.String("detail", e.Detail))
	}
	msg := "skipping malformed line"
	if e.Category == CategoryAnomaly {
		msg = "corrected source anomaly"
	}
	l.logger.Warn(msg, fields...)
}

// Entries returns a copy of all recorded entries in insertion order.
func (l *Log) Entries() []Entry {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Entry, len(l.entries))
	copy(out, l.entries)
	return out
}

// Count returns how many entries of a category were recorded.
func (l *Log) Count(category Category) int {
	if l == nil {
		return 0
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, e := range l.entries {
		if e.Category == category {
			n++
		}
	}
	return n
}
