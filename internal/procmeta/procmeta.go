package procmeta

import (
	"maps"
	"slices"
	"sort"

	"github.com/mrzor/atop-lifetimes/internal/identity"
	"github.com/mrzor/atop-lifetimes/internal/record"
)

// FieldSet is the set of secondary fields reported for one epoch.
type FieldSet map[string]record.Value

// Int returns an integer field of the set.
func (fs FieldSet) Int(name string) (int64, bool) {
	return fs[name].Int64()
}

// TimeSeries maps sample epochs to the fields reported at that epoch.
type TimeSeries struct {
	points map[int64]FieldSet
	epochs []int64 // sorted ascending
}

func newTimeSeries() *TimeSeries {
	return &TimeSeries{points: make(map[int64]FieldSet)}
}

// Merge unions fields into the set stored at epoch. On a key collision the
// later value wins.
func (ts *TimeSeries) Merge(epoch int64, fields map[string]record.Value) {
	fs, ok := ts.points[epoch]
	if !ok {
		fs = make(FieldSet, len(fields))
		ts.points[epoch] = fs

		i := sort.Search(len(ts.epochs), func(i int) bool { return ts.epochs[i] >= epoch })
		ts.epochs = slices.Insert(ts.epochs, i, epoch)
	}
	maps.Copy(fs, fields)
}

// Len returns the number of epochs in the series.
func (ts *TimeSeries) Len() int {
	return len(ts.epochs)
}

// Epochs returns the sample epochs in ascending order.
func (ts *TimeSeries) Epochs() []int64 {
	return slices.Clone(ts.epochs)
}

// At returns the fields reported at epoch.
func (ts *TimeSeries) At(epoch int64) (FieldSet, bool) {
	fs, ok := ts.points[epoch]
	return fs, ok
}

// MaxEpoch returns the latest epoch; ok is false for an empty series.
func (ts *TimeSeries) MaxEpoch() (epoch int64, ok bool) {
	if len(ts.epochs) == 0 {
		return 0, false
	}
	return ts.epochs[len(ts.epochs)-1], true
}

// Rows calls fn for every epoch in ascending order.
func (ts *TimeSeries) Rows(fn func(epoch int64, fields FieldSet)) {
	for _, e := range ts.epochs {
		fn(e, ts.points[e])
	}
}

// Record is one process lifetime.
type Record struct {
	ID      identity.ID
	PID     int64 // informational; not unique across records
	TGID    int64
	Name    string
	Command string
	Start   int64 // effective start epoch
	End     int64 // valid only when HasEnd
	HasEnd  bool
	// LastSeen is the latest epoch at which the primary stream reported this lifetime.
	LastSeen int64
	Series   *TimeSeries
}

// EndOf returns the recorded end when the primary stream saw the process
// exit. Otherwise it infers one: the latest sample epoch plus one, or, for a
// lifetime without samples, the latest primary sighting plus one.
func (r *Record) EndOf() int64 {
	if r.HasEnd {
		return r.End
	}
	if e, ok := r.Series.MaxEpoch(); ok {
		return e + 1
	}
	return r.LastSeen + 1
}

// Duration returns EndOf() - Start.
func (r *Record) Duration() int64 {
	return r.EndOf() - r.Start
}
