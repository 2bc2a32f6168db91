package stats

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/mrzor/atop-lifetimes/internal/logutil"
	"github.com/mrzor/atop-lifetimes/internal/procmeta"
)

// Detail is one lifetime with its derived attributes.
type Detail struct {
	Record *procmeta.Record
	End    int64 // Record.EndOf()
	Attrs  Attributes
	// Extra holds user-defined attributes attached by an enricher.
	Extra []attribute.KeyValue
}

// PivotRow aggregates every kept lifetime sharing one name.
type PivotRow struct {
	Name      string
	Instances int
	Attrs     Attributes
}

// Summary is the result of one aggregation pass.
type Summary struct {
	Details []*Detail
	Pivot   []PivotRow // sorted by name
	// ExtraColumns is the sorted union of Extra keys over all details, minus
	// names shadowing a detail column.
	ExtraColumns []string
}

// Table is a serializer-neutral view: ordered columns and rows of cells.
// Cells are string, int64, bool, float64 or nil for an absent attribute.
type Table struct {
	Name    string
	Columns []string
	Rows    [][]any
}

// Option configures Aggregate.
type Option func(*aggregator)

type aggregator struct {
	enrichers []func(*Detail) error
	filter    func(*Detail) (bool, error)
}

// WithEnricher runs fn on every detail after its attributes are computed and
// before filtering.
func WithEnricher(fn func(*Detail) error) Option {
	return func(a *aggregator) {
		a.enrichers = append(a.enrichers, fn)
	}
}

// WithFilter keeps only the details for which fn returns true. Dropped
// lifetimes appear in neither table.
func WithFilter(fn func(*Detail) (bool, error)) Option {
	return func(a *aggregator) {
		a.filter = fn
	}
}

// Aggregate walks every record of a sealed registry once and builds the
// detail and pivot results.
func Aggregate(reg *procmeta.Registry, opts ...Option) (*Summary, error) {
	var agg aggregator
	for _, opt := range opts {
		opt(&agg)
	}

	records, err := reg.Records()
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate: %w", err)
	}

	sum := &Summary{Details: make([]*Detail, 0, len(records))}
	extra := make(map[string]struct{})
	for _, rec := range records {
		d := &Detail{Record: rec, End: rec.EndOf(), Attrs: Compute(rec)}
		for _, enrich := range agg.enrichers {
			if err := enrich(d); err != nil {
				return nil, fmt.Errorf("failed to enrich %s: %w", rec.ID, err)
			}
		}
		if agg.filter != nil {
			keep, err := agg.filter(d)
			if err != nil {
				return nil, fmt.Errorf("failed to filter %s: %w", rec.ID, err)
			}
			if !keep {
				continue
			}
		}
		for _, kv := range d.Extra {
			extra[string(kv.Key)] = struct{}{}
		}
		sum.Details = append(sum.Details, d)
	}

	sum.ExtraColumns = extraColumns(extra)
	sum.Pivot = Pivot(sum.Details)

	logutil.GetLogger().Debug("aggregated lifetimes",
		zap.Int("records", len(records)),
		zap.Int("kept", len(sum.Details)),
		zap.Int("names", len(sum.Pivot)))
	return sum, nil
}

type pivotAcc struct {
	instances int
	values    Attributes
	counts    map[Key]int
}

// Pivot groups details by process name and combines each key according to
// its Aggregation. A mean is taken over the lifetimes that have the key.
func Pivot(details []*Detail) []PivotRow {
	groups := make(map[string]*pivotAcc)
	for _, d := range details {
		name := d.Record.Name
		g, ok := groups[name]
		if !ok {
			g = &pivotAcc{values: make(Attributes), counts: make(map[Key]int)}
			groups[name] = g
		}
		g.instances++

		for k, v := range d.Attrs {
			cur, seen := g.values[k]
			switch {
			case !seen:
				g.values[k] = v
			case k.Aggregation() == AggMax:
				g.values[k] = max(cur, v)
			default:
				g.values[k] = cur + v
			}
			g.counts[k]++
		}
	}

	rows := make([]PivotRow, 0, len(groups))
	for name, g := range groups {
		for k, n := range g.counts {
			if k.Aggregation() == AggMean {
				g.values[k] /= float64(n)
			}
		}
		rows = append(rows, PivotRow{Name: name, Instances: g.instances, Attrs: g.values})
	}
	slices.SortFunc(rows, func(a, b PivotRow) int {
		switch {
		case a.Name < b.Name:
			return -1
		case a.Name > b.Name:
			return 1
		}
		return 0
	})
	return rows
}

// DetailColumns are the base columns of the detail table, before any extra
// and derived attribute columns.
var DetailColumns = []string{"id", "pid", "tgid", "name", "command", "start", "end", "ended"}

// ReservedColumn reports whether name is a base or derived column of the
// detail table. Names compare case-insensitively, as SQLite identifiers do.
func ReservedColumn(name string) bool {
	for _, c := range DetailColumns {
		if strings.EqualFold(c, name) {
			return true
		}
	}
	for _, k := range Keys {
		if strings.EqualFold(string(k), name) {
			return true
		}
	}
	return false
}

// extraColumns sorts the extra keys into distinct columns.
func extraColumns(keys map[string]struct{}) []string {
	sorted := make([]string, 0, len(keys))
	for k := range keys {
		sorted = append(sorted, k)
	}
	sort.Strings(sorted)
	return distinctExtras(sorted)
}

// distinctExtras drops reserved names and case-insensitive duplicates so a
// table never repeats a column.
func distinctExtras(names []string) []string {
	seen := make(map[string]bool, len(names))
	cols := make([]string, 0, len(names))
	for _, k := range names {
		folded := strings.ToLower(k)
		if ReservedColumn(k) || seen[folded] {
			logutil.GetLogger().Warn("dropping extra attribute shadowing another column", zap.String("attribute", k))
			continue
		}
		seen[folded] = true
		cols = append(cols, k)
	}
	return cols
}

// DetailTable renders one row per kept lifetime.
func (s *Summary) DetailTable() *Table {
	t := &Table{Name: "processes"}
	t.Columns = append(t.Columns, DetailColumns...)
	extras := distinctExtras(s.ExtraColumns)
	t.Columns = append(t.Columns, extras...)
	for _, k := range Keys {
		t.Columns = append(t.Columns, string(k))
	}

	for _, d := range s.Details {
		rec := d.Record
		row := []any{rec.ID.String(), rec.PID, rec.TGID, rec.Name, rec.Command, rec.Start, d.End, rec.HasEnd}

		extra := make(map[string]string, len(d.Extra))
		for _, kv := range d.Extra {
			extra[string(kv.Key)] = kv.Value.Emit()
		}
		for _, col := range extras {
			if v, ok := extra[col]; ok {
				row = append(row, v)
			} else {
				row = append(row, nil)
			}
		}
		t.Rows = append(t.Rows, appendAttrs(row, d.Attrs))
	}
	return t
}

// PivotTable renders one row per distinct process name.
func (s *Summary) PivotTable() *Table {
	t := &Table{Name: "pivot", Columns: []string{"name", "instances"}}
	for _, k := range Keys {
		t.Columns = append(t.Columns, string(k))
	}
	for _, p := range s.Pivot {
		t.Rows = append(t.Rows, appendAttrs([]any{p.Name, int64(p.Instances)}, p.Attrs))
	}
	return t
}

func appendAttrs(row []any, attrs Attributes) []any {
	for _, k := range Keys {
		if v, ok := attrs[k]; ok {
			row = append(row, v)
		} else {
			row = append(row, nil)
		}
	}
	return row
}
