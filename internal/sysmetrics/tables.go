package sysmetrics

import (
	"strings"
	"unicode"

	"github.com/mrzor/atop-lifetimes/internal/stats"
)

// TimeLayout renders sample times. atopsar stamps carry no zone, so times
// are the log's wall clock.
const TimeLayout = "2006-01-02 15:04:05"

// TopTableName names the top-3 process table and its CSV file.
const TopTableName = "top_processes"

// FileStem turns a series name into a file name without extension, keeping
// letters, digits, '.', '_', '-' and spaces.
func FileStem(name string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || strings.ContainsRune("._- ", r) {
			return r
		}
		return -1
	}, name)
}

func metricHeader(m Metric) string {
	if m.Unit == "" {
		return m.Name
	}
	return m.Name + " (" + m.Unit + ")"
}

func parseMetricHeader(h string) Metric {
	if name, unit, ok := strings.Cut(h, " ("); ok && strings.HasSuffix(unit, ")") {
		return Metric{Name: name, Unit: strings.TrimSuffix(unit, ")")}
	}
	return Metric{Name: h}
}

// Table renders s with one row per point: the time, then one column per
// metric headed "name (unit)".
func (s *Series) Table() *stats.Table {
	t := &stats.Table{Name: FileStem(s.Name), Columns: []string{"timestamp"}}
	for _, m := range s.Metrics {
		t.Columns = append(t.Columns, metricHeader(m))
	}
	for _, p := range s.Points {
		row := make([]any, 0, len(t.Columns))
		row = append(row, p.At.Format(TimeLayout))
		for _, v := range p.Values {
			row = append(row, v)
		}
		t.Rows = append(t.Rows, row)
	}
	return t
}

// SamplesTable renders every series in long form, one row per value.
func (r *Report) SamplesTable() *stats.Table {
	t := &stats.Table{
		Name:    "system_samples",
		Columns: []string{"series", "timestamp", "metric", "unit", "value"},
	}
	for _, s := range r.Series {
		for _, p := range s.Points {
			at := p.At.Format(TimeLayout)
			for i, v := range p.Values {
				m := s.Metrics[i]
				t.Rows = append(t.Rows, []any{s.Name, at, m.Name, m.Unit, v})
			}
		}
	}
	return t
}

// TopTable renders the top-3 process entries.
func (r *Report) TopTable() *stats.Table {
	t := &stats.Table{
		Name:    TopTableName,
		Columns: []string{"timestamp", "resource", "rank", "pid", "command", "util"},
	}
	for _, e := range r.Top {
		t.Rows = append(t.Rows, []any{e.At.Format(TimeLayout), e.Resource, int64(e.Rank), e.PID, e.Command, e.Util})
	}
	return t
}

// OverviewTable summarizes each metric of each series: sample count, mean
// and maximum.
func (r *Report) OverviewTable() *stats.Table {
	t := &stats.Table{
		Name:    "system",
		Columns: []string{"series", "metric", "unit", "samples", "mean", "max"},
	}
	for _, s := range r.Series {
		for i, m := range s.Metrics {
			var sum, peak float64
			for j, p := range s.Points {
				v := p.Values[i]
				sum += v
				if j == 0 || v > peak {
					peak = v
				}
			}
			var mean any
			var top any
			if n := len(s.Points); n > 0 {
				mean, top = sum/float64(n), peak
			}
			t.Rows = append(t.Rows, []any{s.Name, m.Name, m.Unit, int64(len(s.Points)), mean, top})
		}
	}
	return t
}
