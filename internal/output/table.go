package output

import (
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"

	"github.com/mrzor/atop-lifetimes/internal/stats"
	"github.com/mrzor/atop-lifetimes/internal/sysmetrics"
	"github.com/mrzor/atop-lifetimes/internal/timesync"
)

// TableFormatter renders human-readable text tables. Attribute columns that
// no row fills are left out.
type TableFormatter struct {
	out    io.Writer
	detail bool
	conv   *timesync.Converter
}

// NewTableFormatter creates a formatter writing the pivot table to out, and
// the detail table too when detail is set.
func NewTableFormatter(out io.Writer, detail bool, conv *timesync.Converter) *TableFormatter {
	if conv == nil {
		conv = timesync.NewConverter()
	}
	return &TableFormatter{out: out, detail: detail, conv: conv}
}

// Write renders the tables.
func (f *TableFormatter) Write(_ context.Context, sum *stats.Summary) error {
	pivot := sum.PivotTable()
	f.render(pivot, 2, fmt.Sprintf("%d lifetimes, %d names", len(sum.Details), len(sum.Pivot)))

	if f.detail {
		detail := sum.DetailTable()
		f.render(detail, len(stats.DetailColumns), "lifetimes")
	}
	return nil
}

// WriteSystem renders one row per series metric, and the top-3 entries
// when detail is set.
func (f *TableFormatter) WriteSystem(_ context.Context, rep *sysmetrics.Report) error {
	f.render(rep.OverviewTable(), 4, fmt.Sprintf("%d system series", len(rep.Series)))
	if f.detail && len(rep.Top) > 0 {
		f.render(rep.TopTable(), 6, "top processes")
	}
	return nil
}

func (f *TableFormatter) render(t *stats.Table, fixed int, caption string) {
	cols := nonEmptyColumns(t, fixed)

	table := tablewriter.NewWriter(f.out)
	defer table.Render()

	header := make([]string, len(cols))
	for i, c := range cols {
		header[i] = t.Columns[c]
	}
	table.SetHeader(header)
	table.SetCaption(true, caption)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	for _, row := range t.Rows {
		stringRow := make([]string, len(cols))
		for i, c := range cols {
			stringRow[i] = f.humanize(t.Columns[c], row[c])
		}
		table.Append(stringRow)
	}
}

// humanize formats one cell for a terminal, by column name.
func (f *TableFormatter) humanize(column string, v any) string {
	switch column {
	case "start", "end":
		if epoch, ok := v.(int64); ok {
			return f.conv.Format(epoch)
		}
	case string(stats.KeyDuration):
		if seconds, ok := v.(float64); ok {
			return (time.Duration(seconds) * time.Second).String()
		}
	case "mean", "max", "util":
		if n, ok := v.(float64); ok {
			return humanize.CommafWithDigits(n, 2)
		}
	}

	n, ok := v.(float64)
	if !ok {
		return formatCell(v)
	}
	if strings.Contains(column, "kbytes") || strings.HasPrefix(column, "mem-util-kb") {
		return kilobytes(n)
	}
	return humanize.Commaf(n)
}

func kilobytes(n float64) string {
	if n < 0 {
		return "-" + humanize.IBytes(uint64(-n)*1024)
	}
	return humanize.IBytes(uint64(n) * 1024)
}
