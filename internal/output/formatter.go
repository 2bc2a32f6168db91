package output

import (
	"context"
	"strconv"

	"github.com/mrzor/atop-lifetimes/internal/stats"
	"github.com/mrzor/atop-lifetimes/internal/sysmetrics"
)

// Formatter writes the result of one aggregation pass.
type Formatter interface {
	Write(ctx context.Context, sum *stats.Summary) error
}

// SystemFormatter is implemented by formatters that can also write the
// system-wide series of a recording.
type SystemFormatter interface {
	WriteSystem(ctx context.Context, rep *sysmetrics.Report) error
}

// formatCell renders a stats.Table cell as plain text. Absent attributes
// render as the empty string.
func formatCell(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}

// nonEmptyColumns returns the indexes of the columns holding at least one
// value, always keeping the first fixed columns.
func nonEmptyColumns(t *stats.Table, fixed int) []int {
	var keep []int
	for c := range t.Columns {
		if c < fixed {
			keep = append(keep, c)
			continue
		}
		for _, row := range t.Rows {
			if row[c] != nil {
				keep = append(keep, c)
				break
			}
		}
	}
	return keep
}
