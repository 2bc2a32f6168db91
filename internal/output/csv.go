package output

import (
	"context"
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"

	"github.com/mrzor/atop-lifetimes/internal/stats"
	"github.com/mrzor/atop-lifetimes/internal/sysmetrics"
)

// CSVFormatter writes processes.csv and pivot.csv into a directory, and the
// system series under its system/ subdirectory.
type CSVFormatter struct {
	dir string
}

// NewCSVFormatter creates a formatter writing into dir, created if missing.
func NewCSVFormatter(dir string) *CSVFormatter {
	return &CSVFormatter{dir: dir}
}

// Write writes both tables.
func (f *CSVFormatter) Write(_ context.Context, sum *stats.Summary) error {
	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create CSV directory: %w", err)
	}
	for _, t := range []*stats.Table{sum.DetailTable(), sum.PivotTable()} {
		if err := writeCSV(filepath.Join(f.dir, t.Name+".csv"), t); err != nil {
			return err
		}
	}
	return nil
}

// WriteSystem writes one file per series and top_processes.csv when the
// report has top-3 entries.
func (f *CSVFormatter) WriteSystem(_ context.Context, rep *sysmetrics.Report) error {
	dir := filepath.Join(f.dir, sysmetrics.Dir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create CSV directory: %w", err)
	}
	tables := make([]*stats.Table, 0, len(rep.Series)+1)
	for _, s := range rep.Series {
		tables = append(tables, s.Table())
	}
	if len(rep.Top) > 0 {
		tables = append(tables, rep.TopTable())
	}
	for _, t := range tables {
		if err := writeCSV(filepath.Join(dir, t.Name+".csv"), t); err != nil {
			return err
		}
	}
	return nil
}

func writeCSV(path string, t *stats.Table) (err error) {
	file, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", path, err)
	}
	defer func() {
		if cerr := file.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("failed to close %s: %w", path, cerr)
		}
	}()

	w := csv.NewWriter(file)
	if err := w.Write(t.Columns); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	record := make([]string, len(t.Columns))
	for _, row := range t.Rows {
		for i, cell := range row {
			record[i] = formatCell(cell)
		}
		if err := w.Write(record); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}
