package output

import (
	"context"
	"database/sql"
	"fmt"
	"strings"

	_ "modernc.org/sqlite"

	"github.com/mrzor/atop-lifetimes/internal/stats"
	"github.com/mrzor/atop-lifetimes/internal/sysmetrics"
)

// SQLiteFormatter writes the processes and pivot tables, and the system
// tables when there are any, into a SQLite database. Existing tables of the
// same name are replaced.
type SQLiteFormatter struct {
	path string
}

// NewSQLiteFormatter creates a formatter writing to the database at path.
func NewSQLiteFormatter(path string) *SQLiteFormatter {
	return &SQLiteFormatter{path: path}
}

// Write stores both tables in one transaction.
func (f *SQLiteFormatter) Write(ctx context.Context, sum *stats.Summary) error {
	return f.store(ctx, sum.DetailTable(), sum.PivotTable())
}

// WriteSystem stores the series in long form in system_samples, and the
// top-3 entries in top_processes.
func (f *SQLiteFormatter) WriteSystem(ctx context.Context, rep *sysmetrics.Report) error {
	return f.store(ctx, rep.SamplesTable(), rep.TopTable())
}

func (f *SQLiteFormatter) store(ctx context.Context, tables ...*stats.Table) (err error) {
	db, err := sql.Open("sqlite", f.path)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	for _, t := range tables {
		if err := writeTable(ctx, tx, t); err != nil {
			return err
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

func writeTable(ctx context.Context, tx *sql.Tx, t *stats.Table) error {
	name := quoteIdent(t.Name)
	if _, err := tx.ExecContext(ctx, "DROP TABLE IF EXISTS "+name); err != nil {
		return fmt.Errorf("failed to drop table %s: %w", t.Name, err)
	}

	defs := make([]string, len(t.Columns))
	placeholders := make([]string, len(t.Columns))
	for i, col := range t.Columns {
		defs[i] = quoteIdent(col) + " " + columnType(t, i)
		placeholders[i] = "?"
	}
	schema := fmt.Sprintf("CREATE TABLE %s (%s)", name, strings.Join(defs, ", "))
	if _, err := tx.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("failed to create table %s: %w", t.Name, err)
	}

	stmt, err := tx.PrepareContext(ctx, fmt.Sprintf("INSERT INTO %s VALUES (%s)", name, strings.Join(placeholders, ", ")))
	if err != nil {
		return fmt.Errorf("failed to prepare insert into %s: %w", t.Name, err)
	}
	defer stmt.Close()

	for _, row := range t.Rows {
		if _, err := stmt.ExecContext(ctx, row...); err != nil {
			return fmt.Errorf("failed to insert into %s: %w", t.Name, err)
		}
	}
	return nil
}

// columnType picks the SQLite type of column c from its first non-nil cell.
// Columns without any value are attribute columns and default to REAL.
func columnType(t *stats.Table, c int) string {
	for _, row := range t.Rows {
		switch row[c].(type) {
		case nil:
			continue
		case int64, bool:
			return "INTEGER"
		case float64:
			return "REAL"
		default:
			return "TEXT"
		}
	}
	return "REAL"
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
