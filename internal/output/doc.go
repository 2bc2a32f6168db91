// Package output writes an aggregation Summary to its destinations.
//
// Every formatter consumes the same stats.Summary:
//   - TableFormatter: text tables for a terminal (pivot, and details on request)
//   - CSVFormatter: processes.csv and pivot.csv in a directory
//   - SQLiteFormatter: processes and pivot tables in a SQLite database
//   - OTELFormatter: one span per lifetime under a run span
//
// Formatters do not compute anything. Derived attributes come from the
// stats package and user-defined ones from attributes, through the
// enricher hook of stats.Aggregate.
package output
