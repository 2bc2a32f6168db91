// Package attributes evaluates user expressions over lifetimes and runs.
//
// Lifetime expressions see id, pid, tgid, name, command, args (the command
// split like a shell would), start, end, ended, duration, samples and stats
// (the derived attributes by key). They are evaluated using the expr language.
//
// Four evaluators:
//   - Evaluator: Custom attribute columns; map results expand to name.key
//   - Filter: Boolean selection of the lifetimes kept in the reports
//   - TraceIDEvaluator: Trace ID of the run span (32 hex chars)
//   - ParentIDEvaluator: Parent span ID of the run span (16 hex chars)
//
// Run expressions see host, source, first, last and lifetimes.
// Invalid trace IDs are hashed with SHA-256 to produce valid IDs.
// Invalid parent IDs result in a null parent (zero span ID).
package attributes
