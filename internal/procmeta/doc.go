// Package procmeta owns the per-lifetime process records.
//
// A Record holds the identity metadata declared by the primary (PRG) stream
// and an epoch-indexed time series merged from the secondary streams
// (PRC, PRM, PRE, PRD).
//
// Registry provides command-query separation:
//
// Commands (mutations):
//   - IngestPrimary(sample) - Create or update a record from a PRG line
//   - IngestSecondary(sample, fields) - Merge a sample into a record's series
//   - Apply(merges) - Merge a pre-resolved batch atomically
//   - Seal() - End ingestion
//
// Queries (read-only):
//   - Get(id) - Retrieve a record
//   - Records() - All records in creation order (sealed registries only)
//   - EndOf(id) - Recorded or inferred end of a lifetime
//
// The whole primary stream must be ingested before any secondary sample: a
// secondary sample can only join an existing lifetime, never create one. The
// registry does not enforce this ordering; eventprocessor does.
//
// Thread-safe with RWMutex for concurrent access.
package procmeta
