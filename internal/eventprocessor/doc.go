// Package eventprocessor runs one ingestion pass over atop parseable output.
//
// Architecture:
//
//	┌─────────────────────────────────────────┐
//	│   Input: lines per kind (PRG PRC ...)   │
//	└─────────────────┬───────────────────────┘
//	                  │
//	                  ▼
//	┌─────────────────────────────────────────┐
//	│   eventprocessor                        │
//	│   - Primary stream first                │
//	│   - Then each secondary stream          │
//	│   - Seals the registry                  │
//	└─────────┬───────────────────────────────┘
//	          │
//	          ├──→ PRG ────────────→ procmeta.Registry.IngestPrimary
//	          │                      - Creates lifetimes (identity.Resolver)
//	          │                      - Records start and end
//	          │
//	          ├──→ PRC PRM PRE PRD → procmeta.Registry.IngestSecondary
//	          │    (sequential)      - Resolves pid+epoch to a lifetime
//	          │                      - Union-merges fields per epoch
//	          │
//	          └──→ PRC PRM PRE PRD → Registry.Resolve into private buffers
//	               (parallel)        - One goroutine per stream (errgroup)
//	                                 - Registry.Apply per buffer
//
// Malformed lines never stop a run: they are logged and recorded in the
// diag.Log. A secondary sample that matches no lifetime does.
package eventprocessor
