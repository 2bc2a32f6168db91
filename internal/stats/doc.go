// Package stats derives per-lifetime statistics and the by-name pivot.
//
//	Registry (sealed) ──► Compute(record) ──► enrichers ──► filter ──► Details
//	                                                                     │
//	                                                                     ▼
//	                                                          Pivot (group by name)
//
// Derived attributes use a fixed key set (Keys). The key suffix selects the
// pivot aggregation: "-sum" and probable-duration are summed, "-max" keeps
// the maximum and "-mean" is averaged over the lifetimes that carry the key.
package stats
