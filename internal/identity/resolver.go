// Package identity disambiguates recycled process ids.
//
// The kernel reuses PIDs, so a PID seen at two moments may name two unrelated
// processes. A Resolver hands out a fresh ID for every (PID, start time)
// lifetime and answers "which lifetime owned this PID at time T".
//
// Per PID the resolver keeps its lifetimes sorted by effective start time,
// most recent first. Resolve(pid, T) returns the lifetime with the greatest
// start <= T. When two lifetimes of one PID share a start time, the most
// recently created one wins.
package identity

import (
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/mrzor/atop-lifetimes/internal/diag"
	"github.com/mrzor/atop-lifetimes/internal/schema"
)

// ID is an opaque logical process identity. The zero ID means none.
type ID uint64

func (id ID) String() string {
	return "lt-" + strconv.FormatUint(uint64(id), 10)
}

// Lifetime is one resolved identity of a PID.
type Lifetime struct {
	ID ID
	// Start is the effective start: the declared start, clamped to the first
	// sighting when the log claims a start later than the sample reporting it.
	Start int64
	// Declared is the start time as written in the log.
	Declared int64
}

// Resolver maps (PID, timestamp) to logical identities.
// It is safe for concurrent use.
type Resolver struct {
	mu    sync.RWMutex
	next  ID
	byPID map[int64][]Lifetime // sorted by Start, descending
	log   *diag.Log
}

// NewResolver creates an empty resolver. Clamping warnings go to log, which may be nil.
func NewResolver(log *diag.Log) *Resolver {
	return &Resolver{
		byPID: make(map[int64][]Lifetime),
		log:   log,
	}
}

// Resolve returns the identity whose start is the greatest value <= ts among
// the lifetimes recorded for pid.
func (r *Resolver) Resolve(pid, ts int64) (ID, bool) {
	lt, ok := r.Lookup(pid, ts)
	return lt.ID, ok
}

// Lookup is Resolve returning the full lifetime.
func (r *Resolver) Lookup(pid, ts int64) (Lifetime, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	lts := r.byPID[pid]
	i := sort.Search(len(lts), func(i int) bool { return lts[i].Start <= ts })
	if i == len(lts) {
		return Lifetime{}, false
	}
	return lts[i], true
}

// Match resolves a primary-stream sighting to the lifetime of pid created
// with the same declared start, whatever lifetime owns pid at the sighting.
// atop reports an exited process after the one that recycled its PID in the
// same interval.
func (r *Resolver) Match(pid, start int64) (ID, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	for _, lt := range r.byPID[pid] {
		if lt.Declared == start {
			return lt.ID, true
		}
	}
	return 0, false
}

// Create allocates a fresh identity for pid. A start later than ts is clamped
// to ts and reported as an anomaly.
func (r *Resolver) Create(pid, start, ts int64) Lifetime {
	effective := start
	if start > ts {
		effective = ts
		r.log.Anomaly(schema.KindProcess, "start after sample",
			fmt.Sprintf("pid=%d start=%d epoch=%d, clamped to %d", pid, start, ts, ts))
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.next++
	lt := Lifetime{ID: r.next, Start: effective, Declared: start}

	lts := r.byPID[pid]
	// Insert before existing entries with an equal start so the newest wins.
	i := sort.Search(len(lts), func(i int) bool { return lts[i].Start <= effective })
	lts = append(lts, Lifetime{})
	copy(lts[i+1:], lts[i:])
	lts[i] = lt
	r.byPID[pid] = lts

	return lt
}

// Lifetimes returns the lifetimes of pid, most recent start first.
func (r *Resolver) Lifetimes(pid int64) []Lifetime {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]Lifetime, len(r.byPID[pid]))
	copy(out, r.byPID[pid])
	return out
}

// Len returns the number of identities created so far.
func (r *Resolver) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return int(r.next)
}
