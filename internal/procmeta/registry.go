package procmeta

import (
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/mrzor/atop-lifetimes/internal/identity"
	"github.com/mrzor/atop-lifetimes/internal/record"
	"github.com/mrzor/atop-lifetimes/internal/schema"
)

var (
	// ErrUnknownProcess is returned when a secondary sample references a
	// PID/epoch that no lifetime owns. It means the primary stream was not
	// fully ingested first.
	ErrUnknownProcess = errors.New("no process lifetime for sample")
	// ErrSealed is returned when ingesting into a sealed registry.
	ErrSealed = errors.New("registry is sealed")
	// ErrNotSealed is returned when reading all records while ingestion may still run.
	ErrNotSealed = errors.New("registry is still ingesting")
)

// PrimaryFields are the PRG fields IngestPrimary needs.
var PrimaryFields = []string{"start", "name", "command", "tgid", "state"}

// Merge is a secondary sample already resolved to a lifetime.
type Merge struct {
	ID     identity.ID
	Epoch  int64
	Fields map[string]record.Value
}

// Registry owns every Record of a run and is its only writer.
type Registry struct {
	mu       sync.RWMutex
	resolver *identity.Resolver
	records  map[identity.ID]*Record
	order    []identity.ID
	sealed   bool
}

// NewRegistry creates an empty registry resolving identities with resolver.
func NewRegistry(resolver *identity.Resolver) *Registry {
	return &Registry{
		resolver: resolver,
		records:  make(map[identity.ID]*Record),
	}
}

// Resolver returns the identity resolver backing the registry.
func (r *Registry) Resolver() *identity.Resolver {
	return r.resolver
}

// IngestPrimary records one PRG sample (command). It returns the record and
// whether it was created by this call. A state containing "E" marks the
// lifetime as ended at the sample epoch.
func (r *Registry) IngestPrimary(s *record.Sample) (*Record, bool, error) {
	if s.Kind != schema.KindProcess {
		return nil, false, fmt.Errorf("ingest primary: got %s sample", s.Kind)
	}
	start, err := s.Int("start")
	if err != nil {
		return nil, false, err
	}
	tgid, err := s.Int("tgid")
	if err != nil {
		return nil, false, err
	}
	pid, epoch := s.PID(), s.Epoch()

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return nil, false, ErrSealed
	}

	created := false
	id, ok := r.resolver.Match(pid, start)
	if !ok {
		lt := r.resolver.Create(pid, start, epoch)
		id = lt.ID
		r.records[id] = &Record{
			ID:       id,
			PID:      pid,
			TGID:     tgid,
			Name:     s.Str("name"),
			Command:  s.Str("command"),
			Start:    lt.Start,
			LastSeen: epoch,
			Series:   newTimeSeries(),
		}
		r.order = append(r.order, id)
		created = true
	}

	rec := r.records[id]
	if epoch > rec.LastSeen {
		rec.LastSeen = epoch
	}
	if rec.Command == "" {
		rec.Command = s.Str("command")
	}
	if strings.Contains(s.Str("state"), "E") {
		rec.End = epoch
		rec.HasEnd = true
	}
	return rec, created, nil
}

// Resolve turns a secondary sample into a Merge without touching any record.
func (r *Registry) Resolve(s *record.Sample, fields []string) (Merge, error) {
	pid, epoch := s.PID(), s.Epoch()
	id, ok := r.resolver.Resolve(pid, epoch)
	if !ok {
		return Merge{}, fmt.Errorf("%s line %d pid=%d epoch=%d: %w", s.Kind, s.Line, pid, epoch, ErrUnknownProcess)
	}
	return Merge{ID: id, Epoch: epoch, Fields: s.Subset(fields)}, nil
}

// IngestSecondary merges the named fields of a secondary sample into the
// time series of the lifetime owning its PID at its epoch (command).
func (r *Registry) IngestSecondary(s *record.Sample, fields []string) error {
	m, err := r.Resolve(s, fields)
	if err != nil {
		return err
	}
	return r.Apply([]Merge{m})
}

// Apply merges a batch of resolved samples under a single lock (command).
func (r *Registry) Apply(merges []Merge) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sealed {
		return ErrSealed
	}

	for _, m := range merges {
		rec, ok := r.records[m.ID]
		if !ok {
			return fmt.Errorf("%s epoch=%d: %w", m.ID, m.Epoch, ErrUnknownProcess)
		}
		rec.Series.Merge(m.Epoch, m.Fields)
	}
	return nil
}

// Seal ends ingestion (command). Further ingestion fails with ErrSealed.
func (r *Registry) Seal() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sealed = true
}

// Sealed reports whether ingestion has ended (query).
func (r *Registry) Sealed() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.sealed
}

// Get retrieves a record (query). Returns nil if the identity is unknown.
func (r *Registry) Get(id identity.ID) *Record {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.records[id]
}

// Len returns the number of records (query).
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.order)
}

// Records returns every record in creation order (query). Only a sealed
// registry exposes its records, so readers never observe a half-merged run.
func (r *Registry) Records() ([]*Record, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.sealed {
		return nil, ErrNotSealed
	}

	out := make([]*Record, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.records[id])
	}
	return out, nil
}

// EndOf returns the recorded or inferred end of a lifetime (query).
func (r *Registry) EndOf(id identity.ID) (int64, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	rec, ok := r.records[id]
	if !ok {
		return 0, fmt.Errorf("%s: %w", id, ErrUnknownProcess)
	}
	return rec.EndOf(), nil
}
