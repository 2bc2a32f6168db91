package eventprocessor

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrzor/atop-lifetimes/internal/diag"
	"github.com/mrzor/atop-lifetimes/internal/logutil"
	"github.com/mrzor/atop-lifetimes/internal/procmeta"
	"github.com/mrzor/atop-lifetimes/internal/record"
	"github.com/mrzor/atop-lifetimes/internal/schema"
	"github.com/mrzor/atop-lifetimes/internal/stats"
)

// Input holds the raw lines of one run, per record kind. A missing kind is
// treated as an empty stream.
type Input map[schema.Kind][]string

// Report counts the samples ingested per kind.
type Report struct {
	Samples   map[schema.Kind]int
	Lifetimes int
}

// Processor drives ingestion of one run into a Registry.
type Processor struct {
	registry *procmeta.Registry
	log      *diag.Log
	fields   map[schema.Kind][]string
	parallel bool
}

// Option configures a Processor.
type Option func(*Processor)

// WithParallel decodes the secondary streams concurrently.
func WithParallel(parallel bool) Option {
	return func(p *Processor) {
		p.parallel = parallel
	}
}

// WithFields overrides the fields merged from one secondary kind.
func WithFields(kind schema.Kind, fields ...string) Option {
	return func(p *Processor) {
		p.fields[kind] = fields
	}
}

// NewProcessor creates a processor feeding reg. Skipped lines are recorded in log.
func NewProcessor(reg *procmeta.Registry, log *diag.Log, opts ...Option) *Processor {
	p := &Processor{
		registry: reg,
		log:      log,
		fields:   make(map[schema.Kind][]string, len(stats.Inputs)),
	}
	for kind, fields := range stats.Inputs {
		p.fields[kind] = fields
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Run ingests the primary stream, then every secondary stream, then seals
// the registry. A secondary sample that matches no lifetime aborts the run
// with procmeta.ErrUnknownProcess.
func (p *Processor) Run(ctx context.Context, in Input) (*Report, error) {
	logger := logutil.GetLogger()
	report := &Report{Samples: make(map[schema.Kind]int, len(in))}

	n, err := p.ingestPrimary(in[schema.KindProcess])
	if err != nil {
		return nil, err
	}
	report.Samples[schema.KindProcess] = n
	logger.Info("ingested primary stream",
		zap.Int("samples", n),
		zap.Int("lifetimes", p.registry.Len()))

	if p.parallel {
		err = p.ingestParallel(ctx, in, report)
	} else {
		err = p.ingestSequential(ctx, in, report)
	}
	if err != nil {
		return nil, err
	}

	p.registry.Seal()
	report.Lifetimes = p.registry.Len()
	return report, nil
}

func (p *Processor) ingestPrimary(lines []string) (int, error) {
	dec, err := record.NewDecoder(schema.KindProcess, procmeta.PrimaryFields...)
	if err != nil {
		return 0, fmt.Errorf("failed to create primary decoder: %w", err)
	}

	n := 0
	err = record.NewStream(dec, p.log).Each(lines, func(s *record.Sample) error {
		if _, _, err := p.registry.IngestPrimary(s); err != nil {
			return fmt.Errorf("failed to ingest %s line %d: %w", s.Kind, s.Line, err)
		}
		n++
		return nil
	})
	return n, err
}

func (p *Processor) ingestSequential(ctx context.Context, in Input, report *Report) error {
	for _, kind := range schema.Secondary() {
		if err := ctx.Err(); err != nil {
			return err
		}
		stream, fields, err := p.stream(kind)
		if err != nil {
			return err
		}

		n := 0
		err = stream.Each(in[kind], func(s *record.Sample) error {
			n++
			return p.registry.IngestSecondary(s, fields)
		})
		if err != nil {
			return fmt.Errorf("failed to ingest %s stream: %w", kind, err)
		}
		report.Samples[kind] = n
		logSecondary(kind, n)
	}
	return nil
}

// ingestParallel resolves each secondary stream into a private buffer in its
// own goroutine and applies every buffer under one registry lock.
func (p *Processor) ingestParallel(ctx context.Context, in Input, report *Report) error {
	g, ctx := errgroup.WithContext(ctx)
	var mu sync.Mutex

	for _, kind := range schema.Secondary() {
		stream, fields, err := p.stream(kind)
		if err != nil {
			return err
		}
		lines := in[kind]

		g.Go(func() error {
			var merges []procmeta.Merge
			err := stream.Each(lines, func(s *record.Sample) error {
				if err := ctx.Err(); err != nil {
					return err
				}
				m, err := p.registry.Resolve(s, fields)
				if err != nil {
					return err
				}
				merges = append(merges, m)
				return nil
			})
			if err != nil {
				return fmt.Errorf("failed to ingest %s stream: %w", kind, err)
			}
			if err := p.registry.Apply(merges); err != nil {
				return fmt.Errorf("failed to apply %s stream: %w", kind, err)
			}

			mu.Lock()
			report.Samples[kind] = len(merges)
			mu.Unlock()
			logSecondary(kind, len(merges))
			return nil
		})
	}
	return g.Wait()
}

func (p *Processor) stream(kind schema.Kind) (*record.Stream, []string, error) {
	fields := p.fields[kind]
	dec, err := record.NewDecoder(kind, fields...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create %s decoder: %w", kind, err)
	}
	return record.NewStream(dec, p.log), fields, nil
}

func logSecondary(kind schema.Kind, n int) {
	logutil.GetLogger().Info("ingested secondary stream",
		zap.String("kind", string(kind)),
		zap.Int("samples", n))
}
