// atop-lifetimes reconstructs process lifetimes from atop logs and reports
// per-process and per-name resource usage.
package main

import (
	"context"
	"fmt"
	"io"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/mrzor/atop-lifetimes/internal/attributes"
	"github.com/mrzor/atop-lifetimes/internal/config"
	"github.com/mrzor/atop-lifetimes/internal/diag"
	"github.com/mrzor/atop-lifetimes/internal/eventprocessor"
	"github.com/mrzor/atop-lifetimes/internal/identity"
	"github.com/mrzor/atop-lifetimes/internal/logutil"
	"github.com/mrzor/atop-lifetimes/internal/otel"
	"github.com/mrzor/atop-lifetimes/internal/output"
	"github.com/mrzor/atop-lifetimes/internal/procmeta"
	"github.com/mrzor/atop-lifetimes/internal/schema"
	"github.com/mrzor/atop-lifetimes/internal/source"
	"github.com/mrzor/atop-lifetimes/internal/stats"
	"github.com/mrzor/atop-lifetimes/internal/sysmetrics"
	"github.com/mrzor/atop-lifetimes/internal/timesync"
)

// Version information injected by GoReleaser at build time.
var (
	version = "dev"
	commit  = "unknown"
	date    = "unknown"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error: %v", err)
	}
}

func run() error {
	cfg, err := config.ParseEnvConfig()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	return newRootCommand(cfg).ExecuteContext(ctx)
}

func newRootCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:           "atop-lifetimes",
		Short:         "Reconstruct process lifetimes from atop logs",
		Version:       fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := cfg.Validate(); err != nil {
				return err
			}
			if err := logutil.InitLogger(cfg.LogLevel); err != nil {
				return err
			}
			defer func() { _ = logutil.GetLogger().Sync() }()

			return analyze(cmd.Context(), cfg, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&cfg.AtopFile, "atop-file", cfg.AtopFile, "raw atop log, decoded with --atop-bin")
	flags.StringVar(&cfg.ParsedFile, "parsed-file", cfg.ParsedFile, "saved atop parseable output (atop -P)")
	flags.StringVar(&cfg.AtopBin, "atop-bin", cfg.AtopBin, "atop binary used with --atop-file")
	flags.StringVar(&cfg.SQLitePath, "sqlite", cfg.SQLitePath, "write the processes, pivot and system tables to this SQLite database")
	flags.StringVar(&cfg.CSVDir, "csv-dir", cfg.CSVDir, "write processes.csv, pivot.csv and system/*.csv into this directory")
	flags.BoolVar(&cfg.System, "system", cfg.System, "also read system-wide series from --atop-file with atopsar")
	flags.StringVar(&cfg.AtopsarBin, "atopsar-bin", cfg.AtopsarBin, "atopsar binary used with --system")
	flags.StringVar(&cfg.SystemImport, "system-import", cfg.SystemImport, "read system-wide series from a directory written with --csv-dir")
	flags.BoolVar(&cfg.Detail, "detail", cfg.Detail, "also print one row per lifetime")
	flags.BoolVar(&cfg.Parallel, "parallel", cfg.Parallel, "decode secondary streams concurrently")
	flags.StringArrayVarP(&cfg.AttributeFlags, "attribute", "a", nil, "custom attribute name=expression (repeatable)")
	flags.StringVar(&cfg.Filter, "filter", cfg.Filter, "keep only the lifetimes matching this boolean expression")
	flags.BoolVar(&cfg.OTEL, "otel", cfg.OTEL, "export lifetimes as spans over OTLP/HTTP")
	flags.StringVar(&cfg.TraceID, "trace-id", cfg.TraceID, "trace ID expression for exported spans")
	flags.StringVar(&cfg.ParentID, "parent-id", cfg.ParentID, "parent span ID expression for the run span")
	flags.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "log level (debug, info, warn, error)")
	cmd.MarkFlagsMutuallyExclusive("atop-file", "parsed-file")
	cmd.MarkFlagsMutuallyExclusive("system", "system-import")

	return cmd
}

func newSource(cfg *config.Config) source.Source {
	if cfg.AtopFile != "" {
		return source.NewCommand(cfg.AtopBin, cfg.AtopFile)
	}
	return source.NewFile(cfg.ParsedFile)
}

// analyze runs one full pass: load, ingest, aggregate, write.
func analyze(ctx context.Context, cfg *config.Config, stdout io.Writer) error {
	logger := logutil.GetLogger()

	customAttrs, err := cfg.CustomAttributes()
	if err != nil {
		return err
	}
	evaluator, err := attributes.NewEvaluator(customAttrs)
	if err != nil {
		return err
	}
	filter, err := attributes.NewFilter(cfg.Filter)
	if err != nil {
		return err
	}

	src := newSource(cfg)
	in, err := src.Load(ctx, schema.All())
	if err != nil {
		return fmt.Errorf("failed to load %s: %w", src.Name(), err)
	}

	system, err := loadSystem(ctx, cfg)
	if err != nil {
		return err
	}

	diagLog := diag.NewLog(logger)
	registry := procmeta.NewRegistry(identity.NewResolver(diagLog))
	processor := eventprocessor.NewProcessor(registry, diagLog, eventprocessor.WithParallel(cfg.Parallel))
	report, err := processor.Run(ctx, in)
	if err != nil {
		return err
	}

	sum, err := stats.Aggregate(registry, stats.WithEnricher(evaluator.Enrich), stats.WithFilter(filter.Match))
	if err != nil {
		return err
	}

	origin, hasOrigin := source.FindOrigin(in)
	conv := newConverter(origin, hasOrigin)

	formatters := []output.Formatter{output.NewTableFormatter(stdout, cfg.Detail, conv)}
	if cfg.CSVDir != "" {
		formatters = append(formatters, output.NewCSVFormatter(cfg.CSVDir))
	}
	if cfg.SQLitePath != "" {
		formatters = append(formatters, output.NewSQLiteFormatter(cfg.SQLitePath))
	}
	if cfg.OTEL {
		runInfo := attributes.Run{Host: origin.Host, Source: src.Name(), Lifetimes: len(sum.Details)}
		runInfo.First, runInfo.Last = span(sum)

		formatter, cleanup, err := setupOTEL(cfg, runInfo, conv)
		if err != nil {
			return err
		}
		defer cleanup()
		formatters = append(formatters, formatter)
	}

	for _, f := range formatters {
		if err := f.Write(ctx, sum); err != nil {
			return err
		}
	}

	if system != nil {
		for _, f := range formatters {
			sf, ok := f.(output.SystemFormatter)
			if !ok {
				continue
			}
			if err := sf.WriteSystem(ctx, system); err != nil {
				return err
			}
		}
	}

	logger.Info("analysis complete",
		zap.String("source", src.Name()),
		zap.Int("lifetimes", report.Lifetimes),
		zap.Int("kept", len(sum.Details)),
		zap.Int("malformed_lines", diagLog.Count(diag.CategoryMalformed)),
		zap.Int("anomalies", diagLog.Count(diag.CategoryAnomaly)),
	)
	return nil
}

// loadSystem returns the system-wide series, or nil when none were asked for.
func loadSystem(ctx context.Context, cfg *config.Config) (*sysmetrics.Report, error) {
	switch {
	case cfg.SystemImport != "":
		return sysmetrics.Import(cfg.SystemImport)
	case cfg.System:
		outputs, err := source.NewSar(cfg.AtopsarBin, cfg.AtopFile).Load(ctx, sysmetrics.Flags)
		if err != nil {
			return nil, fmt.Errorf("failed to read system series: %w", err)
		}
		return sysmetrics.Build(outputs)
	}
	return nil, nil
}

// newConverter renders epochs in the timezone the log was written in, when
// the first primary line reveals it.
func newConverter(origin source.Origin, ok bool) *timesync.Converter {
	if !ok {
		return timesync.NewConverter()
	}
	conv, err := timesync.NewConverterFromSample(origin.Epoch, origin.Date, origin.Time)
	if err != nil {
		logutil.GetLogger().Warn("cannot derive log timezone, using UTC", zap.Error(err))
		return timesync.NewConverter()
	}
	return conv
}

// span returns the earliest start and the latest end of the kept lifetimes.
func span(sum *stats.Summary) (first, last int64) {
	for i, d := range sum.Details {
		if i == 0 {
			first, last = d.Record.Start, d.End
			continue
		}
		first = min(first, d.Record.Start)
		last = max(last, d.End)
	}
	return first, last
}

// setupOTEL initializes the OTEL provider and returns the span formatter and
// a cleanup function flushing the exporter.
func setupOTEL(cfg *config.Config, run attributes.Run, conv *timesync.Converter) (output.Formatter, func(), error) {
	otelCfg, err := config.ParseOTELConfig()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to parse OTEL config: %w", err)
	}

	traceEval, err := attributes.NewTraceIDEvaluator(cfg.TraceID)
	if err != nil {
		return nil, nil, err
	}
	traceID, warnings, err := traceEval.EvaluateAndValidate(run)
	if err != nil {
		return nil, nil, err
	}

	parentEval, err := attributes.NewParentIDEvaluator(cfg.ParentID)
	if err != nil {
		return nil, nil, err
	}
	parentID, parentWarnings, err := parentEval.EvaluateAndValidate(run)
	if err != nil {
		return nil, nil, err
	}
	warnings = append(warnings, parentWarnings...)

	tp, err := otel.InitProvider(otelCfg, traceID)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize OTEL provider: %w", err)
	}

	cleanup := func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := otel.ShutdownProvider(shutdownCtx, tp); err != nil {
			logutil.GetLogger().Error("failed to shut down OTEL provider", zap.Error(err))
		}
	}

	opts := []output.OTELOption{output.WithRunAttributes(warnings...)}
	if traceID.IsValid() && parentID.IsValid() {
		opts = append(opts, output.WithParent(trace.NewSpanContext(trace.SpanContextConfig{
			TraceID:    traceID,
			SpanID:     parentID,
			TraceFlags: trace.FlagsSampled,
			Remote:     true,
		})))
	}

	return output.NewOTELFormatter(tp.Tracer("atop-lifetimes"), conv, opts...), cleanup, nil
}
