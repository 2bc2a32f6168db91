package source

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrzor/atop-lifetimes/internal/logutil"
	"github.com/mrzor/atop-lifetimes/internal/sysmetrics"
)

// Sar reads the system-wide reports of a raw atop log by running
// `atopsar <flag> -r <file>` once per report. The runs are concurrent.
type Sar struct {
	Bin  string
	File string
}

// NewSar creates a source running bin on file.
func NewSar(bin, file string) *Sar {
	return &Sar{Bin: bin, File: file}
}

// Load runs atopsar for every flag. Any failing run aborts the others.
func (s *Sar) Load(ctx context.Context, flags []sysmetrics.Flag) (map[sysmetrics.Flag][]string, error) {
	lines := make([][]string, len(flags))

	g, gctx := errgroup.WithContext(ctx)
	for i, flag := range flags {
		g.Go(func() error {
			args := append(flag.Args(), "-r", s.File)
			logutil.GetLogger().Debug("running atopsar",
				zap.String("bin", s.Bin),
				zap.Strings("args", args),
			)
			out, err := runLines(gctx, s.Bin, args...)
			if err != nil {
				return err
			}
			lines[i] = out
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make(map[sysmetrics.Flag][]string, len(flags))
	for i, flag := range flags {
		out[flag] = lines[i]
	}
	return out, nil
}
