package source

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/mrzor/atop-lifetimes/internal/eventprocessor"
	"github.com/mrzor/atop-lifetimes/internal/logutil"
	"github.com/mrzor/atop-lifetimes/internal/schema"
)

// Command decodes a raw atop log by running `atop -r <file> -P <label>`
// once per kind. The runs are concurrent.
type Command struct {
	Bin  string
	File string
}

// NewCommand creates a source running bin on file.
func NewCommand(bin, file string) *Command {
	return &Command{Bin: bin, File: file}
}

// Name returns the raw log path.
func (c *Command) Name() string {
	return c.File
}

// Load runs atop for every kind. Any failing run aborts the others.
func (c *Command) Load(ctx context.Context, kinds []schema.Kind) (eventprocessor.Input, error) {
	lines := make([][]string, len(kinds))

	g, gctx := errgroup.WithContext(ctx)
	for i, kind := range kinds {
		g.Go(func() error {
			out, err := c.run(gctx, kind)
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

	in := make(eventprocessor.Input, len(kinds))
	for i, kind := range kinds {
		in[kind] = lines[i]
	}
	return in, nil
}

func (c *Command) run(ctx context.Context, kind schema.Kind) ([]string, error) {
	logutil.GetLogger().Debug("running atop",
		zap.String("bin", c.Bin),
		zap.String("file", c.File),
		zap.String("label", string(kind)),
	)
	return runLines(ctx, c.Bin, "-r", c.File, "-P", string(kind))
}

// runLines runs bin and returns its standard output split in lines. Every
// failure wraps ErrUnavailable.
func runLines(ctx context.Context, bin string, args ...string) ([]string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	invocation := bin + " " + strings.Join(args, " ")

	out, err := cmd.Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, fmt.Errorf("%w: %s exited with %d: %s",
				ErrUnavailable, invocation, exitErr.ExitCode(), strings.TrimSpace(stderr.String()))
		}
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, invocation, err)
	}

	var lines []string
	if err := scanLines(bytes.NewReader(out), func(line string) {
		lines = append(lines, line)
	}); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, invocation, err)
	}
	return lines, nil
}
