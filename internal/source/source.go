// Package source obtains atop parseable output, one line slice per record
// kind, either by running atop on a raw log or by reading output saved
// earlier.
package source

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/mrzor/atop-lifetimes/internal/eventprocessor"
	"github.com/mrzor/atop-lifetimes/internal/record"
	"github.com/mrzor/atop-lifetimes/internal/schema"
)

// ErrUnavailable is returned when a stream cannot be obtained at all.
var ErrUnavailable = errors.New("source unavailable")

// maxLineSize bounds one line of parseable output. Command lines of PRG
// records can be long.
const maxLineSize = 16 * 1024 * 1024

// Source loads the streams of one run.
type Source interface {
	Load(ctx context.Context, kinds []schema.Kind) (eventprocessor.Input, error)
	// Name identifies the source in logs and trace expressions.
	Name() string
}

// Split sorts the lines of a multi-label parseable output by kind. SEP and
// RESET markers are copied to every requested kind so that each stream keeps
// its interval boundaries. Lines of other labels are dropped.
func Split(r io.Reader, kinds []schema.Kind) (eventprocessor.Input, error) {
	in := make(eventprocessor.Input, len(kinds))
	wanted := make(map[schema.Kind]bool, len(kinds))
	for _, k := range kinds {
		wanted[k] = true
		in[k] = nil
	}

	err := scanLines(r, func(line string) {
		label, _, _ := strings.Cut(line, " ")
		switch label {
		case schema.MarkerSep, schema.MarkerReset:
			for _, k := range kinds {
				in[k] = append(in[k], line)
			}
		default:
			if k := schema.Kind(label); wanted[k] {
				in[k] = append(in[k], line)
			}
		}
	})
	if err != nil {
		return nil, err
	}
	return in, nil
}

func scanLines(r io.Reader, fn func(string)) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if line == "" {
			continue
		}
		fn(line)
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read parseable output: %w", err)
	}
	return nil
}

// Origin is the common prefix of the first primary line of a run.
type Origin struct {
	Host  string
	Epoch int64
	Date  string
	Time  string
}

// FindOrigin returns the prefix of the first PRG data line in in.
func FindOrigin(in eventprocessor.Input) (Origin, bool) {
	for _, line := range in[schema.KindProcess] {
		if !strings.HasPrefix(line, string(schema.KindProcess)+" ") {
			continue
		}
		tokens := record.Split(line, 6)
		if len(tokens) < 5 {
			continue
		}
		epoch, err := strconv.ParseInt(tokens[2], 10, 64)
		if err != nil {
			continue
		}
		return Origin{Host: tokens[1], Epoch: epoch, Date: tokens[3], Time: tokens[4]}, true
	}
	return Origin{}, false
}
