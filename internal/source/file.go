package source

import (
	"context"
	"fmt"
	"os"

	"github.com/mrzor/atop-lifetimes/internal/eventprocessor"
	"github.com/mrzor/atop-lifetimes/internal/schema"
)

// File reads parseable output saved earlier, for example with
// `atop -r log -P PRG,PRC,PRM,PRD,PRE > parsed.txt`.
type File struct {
	Path string
}

// NewFile creates a source reading path.
func NewFile(path string) *File {
	return &File{Path: path}
}

// Name returns the file path.
func (f *File) Name() string {
	return f.Path
}

// Load reads the file and splits it per kind.
func (f *File) Load(_ context.Context, kinds []schema.Kind) (eventprocessor.Input, error) {
	file, err := os.Open(f.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	defer file.Close()

	in, err := Split(file, kinds)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrUnavailable, f.Path, err)
	}
	return in, nil
}
