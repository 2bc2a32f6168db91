package sysmetrics

import (
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrzor/atop-lifetimes/internal/logutil"
)

// Dir is the subdirectory of a CSV output directory holding the system
// series, one file per series plus top_processes.csv.
const Dir = "system"

// ErrNoSeries is returned by Import when the directory holds no series.
var ErrNoSeries = errors.New("no system series found")

// Import reads back the series written under dir/system. A series is named
// after its file, so characters FileStem dropped are not restored.
func Import(dir string) (*Report, error) {
	paths, err := filepath.Glob(filepath.Join(dir, Dir, "*.csv"))
	if err != nil {
		return nil, err
	}

	rep := &Report{}
	for _, path := range paths {
		stem := strings.TrimSuffix(filepath.Base(path), ".csv")
		records, err := readCSV(path)
		if err != nil {
			return nil, err
		}
		logutil.GetLogger().Info("loading system series", zap.String("path", path))

		if stem == TopTableName {
			top, err := importTop(path, records)
			if err != nil {
				return nil, err
			}
			rep.Top = append(rep.Top, top...)
			continue
		}
		s, err := importSeries(path, stem, records)
		if err != nil {
			return nil, err
		}
		rep.Series = append(rep.Series, s)
	}
	if len(rep.Series) == 0 && len(rep.Top) == 0 {
		return nil, fmt.Errorf("%w in %s", ErrNoSeries, filepath.Join(dir, Dir))
	}
	rep.sort()
	return rep, nil
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%s has no header", path)
	}
	return records, nil
}

func importSeries(path, name string, records [][]string) (*Series, error) {
	header := records[0]
	if header[0] != "timestamp" {
		return nil, fmt.Errorf("%s: first column is %q, want timestamp", path, header[0])
	}
	s := &Series{Name: name}
	for _, h := range header[1:] {
		s.Metrics = append(s.Metrics, parseMetricHeader(h))
	}

	for i, rec := range records[1:] {
		at, err := time.Parse(TimeLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		p := Point{At: at, Values: make([]float64, len(s.Metrics))}
		for j := range s.Metrics {
			v, err := strconv.ParseFloat(rec[j+1], 64)
			if err != nil {
				return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
			}
			p.Values[j] = v
		}
		s.Points = append(s.Points, p)
	}
	return s, nil
}

func importTop(path string, records [][]string) ([]TopEntry, error) {
	var entries []TopEntry
	for i, rec := range records[1:] {
		if len(rec) != 6 {
			return nil, fmt.Errorf("%s line %d: %d fields, want 6", path, i+2, len(rec))
		}
		at, err := time.Parse(TimeLayout, rec[0])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		rank, err := strconv.Atoi(rec[2])
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		pid, err := strconv.ParseInt(rec[3], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		util, err := strconv.ParseFloat(rec[5], 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", path, i+2, err)
		}
		entries = append(entries, TopEntry{At: at, Resource: rec[1], Rank: rank, PID: pid, Command: rec[4], Util: util})
	}
	return entries, nil
}
