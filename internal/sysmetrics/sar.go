package sysmetrics

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
	"time"
)

const (
	clockLayout = "15:04:05"
	dateLayout  = "2006/01/02"
	dateMarker  = "analysis date:"
)

// Flag selects one atopsar report.
type Flag string

const (
	FlagCPU       Flag = "c"
	FlagMemory    Flag = "m"
	FlagDisk      Flag = "d"
	FlagGPU       Flag = "g"
	FlagTopDisk   Flag = "D"
	FlagTopCPU    Flag = "O"
	FlagTopMemory Flag = "G"
)

// Flags lists every report Build understands, series first.
var Flags = []Flag{FlagCPU, FlagMemory, FlagDisk, FlagGPU, FlagTopDisk, FlagTopCPU, FlagTopMemory}

// Args returns the atopsar arguments producing the report. Series reports
// include inactive resources.
func (f Flag) Args() []string {
	args := []string{"-" + string(f)}
	switch f {
	case FlagCPU, FlagMemory, FlagDisk, FlagGPU:
		args = append(args, "-a")
	}
	return args
}

// row is one resource line of an atopsar table with the sample time it
// belongs to.
type row struct {
	at    time.Time
	cells map[string]string
}

// clock turns the HH:MM:SS stamps of one report into times, moving to the
// next day when a stamp goes backwards.
type clock struct {
	day  time.Time
	last time.Time
}

func (c *clock) at(stamp string) (time.Time, bool) {
	t, err := time.Parse(clockLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	at := time.Date(c.day.Year(), c.day.Month(), c.day.Day(), t.Hour(), t.Minute(), t.Second(), 0, time.UTC)
	if !c.last.IsZero() && at.Before(c.last) {
		c.day = c.day.AddDate(0, 0, 1)
		at = at.AddDate(0, 0, 1)
	}
	c.last = at
	return at, true
}

// preamble drops blank lines and reads the analysis date. It returns the
// header line and the lines following it, or ok=false when the report holds
// no table at all.
func preamble(lines []string) (c *clock, header string, body []string, ok bool, err error) {
	var kept []string
	for _, line := range lines {
		if strings.TrimSpace(line) != "" {
			kept = append(kept, line)
		}
	}
	if len(kept) < 3 {
		return nil, "", nil, false, nil
	}

	_, date, found := strings.Cut(kept[1], dateMarker)
	fields := strings.Fields(date)
	if !found || len(fields) == 0 {
		return nil, "", nil, false, fmt.Errorf("no %q line in atopsar output", dateMarker)
	}
	day, err := time.Parse(dateLayout, fields[0])
	if err != nil {
		return nil, "", nil, false, fmt.Errorf("invalid analysis date %q: %w", fields[0], err)
	}
	return &clock{day: day}, kept[2], kept[3:], true, nil
}

// parseTable extracts cols from a columnar atopsar report. The header's
// first token is a time stamp, and a line without one continues the sample
// above it. Short lines and repeated headers are skipped.
func parseTable(lines []string, cols ...string) ([]row, int, error) {
	clk, headerLine, body, ok, err := preamble(lines)
	if err != nil || !ok {
		return nil, 0, err
	}

	header := strings.Fields(headerLine)
	idx := make(map[string]int, len(cols))
	last := 0
	for _, col := range cols {
		i := slices.Index(header, col)
		if i < 1 {
			return nil, 0, fmt.Errorf("atopsar header has no %q column", col)
		}
		idx[col] = i
		last = max(last, i)
	}
	at, ok := clk.at(header[0])
	if !ok {
		return nil, 0, fmt.Errorf("atopsar header starts with %q, want a time", header[0])
	}

	var rows []row
	skipped := 0
	for _, line := range body {
		tokens := strings.Fields(line)
		if t, ok := clk.at(tokens[0]); ok {
			at = t
		} else {
			tokens = append([]string{""}, tokens...)
		}
		if len(tokens) <= last || tokens[idx[cols[0]]] == cols[0] {
			skipped++
			continue
		}

		cells := make(map[string]string, len(cols))
		for col, i := range idx {
			cells[col] = tokens[i]
		}
		rows = append(rows, row{at: at, cells: cells})
	}
	return rows, skipped, nil
}

// sizeUnits converts atopsar size suffixes to megabytes.
var sizeUnits = map[byte]float64{'K': 1.0 / 1024, 'M': 1, 'G': 1024, 'T': 1024 * 1024}

// number parses an atopsar cell, dropping a trailing '%'. Sizes with a
// K, M, G or T suffix are returned in megabytes.
func number(cell string) (float64, error) {
	s := strings.TrimSuffix(cell, "%")
	scale := 1.0
	if s != "" {
		if f, ok := sizeUnits[s[len(s)-1]]; ok {
			scale = f
			s = s[:len(s)-1]
		}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid atopsar value %q", cell)
	}
	return v * scale, nil
}

// numbers parses the named cells of r.
func numbers(r row, cols ...string) ([]float64, error) {
	out := make([]float64, len(cols))
	for i, col := range cols {
		v, err := number(r.cells[col])
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}
