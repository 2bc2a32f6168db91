package sysmetrics

import (
	"fmt"
	"slices"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/mrzor/atop-lifetimes/internal/logutil"
)

// Metric names one value column of a series.
type Metric struct {
	Name string
	Unit string
}

// Point is one sample of a series. Values line up with Series.Metrics.
type Point struct {
	At     time.Time
	Values []float64
}

// Series is a system-wide resource sampled over the recording.
type Series struct {
	Name    string
	Metrics []Metric
	Points  []Point
	Desc    string
}

// TopEntry is one slot of an atopsar top-3 process report.
type TopEntry struct {
	At       time.Time
	Resource string // disk, cpu or memory
	Rank     int
	PID      int64
	Command  string
	Util     float64 // percent
}

// Report holds the system-wide view of one recording.
type Report struct {
	Series []*Series // sorted by name
	Top    []TopEntry
}

var topResources = map[Flag]string{
	FlagTopDisk:   "disk",
	FlagTopCPU:    "cpu",
	FlagTopMemory: "memory",
}

// Build assembles a report from atopsar outputs keyed by the flag that
// produced them. Missing or empty outputs contribute nothing.
func Build(outputs map[Flag][]string) (*Report, error) {
	rep := &Report{}
	builders := []struct {
		flag  Flag
		build func([]string) ([]*Series, error)
	}{
		{FlagCPU, cpuSeries},
		{FlagMemory, memorySeries},
		{FlagDisk, diskSeries},
		{FlagGPU, gpuSeries},
	}
	for _, b := range builders {
		series, err := b.build(outputs[b.flag])
		if err != nil {
			return nil, fmt.Errorf("atopsar -%s: %w", b.flag, err)
		}
		rep.Series = append(rep.Series, series...)
	}
	rep.sort()

	for _, flag := range []Flag{FlagTopDisk, FlagTopCPU, FlagTopMemory} {
		entries, err := topEntries(outputs[flag], topResources[flag])
		if err != nil {
			return nil, fmt.Errorf("atopsar -%s: %w", flag, err)
		}
		rep.Top = append(rep.Top, entries...)
	}
	slices.SortStableFunc(rep.Top, func(a, b TopEntry) int {
		return a.At.Compare(b.At)
	})

	logutil.GetLogger().Debug("built system report",
		zap.Int("series", len(rep.Series)),
		zap.Int("top_entries", len(rep.Top)))
	return rep, nil
}

func (r *Report) sort() {
	slices.SortFunc(r.Series, func(a, b *Series) int {
		return strings.Compare(a.Name, b.Name)
	})
}

// Get returns the series called name.
func (r *Report) Get(name string) (*Series, bool) {
	for _, s := range r.Series {
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

func logSkipped(report string, n int) {
	if n > 0 {
		logutil.GetLogger().Debug("skipped atopsar lines", zap.String("report", report), zap.Int("lines", n))
	}
}

// cpuSeries keeps the "all" lines, scaled to physical cores. The core count
// assumes two hardware threads per core; without per-CPU lines it is 1.
func cpuSeries(lines []string) ([]*Series, error) {
	rows, skipped, err := parseTable(lines, "cpu", "%usr", "%sys")
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	logSkipped("cpu", skipped)

	highest := -1
	for _, r := range rows {
		if id, err := strconv.Atoi(r.cells["cpu"]); err == nil {
			highest = max(highest, id)
		}
	}
	cores := 1.0
	if highest >= 0 {
		cores = float64(highest+1) / 2
	}

	s := &Series{
		Name:    "cpu",
		Metrics: []Metric{{"usr", "%"}, {"sys", "%"}},
		Desc:    fmt.Sprintf("100%% means all %g physical cores are used", cores),
	}
	for _, r := range rows {
		if r.cells["cpu"] != "all" {
			continue
		}
		v, err := numbers(r, "%usr", "%sys")
		if err != nil {
			return nil, err
		}
		s.Points = append(s.Points, Point{At: r.at, Values: []float64{v[0] / cores, v[1] / cores}})
	}
	logutil.GetLogger().Info("detected cpu cores", zap.Float64("cores", cores))
	return []*Series{s}, nil
}

// memorySeries expresses memory and swap use as a share of the totals of
// the first sample. Swap is left out when the first sample has none.
func memorySeries(lines []string) ([]*Series, error) {
	cols := []string{"memtotal", "memfree", "cached", "buffers", "swptotal", "swpfree"}
	rows, skipped, err := parseTable(lines, cols...)
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	logSkipped("memory", skipped)

	first, err := numbers(rows[0], cols...)
	if err != nil {
		return nil, err
	}
	memTotal, swapTotal := first[0], first[4]
	if memTotal <= 0 {
		return nil, fmt.Errorf("memtotal is %g", memTotal)
	}

	s := &Series{
		Name:    "ram",
		Metrics: []Metric{{"allocated", "%"}, {"cache", "%"}, {"occupancy", "%"}},
		Desc:    fmt.Sprintf("%g MB of memory and %g MB of swap", memTotal, swapTotal),
	}
	if swapTotal > 0 {
		s.Metrics = append(s.Metrics, Metric{"swap", "%"})
	}
	for _, r := range rows {
		v, err := numbers(r, cols...)
		if err != nil {
			return nil, err
		}
		total, free, cached, buffers, swpTotal, swpFree := v[0], v[1], v[2], v[3], v[4], v[5]
		values := []float64{
			(total - cached - free - buffers) / memTotal * 100,
			(cached + buffers) / memTotal * 100,
			(total - free) / memTotal * 100,
		}
		if swapTotal > 0 {
			values = append(values, (swpTotal-swpFree)/swapTotal*100)
		}
		s.Points = append(s.Points, Point{At: r.at, Values: values})
	}
	logutil.GetLogger().Info("detected memory",
		zap.Float64("memory_mb", memTotal),
		zap.Float64("swap_mb", swapTotal))
	return []*Series{s}, nil
}

// diskSeries builds one series per disk: busy share and throughput. Disks
// with at most a tenth of the median sample count are dropped.
func diskSeries(lines []string) ([]*Series, error) {
	rows, skipped, err := parseTable(lines, "disk", "busy", "read/s", "KB/read", "writ/s", "KB/writ")
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	logSkipped("disk", skipped)

	byDisk := make(map[string]*Series)
	for _, r := range rows {
		v, err := numbers(r, "busy", "read/s", "KB/read", "writ/s", "KB/writ")
		if err != nil {
			return nil, err
		}
		name := "disk " + r.cells["disk"]
		s, ok := byDisk[name]
		if !ok {
			s = &Series{
				Name:    name,
				Metrics: []Metric{{"busy", "%"}, {"read", "MB/s"}, {"write", "MB/s"}},
			}
			byDisk[name] = s
		}
		s.Points = append(s.Points, Point{At: r.at, Values: []float64{v[0], v[1] * v[2] / 1024, v[3] * v[4] / 1024}})
	}

	counts := make([]int, 0, len(byDisk))
	for _, s := range byDisk {
		counts = append(counts, len(s.Points))
	}
	floor := median(counts) / 10

	var out []*Series
	for name, s := range byDisk {
		if float64(len(s.Points)) <= floor {
			logutil.GetLogger().Debug("dropping sparse disk", zap.String("disk", name), zap.Int("samples", len(s.Points)))
			continue
		}
		out = append(out, s)
	}
	return out, nil
}

// gpuSeries builds one series per bus address, named after the GPU type of
// its first sample.
func gpuSeries(lines []string) ([]*Series, error) {
	rows, skipped, err := parseTable(lines, "busaddr", "gpubusy", "membusy", "memocc", "gputype")
	if err != nil || len(rows) == 0 {
		return nil, err
	}
	logSkipped("gpu", skipped)

	byAddr := make(map[string]*Series)
	var out []*Series
	for _, r := range rows {
		v, err := numbers(r, "gpubusy", "membusy", "memocc")
		if err != nil {
			return nil, err
		}
		addr := r.cells["busaddr"]
		s, ok := byAddr[addr]
		if !ok {
			s = &Series{
				Name:    "gpu " + addr + " " + r.cells["gputype"],
				Metrics: []Metric{{"utilization", "%"}, {"read/write", "%"}, {"memused", "%"}},
			}
			byAddr[addr] = s
			out = append(out, s)
		}
		s.Points = append(s.Points, Point{At: r.at, Values: v})
	}
	return out, nil
}

// topEntries parses a top-3 report. Each line is a time stamp followed by
// up to three "pid command util%" slots separated by '|'.
func topEntries(lines []string, resource string) ([]TopEntry, error) {
	clk, _, body, ok, err := preamble(lines)
	if err != nil || !ok {
		return nil, err
	}

	var entries []TopEntry
	skipped := 0
	for _, line := range body {
		if len(line) < len(clockLayout) {
			skipped++
			continue
		}
		at, ok := clk.at(strings.TrimSpace(line[:len(clockLayout)]))
		if !ok {
			skipped++
			continue
		}
		for rank, slot := range strings.Split(line[len(clockLayout):], "|") {
			entry, ok := parseSlot(slot)
			if !ok {
				continue
			}
			entry.At = at
			entry.Resource = resource
			entry.Rank = rank + 1
			entries = append(entries, entry)
		}
	}
	logSkipped("top "+resource, skipped)
	return entries, nil
}

func parseSlot(slot string) (TopEntry, bool) {
	f := strings.Fields(slot)
	if len(f) < 3 {
		return TopEntry{}, false
	}
	pid, err := strconv.ParseInt(f[0], 10, 64)
	if err != nil {
		return TopEntry{}, false
	}
	util, err := number(f[len(f)-1])
	if err != nil {
		return TopEntry{}, false
	}
	return TopEntry{PID: pid, Command: strings.Join(f[1:len(f)-1], " "), Util: util}, true
}

func median(values []int) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := slices.Clone(values)
	sort.Ints(sorted)
	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return float64(sorted[mid])
	}
	return float64(sorted[mid-1]+sorted[mid]) / 2
}
