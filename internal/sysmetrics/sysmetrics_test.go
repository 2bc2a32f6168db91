package sysmetrics

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const preambleText = `host  5.4.0-56-generic  #62-Ubuntu SMP  x86_64  2020/12/04

-------------------------- analysis date: 2020/12/02 --------------------------

`

const cpuReport = preambleText + `23:59:58  cpu  %usr %nice %sys %irq %softirq  %steal %guest  %wait %idle  _cpu_
23:59:59  all    40     0    8    0        0       0      0      0   352
            0    10     0    2    0        0       0      0      0    88
            1    10     0    2    0        0       0      0      0    88
            2    10     0    2    0        0       0      0      0    88
            3    10     0    2    0        0       0      0      0    88
logging restarted
00:00:09  cpu  %usr %nice %sys %irq %softirq  %steal %guest  %wait %idle  _cpu_
00:00:09  all    20     0    4    0        0       0      0      0   376
            3     5     0    1    0        0       0      0      0    94
`

const memReport = preambleText + `18:05:04  memtotal memfree buffers cached dirty slabmem  swptotal swpfree _mem_
18:05:05     1000M    400M    100M   200M    0M    50M     500M    500M
18:05:06     1000M    300M    100M   200M    0M    50M     500M    250M
`

const gpuReport = preambleText + `18:05:04     busaddr   gpubusy  membusy  memocc  memtot memuse  gputype   _gpu_
18:05:05   0/0000:01:0      1%       0%     22%   6078M  1378M  rce_GTX_1060
           0/0000:02:0     50%      10%     40%   6078M  1378M  rce_GTX_1060
18:05:06   0/0000:01:0      3%       0%     22%   6078M  1378M  rce_GTX_1060
`

const topCPUReport = preambleText + `17:29:24    pid command  cpu% |   pid command  cpu% |   pid command  cpu%_top3_
17:29:25   1234 python    45% |   567 atop       2% |     1 systemd    0%
17:29:26   1234 python    40% |
`

func lines(s string) []string {
	return strings.Split(s, "\n")
}

// diskReport has sda busy in every one of n samples and loop0 in the first.
func diskReport(n int) string {
	var b strings.Builder
	b.WriteString(preambleText)
	b.WriteString("18:05:04  disk           busy read/s KB/read  writ/s KB/writ avque avserv _dsk_\n")
	for i := range n {
		fmt.Fprintf(&b, "18:%02d:%02d  sda              10%%   4.0    256.0     2.0   512.0   1.0   2.00 ms\n", 6+i/60, i%60)
		if i == 0 {
			b.WriteString("          loop0             0%   0.0      0.0     0.0     0.0   0.0   0.00 ms\n")
		}
	}
	return b.String()
}

func day(hour, minute, second int, dayOfMonth int) time.Time {
	return time.Date(2020, 12, dayOfMonth, hour, minute, second, 0, time.UTC)
}

func TestNumber(t *testing.T) {
	tests := []struct {
		cell string
		want float64
	}{
		{"12", 12},
		{"45%", 45},
		{"31986M", 31986},
		{"2G", 2048},
		{"512K", 0.5},
		{"0.5", 0.5},
	}
	for _, tt := range tests {
		got, err := number(tt.cell)
		require.NoError(t, err, tt.cell)
		assert.InDelta(t, tt.want, got, 1e-9, tt.cell)
	}

	_, err := number("ms")
	assert.Error(t, err)
}

func TestCPUSeries(t *testing.T) {
	series, err := cpuSeries(lines(cpuReport))
	require.NoError(t, err)
	require.Len(t, series, 1)

	s := series[0]
	assert.Equal(t, "cpu", s.Name)
	assert.Equal(t, []Metric{{"usr", "%"}, {"sys", "%"}}, s.Metrics)
	assert.Contains(t, s.Desc, "2 physical cores")
	require.Len(t, s.Points, 2)

	assert.Equal(t, day(23, 59, 59, 2), s.Points[0].At)
	assert.Equal(t, []float64{20, 4}, s.Points[0].Values)
	assert.Equal(t, day(0, 0, 9, 3), s.Points[1].At, "midnight moves to the next day")
	assert.Equal(t, []float64{10, 2}, s.Points[1].Values)
}

func TestMemorySeries(t *testing.T) {
	series, err := memorySeries(lines(memReport))
	require.NoError(t, err)
	require.Len(t, series, 1)

	s := series[0]
	assert.Equal(t, "ram", s.Name)
	require.Len(t, s.Metrics, 4)
	require.Len(t, s.Points, 2)
	assert.InDeltaSlice(t, []float64{30, 30, 60, 0}, s.Points[0].Values, 1e-9)
	assert.InDeltaSlice(t, []float64{40, 30, 70, 50}, s.Points[1].Values, 1e-9)
}

func TestMemorySeries_NoSwap(t *testing.T) {
	report := strings.ReplaceAll(memReport, "500M", "0M")
	report = strings.ReplaceAll(report, "250M", "0M")

	series, err := memorySeries(lines(report))
	require.NoError(t, err)
	require.Len(t, series, 1)
	assert.Len(t, series[0].Metrics, 3)
	assert.Len(t, series[0].Points[0].Values, 3)
}

func TestDiskSeries_DropsSparseDisks(t *testing.T) {
	series, err := diskSeries(lines(diskReport(20)))
	require.NoError(t, err)
	require.Len(t, series, 1)

	s := series[0]
	assert.Equal(t, "disk sda", s.Name)
	require.Len(t, s.Points, 20)
	assert.Equal(t, []float64{10, 1, 1}, s.Points[0].Values)
}

func TestDiskSeries_KeepsComparableDisks(t *testing.T) {
	series, err := diskSeries(lines(diskReport(1)))
	require.NoError(t, err)
	assert.Len(t, series, 2)
}

func TestGPUSeries(t *testing.T) {
	series, err := gpuSeries(lines(gpuReport))
	require.NoError(t, err)
	require.Len(t, series, 2)

	assert.Equal(t, "gpu 0/0000:01:0 rce_GTX_1060", series[0].Name)
	require.Len(t, series[0].Points, 2)
	assert.Equal(t, []float64{3, 0, 22}, series[0].Points[1].Values)

	assert.Equal(t, "gpu 0/0000:02:0 rce_GTX_1060", series[1].Name)
	require.Len(t, series[1].Points, 1)
	assert.Equal(t, day(18, 5, 5, 2), series[1].Points[0].At, "a bus address is not a time stamp")
	assert.Equal(t, []float64{50, 10, 40}, series[1].Points[0].Values)
}

func TestTopEntries(t *testing.T) {
	entries, err := topEntries(lines(topCPUReport), "cpu")
	require.NoError(t, err)
	require.Len(t, entries, 4)

	assert.Equal(t, TopEntry{At: day(17, 29, 25, 2), Resource: "cpu", Rank: 1, PID: 1234, Command: "python", Util: 45}, entries[0])
	assert.Equal(t, "atop", entries[1].Command)
	assert.Equal(t, 2, entries[1].Rank)
	assert.Equal(t, int64(1), entries[2].PID)
	assert.Equal(t, day(17, 29, 26, 2), entries[3].At)
}

func TestParseTable_Errors(t *testing.T) {
	_, _, err := parseTable(lines(memReport), "memtotal", "nope")
	assert.ErrorContains(t, err, `no "nope" column`)

	_, _, err = parseTable([]string{"host", "no date here", "18:05:04 memtotal"}, "memtotal")
	assert.ErrorContains(t, err, "analysis date")

	rows, _, err := parseTable([]string{"", "host"}, "memtotal")
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestBuild(t *testing.T) {
	rep, err := Build(map[Flag][]string{
		FlagCPU:    lines(cpuReport),
		FlagMemory: lines(memReport),
		FlagDisk:   lines(diskReport(3)),
		FlagGPU:    lines(gpuReport),
		FlagTopCPU: lines(topCPUReport),
	})
	require.NoError(t, err)

	names := make([]string, len(rep.Series))
	for i, s := range rep.Series {
		names[i] = s.Name
	}
	assert.Equal(t, []string{
		"cpu",
		"disk loop0",
		"disk sda",
		"gpu 0/0000:01:0 rce_GTX_1060",
		"gpu 0/0000:02:0 rce_GTX_1060",
		"ram",
	}, names)
	assert.Len(t, rep.Top, 4)

	_, ok := rep.Get("ram")
	assert.True(t, ok)
	_, ok = rep.Get("swap")
	assert.False(t, ok)
}

func TestBuild_Empty(t *testing.T) {
	rep, err := Build(nil)
	require.NoError(t, err)
	assert.Empty(t, rep.Series)
	assert.Empty(t, rep.Top)
}

func TestBuild_ReportsFlagOnError(t *testing.T) {
	_, err := Build(map[Flag][]string{FlagMemory: lines(strings.Replace(memReport, "400M", "lots", 1))})
	assert.ErrorContains(t, err, "atopsar -m")
}

func TestFlag_Args(t *testing.T) {
	assert.Equal(t, []string{"-c", "-a"}, FlagCPU.Args())
	assert.Equal(t, []string{"-O"}, FlagTopCPU.Args())
}

func TestTables(t *testing.T) {
	rep, err := Build(map[Flag][]string{FlagCPU: lines(cpuReport), FlagTopCPU: lines(topCPUReport)})
	require.NoError(t, err)
	cpu, ok := rep.Get("cpu")
	require.True(t, ok)

	table := cpu.Table()
	assert.Equal(t, "cpu", table.Name)
	assert.Equal(t, []string{"timestamp", "usr (%)", "sys (%)"}, table.Columns)
	assert.Equal(t, []any{"2020-12-02 23:59:59", 20.0, 4.0}, table.Rows[0])

	samples := rep.SamplesTable()
	assert.Len(t, samples.Rows, 4)
	assert.Equal(t, []any{"cpu", "2020-12-03 00:00:09", "sys", "%", 2.0}, samples.Rows[3])

	overview := rep.OverviewTable()
	require.Len(t, overview.Rows, 2)
	assert.Equal(t, []any{"cpu", "usr", "%", int64(2), 15.0, 20.0}, overview.Rows[0])

	top := rep.TopTable()
	assert.Equal(t, TopTableName, top.Name)
	assert.Equal(t, []any{"2020-12-02 17:29:25", "cpu", int64(1), int64(1234), "python", 45.0}, top.Rows[0])
}

func TestFileStem(t *testing.T) {
	assert.Equal(t, "disk sda", FileStem("disk sda"))
	assert.Equal(t, "gpu 00000010 rce_GTX_1060", FileStem("gpu 0/0000:01:0 rce_GTX_1060"))
}

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, Dir), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, Dir, name), []byte(content), 0o644))
}

func TestImport(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, dir, "ram.csv", "timestamp,allocated (%),cache (%)\n2020-12-02 18:05:05,30,12.5\n")
	writeFile(t, dir, "disk sda.csv", "timestamp,busy (%),read (MB/s),write (MB/s)\n2020-12-02 18:05:05,10,1,0.5\n")
	writeFile(t, dir, TopTableName+".csv", "timestamp,resource,rank,pid,command,util\n2020-12-02 17:29:25,cpu,1,1234,python,45\n")

	rep, err := Import(dir)
	require.NoError(t, err)
	require.Len(t, rep.Series, 2)

	disk := rep.Series[0]
	assert.Equal(t, "disk sda", disk.Name)
	assert.Equal(t, []Metric{{"busy", "%"}, {"read", "MB/s"}, {"write", "MB/s"}}, disk.Metrics)
	assert.Equal(t, []Point{{At: day(18, 5, 5, 2), Values: []float64{10, 1, 0.5}}}, disk.Points)

	assert.Equal(t, "ram", rep.Series[1].Name)
	require.Len(t, rep.Top, 1)
	assert.Equal(t, "python", rep.Top[0].Command)
}

func TestImport_Errors(t *testing.T) {
	_, err := Import(t.TempDir())
	assert.ErrorIs(t, err, ErrNoSeries)

	dir := t.TempDir()
	writeFile(t, dir, "ram.csv", "timestamp,allocated (%)\nyesterday,30\n")
	_, err = Import(dir)
	assert.ErrorContains(t, err, "line 2")
}
