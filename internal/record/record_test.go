package record

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/atop-lifetimes/internal/diag"
	"github.com/mrzor/atop-lifetimes/internal/schema"
)

const (
	prgLine = "PRG host 1607000010 2020/12/03 14:13:30 10 100 (my worker) S 1000 1000 100 1 0 1607000000 (python worker.py --name a) 1 1 0 0 1000 1000 1000 1000 1000 1000 0 y 0 0 -"
	prcLine = "PRC host 1607000010 2020/12/03 14:13:30 10 100 (my worker) S 100 7 3 0 120 0 0 2 12 100 y"
)

func TestSplit_BracketedFieldIsOneToken(t *testing.T) {
	tokens := Split("PRC h 1 (a b  c) S", 0)
	assert.Equal(t, []string{"PRC", "h", "1", "(a b  c)", "S"}, tokens)
}

func TestSplit_Bounded(t *testing.T) {
	tokens := Split("a b c (d e) f g", 4)
	assert.Equal(t, []string{"a", "b", "c", "(d e)"}, tokens)
}

func TestSplit_Whitespace(t *testing.T) {
	tests := []struct {
		name string
		line string
		want []string
	}{
		{"empty", "", []string{}},
		{"only spaces", "    ", []string{}},
		{"leading and trailing", "  a   b  ", []string{"a", "b"}},
		{"tabs", "a\tb\t(c\td)", []string{"a", "b", "(c\td)"}},
		{"nested", "x (a (b c) d) y", []string{"x", "(a (b c) d)", "y"}},
		{"stray closing", "a ) b", []string{"a", ")", "b"}},
		{"unbalanced name", "PRG h 1 (foo() S 5", []string{"PRG", "h", "1", "(foo()", "S", "5"}},
		{"unbalanced name and command", "a (foo() S (foo( --x) 7", []string{"a", "(foo()", "S", "(foo( --x)", "7"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.line, 0))
		})
	}
}

func TestDecoder_UnbalancedName(t *testing.T) {
	dec, err := NewDecoder(schema.KindProcess, "start", "name", "command", "state")
	require.NoError(t, err)

	line := strings.Replace(prgLine, "(my worker)", "(foo()", 1)
	s, err := dec.Decode(1, line)
	require.NoError(t, err)
	assert.Equal(t, "foo(", s.Str("name"))
	assert.Equal(t, "S", s.Str("state"))
	assert.Equal(t, "python worker.py --name a", s.Str("command"))

	start, err := s.Int("start")
	require.NoError(t, err)
	assert.Equal(t, int64(1607000000), start)
}

func TestDecoder_Primary(t *testing.T) {
	dec, err := NewDecoder(schema.KindProcess, "start", "name", "command", "tgid", "state")
	require.NoError(t, err)

	s, err := dec.Decode(7, prgLine)
	require.NoError(t, err)

	assert.Equal(t, schema.KindProcess, s.Kind)
	assert.Equal(t, 7, s.Line)
	assert.Equal(t, int64(100), s.PID())
	assert.Equal(t, int64(1607000010), s.Epoch())
	assert.Equal(t, "my worker", s.Str("name"))
	assert.Equal(t, "python worker.py --name a", s.Str("command"))
	assert.Equal(t, "S", s.Str("state"))
	assert.Equal(t, schema.TypeCategory, s.Fields["state"].Type())

	start, err := s.Int("start")
	require.NoError(t, err)
	assert.Equal(t, int64(1607000000), start)

	_, err = s.Int("name")
	assert.Error(t, err)
}

func TestDecoder_Secondary(t *testing.T) {
	dec, err := NewDecoder(schema.KindCPU, "cpu-usr", "cpu-sys", "sleep-avg")
	require.NoError(t, err)

	s, err := dec.Decode(1, prcLine)
	require.NoError(t, err)

	sub := s.Subset([]string{"cpu-usr", "cpu-sys", "missing"})
	require.Len(t, sub, 2)
	usr, _ := sub["cpu-usr"].Int64()
	sys, _ := sub["cpu-sys"].Int64()
	assert.Equal(t, int64(7), usr)
	assert.Equal(t, int64(3), sys)
}

func TestDecoder_UnknownField(t *testing.T) {
	_, err := NewDecoder(schema.KindCPU, "busy")
	require.ErrorIs(t, err, schema.ErrUnknownField)
}

func TestDecoder_Skips(t *testing.T) {
	dec, err := NewDecoder(schema.KindCPU, "cpu-usr", "sleep-avg")
	require.NoError(t, err)

	tests := []struct {
		name   string
		line   string
		reason Reason
		field  string
	}{
		{"label mismatch", "PRM host 1607000010 2020/12/03 14:13:30 10 100 (w) S 1 2 3", ReasonLabel, ""},
		{"empty label", "", ReasonLabel, ""},
		{"too short", "PRC host 1607000010 2020/12/03 14:13:30 10 100 (w) S", ReasonShort, ""},
		{"bad integer", "PRC host 1607000010 2020/12/03 14:13:30 10 100 (w) S 100 x 3 0 120 0 0 2 12 100 y", ReasonDecode, "cpu-usr"},
		{"bad pid", "PRC host 1607000010 2020/12/03 14:13:30 10 abc (w) S 100 7 3 0 120 0 0 2 12 100 y", ReasonDecode, "pid"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := dec.Decode(3, tt.line)
			require.Error(t, err)

			var skip *SkipError
			require.True(t, errors.As(err, &skip))
			assert.Equal(t, tt.reason, skip.Reason)
			assert.Equal(t, tt.field, skip.Field)
			assert.Equal(t, 3, skip.Line)
			assert.Contains(t, skip.Error(), string(tt.reason))
		})
	}
}

func TestStream_Filtering(t *testing.T) {
	dec, err := NewDecoder(schema.KindCPU, "cpu-usr")
	require.NoError(t, err)
	log := diag.NewLog(nil)

	lines := []string{
		"PRC host 1607000000 2020/12/03 14:13:20 10 100 (w) S 100 99 3 0 120 0 0 2 12 100 y", // since boot
		"SEP",
		prcLine,
		"",
		"RESET",
		"PRC host 1607000020 2020/12/03 14:13:40 10 100 (w) S 100 8 3 0 120 0 0 2 12 100 y",
		"PRC host 1607000020 2020/12/03 14:13:40 10 101 (w) S 100 bad 3 0 120 0 0 2 12 100 y",
		"PRC host 1607000020 2020/12/03 14:13:40 10 102 (w\xff) S 100 1 3 0 120 0 0 2 12 100 y",
		"SEP",
	}

	var got []int64
	err = NewStream(dec, log).Each(lines, func(s *Sample) error {
		usr, _ := s.Fields["cpu-usr"].Int64()
		got = append(got, usr)
		return nil
	})
	require.NoError(t, err)

	assert.Equal(t, []int64{7, 8}, got)
	entries := log.Entries()
	require.Len(t, entries, 2)
	assert.Equal(t, 7, entries[0].Line)
	assert.Equal(t, string(ReasonDecode), entries[0].Reason)
	assert.Equal(t, string(ReasonEncoding), entries[1].Reason)
}

func TestStream_NoSeparatorYieldsNothing(t *testing.T) {
	dec, err := NewDecoder(schema.KindCPU)
	require.NoError(t, err)

	results := NewStream(dec, nil).Results([]string{prcLine, prcLine})
	assert.Empty(t, results)
}

func TestStream_ResultsIncludeSkips(t *testing.T) {
	dec, err := NewDecoder(schema.KindCPU, "cpu-usr")
	require.NoError(t, err)
	log := diag.NewLog(nil)

	results := NewStream(dec, log).Results([]string{"SEP", prcLine, "PRM nope"})
	require.Len(t, results, 2)
	assert.NotNil(t, results[0].Sample)
	require.NotNil(t, results[1].Skip)
	assert.Equal(t, ReasonLabel, results[1].Skip.Reason)
	assert.Empty(t, log.Entries(), "Results does not log")
}

func TestStream_CallbackErrorStops(t *testing.T) {
	dec, err := NewDecoder(schema.KindCPU)
	require.NoError(t, err)

	boom := errors.New("boom")
	calls := 0
	err = NewStream(dec, nil).Each([]string{"SEP", prcLine, prcLine}, func(*Sample) error {
		calls++
		return boom
	})
	require.ErrorIs(t, err, boom)
	assert.Equal(t, 1, calls)
}

func TestIsMarker(t *testing.T) {
	assert.True(t, isMarker("SEP", schema.MarkerSep))
	assert.True(t, isMarker("RESET 1", schema.MarkerReset))
	assert.False(t, isMarker("SEPARATE", schema.MarkerSep))
}

func TestValue(t *testing.T) {
	n, ok := Int(5).Int64()
	assert.True(t, ok)
	assert.Equal(t, int64(5), n)

	_, ok = String("x").Int64()
	assert.False(t, ok)

	_, ok = Value{}.Str()
	assert.False(t, ok)
	assert.False(t, Value{}.Valid())

	assert.Equal(t, "5", Int(5).String())
	assert.Equal(t, "E", Category("E").String())
}
