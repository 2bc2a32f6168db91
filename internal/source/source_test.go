package source

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/atop-lifetimes/internal/schema"
	"github.com/mrzor/atop-lifetimes/internal/sysmetrics"
)

const parsed = `PRG host 1607000000 2020/12/03 14:13:20 10 1 (init) S 0 1 0 1 0 1606000000 (/sbin/init) 1 1 0 0 0 0 0 0 0 0 0 y 0 0 -
PRC host 1607000000 2020/12/03 14:13:20 10 1 (init) S 100 7 3 0 120 0 0 2 12 100 y
SEP
PRG host 1607000010 2020/12/03 14:13:30 10 100 (my worker) S 1000 1000 100 1 0 1607000000 (python worker.py) 1 1 0 0 1000 1000 1000 1000 1000 1000 0 y 0 0 -
PRC host 1607000010 2020/12/03 14:13:30 10 100 (my worker) S 100 7 3 0 120 0 0 2 12 100 y
PRN host 1607000010 2020/12/03 14:13:30 10 100 (my worker) S 1 2 3
RESET
PRM host 1607000020 2020/12/03 14:13:40 10 100 (my worker) S 4096 100 200 50 0 10 20 0 0 0 0 y
`

func TestSplit(t *testing.T) {
	kinds := []schema.Kind{schema.KindProcess, schema.KindCPU, schema.KindMemory, schema.KindStorage}
	in, err := Split(strings.NewReader(parsed), kinds)
	require.NoError(t, err)

	require.Len(t, in[schema.KindProcess], 4)
	assert.True(t, strings.HasPrefix(in[schema.KindProcess][0], "PRG host 1607000000"))
	assert.Equal(t, "SEP", in[schema.KindProcess][1])
	assert.Equal(t, "RESET", in[schema.KindProcess][3])

	require.Len(t, in[schema.KindCPU], 4)
	assert.Equal(t, []string{"SEP", "RESET"}, []string{in[schema.KindCPU][1], in[schema.KindCPU][3]})

	require.Len(t, in[schema.KindMemory], 3)
	assert.True(t, strings.HasPrefix(in[schema.KindMemory][2], "PRM"))

	assert.Equal(t, []string{"SEP", "RESET"}, in[schema.KindStorage], "markers reach kinds without data")
	_, ok := in[schema.KindAccelerator]
	assert.False(t, ok, "kinds not requested are absent")
}

func TestFindOrigin(t *testing.T) {
	in, err := Split(strings.NewReader(parsed), schema.All())
	require.NoError(t, err)

	origin, ok := FindOrigin(in)
	require.True(t, ok)
	assert.Equal(t, Origin{Host: "host", Epoch: 1607000000, Date: "2020/12/03", Time: "14:13:20"}, origin)

	_, ok = FindOrigin(nil)
	assert.False(t, ok)
}

func TestFile_Load(t *testing.T) {
	path := filepath.Join(t.TempDir(), "parsed.txt")
	require.NoError(t, os.WriteFile(path, []byte(parsed), 0o644))

	src := NewFile(path)
	assert.Equal(t, path, src.Name())

	in, err := src.Load(context.Background(), schema.All())
	require.NoError(t, err)
	assert.Len(t, in, len(schema.All()))
	assert.Len(t, in[schema.KindProcess], 4)
}

func TestFile_Missing(t *testing.T) {
	_, err := NewFile(filepath.Join(t.TempDir(), "nope.txt")).Load(context.Background(), schema.All())
	require.ErrorIs(t, err, ErrUnavailable)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

// fakeAtop writes a shell script answering `-r <file> -P <label>` with the
// lines of parsed carrying that label.
func fakeAtop(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts are not supported")
	}
	path := filepath.Join(t.TempDir(), "atop")
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body), 0o755))
	return path
}

func TestCommand_Load(t *testing.T) {
	data := filepath.Join(t.TempDir(), "parsed.txt")
	require.NoError(t, os.WriteFile(data, []byte(parsed), 0o644))

	bin := fakeAtop(t, `[ "$1" = "-r" ] && [ "$3" = "-P" ] || exit 2
grep -E "^($4|SEP|RESET)( |$)" "$2"
exit 0
`)

	src := NewCommand(bin, data)
	assert.Equal(t, data, src.Name())

	in, err := src.Load(context.Background(), []schema.Kind{schema.KindProcess, schema.KindMemory})
	require.NoError(t, err)
	assert.Len(t, in[schema.KindProcess], 4)
	require.Len(t, in[schema.KindMemory], 3)
	assert.True(t, strings.HasPrefix(in[schema.KindMemory][2], "PRM"))
}

func TestCommand_Fails(t *testing.T) {
	bin := fakeAtop(t, "echo 'cannot open raw file' >&2\nexit 7\n")

	_, err := NewCommand(bin, "/nonexistent").Load(context.Background(), []schema.Kind{schema.KindProcess})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "exited with 7")
	assert.Contains(t, err.Error(), "cannot open raw file")
}

func TestCommand_MissingBinary(t *testing.T) {
	bin := filepath.Join(t.TempDir(), "no-atop")
	_, err := NewCommand(bin, "/nonexistent").Load(context.Background(), []schema.Kind{schema.KindProcess})
	require.ErrorIs(t, err, ErrUnavailable)
}

func TestSar_Load(t *testing.T) {
	bin := fakeAtop(t, `case "$1" in
-m) [ "$2" = "-a" ] && [ "$3" = "-r" ] || exit 2
    printf 'host\n\n--- analysis date: 2020/12/02 ---\n\n18:05:04 memtotal memfree\n18:05:05 1000M 400M\n' ;;
-O) [ "$2" = "-r" ] || exit 2
    echo "$3" ;;
*) echo "no such report" >&2
   exit 3 ;;
esac
`)

	src := NewSar(bin, "/var/log/atop/atop_20201202")
	out, err := src.Load(context.Background(), []sysmetrics.Flag{sysmetrics.FlagMemory, sysmetrics.FlagTopCPU})
	require.NoError(t, err)

	require.Len(t, out[sysmetrics.FlagMemory], 4, "blank lines are dropped")
	assert.Equal(t, "18:05:05 1000M 400M", out[sysmetrics.FlagMemory][3])
	assert.Equal(t, []string{"/var/log/atop/atop_20201202"}, out[sysmetrics.FlagTopCPU])

	_, err = src.Load(context.Background(), []sysmetrics.Flag{sysmetrics.FlagGPU})
	require.ErrorIs(t, err, ErrUnavailable)
	assert.Contains(t, err.Error(), "exited with 3")
	assert.Contains(t, err.Error(), "no such report")
}
