package attributes

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mrzor/atop-lifetimes/internal/config"
	"github.com/mrzor/atop-lifetimes/internal/identity"
	"github.com/mrzor/atop-lifetimes/internal/procmeta"
	"github.com/mrzor/atop-lifetimes/internal/record"
	"github.com/mrzor/atop-lifetimes/internal/schema"
	"github.com/mrzor/atop-lifetimes/internal/stats"
)

// detail builds one sealed lifetime started at 100 with a CPU sample at 130.
func detail(t *testing.T, name, command string) *stats.Detail {
	t.Helper()
	reg := procmeta.NewRegistry(identity.NewResolver(nil))
	_, _, err := reg.IngestPrimary(&record.Sample{
		Kind: schema.KindProcess,
		Fields: map[string]record.Value{
			"pid":     record.Int(42),
			"epoch":   record.Int(110),
			"start":   record.Int(100),
			"tgid":    record.Int(40),
			"name":    record.String(name),
			"command": record.String(command),
			"state":   record.Category("S"),
		},
	})
	require.NoError(t, err)
	err = reg.IngestSecondary(&record.Sample{
		Kind: schema.KindCPU,
		Fields: map[string]record.Value{
			"pid":     record.Int(42),
			"epoch":   record.Int(130),
			"cpu-usr": record.Int(6),
			"cpu-sys": record.Int(2),
		},
	}, []string{"cpu-usr", "cpu-sys"})
	require.NoError(t, err)

	reg.Seal()
	sum, err := stats.Aggregate(reg)
	require.NoError(t, err)
	require.Len(t, sum.Details, 1)
	return sum.Details[0]
}

func TestEnv(t *testing.T) {
	d := detail(t, "python", `python worker.py --name "job a"`)
	env := Env(d)

	assert.Equal(t, "lt-1", env["id"])
	assert.Equal(t, int64(42), env["pid"])
	assert.Equal(t, int64(40), env["tgid"])
	assert.Equal(t, []string{"python", "worker.py", "--name", "job a"}, env["args"])
	assert.Equal(t, int64(100), env["start"])
	assert.Equal(t, int64(131), env["end"])
	assert.Equal(t, int64(31), env["duration"])
	assert.Equal(t, false, env["ended"])
	assert.Equal(t, 1, env["samples"])
	assert.Equal(t, 8.0, env["stats"].(map[string]float64)["cpu-usr-sys-sum"])
}

func TestSplitCommand(t *testing.T) {
	tests := []struct {
		command string
		want    []string
	}{
		{"", []string{}},
		{"sleep 10", []string{"sleep", "10"}},
		{`sh -c 'echo hi'`, []string{"sh", "-c", "echo hi"}},
		{`sh -c 'truncated by at`, []string{"sh", "-c", "'truncated", "by", "at"}},
	}

	for _, tt := range tests {
		t.Run(tt.command, func(t *testing.T) {
			assert.Equal(t, tt.want, splitCommand(tt.command))
		})
	}
}

func TestEvaluator_Simple(t *testing.T) {
	attrs := []config.CustomAttribute{
		{Name: "script", Expression: `args[1]`},
		{Name: "busy", Expression: `stats["cpu-usr-sum"] > 5`},
		{Name: "minutes", Expression: `duration / 60`},
	}

	evaluator, err := NewEvaluator(attrs)
	require.NoError(t, err)

	result := evaluator.EvaluateCustomAttributes(detail(t, "python", "python worker.py"))
	require.Len(t, result, 3)

	assert.Equal(t, "script", string(result[0].Key))
	assert.Equal(t, "worker.py", result[0].Value.AsString())
	assert.Equal(t, "busy", string(result[1].Key))
	assert.Equal(t, "true", result[1].Value.AsString())
	assert.Equal(t, "minutes", string(result[2].Key))
}

func TestNewEvaluator_RejectsColumnCollisions(t *testing.T) {
	tests := []struct {
		name    string
		attrs   []config.CustomAttribute
		wantErr string
	}{
		{"base column", []config.CustomAttribute{{Name: "pid", Expression: "tgid"}}, "built-in column"},
		{"name column", []config.CustomAttribute{{Name: "name", Expression: "upper(name)"}}, "built-in column"},
		{"derived key", []config.CustomAttribute{{Name: string(stats.KeyDuration), Expression: "0"}}, "built-in column"},
		{"case folded", []config.CustomAttribute{{Name: "Ended", Expression: "true"}}, "built-in column"},
		{"defined twice", []config.CustomAttribute{
			{Name: "team", Expression: `"a"`},
			{Name: "TEAM", Expression: `"b"`},
		}, "defined twice"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewEvaluator(tt.attrs)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestEvaluator_MapExpansion(t *testing.T) {
	evaluator, err := NewEvaluator([]config.CustomAttribute{
		{Name: "ids", Expression: `{"pid": pid, "tgid": tgid, "full-name": name}`},
	})
	require.NoError(t, err)

	result := evaluator.EvaluateCustomAttributes(detail(t, "worker", "worker"))
	require.Len(t, result, 3)

	got := make(map[string]string)
	for _, kv := range result {
		got[string(kv.Key)] = kv.Value.AsString()
	}
	assert.Equal(t, map[string]string{
		"ids.pid":       "42",
		"ids.tgid":      "40",
		"ids.full_name": "worker",
	}, got)
}

func TestEvaluator_RuntimeErrorSkipsAttribute(t *testing.T) {
	evaluator, err := NewEvaluator([]config.CustomAttribute{
		{Name: "tenth", Expression: `args[10]`},
		{Name: "name", Expression: `name`},
	})
	require.NoError(t, err)

	result := evaluator.EvaluateCustomAttributes(detail(t, "w", "w"))
	require.Len(t, result, 1)
	assert.Equal(t, "name", string(result[0].Key))
}

func TestEvaluator_CompileError(t *testing.T) {
	_, err := NewEvaluator([]config.CustomAttribute{{Name: "bad", Expression: `unknown_var + 1`}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), `"bad"`)
}

func TestEvaluator_Enrich(t *testing.T) {
	evaluator, err := NewEvaluator([]config.CustomAttribute{{Name: "upper", Expression: `upper(name)`}})
	require.NoError(t, err)

	d := detail(t, "worker", "worker")
	require.NoError(t, evaluator.Enrich(d))
	require.Len(t, d.Extra, 1)
	assert.Equal(t, "WORKER", d.Extra[0].Value.AsString())
}

func TestEvaluator_NoAttributes(t *testing.T) {
	evaluator, err := NewEvaluator(nil)
	require.NoError(t, err)
	assert.Nil(t, evaluator.EvaluateCustomAttributes(detail(t, "w", "w")))
}

func TestFilter(t *testing.T) {
	d := detail(t, "worker", "worker --fast")

	tests := []struct {
		expr string
		want bool
	}{
		{"", true},
		{`name == "worker"`, true},
		{`name == "other"`, false},
		{`duration > 30 && "--fast" in args`, true},
		{`stats["cpu-usr-sum"] >= 10`, false},
		{`not ended`, true},
	}

	for _, tt := range tests {
		t.Run(tt.expr, func(t *testing.T) {
			filter, err := NewFilter(tt.expr)
			require.NoError(t, err)
			got, err := filter.Match(d)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFilter_MustBeBoolean(t *testing.T) {
	_, err := NewFilter(`pid + 1`)
	require.Error(t, err)
}

func TestSanitizeAttributeName(t *testing.T) {
	tests := []struct {
		input string
		want  string
	}{
		{"simple", "simple"},
		{"with-dash", "with_dash"},
		{"with.dot", "with_dot"},
		{"with space", "with_space"},
		{"special!@#$%", "special_____"},
		{"mixed-123.test", "mixed_123_test"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := sanitizeAttributeName(tt.input)
			if got != tt.want {
				t.Errorf("sanitizeAttributeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}
