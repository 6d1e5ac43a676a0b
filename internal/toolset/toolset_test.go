package toolset

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/todorun/internal/config"
	"github.com/fyrsmithlabs/todorun/internal/secrets"
	"github.com/fyrsmithlabs/todorun/internal/telemetry"
)

var fixedNow = func() time.Time { return time.Date(2025, 3, 14, 9, 26, 53, 0, time.UTC) }

func newTestRegistry(t *testing.T, opts Options) (*Registry, *Workspace) {
	t.Helper()
	cfg := config.Default().Tools
	cfg.WorkspaceDir = filepath.Join(t.TempDir(), "output")
	if opts.Now == nil {
		opts.Now = fixedNow
	}
	reg, ws, err := New(cfg, opts)
	require.NoError(t, err)
	return reg, ws
}

type stubCapability struct{ name string }

func (s stubCapability) Name() string        { return s.name }
func (s stubCapability) Description() string { return "stub" }
func (s stubCapability) Invoke(context.Context, Args) Result {
	return Result{Success: true}
}

func TestNewRegistry_Validation(t *testing.T) {
	tests := []struct {
		name    string
		caps    []Capability
		wantErr error
	}{
		{"empty name", []Capability{stubCapability{""}}, ErrInvalidName},
		{"bad characters", []Capability{stubCapability{"Create File"}}, ErrInvalidName},
		{"nil capability", []Capability{nil}, ErrInvalidName},
		{"duplicate", []Capability{stubCapability{"a"}, stubCapability{"a"}}, ErrDuplicateName},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewRegistry(tt.caps)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestRegistry_NamesInOrder(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	assert.Equal(t, []string{"create_file", "read_file", "list_files", "calculate", "log_action"}, reg.Names())

	names := reg.Names()
	names[0] = "mutated"
	assert.Equal(t, "create_file", reg.Names()[0])
}

func TestRegistry_UnknownCapability(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})

	res := reg.Invoke(context.Background(), "delete_everything", nil)
	assert.False(t, res.Success)
	assert.Equal(t, "Tool 'delete_everything' not found", res.Message)

	_, err := reg.Lookup("delete_everything")
	assert.ErrorIs(t, err, ErrUnknownCapability)
}

func TestCreateReadList(t *testing.T) {
	reg, ws := newTestRegistry(t, Options{})
	ctx := context.Background()

	res := reg.Invoke(ctx, CreateFile, Args{"filename": "site/index.html", "content": "<h1>hi</h1>"})
	require.True(t, res.Success, res.Message)
	assert.Equal(t, "site/index.html", res.Path)

	data, err := os.ReadFile(filepath.Join(ws.Root(), "site", "index.html"))
	require.NoError(t, err)
	assert.Equal(t, "<h1>hi</h1>", string(data))

	res = reg.Invoke(ctx, ReadFile, Args{"filename": "site/index.html"})
	require.True(t, res.Success)
	assert.Equal(t, "<h1>hi</h1>", res.Content)

	reg.Invoke(ctx, CreateFile, Args{"filename": "a.txt", "content": ""})
	res = reg.Invoke(ctx, ListFiles, nil)
	require.True(t, res.Success)
	assert.Equal(t, []string{"a.txt", "site/index.html"}, res.Files)
	assert.Equal(t, 2, res.Count)
}

func TestListFiles_Empty(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	res := reg.Invoke(context.Background(), ListFiles, nil)
	assert.True(t, res.Success)
	assert.Empty(t, res.Files)
	assert.Zero(t, res.Count)
}

func TestFileCapabilities_RejectEscapes(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	ctx := context.Background()

	for _, name := range []string{"../evil.txt", "a/../../evil.txt", "/etc/passwd", "", "."} {
		t.Run(name, func(t *testing.T) {
			res := reg.Invoke(ctx, CreateFile, Args{"filename": name, "content": "x"})
			assert.False(t, res.Success)

			res = reg.Invoke(ctx, ReadFile, Args{"filename": name})
			assert.False(t, res.Success)
		})
	}
}

func TestReadFile_Missing(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	res := reg.Invoke(context.Background(), ReadFile, Args{"filename": "nope.txt"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "Failed to read file")
}

func TestCreateFile_ScrubsSecrets(t *testing.T) {
	s, err := secrets.New(nil)
	require.NoError(t, err)
	reg, ws := newTestRegistry(t, Options{Scrubber: s})

	res := reg.Invoke(context.Background(), CreateFile, Args{
		"filename": ".env",
		"content":  "OPENAI=sk-abcdefghijklmnopqrstuvwxyz0123456789\n",
	})
	require.True(t, res.Success)
	assert.Contains(t, res.Message, "1 secret(s) redacted")

	data, err := os.ReadFile(filepath.Join(ws.Root(), ".env"))
	require.NoError(t, err)
	assert.Equal(t, "OPENAI=[REDACTED]\n", string(data))
}

func TestCreateFile_ScrubDisabledByConfig(t *testing.T) {
	s, err := secrets.New(nil)
	require.NoError(t, err)

	cfg := config.Default().Tools
	cfg.WorkspaceDir = t.TempDir()
	cfg.ScrubSecrets = false
	reg, ws, err := New(cfg, Options{Scrubber: s})
	require.NoError(t, err)

	key := "sk-abcdefghijklmnopqrstuvwxyz0123456789"
	reg.Invoke(context.Background(), CreateFile, Args{"filename": "k.txt", "content": key})
	data, err := os.ReadFile(filepath.Join(ws.Root(), "k.txt"))
	require.NoError(t, err)
	assert.Equal(t, key, string(data))
}

func TestCalculate(t *testing.T) {
	reg, _ := newTestRegistry(t, Options{})
	ctx := context.Background()

	res := reg.Invoke(ctx, Calculate, Args{"expression": "(2 + 3) * 4"})
	require.True(t, res.Success)
	assert.Equal(t, "20", res.Value)
	assert.Equal(t, "(2 + 3) * 4", res.Expression)

	res = reg.Invoke(ctx, Calculate, Args{"expression": "import os"})
	assert.False(t, res.Success)
	assert.Equal(t, "Invalid characters in expression", res.Message)

	res = reg.Invoke(ctx, Calculate, Args{"expression": "1/0"})
	assert.False(t, res.Success)
	assert.Contains(t, res.Message, "division by zero")

	res = reg.Invoke(ctx, Calculate, nil)
	assert.False(t, res.Success)
}

func TestLogAction(t *testing.T) {
	reg, ws := newTestRegistry(t, Options{})
	ctx := context.Background()

	require.True(t, reg.Invoke(ctx, LogAction, Args{"action": "started"}).Success)
	require.True(t, reg.Invoke(ctx, LogAction, Args{"action": "wrote file", "details": "index.html"}).Success)

	data, err := os.ReadFile(filepath.Join(ws.Root(), "agent_log.txt"))
	require.NoError(t, err)
	assert.Equal(t,
		"[2025-03-14 09:26:53] started\n[2025-03-14 09:26:53] wrote file - index.html\n",
		string(data))

	res := reg.Invoke(ctx, LogAction, Args{})
	assert.False(t, res.Success)
}

func TestRegistry_RecordsMetrics(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	m := NewMetrics(tt.Meter("toolset"), nil)
	reg, _ := newTestRegistry(t, Options{Metrics: m})
	ctx := context.Background()

	reg.Invoke(ctx, Calculate, Args{"expression": "1+1"})
	reg.Invoke(ctx, Calculate, Args{"expression": "1/0"})

	assert.Equal(t, int64(2), tt.CounterValue(t, "todorun.tool.invocations_total"))
	assert.Equal(t, int64(1), tt.CounterValue(t, "todorun.tool.failures_total"))
}

func TestArgs(t *testing.T) {
	a := Args{"s": "x", "n": 3, "nil": nil}

	v, err := a.String("s")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	v, err = a.String("n")
	require.NoError(t, err)
	assert.Equal(t, "3", v)

	_, err = a.String("nil")
	assert.ErrorIs(t, err, ErrMissingArgument)
	assert.Equal(t, "", a.OptionalString("missing"))
}
