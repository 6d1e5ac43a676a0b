package main

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"

	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

type doneGateway struct{}

func (doneGateway) Analyze(context.Context, string) gateway.Analysis { return gateway.Analysis{} }

func (doneGateway) Generate(context.Context, string, gateway.Expertise, []gateway.Clarification) []task.Record {
	return nil
}

func (doneGateway) InterpretEdit(context.Context, string, task.Task) gateway.EditProposal {
	return gateway.EditProposal{}
}

func (doneGateway) Execute(context.Context, task.Task, []string) task.Outcome {
	return task.Outcome{Status: "done", Output: "ok"}
}

func TestRunOptions_Presets(t *testing.T) {
	opts, err := runOptions{}.presets()
	require.NoError(t, err)
	assert.Empty(t, opts)

	opts, err = runOptions{goal: "g", expertise: "expert", mode: "auto"}.presets()
	require.NoError(t, err)
	o, err := orchestrator.New(doneGateway{}, nil, opts...)
	require.NoError(t, err)
	assert.Equal(t, "g", o.Goal())
	assert.Equal(t, gateway.ExpertiseExpert, o.Expertise())
	assert.Equal(t, orchestrator.ModeAuto, o.Mode())

	_, err = runOptions{expertise: "guru"}.presets()
	assert.Error(t, err)
	_, err = runOptions{mode: "yolo"}.presets()
	assert.Error(t, err)
}

func TestExportRun(t *testing.T) {
	o, err := orchestrator.New(doneGateway{}, []string{"create_file"}, orchestrator.WithGoal("ship it"))
	require.NoError(t, err)
	require.NoError(t, o.Queue().BulkLoad([]task.Record{
		{Title: "first", Phase: "planning"},
		{Title: "second"},
	}))
	res, err := o.Execute(context.Background())
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, exportRun(path, o, res))

	data, err := os.ReadFile(path)
	require.NoError(t, err)

	var doc runExport
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, "ship it", doc.Goal)
	require.Len(t, doc.Tasks, 2)
	assert.Equal(t, task.StatusDone, doc.Tasks[0].Status)
	require.NotNil(t, doc.Tasks[0].Result)
	assert.Equal(t, "ok", doc.Tasks[0].Result.Output)
	assert.Equal(t, orchestrator.ExitCompleted, doc.Result.ExitReason)
	assert.Equal(t, 2, doc.Result.Summary.Done)
}

func TestExportRun_BeforeExecution(t *testing.T) {
	o, err := orchestrator.New(doneGateway{}, nil)
	require.NoError(t, err)
	require.NoError(t, o.Queue().BulkLoad([]task.Record{{Title: "only"}}))

	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, exportRun(path, o, orchestrator.RunResult{ExitReason: orchestrator.ExitCancelled}))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var doc runExport
	require.NoError(t, yaml.Unmarshal(data, &doc))
	assert.Equal(t, 1, doc.Result.Summary.Pending)
	assert.Equal(t, orchestrator.ExitCancelled, doc.Result.ExitReason)
}

func TestVersionCommand(t *testing.T) {
	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"version"})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Version:    dev")
}

func TestHealthCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"success","data":{"status":"ok","events":"ok","sessions":2}}`))
	}))
	defer srv.Close()

	var out bytes.Buffer
	cmd := newRootCmd()
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"health", "--server", srv.URL})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "Server Status: ok")
	assert.Contains(t, out.String(), "Sessions:      2")
}

func TestHealthCommand_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"health", "--server", srv.URL})
	assert.Error(t, cmd.Execute())
}

func TestRunCommand_RejectsBadFlags(t *testing.T) {
	cmd := newRootCmd()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"run", "--mode", "sometimes"})
	err := cmd.Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown mode")
}
