package console

import (
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

func ptr[T any](v T) *T { return &v }

func TestParseTaskID(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"3", 3, false},
		{" 12 ", 12, false},
		{"-1", -1, false},
		{"abc", 0, true},
		{"", 0, true},
		{"2.5", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseTaskID(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestRenderPlan(t *testing.T) {
	groups := []task.PhaseGroup{
		{Phase: task.PhasePlanning, Tasks: []task.Task{
			{ID: 1, Title: "Sketch layout", Description: "Rough wireframe", Status: task.StatusPending, Reasoning: "needed first"},
		}},
		{Phase: task.PhaseTesting, Tasks: []task.Task{
			{ID: 2, Title: "Write tests", Status: task.StatusDone},
		}},
	}

	out := RenderPlan(groups)
	assert.Contains(t, out, "Task list (2)")
	assert.Contains(t, out, "PLANNING")
	assert.Contains(t, out, "TESTING")
	assert.Contains(t, out, "#1")
	assert.Contains(t, out, "Sketch layout")
	assert.Contains(t, out, "Rough wireframe")
	assert.Contains(t, out, "why: needed first")
	assert.Less(t, strings.Index(out, "PLANNING"), strings.Index(out, "TESTING"))
}

func TestRenderProposal(t *testing.T) {
	current := task.Task{ID: 4, Title: "Old", Description: "same", Phase: task.PhaseDevelopment}

	t.Run("shows changed fields only", func(t *testing.T) {
		out := RenderProposal(current, gateway.EditProposal{
			Title:          ptr("New"),
			Phase:          ptr(task.PhaseTesting),
			ChangesMade:    []string{"renamed"},
			Interpretation: "rename and move",
		})
		assert.Contains(t, out, "rename and move")
		assert.Contains(t, out, "title")
		assert.Contains(t, out, "New")
		assert.Contains(t, out, "testing")
		assert.Contains(t, out, "renamed")
		assert.NotContains(t, out, "description")
	})

	t.Run("no changes", func(t *testing.T) {
		out := RenderProposal(current, gateway.EditProposal{})
		assert.Contains(t, out, "no changes")
	})
}

func TestRenderSummary(t *testing.T) {
	out := RenderSummary(orchestrator.RunResult{
		Summary:    task.Summary{Total: 3, Done: 1, NeedsFollowUp: 2},
		ExitReason: orchestrator.ExitStalled,
		Iterations: 3,
	})
	assert.Contains(t, out, "Run summary")
	assert.Contains(t, out, "exit stalled")
	assert.Contains(t, out, "need follow-up")
}

func TestProgress_Observe(t *testing.T) {
	var buf bytes.Buffer
	p := NewProgress(&buf)
	ctx := context.Background()

	tk := task.Task{ID: 1, Title: "Create file", Status: task.StatusInProgress}
	p.Observe(ctx, orchestrator.Event{Type: orchestrator.EventRunStart, Total: 1})
	p.Observe(ctx, orchestrator.Event{Type: orchestrator.EventTaskStart, Task: &tk})

	tk.Status = task.StatusDone
	tk.Result = &task.Outcome{Status: "done", Output: "wrote hello.txt", Reflection: "went fine", ToolsUsed: []string{"create_file"}}
	p.Observe(ctx, orchestrator.Event{Type: orchestrator.EventTaskComplete, Task: &tk})
	p.Observe(ctx, orchestrator.Event{Type: orchestrator.EventComplete, Result: &orchestrator.RunResult{
		Summary:    task.Summary{Total: 1, Done: 1},
		ExitReason: orchestrator.ExitCompleted,
		Iterations: 1,
	}})
	p.Observe(ctx, orchestrator.Event{Type: orchestrator.EventError, Message: "boom"})

	out := buf.String()
	assert.Contains(t, out, "Executing 1 tasks")
	assert.Contains(t, out, "Create file")
	assert.Contains(t, out, "wrote hello.txt")
	assert.Contains(t, out, "went fine")
	assert.Contains(t, out, "tools: create_file")
	assert.Contains(t, out, "exit completed")
	assert.Contains(t, out, "boom")

	// Missing payloads are skipped.
	p.Observe(ctx, orchestrator.Event{Type: orchestrator.EventTaskComplete})
	p.Observe(ctx, orchestrator.Event{Type: orchestrator.EventComplete})
}

func accessible(input string) (*Prompter, *bytes.Buffer) {
	var out bytes.Buffer
	return NewPrompter(&out, WithAccessible(strings.NewReader(input))), &out
}

func TestPrompter_Goal(t *testing.T) {
	p, _ := accessible("   \nBuild a blog\n")

	goal, err := p.Goal(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Build a blog", goal)
}

func TestPrompter_EditTargetReprompts(t *testing.T) {
	p, out := accessible("abc\n2\n")

	id, err := p.EditTarget(context.Background(), []task.Task{{ID: 1}, {ID: 2}})
	require.NoError(t, err)
	assert.Equal(t, 2, id)
	assert.Contains(t, out.String(), "is not a task number")
}

func TestPrompter_Selects(t *testing.T) {
	t.Run("expertise", func(t *testing.T) {
		p, _ := accessible("3\n")
		e, err := p.Expertise(context.Background())
		require.NoError(t, err)
		assert.Equal(t, gateway.ExpertiseExpert, e)
	})

	t.Run("mode", func(t *testing.T) {
		p, _ := accessible("2\n")
		m, err := p.Mode(context.Background())
		require.NoError(t, err)
		assert.Equal(t, orchestrator.ModeAuto, m)
	})

	t.Run("review prints plan", func(t *testing.T) {
		p, out := accessible("4\n")
		choice, err := p.Review(context.Background(), []task.PhaseGroup{
			{Phase: task.PhaseDevelopment, Tasks: []task.Task{{ID: 1, Title: "Only task"}}},
		})
		require.NoError(t, err)
		assert.Equal(t, orchestrator.ReviewCancel, choice)
		assert.Contains(t, out.String(), "Only task")
	})
}

func TestPrompter_Notify(t *testing.T) {
	var out bytes.Buffer
	NewPrompter(&out).Notify(context.Background(), "Task 42 not found")
	assert.Contains(t, out.String(), "Task 42 not found")
}
