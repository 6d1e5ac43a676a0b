package events

import (
	"encoding/json"
	"fmt"

	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

// RunStart is the run_start payload.
type RunStart struct {
	Total int `json:"total"`
}

// TaskStart is the task_start payload.
type TaskStart struct {
	Task task.Task `json:"task"`
}

// TaskComplete is the task_complete payload.
type TaskComplete struct {
	TaskID     int         `json:"task_id"`
	Status     task.Status `json:"status"`
	Output     string      `json:"output"`
	Reflection string      `json:"reflection"`
	ToolsUsed  []string    `json:"tools_used"`
}

// Complete is the complete payload.
type Complete struct {
	Summary    task.Summary            `json:"summary"`
	ExitReason orchestrator.ExitReason `json:"exit_reason"`
	Iterations int                     `json:"iterations"`
}

// Failure is the error payload.
type Failure struct {
	Message string `json:"message"`
}

// Encode renders e as the JSON payload streamed to clients.
func Encode(e orchestrator.Event) ([]byte, error) {
	var v any
	switch e.Type {
	case orchestrator.EventRunStart:
		v = RunStart{Total: e.Total}
	case orchestrator.EventTaskStart:
		if e.Task == nil {
			return nil, fmt.Errorf("%s event without task", e.Type)
		}
		v = TaskStart{Task: *e.Task}
	case orchestrator.EventTaskComplete:
		if e.Task == nil {
			return nil, fmt.Errorf("%s event without task", e.Type)
		}
		tc := TaskComplete{TaskID: e.Task.ID, Status: e.Task.Status, ToolsUsed: []string{}}
		if r := e.Task.Result; r != nil {
			tc.Output = r.Output
			tc.Reflection = r.Reflection
			if r.ToolsUsed != nil {
				tc.ToolsUsed = r.ToolsUsed
			}
		}
		v = tc
	case orchestrator.EventComplete:
		if e.Result == nil {
			return nil, fmt.Errorf("%s event without result", e.Type)
		}
		v = Complete{Summary: e.Result.Summary, ExitReason: e.Result.ExitReason, Iterations: e.Result.Iterations}
	case orchestrator.EventError:
		v = Failure{Message: e.Message}
	default:
		return nil, fmt.Errorf("unknown event type %q", e.Type)
	}
	return json.Marshal(v)
}

// Final reports whether t ends a run's stream.
func Final(t orchestrator.EventType) bool {
	return t == orchestrator.EventComplete || t == orchestrator.EventError
}
