package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/todorun/internal/task"
)

var (
	// ErrEmptyPlan is returned when the gateway produced no tasks for a goal.
	ErrEmptyPlan = errors.New("failed to generate task list")

	// ErrCancelled is returned when the human cancels the run during review.
	ErrCancelled = errors.New("run cancelled")

	// ErrNoGoal is returned when planning is requested before a goal is set.
	ErrNoGoal = errors.New("goal is required")

	// ErrNoPendingQuestions is returned when answers arrive with no open analysis.
	ErrNoPendingQuestions = errors.New("no clarifying questions pending")
)

// Mode selects whether a generated plan is reviewed before execution.
type Mode string

const (
	ModeConfirm Mode = "confirm"
	ModeAuto    Mode = "auto"
)

// DefaultMode is used when no mode is given.
const DefaultMode = ModeConfirm

// ParseMode maps s to a Mode. Empty input yields DefaultMode.
func ParseMode(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case "":
		return DefaultMode, nil
	case ModeConfirm:
		return ModeConfirm, nil
	case ModeAuto:
		return ModeAuto, nil
	}
	return "", fmt.Errorf("unknown mode %q (want confirm or auto)", s)
}

// ExitReason tells why the execution loop stopped.
type ExitReason string

const (
	// ExitCompleted means every task reached done or failed.
	ExitCompleted ExitReason = "completed"
	// ExitStalled means no pending tasks remain but some need follow-up.
	ExitStalled ExitReason = "stalled"
	// ExitIterationLimit means the iteration ceiling was reached.
	ExitIterationLimit ExitReason = "iteration_limit"
	// ExitCancelled means the context ended between tasks or the human
	// cancelled before execution.
	ExitCancelled ExitReason = "cancelled"
	// ExitInvalidOutcome means the gateway reported a status that could not
	// be adopted.
	ExitInvalidOutcome ExitReason = "invalid_outcome"
)

// RunResult summarizes one pass of the execution loop.
type RunResult struct {
	Summary    task.Summary `json:"summary" yaml:"summary"`
	ExitReason ExitReason   `json:"exit_reason" yaml:"exit_reason"`
	Iterations int          `json:"iterations" yaml:"iterations"`
}

// FullySucceeded is true when the run completed with every task done.
func (r RunResult) FullySucceeded() bool {
	return r.ExitReason == ExitCompleted && r.Summary.FullySucceeded()
}

// EventType names a run event.
type EventType string

const (
	EventRunStart     EventType = "run_start"
	EventTaskStart    EventType = "task_start"
	EventTaskComplete EventType = "task_complete"
	EventComplete     EventType = "complete"
	EventError        EventType = "error"
)

// Event is emitted by the execution loop in order.
type Event struct {
	Type EventType `json:"type"`

	// Total is set on run_start.
	Total int `json:"total,omitempty"`
	// Task is set on task_start and task_complete.
	Task *task.Task `json:"task,omitempty"`
	// Result is set on complete.
	Result *RunResult `json:"result,omitempty"`
	// Message is set on error.
	Message string `json:"message,omitempty"`
}

// Observer receives run events. Observe must not block for long; it runs
// on the loop's goroutine.
type Observer interface {
	Observe(ctx context.Context, e Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ctx context.Context, e Event)

// Observe implements Observer.
func (f ObserverFunc) Observe(ctx context.Context, e Event) { f(ctx, e) }

// Observers fans an event out to each member in order.
type Observers []Observer

// Observe implements Observer.
func (obs Observers) Observe(ctx context.Context, e Event) {
	for _, o := range obs {
		if o != nil {
			o.Observe(ctx, e)
		}
	}
}

type nopObserver struct{}

func (nopObserver) Observe(context.Context, Event) {}
