// Package task provides the work item model and the ordered work queue that
// drives execution order.
package task

import (
	"errors"
	"fmt"
	"strings"
)

// Status is the lifecycle state of a Task.
type Status string

const (
	StatusPending       Status = "pending"
	StatusInProgress    Status = "in_progress"
	StatusDone          Status = "done"
	StatusFailed        Status = "failed"
	StatusNeedsFollowUp Status = "needs-follow-up"
)

// AllStatuses returns every status in lifecycle order.
func AllStatuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusDone, StatusFailed, StatusNeedsFollowUp}
}

var (
	// ErrInvalidStatus is returned when a status string is not one of the known values.
	ErrInvalidStatus = errors.New("invalid task status")

	// ErrNotFound is returned when no task carries the requested id.
	ErrNotFound = errors.New("task not found")

	// ErrInvalidTransition is returned when a status change is not allowed
	// from the task's current status.
	ErrInvalidTransition = errors.New("invalid status transition")
)

// StatusError reports the raw value that failed to parse.
type StatusError struct {
	Value string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: %q", ErrInvalidStatus, e.Value)
}

// Is makes errors.Is(err, ErrInvalidStatus) match.
func (e *StatusError) Is(target error) bool {
	return target == ErrInvalidStatus
}

// ParseStatus converts untrusted text into a Status.
// Surrounding whitespace and case are ignored; "needs_follow_up" is accepted
// as an alias of "needs-follow-up".
func ParseStatus(s string) (Status, error) {
	v := strings.ToLower(strings.TrimSpace(s))
	if v == "needs_follow_up" {
		v = string(StatusNeedsFollowUp)
	}
	for _, st := range AllStatuses() {
		if string(st) == v {
			return st, nil
		}
	}
	return "", &StatusError{Value: s}
}

// Terminal reports whether no further automatic transition can occur.
// needs-follow-up is not terminal even though the queue never re-selects it.
func (s Status) Terminal() bool {
	return s == StatusDone || s == StatusFailed
}

// pending -> in_progress -> {done, failed, needs-follow-up}
var validTransitions = map[Status]map[Status]bool{
	StatusPending: {
		StatusInProgress: true,
	},
	StatusInProgress: {
		StatusDone:          true,
		StatusFailed:        true,
		StatusNeedsFollowUp: true,
	},
}

// CanTransitionTo reports whether next is a legal successor of s.
func (s Status) CanTransitionTo(next Status) bool {
	return validTransitions[s][next]
}

// Phase is a coarse grouping bucket used for display and generation guidance.
// It never affects execution order.
type Phase string

const (
	PhasePlanning    Phase = "planning"
	PhaseDevelopment Phase = "development"
	PhaseTesting     Phase = "testing"
	PhaseDeployment  Phase = "deployment"
)

// DefaultPhase is assigned when a record omits its phase or names an unknown one.
const DefaultPhase = PhaseDevelopment

// AllPhases returns phases in display order.
func AllPhases() []Phase {
	return []Phase{PhasePlanning, PhaseDevelopment, PhaseTesting, PhaseDeployment}
}

// ParsePhase normalizes s, mapping empty or unknown values to DefaultPhase.
func ParsePhase(s string) Phase {
	v := Phase(strings.ToLower(strings.TrimSpace(s)))
	for _, p := range AllPhases() {
		if p == v {
			return p
		}
	}
	return DefaultPhase
}

// Outcome is the result of one execution attempt as reported by the
// reasoning gateway. Status is kept verbatim and parsed by the queue.
type Outcome struct {
	Status       string   `json:"status" yaml:"status"`
	ActionsTaken []string `json:"actions_taken" yaml:"actions_taken"`
	Output       string   `json:"output" yaml:"output"`
	Reflection   string   `json:"reflection" yaml:"reflection"`
	ToolsUsed    []string `json:"tools_used" yaml:"tools_used"`
}

func (o *Outcome) clone() *Outcome {
	if o == nil {
		return nil
	}
	c := *o
	c.ActionsTaken = append([]string(nil), o.ActionsTaken...)
	c.ToolsUsed = append([]string(nil), o.ToolsUsed...)
	return &c
}

// Task is one unit of work. Values returned by Queue are copies.
type Task struct {
	ID          int      `json:"id" yaml:"id"`
	Title       string   `json:"title" yaml:"title"`
	Description string   `json:"description" yaml:"description"`
	Phase       Phase    `json:"phase" yaml:"phase"`
	Reasoning   string   `json:"reasoning" yaml:"reasoning"`
	Status      Status   `json:"status" yaml:"status"`
	Result      *Outcome `json:"result,omitempty" yaml:"result,omitempty"`
}

func (t Task) clone() Task {
	t.Result = t.Result.clone()
	return t
}

// Record is the untrusted input shape used by Queue.BulkLoad.
// A nil ID defaults to the record's 1-based position.
type Record struct {
	ID          *int   `json:"id,omitempty"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      string `json:"status,omitempty"`
	Phase       string `json:"phase,omitempty"`
	Reasoning   string `json:"reasoning,omitempty"`
}

// Fields is a partial update. Nil members keep the current value.
type Fields struct {
	Title       *string
	Description *string
	Phase       *Phase
}

// Summary partitions a queue by status.
type Summary struct {
	Total         int `json:"total" yaml:"total"`
	Pending       int `json:"pending" yaml:"pending"`
	InProgress    int `json:"in_progress" yaml:"in_progress"`
	Done          int `json:"done" yaml:"done"`
	Failed        int `json:"failed" yaml:"failed"`
	NeedsFollowUp int `json:"needs_follow_up" yaml:"needs_follow_up"`
}

// Outstanding counts tasks that are not terminal.
func (s Summary) Outstanding() int {
	return s.Pending + s.InProgress + s.NeedsFollowUp
}

// FullySucceeded is true when every task finished as done.
func (s Summary) FullySucceeded() bool {
	return s.Done == s.Total
}

func (s *Summary) add(st Status) {
	s.Total++
	switch st {
	case StatusPending:
		s.Pending++
	case StatusInProgress:
		s.InProgress++
	case StatusDone:
		s.Done++
	case StatusFailed:
		s.Failed++
	case StatusNeedsFollowUp:
		s.NeedsFollowUp++
	}
}

// PhaseGroup is a display bucket of tasks sharing a phase.
type PhaseGroup struct {
	Phase Phase  `json:"phase"`
	Tasks []Task `json:"tasks"`
}
