// Package gateway defines the reasoning service contract used by the
// orchestrator and provides an LLM-backed implementation.
//
// Every Gateway method is total: transport and decoding failures are
// converted into degenerate responses at this boundary, so callers never
// handle a raw service error.
package gateway

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/todorun/internal/task"
)

// Expertise tunes how detailed generated plans are.
type Expertise string

const (
	ExpertiseBeginner     Expertise = "beginner"
	ExpertiseIntermediate Expertise = "intermediate"
	ExpertiseExpert       Expertise = "expert"
)

// DefaultExpertise is the middle tier.
const DefaultExpertise = ExpertiseIntermediate

// AllExpertise returns the tiers from least to most experienced.
func AllExpertise() []Expertise {
	return []Expertise{ExpertiseBeginner, ExpertiseIntermediate, ExpertiseExpert}
}

// ParseExpertise maps s to a tier. Empty input yields DefaultExpertise.
func ParseExpertise(s string) (Expertise, error) {
	v := Expertise(strings.ToLower(strings.TrimSpace(s)))
	if v == "" {
		return DefaultExpertise, nil
	}
	for _, e := range AllExpertise() {
		if e == v {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown expertise level %q", s)
}

// Question is a clarifying question raised during goal analysis.
type Question struct {
	Question string `json:"question"`
	Why      string `json:"why"`
}

// Clarification is an answered Question.
type Clarification struct {
	Question string `json:"question"`
	Why      string `json:"why,omitempty"`
	Answer   string `json:"answer"`
}

// Analysis is the result of inspecting a goal before planning.
type Analysis struct {
	NeedsClarification bool       `json:"needs_clarification"`
	Questions          []Question `json:"questions"`
	Analysis           string     `json:"analysis"`
}

// EditProposal is an interpreted free-text edit. Nil fields mean the
// current value is kept.
type EditProposal struct {
	Title          *string     `json:"title,omitempty"`
	Description    *string     `json:"description,omitempty"`
	Phase          *task.Phase `json:"phase,omitempty"`
	ChangesMade    []string    `json:"changes_made"`
	Interpretation string      `json:"interpretation"`
}

// Fields converts the proposal into a queue update.
func (p EditProposal) Fields() task.Fields {
	return task.Fields{Title: p.Title, Description: p.Description, Phase: p.Phase}
}

// Apply returns t with the proposal merged in. Status is never touched.
func (p EditProposal) Apply(t task.Task) task.Task {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Phase != nil {
		t.Phase = *p.Phase
	}
	return t
}

// Gateway is the reasoning service as seen by the orchestrator.
type Gateway interface {
	// Analyze decides whether goal needs clarifying questions.
	// Failure yields a zero Analysis.
	Analyze(ctx context.Context, goal string) Analysis

	// Generate turns goal into task records. Failure yields an empty slice.
	Generate(ctx context.Context, goal string, expertise Expertise, clarifications []Clarification) []task.Record

	// InterpretEdit turns a free-text request into a proposal against current.
	// Failure yields a proposal that changes nothing.
	InterpretEdit(ctx context.Context, request string, current task.Task) EditProposal

	// Execute performs t using the advertised capabilities.
	// Failure yields a failed Outcome whose Output explains the cause.
	Execute(ctx context.Context, t task.Task, capabilities []string) task.Outcome
}

// FailedOutcome is the degenerate Execute response.
func FailedOutcome(err error) task.Outcome {
	return task.Outcome{
		Status:       string(task.StatusFailed),
		ActionsTaken: []string{},
		Output:       fmt.Sprintf("Execution failed: %v", err),
		Reflection:   "Error occurred during task execution",
		ToolsUsed:    []string{},
	}
}

// unchangedProposal is the degenerate InterpretEdit response.
func unchangedProposal() EditProposal {
	return EditProposal{
		ChangesMade:    []string{},
		Interpretation: "Could not interpret edit request",
	}
}
