package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

// ReviewChoice is the human's decision after seeing a generated plan.
type ReviewChoice string

const (
	ReviewApprove    ReviewChoice = "approve"
	ReviewEdit       ReviewChoice = "edit"
	ReviewRegenerate ReviewChoice = "regenerate"
	ReviewCancel     ReviewChoice = "cancel"
)

// Prompter is the human side of the interactive workflow. Every method may
// block until the human responds; returning an error aborts the run.
type Prompter interface {
	Goal(ctx context.Context) (string, error)
	Expertise(ctx context.Context) (gateway.Expertise, error)
	Mode(ctx context.Context) (Mode, error)

	// Answer returns the human's answer to a clarifying question.
	Answer(ctx context.Context, q gateway.Question) (string, error)

	// Review shows the plan and returns the next action.
	Review(ctx context.Context, groups []task.PhaseGroup) (ReviewChoice, error)

	// EditTarget returns the id of the task to edit, chosen from tasks.
	EditTarget(ctx context.Context, tasks []task.Task) (int, error)

	// EditRequest returns a free-text change for t. An empty string
	// abandons the edit.
	EditRequest(ctx context.Context, t task.Task) (string, error)

	// ConfirmEdit shows the proposal and reports whether to apply it.
	ConfirmEdit(ctx context.Context, current task.Task, p gateway.EditProposal) (bool, error)

	// Notify shows an informational message.
	Notify(ctx context.Context, msg string)
}

// Interact drives the full interactive workflow: goal intake, analysis and
// clarification, plan generation, optional review, then execution.
//
// Values preset through WithGoal, WithExpertise and WithMode skip their
// prompts. A panic anywhere in the workflow is recovered and returned as
// an error.
func (o *Orchestrator) Interact(ctx context.Context, p Prompter) (result RunResult, err error) {
	defer func() {
		if r := recover(); r != nil {
			o.logger.Error(ctx, "interactive run panicked", zap.Any("panic", r))
			err = fmt.Errorf("unexpected failure: %v", r)
		}
	}()

	if err := o.intake(ctx, p); err != nil {
		return RunResult{}, err
	}

	for {
		if err := o.plan(ctx, p); err != nil {
			return RunResult{}, err
		}
		if o.Mode() == ModeAuto {
			return o.Execute(ctx)
		}

		choice, err := o.review(ctx, p)
		if err != nil {
			return RunResult{}, err
		}
		switch choice {
		case ReviewApprove:
			return o.Execute(ctx)
		case ReviewCancel:
			o.logger.Info(ctx, "run cancelled before execution")
			return RunResult{Summary: o.queue.Summary(), ExitReason: ExitCancelled}, ErrCancelled
		case ReviewRegenerate:
			p.Notify(ctx, "Regenerating the task list from scratch")
			continue
		}
	}
}

func (o *Orchestrator) intake(ctx context.Context, p Prompter) error {
	if o.Goal() == "" {
		goal, err := p.Goal(ctx)
		if err != nil {
			return err
		}
		if strings.TrimSpace(goal) == "" {
			return ErrNoGoal
		}
		o.SetGoal(goal)
	}

	o.mu.RLock()
	expertiseSet, modeSet := o.expertiseSet, o.modeSet
	o.mu.RUnlock()

	if !expertiseSet {
		e, err := p.Expertise(ctx)
		if err != nil {
			return err
		}
		o.SetExpertise(e)
	}
	if !modeSet {
		m, err := p.Mode(ctx)
		if err != nil {
			return err
		}
		o.SetMode(m)
	}
	return nil
}

// plan clears earlier clarifications, analyzes the goal, gathers answers
// and loads a fresh plan.
func (o *Orchestrator) plan(ctx context.Context, p Prompter) error {
	o.ResetClarifications()

	a, err := o.Analyze(ctx)
	if err != nil {
		return err
	}
	if a.NeedsClarification {
		for _, q := range a.Questions {
			answer, err := p.Answer(ctx, q)
			if err != nil {
				return err
			}
			o.AddClarification(q, answer)
		}
	}

	if _, err := o.Generate(ctx); err != nil {
		if errors.Is(err, ErrEmptyPlan) {
			p.Notify(ctx, "Failed to generate a task list. Try again or rephrase the goal.")
		}
		return err
	}
	return nil
}

// review loops until the human approves, cancels or regenerates. Edits are
// handled in place and the plan is shown again afterwards.
func (o *Orchestrator) review(ctx context.Context, p Prompter) (ReviewChoice, error) {
	for {
		choice, err := p.Review(ctx, o.queue.ByPhase())
		if err != nil {
			return "", err
		}
		if choice != ReviewEdit {
			return choice, nil
		}
		if err := o.edit(ctx, p); err != nil {
			return "", err
		}
	}
}

// edit runs one edit dialogue. A rejected proposal lets the human retry
// against the same original task; an empty request abandons the edit.
func (o *Orchestrator) edit(ctx context.Context, p Prompter) error {
	id, err := p.EditTarget(ctx, o.queue.Tasks())
	if err != nil {
		return err
	}
	if _, ok := o.queue.Lookup(id); !ok {
		p.Notify(ctx, fmt.Sprintf("Task %d not found", id))
		return nil
	}

	for {
		current, _ := o.queue.Lookup(id)
		request, err := p.EditRequest(ctx, current)
		if err != nil {
			return err
		}
		if strings.TrimSpace(request) == "" {
			p.Notify(ctx, "Edit abandoned")
			return nil
		}

		_, proposal, err := o.ProposeEdit(ctx, id, request)
		if err != nil {
			return err
		}
		accept, err := p.ConfirmEdit(ctx, current, proposal)
		if err != nil {
			return err
		}
		if accept {
			if _, err := o.ApplyEdit(ctx, id, proposal); err != nil {
				return err
			}
			p.Notify(ctx, fmt.Sprintf("Task %d updated", id))
			return nil
		}
	}
}
