package console

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

// Prompter asks the human through huh forms. It implements
// orchestrator.Prompter.
type Prompter struct {
	in         io.Reader
	out        io.Writer
	accessible bool
}

// PrompterOption configures a Prompter.
type PrompterOption func(*Prompter)

// WithAccessible switches huh to line-based prompts reading from in.
// Useful for screen readers and scripted input.
func WithAccessible(in io.Reader) PrompterOption {
	return func(p *Prompter) {
		p.accessible = true
		p.in = in
	}
}

// NewPrompter writes rendered plans and notices to out.
func NewPrompter(out io.Writer, opts ...PrompterOption) *Prompter {
	p := &Prompter{out: out}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// run executes a single-group form. Aborting with ctrl-c becomes
// orchestrator.ErrCancelled.
func (p *Prompter) run(ctx context.Context, fields ...huh.Field) error {
	form := huh.NewForm(huh.NewGroup(fields...)).WithTheme(huh.ThemeCharm())
	if p.accessible {
		form = form.WithAccessible(true).WithInput(p.in).WithOutput(p.out)
	}
	if err := form.RunWithContext(ctx); err != nil {
		if errors.Is(err, huh.ErrUserAborted) {
			return orchestrator.ErrCancelled
		}
		return fmt.Errorf("prompt: %w", err)
	}
	return nil
}

func required(what string) func(string) error {
	return func(s string) error {
		if strings.TrimSpace(s) == "" {
			return fmt.Errorf("%s is required", what)
		}
		return nil
	}
}

// Goal implements orchestrator.Prompter.
func (p *Prompter) Goal(ctx context.Context) (string, error) {
	var goal string
	err := p.run(ctx, huh.NewInput().
		Title("What do you want to accomplish?").
		Description("Describe the goal in a sentence or two").
		Validate(required("goal")).
		Value(&goal))
	return strings.TrimSpace(goal), err
}

// Expertise implements orchestrator.Prompter.
func (p *Prompter) Expertise(ctx context.Context) (gateway.Expertise, error) {
	e := gateway.DefaultExpertise
	err := p.run(ctx, huh.NewSelect[gateway.Expertise]().
		Title("How familiar are you with this kind of work?").
		Options(
			huh.NewOption("Beginner - explain every step", gateway.ExpertiseBeginner),
			huh.NewOption("Intermediate - the usual level of detail", gateway.ExpertiseIntermediate),
			huh.NewOption("Expert - just the essentials", gateway.ExpertiseExpert),
		).
		Value(&e))
	return e, err
}

// Mode implements orchestrator.Prompter.
func (p *Prompter) Mode(ctx context.Context) (orchestrator.Mode, error) {
	m := orchestrator.DefaultMode
	err := p.run(ctx, huh.NewSelect[orchestrator.Mode]().
		Title("Review the plan before it runs?").
		Options(
			huh.NewOption("Confirm - review and edit first", orchestrator.ModeConfirm),
			huh.NewOption("Auto - run immediately", orchestrator.ModeAuto),
		).
		Value(&m))
	return m, err
}

// Answer implements orchestrator.Prompter.
func (p *Prompter) Answer(ctx context.Context, q gateway.Question) (string, error) {
	var answer string
	input := huh.NewInput().Title(q.Question).Value(&answer)
	if q.Why != "" {
		input = input.Description(q.Why)
	}
	err := p.run(ctx, input)
	return strings.TrimSpace(answer), err
}

// Review implements orchestrator.Prompter. The plan is printed before the
// choice so it is re-rendered after every edit.
func (p *Prompter) Review(ctx context.Context, groups []task.PhaseGroup) (orchestrator.ReviewChoice, error) {
	fmt.Fprintln(p.out, RenderPlan(groups))

	choice := orchestrator.ReviewApprove
	err := p.run(ctx, huh.NewSelect[orchestrator.ReviewChoice]().
		Title("What next?").
		Options(
			huh.NewOption("Approve and run", orchestrator.ReviewApprove),
			huh.NewOption("Edit a task", orchestrator.ReviewEdit),
			huh.NewOption("Regenerate the whole list", orchestrator.ReviewRegenerate),
			huh.NewOption("Cancel", orchestrator.ReviewCancel),
		).
		Value(&choice))
	return choice, err
}

// ParseTaskID validates human input for a task id.
func ParseTaskID(s string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%q is not a task number", strings.TrimSpace(s))
	}
	return id, nil
}

// EditTarget implements orchestrator.Prompter. Non-numeric input is
// rejected by the form and asked again.
func (p *Prompter) EditTarget(ctx context.Context, tasks []task.Task) (int, error) {
	var raw string
	hint := "Task number"
	if len(tasks) > 0 {
		hint = fmt.Sprintf("Task number (%d-%d)", tasks[0].ID, tasks[len(tasks)-1].ID)
	}
	err := p.run(ctx, huh.NewInput().
		Title("Which task do you want to edit?").
		Placeholder(hint).
		Validate(func(s string) error {
			_, err := ParseTaskID(s)
			return err
		}).
		Value(&raw))
	if err != nil {
		return 0, err
	}
	return ParseTaskID(raw)
}

// EditRequest implements orchestrator.Prompter.
func (p *Prompter) EditRequest(ctx context.Context, t task.Task) (string, error) {
	fmt.Fprintln(p.out, RenderTask(t))

	var request string
	err := p.run(ctx, huh.NewText().
		Title("Describe the change").
		Description("Leave empty to keep the task as it is").
		Value(&request))
	return strings.TrimSpace(request), err
}

// ConfirmEdit implements orchestrator.Prompter.
func (p *Prompter) ConfirmEdit(ctx context.Context, current task.Task, proposal gateway.EditProposal) (bool, error) {
	fmt.Fprintln(p.out, RenderProposal(current, proposal))

	accept := true
	err := p.run(ctx, huh.NewConfirm().
		Title("Apply this change?").
		Affirmative("Apply").
		Negative("Try again").
		Value(&accept))
	return accept, err
}

// Notify implements orchestrator.Prompter.
func (p *Prompter) Notify(_ context.Context, msg string) {
	fmt.Fprintln(p.out, dimStyle.Render(msg))
}
