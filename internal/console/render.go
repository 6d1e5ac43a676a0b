// Package console is the interactive terminal surface: huh prompts for the
// human side of the workflow and lipgloss rendering of plans and runs.
package console

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/orchestrator"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

// statusSymbol returns a symbol and style for st.
func statusSymbol(st task.Status) string {
	switch st {
	case task.StatusDone:
		return doneStyle.Render("✓")
	case task.StatusFailed:
		return failedStyle.Render("✗")
	case task.StatusNeedsFollowUp:
		return followUpStyle.Render("!")
	case task.StatusInProgress:
		return followUpStyle.Render("…")
	}
	return dimStyle.Render("○")
}

// RenderPlan draws the task list grouped by phase.
func RenderPlan(groups []task.PhaseGroup) string {
	var b strings.Builder
	total := 0
	for _, g := range groups {
		total += len(g.Tasks)
	}
	b.WriteString(headerStyle.Render(fmt.Sprintf("Task list (%d)", total)))
	b.WriteString("\n")

	for _, g := range groups {
		b.WriteString(phaseStyle.Render(strings.ToUpper(string(g.Phase))))
		b.WriteString("\n")
		for _, t := range g.Tasks {
			fmt.Fprintf(&b, "  %s %s %s\n", statusSymbol(t.Status), idStyle.Render(fmt.Sprintf("#%d", t.ID)), titleStyle.Render(t.Title))
			if t.Description != "" {
				fmt.Fprintf(&b, "      %s\n", t.Description)
			}
			if t.Reasoning != "" {
				fmt.Fprintf(&b, "      %s\n", dimStyle.Render("why: "+t.Reasoning))
			}
		}
	}
	return b.String()
}

// RenderTask draws one task with its fields.
func RenderTask(t task.Task) string {
	lines := []string{
		fmt.Sprintf("%s %s", idStyle.Render(fmt.Sprintf("#%d", t.ID)), titleStyle.Render(t.Title)),
		t.Description,
		dimStyle.Render(fmt.Sprintf("phase: %s  status: %s", t.Phase, t.Status)),
	}
	return containerStyle.Render(strings.Join(lines, "\n"))
}

// RenderProposal compares current with the proposed edit.
func RenderProposal(current task.Task, p gateway.EditProposal) string {
	proposed := p.Apply(current)
	var b strings.Builder
	if p.Interpretation != "" {
		fmt.Fprintf(&b, "%s\n", dimStyle.Render(p.Interpretation))
	}
	diff := func(label, before, after string) {
		if before == after {
			return
		}
		fmt.Fprintf(&b, "%s: %s → %s\n", label, failedStyle.Render(before), doneStyle.Render(after))
	}
	diff("title", current.Title, proposed.Title)
	diff("description", current.Description, proposed.Description)
	diff("phase", string(current.Phase), string(proposed.Phase))
	for _, c := range p.ChangesMade {
		fmt.Fprintf(&b, "  • %s\n", c)
	}
	if b.Len() == 0 {
		b.WriteString("no changes\n")
	}
	return containerStyle.Render(strings.TrimRight(b.String(), "\n"))
}

// RenderSummary draws the final counts and why the run stopped.
func RenderSummary(r orchestrator.RunResult) string {
	s := r.Summary
	lines := []string{
		headerStyle.Render("Run summary"),
		fmt.Sprintf("%s done  %s failed  %s needs follow-up  %s pending",
			doneStyle.Render(fmt.Sprint(s.Done)),
			failedStyle.Render(fmt.Sprint(s.Failed)),
			followUpStyle.Render(fmt.Sprint(s.NeedsFollowUp)),
			dimStyle.Render(fmt.Sprint(s.Pending)),
		),
		dimStyle.Render(fmt.Sprintf("total %d  iterations %d  exit %s", s.Total, r.Iterations, r.ExitReason)),
	}
	switch r.ExitReason {
	case orchestrator.ExitStalled:
		lines = append(lines, followUpStyle.Render("Some tasks need follow-up before the plan can finish."))
	case orchestrator.ExitIterationLimit:
		lines = append(lines, followUpStyle.Render("Stopped at the iteration limit."))
	}
	return strings.Join(lines, "\n")
}

// Progress writes run events to w as they happen.
type Progress struct {
	w io.Writer
}

// NewProgress returns an observer printing to w.
func NewProgress(w io.Writer) *Progress {
	return &Progress{w: w}
}

// Observe implements orchestrator.Observer.
func (p *Progress) Observe(_ context.Context, e orchestrator.Event) {
	switch e.Type {
	case orchestrator.EventRunStart:
		fmt.Fprintf(p.w, "%s\n", headerStyle.Render(fmt.Sprintf("Executing %d tasks", e.Total)))
	case orchestrator.EventTaskStart:
		if e.Task != nil {
			fmt.Fprintf(p.w, "%s %s %s\n", statusSymbol(e.Task.Status), idStyle.Render(fmt.Sprintf("#%d", e.Task.ID)), e.Task.Title)
		}
	case orchestrator.EventTaskComplete:
		if e.Task == nil {
			return
		}
		fmt.Fprintf(p.w, "  %s %s\n", statusSymbol(e.Task.Status), e.Task.Status)
		if r := e.Task.Result; r != nil {
			if r.Output != "" {
				fmt.Fprintf(p.w, "    %s\n", r.Output)
			}
			if r.Reflection != "" {
				fmt.Fprintf(p.w, "    %s\n", dimStyle.Render(r.Reflection))
			}
			if len(r.ToolsUsed) > 0 {
				fmt.Fprintf(p.w, "    %s\n", dimStyle.Render("tools: "+strings.Join(r.ToolsUsed, ", ")))
			}
		}
	case orchestrator.EventComplete:
		if e.Result != nil {
			fmt.Fprintf(p.w, "\n%s\n", RenderSummary(*e.Result))
		}
	case orchestrator.EventError:
		fmt.Fprintf(p.w, "%s %s\n", failedStyle.Render("error:"), e.Message)
	}
}
