// Package orchestrator turns a goal into a task plan and executes it.
//
// # Overview
//
// An Orchestrator owns one task.Queue and one gateway.Gateway. It drives
// the workflow:
//
//	goal → analyze → clarify → generate → review (confirm mode) → execute → summary
//
// The interactive variant runs the whole workflow through Interact with a
// Prompter. The networked variant calls the individual steps (Analyze,
// Answer, Generate, ProposeEdit, ApplyEdit, Execute) from HTTP handlers.
//
// # Execution loop
//
// Execute repeatedly takes the first pending task, marks it in progress,
// asks the gateway to execute it with the advertised capability names and
// adopts the returned status. The loop stops with one of:
//
//   - ExitCompleted: every task is done or failed (an empty queue counts)
//   - ExitStalled: nothing is pending but needs-follow-up tasks remain
//   - ExitIterationLimit: the ceiling (default 100) was reached
//   - ExitCancelled: the context ended between tasks
//   - ExitInvalidOutcome: the gateway returned a status that does not parse
//
// needs-follow-up tasks are never re-selected, so the loop always ends
// within the ceiling regardless of gateway behaviour.
//
// # Events
//
// Observers receive run_start, task_start, task_complete and finally
// complete (or error) on the loop goroutine, in order.
//
// # Review
//
// In confirm mode the plan is shown to the human, who may approve, edit a
// single task, regenerate the whole plan or cancel. Edits are proposals
// until explicitly accepted; omitted fields keep their current value and
// status is never touched.
package orchestrator
