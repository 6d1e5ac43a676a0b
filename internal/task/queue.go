package task

import (
	"fmt"
	"sync"
)

// Queue is an ordered collection of tasks. Stored order is execution order.
//
// Queue is safe for concurrent use; each method observes or mutates the
// queue atomically. Sequencing across calls (select, then complete) is the
// caller's responsibility.
type Queue struct {
	mu    sync.RWMutex
	tasks []Task
}

// NewQueue returns an empty queue.
func NewQueue() *Queue {
	return &Queue{}
}

// BulkLoad replaces every stored task with records.
// Missing fields take defaults: id = position+1, status pending, phase
// development. An invalid status aborts the load and leaves the queue untouched.
func (q *Queue) BulkLoad(records []Record) error {
	tasks := make([]Task, 0, len(records))
	for i, r := range records {
		id := i + 1
		if r.ID != nil {
			id = *r.ID
		}
		status := StatusPending
		if r.Status != "" {
			st, err := ParseStatus(r.Status)
			if err != nil {
				return fmt.Errorf("record %d: %w", i+1, err)
			}
			status = st
		}
		tasks = append(tasks, Task{
			ID:          id,
			Title:       r.Title,
			Description: r.Description,
			Phase:       ParsePhase(r.Phase),
			Reasoning:   r.Reasoning,
			Status:      status,
		})
	}

	q.mu.Lock()
	q.tasks = tasks
	q.mu.Unlock()
	return nil
}

// Len returns the number of stored tasks.
func (q *Queue) Len() int {
	q.mu.RLock()
	defer q.mu.RUnlock()
	return len(q.tasks)
}

// NextRunnable returns the lowest-index pending task.
func (q *Queue) NextRunnable() (Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, t := range q.tasks {
		if t.Status == StatusPending {
			return t.clone(), true
		}
	}
	return Task{}, false
}

// AllTerminal reports whether every task is done or failed.
// An empty queue is trivially terminal.
func (q *Queue) AllTerminal() bool {
	q.mu.RLock()
	defer q.mu.RUnlock()
	for _, t := range q.tasks {
		if !t.Status.Terminal() {
			return false
		}
	}
	return true
}

// Summary counts tasks by status.
func (q *Queue) Summary() Summary {
	q.mu.RLock()
	defer q.mu.RUnlock()
	var s Summary
	for _, t := range q.tasks {
		s.add(t.Status)
	}
	return s
}

// Lookup returns the first task with id.
func (q *Queue) Lookup(id int) (Task, bool) {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if i := q.indexOf(id, ""); i >= 0 {
		return q.tasks[i].clone(), true
	}
	return Task{}, false
}

// Start moves the first pending task with id to in_progress.
func (q *Queue) Start(id int) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id, StatusPending)
	if i < 0 {
		if q.indexOf(id, "") < 0 {
			return Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return Task{}, fmt.Errorf("task %d is not pending: %w", id, ErrInvalidTransition)
	}
	q.tasks[i].Status = StatusInProgress
	return q.tasks[i].clone(), nil
}

// Complete records outcome on the in-progress task with id and adopts the
// outcome's declared status. When the declared status does not parse, the
// outcome is still attached, the task is marked failed and a *StatusError
// is returned.
func (q *Queue) Complete(id int, outcome Outcome) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id, StatusInProgress)
	if i < 0 {
		if q.indexOf(id, "") < 0 {
			return Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
		}
		return Task{}, fmt.Errorf("task %d is not in progress: %w", id, ErrInvalidTransition)
	}

	t := &q.tasks[i]
	t.Result = outcome.clone()

	next, err := ParseStatus(outcome.Status)
	if err != nil {
		t.Status = StatusFailed
		return t.clone(), err
	}
	if !t.Status.CanTransitionTo(next) {
		t.Status = StatusFailed
		return t.clone(), fmt.Errorf("task %d: %s -> %s: %w", id, StatusInProgress, next, ErrInvalidTransition)
	}
	t.Status = next
	return t.clone(), nil
}

// Edit applies the non-nil members of f to the first task with id.
// Status is never changed by an edit.
func (q *Queue) Edit(id int, f Fields) (Task, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	i := q.indexOf(id, "")
	if i < 0 {
		return Task{}, fmt.Errorf("task %d: %w", id, ErrNotFound)
	}
	t := &q.tasks[i]
	if f.Title != nil {
		t.Title = *f.Title
	}
	if f.Description != nil {
		t.Description = *f.Description
	}
	if f.Phase != nil {
		t.Phase = ParsePhase(string(*f.Phase))
	}
	return t.clone(), nil
}

// Tasks returns a snapshot in stored order.
func (q *Queue) Tasks() []Task {
	q.mu.RLock()
	defer q.mu.RUnlock()
	out := make([]Task, len(q.tasks))
	for i, t := range q.tasks {
		out[i] = t.clone()
	}
	return out
}

// ByPhase groups a snapshot by phase in display order, preserving stored
// order inside each group. Empty phases are omitted.
func (q *Queue) ByPhase() []PhaseGroup {
	tasks := q.Tasks()
	groups := make([]PhaseGroup, 0, len(AllPhases()))
	for _, p := range AllPhases() {
		var members []Task
		for _, t := range tasks {
			if t.Phase == p {
				members = append(members, t)
			}
		}
		if len(members) > 0 {
			groups = append(groups, PhaseGroup{Phase: p, Tasks: members})
		}
	}
	return groups
}

// indexOf finds the first task with id, optionally restricted to status.
// Caller must hold q.mu.
func (q *Queue) indexOf(id int, status Status) int {
	for i, t := range q.tasks {
		if t.ID == id && (status == "" || t.Status == status) {
			return i
		}
	}
	return -1
}
