package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	metricnoop "go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"
	tracenoop "go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/todorun/internal/gateway"
	"github.com/fyrsmithlabs/todorun/internal/logging"
	"github.com/fyrsmithlabs/todorun/internal/task"
)

// DefaultMaxIterations bounds the execution loop.
const DefaultMaxIterations = 100

// Orchestrator owns one work queue and drives it from goal to summary.
//
// Queue reads are safe at any time. Methods that drive the gateway or
// mutate tasks must be serialized by the caller; the session store does
// this for the networked variant.
type Orchestrator struct {
	queue         *task.Queue
	gateway       gateway.Gateway
	capabilities  []string
	maxIterations int
	observer      Observer
	logger        *logging.Logger
	tracer        trace.Tracer
	meter         metric.Meter
	metrics       *runMetrics

	mu             sync.RWMutex
	goal           string
	expertise      gateway.Expertise
	expertiseSet   bool
	mode           Mode
	modeSet        bool
	clarifications []gateway.Clarification
	pending        []gateway.Question
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMaxIterations overrides DefaultMaxIterations. Non-positive values are ignored.
func WithMaxIterations(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxIterations = n
		}
	}
}

// WithObserver receives run events.
func WithObserver(obs Observer) Option {
	return func(o *Orchestrator) {
		if obs != nil {
			o.observer = obs
		}
	}
}

// WithLogger sets the logger.
func WithLogger(l *logging.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTracer records spans for runs and tasks.
func WithTracer(t trace.Tracer) Option {
	return func(o *Orchestrator) {
		if t != nil {
			o.tracer = t
		}
	}
}

// WithMeter records run and task counters.
func WithMeter(m metric.Meter) Option {
	return func(o *Orchestrator) {
		if m != nil {
			o.meter = m
		}
	}
}

// WithGoal presets the goal.
func WithGoal(goal string) Option {
	return func(o *Orchestrator) { o.goal = strings.TrimSpace(goal) }
}

// WithExpertise presets the expertise tier.
func WithExpertise(e gateway.Expertise) Option {
	return func(o *Orchestrator) {
		o.expertise = e
		o.expertiseSet = true
	}
}

// WithMode presets the execution mode.
func WithMode(m Mode) Option {
	return func(o *Orchestrator) {
		o.mode = m
		o.modeSet = true
	}
}

// New creates an Orchestrator with an empty queue. capabilities are the
// tool names advertised to the gateway on every execution.
func New(gw gateway.Gateway, capabilities []string, opts ...Option) (*Orchestrator, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	o := &Orchestrator{
		queue:         task.NewQueue(),
		gateway:       gw,
		capabilities:  append([]string(nil), capabilities...),
		maxIterations: DefaultMaxIterations,
		observer:      nopObserver{},
		logger:        logging.NewNop(),
		tracer:        tracenoop.NewTracerProvider().Tracer(""),
		meter:         metricnoop.NewMeterProvider().Meter(""),
		expertise:     gateway.DefaultExpertise,
		mode:          DefaultMode,
	}
	for _, opt := range opts {
		opt(o)
	}
	o.metrics = newRunMetrics(o.meter, o.logger.Underlying())
	return o, nil
}

// Queue returns the work queue.
func (o *Orchestrator) Queue() *task.Queue {
	return o.queue
}

// Capabilities returns the advertised tool names.
func (o *Orchestrator) Capabilities() []string {
	return append([]string(nil), o.capabilities...)
}

// MaxIterations returns the loop ceiling.
func (o *Orchestrator) MaxIterations() int {
	return o.maxIterations
}

// Goal returns the current goal.
func (o *Orchestrator) Goal() string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.goal
}

// SetGoal replaces the goal.
func (o *Orchestrator) SetGoal(goal string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.goal = strings.TrimSpace(goal)
}

// Expertise returns the expertise tier.
func (o *Orchestrator) Expertise() gateway.Expertise {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.expertise
}

// SetExpertise replaces the expertise tier.
func (o *Orchestrator) SetExpertise(e gateway.Expertise) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.expertise = e
	o.expertiseSet = true
}

// Mode returns the execution mode.
func (o *Orchestrator) Mode() Mode {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return o.mode
}

// SetMode replaces the execution mode.
func (o *Orchestrator) SetMode(m Mode) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.mode = m
	o.modeSet = true
}

// Clarifications returns a copy of the answered questions.
func (o *Orchestrator) Clarifications() []gateway.Clarification {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]gateway.Clarification(nil), o.clarifications...)
}

// AddClarification records an answered question.
func (o *Orchestrator) AddClarification(q gateway.Question, answer string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clarifications = append(o.clarifications, gateway.Clarification{
		Question: q.Question,
		Why:      q.Why,
		Answer:   answer,
	})
}

// ResetClarifications discards answered and pending questions.
func (o *Orchestrator) ResetClarifications() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.clarifications = nil
	o.pending = nil
}

// PendingQuestions returns the questions of the last analysis that have
// not been answered yet.
func (o *Orchestrator) PendingQuestions() []gateway.Question {
	o.mu.RLock()
	defer o.mu.RUnlock()
	return append([]gateway.Question(nil), o.pending...)
}

// Analyze asks the gateway whether the goal needs clarification. The
// returned questions become pending until answered.
func (o *Orchestrator) Analyze(ctx context.Context) (gateway.Analysis, error) {
	goal := o.Goal()
	if goal == "" {
		return gateway.Analysis{}, ErrNoGoal
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.analyze")
	defer span.End()

	a := o.gateway.Analyze(ctx, goal)
	o.mu.Lock()
	if a.NeedsClarification {
		o.pending = append([]gateway.Question(nil), a.Questions...)
	} else {
		o.pending = nil
	}
	o.mu.Unlock()

	span.SetAttributes(
		attribute.Bool("analysis.needs_clarification", a.NeedsClarification),
		attribute.Int("analysis.questions", len(a.Questions)),
	)
	o.logger.Debug(ctx, "goal analyzed",
		zap.Bool("needs_clarification", a.NeedsClarification),
		zap.Int("questions", len(a.Questions)),
	)
	return a, nil
}

// Answer pairs answers with the pending questions in order and records them
// as clarifications. Extra answers are ignored; unanswered questions stay
// pending. It returns the number of clarifications recorded.
func (o *Orchestrator) Answer(answers []string) (int, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if len(o.pending) == 0 {
		return 0, ErrNoPendingQuestions
	}

	n := min(len(answers), len(o.pending))
	for i := 0; i < n; i++ {
		q := o.pending[i]
		o.clarifications = append(o.clarifications, gateway.Clarification{
			Question: q.Question,
			Why:      q.Why,
			Answer:   answers[i],
		})
	}
	o.pending = o.pending[n:]
	return n, nil
}

// Generate asks the gateway for a plan and replaces the queue with it.
func (o *Orchestrator) Generate(ctx context.Context) ([]task.Task, error) {
	o.mu.RLock()
	goal, expertise := o.goal, o.expertise
	clar := append([]gateway.Clarification(nil), o.clarifications...)
	o.mu.RUnlock()

	if goal == "" {
		return nil, ErrNoGoal
	}

	ctx, span := o.tracer.Start(ctx, "orchestrator.generate", trace.WithAttributes(
		attribute.String("expertise", string(expertise)),
		attribute.Int("clarifications", len(clar)),
	))
	defer span.End()

	records := o.gateway.Generate(ctx, goal, expertise, clar)
	if len(records) == 0 {
		span.SetStatus(codes.Error, ErrEmptyPlan.Error())
		o.logger.Warn(ctx, "gateway returned an empty plan")
		return nil, ErrEmptyPlan
	}
	if err := o.queue.BulkLoad(records); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid plan")
		return nil, fmt.Errorf("loading plan: %w", err)
	}

	span.SetAttributes(attribute.Int("tasks", len(records)))
	o.logger.Info(ctx, "plan generated", zap.Int("tasks", len(records)))
	return o.queue.Tasks(), nil
}

// ProposeEdit interprets a free-text change against the task with id. The
// queue is not modified.
func (o *Orchestrator) ProposeEdit(ctx context.Context, id int, request string) (task.Task, gateway.EditProposal, error) {
	current, ok := o.queue.Lookup(id)
	if !ok {
		return task.Task{}, gateway.EditProposal{}, fmt.Errorf("task %d: %w", id, task.ErrNotFound)
	}
	if strings.TrimSpace(request) == "" {
		return current, gateway.EditProposal{}, errors.New("edit request is empty")
	}

	ctx = logging.WithTaskID(ctx, id)
	ctx, span := o.tracer.Start(ctx, "orchestrator.propose_edit", trace.WithAttributes(attribute.Int("task.id", id)))
	defer span.End()

	p := o.gateway.InterpretEdit(ctx, request, current)
	o.logger.Debug(ctx, "edit interpreted", zap.Strings("changes", p.ChangesMade))
	return current, p, nil
}

// ApplyEdit merges p into the task with id. Status is unchanged.
func (o *Orchestrator) ApplyEdit(ctx context.Context, id int, p gateway.EditProposal) (task.Task, error) {
	t, err := o.queue.Edit(id, p.Fields())
	if err != nil {
		return task.Task{}, err
	}
	o.logger.Info(logging.WithTaskID(ctx, id), "task edited", zap.Strings("changes", p.ChangesMade))
	return t, nil
}

// Execute runs pending tasks one at a time until every task is terminal,
// no pending task remains, the iteration ceiling is reached or ctx ends.
//
// An outcome whose status cannot be adopted stops the loop with
// ExitInvalidOutcome and a non-nil error; the offending task is left failed.
// Cancellation is reported through ExitCancelled, not as an error. It takes
// effect between tasks: the task in flight keeps the status the gateway
// declares and the remaining tasks stay pending.
func (o *Orchestrator) Execute(ctx context.Context) (RunResult, error) {
	ctx, span := o.tracer.Start(ctx, "orchestrator.execute", trace.WithAttributes(
		attribute.Int("tasks", o.queue.Len()),
		attribute.Int("max_iterations", o.maxIterations),
	))
	defer span.End()

	o.observer.Observe(ctx, Event{Type: EventRunStart, Total: o.queue.Len()})
	o.logger.Info(ctx, "run started", zap.Int("tasks", o.queue.Len()))

	var (
		result RunResult
		runErr error
	)
loop:
	for {
		switch {
		case o.queue.AllTerminal():
			result.ExitReason = ExitCompleted
			break loop
		case result.Iterations >= o.maxIterations:
			result.ExitReason = ExitIterationLimit
			break loop
		case ctx.Err() != nil:
			result.ExitReason = ExitCancelled
			break loop
		}

		next, ok := o.queue.NextRunnable()
		if !ok {
			result.ExitReason = ExitStalled
			break
		}
		result.Iterations++

		if err := o.runTask(ctx, next.ID); err != nil {
			result.ExitReason = ExitInvalidOutcome
			runErr = err
			break
		}
	}

	result.Summary = o.queue.Summary()
	o.metrics.recordRun(ctx, result)
	span.SetAttributes(
		attribute.String("exit_reason", string(result.ExitReason)),
		attribute.Int("iterations", result.Iterations),
	)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(ExitInvalidOutcome))
		o.logger.Error(ctx, "run aborted", zap.Error(runErr), zap.Int("iterations", result.Iterations))
		o.observer.Observe(ctx, Event{Type: EventError, Message: runErr.Error()})
		return result, runErr
	}

	o.logger.Info(ctx, "run finished",
		zap.String("exit_reason", string(result.ExitReason)),
		zap.Int("iterations", result.Iterations),
		zap.Int("done", result.Summary.Done),
		zap.Int("failed", result.Summary.Failed),
		zap.Int("needs_follow_up", result.Summary.NeedsFollowUp),
		zap.Int("pending", result.Summary.Pending),
	)
	o.observer.Observe(ctx, Event{Type: EventComplete, Result: &result})
	return result, nil
}

// runTask executes one pending task and records its outcome.
func (o *Orchestrator) runTask(ctx context.Context, id int) error {
	ctx = logging.WithTaskID(ctx, id)
	ctx, span := o.tracer.Start(ctx, "orchestrator.task", trace.WithAttributes(attribute.Int("task.id", id)))
	defer span.End()

	started, err := o.queue.Start(id)
	if err != nil {
		return fmt.Errorf("starting task %d: %w", id, err)
	}
	o.observer.Observe(ctx, Event{Type: EventTaskStart, Task: &started})
	o.logger.Debug(ctx, "task started", zap.String("title", started.Title))

	// A dispatched task runs to its result; cancellation is only checked
	// between tasks.
	outcome := o.gateway.Execute(context.WithoutCancel(ctx), started, o.Capabilities())

	finished, err := o.queue.Complete(id, outcome)
	span.SetAttributes(
		attribute.String("task.status", string(finished.Status)),
		attribute.StringSlice("task.tools_used", outcome.ToolsUsed),
	)
	o.metrics.recordTask(ctx, finished.Status)
	o.observer.Observe(ctx, Event{Type: EventTaskComplete, Task: &finished})

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "invalid outcome")
		return fmt.Errorf("task %d: %w", id, err)
	}
	o.logger.Info(ctx, "task finished",
		zap.String("status", string(finished.Status)),
		zap.Strings("tools_used", outcome.ToolsUsed),
	)
	return nil
}
