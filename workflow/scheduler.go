package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/BaSui01/finflow/retry"
	"github.com/BaSui01/finflow/types"
)

// StepObserver is notified once per finished or skipped step.
type StepObserver func(flow, step string, status StepStatus, attempts int, d time.Duration)

// SchedulerOption configures a Scheduler.
type SchedulerOption func(*Scheduler)

// WithMaxConcurrency bounds how many steps run at once. Zero means unbounded.
// With a bound of one the dispatch order is fully deterministic.
func WithMaxConcurrency(n int) SchedulerOption {
	return func(s *Scheduler) {
		if n > 0 {
			s.maxConcurrency = int64(n)
		}
	}
}

// WithContinueOnFailure keeps dispatching independent branches after a
// required step failed. By default the run halts.
func WithContinueOnFailure() SchedulerOption {
	return func(s *Scheduler) { s.failFast = false }
}

// WithTracer sets the tracer used for run and step spans.
func WithTracer(t trace.Tracer) SchedulerOption {
	return func(s *Scheduler) {
		if t != nil {
			s.tracer = t
		}
	}
}

// WithRunIDGenerator replaces the uuid based run id generator.
func WithRunIDGenerator(fn func() string) SchedulerOption {
	return func(s *Scheduler) {
		if fn != nil {
			s.newRunID = fn
		}
	}
}

// WithClock replaces time.Now for recorded timestamps.
func WithClock(now func() time.Time) SchedulerOption {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithRetrySleeper replaces the wait used between step attempts.
func WithRetrySleeper(sl retry.Sleeper) SchedulerOption {
	return func(s *Scheduler) { s.sleeper = sl }
}

// WithRetryObserver receives the retry outcome of every step.
func WithRetryObserver(o retry.Observer) SchedulerOption {
	return func(s *Scheduler) { s.retryObserver = o }
}

// WithStepObserver receives the final status of every step.
func WithStepObserver(o StepObserver) SchedulerOption {
	return func(s *Scheduler) { s.stepObserver = o }
}

// Scheduler runs flows. A single Scheduler may run many flows concurrently;
// every Run owns its own coordinator.
type Scheduler struct {
	logger         *zap.Logger
	maxConcurrency int64
	failFast       bool
	tracer         trace.Tracer
	newRunID       func() string
	now            func() time.Time
	sleeper        retry.Sleeper
	retryObserver  retry.Observer
	stepObserver   StepObserver
}

// NewScheduler creates a scheduler.
func NewScheduler(logger *zap.Logger, opts ...SchedulerOption) *Scheduler {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Scheduler{
		logger:   logger.With(zap.String("component", "flow_scheduler")),
		failFast: true,
		tracer:   otel.Tracer("github.com/BaSui01/finflow/workflow"),
		newRunID: uuid.NewString,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run executes the flow to completion. The returned result is non-nil
// whenever the initial state was accepted; err is non-nil when the flow did
// not succeed.
func (s *Scheduler) Run(ctx context.Context, f *Flow, initial map[string]any) (*FlowResult, error) {
	if f == nil {
		return nil, types.NewGraphInvalid("flow is nil")
	}
	state, err := NewState(f.schema, initial)
	if err != nil {
		return nil, fmt.Errorf("flow %q: %w", f.name, err)
	}

	runID := s.newRunID()
	ctx = types.WithRunID(ctx, runID)
	ctx, span := s.tracer.Start(ctx, "flow.run", trace.WithAttributes(
		attribute.String("flow", f.name),
		attribute.String("run_id", runID),
	))
	defer span.End()

	r := &flowRun{
		Scheduler: s,
		runID:     runID,
		flow:      f,
		state:     state,
		rec:       newRunRecorder(f, s.now),
		logger:    s.logger.With(zap.String("flow", f.name), zap.String("run_id", runID)),
	}
	if s.maxConcurrency > 0 {
		r.sem = semaphore.NewWeighted(s.maxConcurrency)
	}

	startedAt := s.now()
	r.logger.Info("starting flow run", zap.Int("steps", len(f.steps)))

	r.loop(ctx)

	steps, order := r.rec.outcomes()
	result := &FlowResult{
		RunID:     runID,
		Flow:      f.name,
		Steps:     steps,
		Order:     order,
		State:     state.Snapshot(),
		StartedAt: startedAt,
		EndedAt:   s.now(),
	}
	runErr := r.finish(ctx, result)

	if runErr != nil {
		span.RecordError(runErr)
		span.SetStatus(codes.Error, string(result.Status))
		r.logger.Error("flow run failed",
			zap.String("status", string(result.Status)),
			zap.Duration("duration", result.Duration()),
			zap.Error(runErr),
		)
	} else {
		r.logger.Info("flow run completed",
			zap.Duration("duration", result.Duration()),
			zap.Int("attempts", result.TotalAttempts()),
		)
	}
	return result, runErr
}

// flowRun is the coordinator state of one Run. Only the coordinator goroutine
// changes step statuses; handlers report back through the events channel.
type flowRun struct {
	*Scheduler
	runID  string
	flow   *Flow
	state  *State
	rec    *runRecorder
	sem    *semaphore.Weighted
	logger *zap.Logger
	halted bool
}

type stepEvent struct {
	id       string
	status   StepStatus
	attempts int
	output   any
	err      error
}

type joinState int

const (
	joinWaiting joinState = iota
	joinReady
	joinBlocked
)

func (r *flowRun) loop(ctx context.Context) {
	events := make(chan stepEvent, len(r.flow.steps))
	inFlight := 0

	for {
		if ctx.Err() == nil && !r.halted {
			inFlight += r.dispatchReady(ctx, events)
		}
		if inFlight == 0 {
			break
		}

		ev := <-events
		inFlight--
		r.complete(ev)
		if ev.status == StepFailed && r.failFast {
			r.halted = true
		}
	}

	// Whatever is still pending was never dispatched.
	for _, n := range r.flow.steps {
		if r.rec.status(n.ID) != StepPending {
			continue
		}
		var cause error
		switch {
		case ctx.Err() != nil:
			cause = fmt.Errorf("step %q not dispatched: %w", n.ID, ctx.Err())
		default:
			cause = types.NewDependencyNotMet("step %q not dispatched after an earlier step failed", n.ID)
		}
		r.skip(n, cause)
	}
}

// dispatchReady launches every ready step in declaration order and skips
// steps whose join can no longer be satisfied, repeating until nothing changes.
func (r *flowRun) dispatchReady(ctx context.Context, events chan<- stepEvent) int {
	dispatched := 0
	for changed := true; changed; {
		changed = false
		for _, n := range r.flow.steps {
			if r.rec.status(n.ID) != StepPending {
				continue
			}
			switch r.readiness(n) {
			case joinBlocked:
				r.skip(n, types.NewDependencyNotMet("join %s of step %q can no longer be satisfied", n.Combinator, n.ID))
				changed = true
			case joinReady:
				// Slots are released by the coordinator, never by handlers, so
				// availability only changes when an event has been processed.
				if r.sem != nil && !r.sem.TryAcquire(1) {
					continue
				}
				r.dispatch(ctx, n, events)
				dispatched++
			}
		}
	}
	return dispatched
}

func (r *flowRun) readiness(n *StepNode) joinState {
	if n.Kind == KindStart {
		return joinReady
	}

	terminal, succeeded, blocked := 0, 0, 0
	for _, p := range n.Predecessors {
		st := r.rec.status(p)
		if st.IsTerminal() {
			terminal++
		}
		switch st {
		case StepSucceeded:
			succeeded++
		case StepFailed, StepSkipped:
			blocked++
		}
	}

	all := len(n.Predecessors)
	if n.Combinator == JoinAny {
		switch {
		case succeeded > 0:
			return joinReady
		case terminal == all:
			return joinBlocked
		}
		return joinWaiting
	}

	switch {
	case blocked > 0:
		return joinBlocked
	case terminal == all:
		return joinReady
	}
	return joinWaiting
}

func (r *flowRun) dispatch(ctx context.Context, n *StepNode, events chan<- stepEvent) {
	r.rec.recordStart(n.ID)
	inputs := r.rec.inputs(n.Predecessors)

	r.logger.Debug("dispatching step",
		zap.String("step", n.ID),
		zap.String("kind", string(n.Kind)),
	)

	go func() {
		events <- r.execute(ctx, n, inputs)
	}()
}

func (r *flowRun) execute(ctx context.Context, n *StepNode, inputs map[string]StepOutcome) stepEvent {
	ctx = types.WithStepID(ctx, n.ID)
	ctx, span := r.tracer.Start(ctx, "flow.step", trace.WithAttributes(
		attribute.String("step", n.ID),
		attribute.String("kind", string(n.Kind)),
	))
	defer span.End()

	logger := r.logger.With(zap.String("step", n.ID))
	policy := n.Retry
	if policy == nil {
		policy = retry.Attempts(1, 0)
	}
	rt := retry.NewRetryer(policy, logger,
		retry.WithScope("step:"+n.ID),
		retry.WithSleeper(r.sleeper),
		retry.WithObserver(r.retryObserver),
	)

	attempt := 0
	val, out, err := rt.DoWithResult(ctx, func() (any, error) {
		attempt++
		sc := &StepContext{
			RunID:   r.runID,
			Step:    n.ID,
			Attempt: attempt,
			State:   r.state,
			Inputs:  inputs,
			Logger:  logger,
		}
		return invokeHandler(ctx, n.Handler, sc)
	})

	ev := stepEvent{id: n.ID, attempts: out.Attempts, output: val}
	switch {
	case err != nil:
		ev.status = StepFailed
		ev.err = err
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	case out.Absorbed():
		ev.status = StepAbsorbed
		ev.err = out.LastError
	default:
		ev.status = StepSucceeded
	}
	span.SetAttributes(attribute.Int("attempts", out.Attempts), attribute.String("status", string(ev.status)))
	return ev
}

func (r *flowRun) complete(ev stepEvent) {
	r.rec.recordEnd(ev.id, ev.status, ev.attempts, ev.output, ev.err)
	if r.sem != nil {
		r.sem.Release(1)
	}

	o := r.rec.inputs([]string{ev.id})[ev.id]
	if r.stepObserver != nil {
		r.stepObserver(r.flow.name, ev.id, ev.status, ev.attempts, o.Duration())
	}

	fields := []zap.Field{
		zap.String("step", ev.id),
		zap.String("status", string(ev.status)),
		zap.Int("attempts", ev.attempts),
		zap.Duration("duration", o.Duration()),
	}
	switch ev.status {
	case StepFailed:
		r.logger.Error("step failed", append(fields, zap.Error(ev.err))...)
	case StepAbsorbed:
		r.logger.Warn("step failure absorbed", append(fields, zap.Error(ev.err))...)
	default:
		r.logger.Info("step completed", fields...)
	}
}

func (r *flowRun) skip(n *StepNode, cause error) {
	r.rec.recordSkip(n.ID, cause)
	if r.stepObserver != nil {
		r.stepObserver(r.flow.name, n.ID, StepSkipped, 0, 0)
	}
	r.logger.Warn("step skipped", zap.String("step", n.ID), zap.Error(cause))
}

// finish sets the flow status and picks the error reported to the caller.
// A context that ends after every step completed does not cancel the run.
func (r *flowRun) finish(ctx context.Context, result *FlowResult) error {
	var firstFailed, firstSkipped *StepOutcome
	for _, id := range result.Order {
		if o := result.Steps[id]; o.Status == StepFailed && firstFailed == nil {
			firstFailed = o
		}
	}
	for _, n := range r.flow.steps {
		if o := result.Steps[n.ID]; o.Status == StepSkipped && firstSkipped == nil {
			firstSkipped = o
		}
	}

	if firstFailed == nil && firstSkipped == nil {
		result.Status = FlowSucceeded
		return nil
	}
	if err := ctx.Err(); err != nil {
		result.Status = FlowCancelled
		return fmt.Errorf("flow %q cancelled: %w", r.flow.name, err)
	}

	switch {
	case firstFailed != nil:
		result.Status = FlowFailed
		return fmt.Errorf("flow %q: step %q failed: %w", r.flow.name, firstFailed.Step, firstFailed.err)
	case firstSkipped != nil:
		result.Status = FlowFailed
		return fmt.Errorf("flow %q: step %q skipped: %w", r.flow.name, firstSkipped.Step, firstSkipped.err)
	}
	result.Status = FlowSucceeded
	return nil
}

func invokeHandler(ctx context.Context, h StepHandler, sc *StepContext) (out any, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			err = fmt.Errorf("step %q panicked: %v", sc.Step, rec)
		}
	}()
	return h(ctx, sc)
}
