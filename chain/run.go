// Run - the state machine of one chain execution.
//
// Information Hiding:
// - Step ordering, condition gating and template resolution
// - Suspension at interactive steps behind a resume token
// - Failure classification and history flushing on every terminal path

package chain

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/richinex/llmchain/metrics"
	"github.com/richinex/llmchain/model"
	"github.com/rs/zerolog"
)

// State is the lifecycle state of a run.
type State string

const (
	StatePending   State = "pending"
	StateRunning   State = "running"
	StateAwaiting  State = "awaiting_interaction"
	StateCompleted State = "completed"
	StateFailed    State = "failed"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	return s == StateCompleted || s == StateFailed
}

var (
	// ErrNotAwaiting is returned by Resume when no step is paused.
	ErrNotAwaiting = errors.New("run is not awaiting interaction")
	// ErrStaleToken is returned by Resume when the token does not match the paused step.
	ErrStaleToken = errors.New("resume token does not match the paused step")
)

// Status is returned by Advance and Resume.
type Status struct {
	State State
	// StepID is the paused step, or the failed step.
	StepID string
	// Prompt is the resolved template of the paused step.
	Prompt string
	// Token must be passed to Resume to continue a paused run.
	Token string
	// Err is the failure when State is StateFailed.
	Err error
}

type decisionKind int

const (
	decisionSupply decisionKind = iota
	decisionDispatch
)

// Decision resolves an interactive pause.
type Decision struct {
	kind decisionKind
	text string
}

// Supply records text as the step response without dispatching.
func Supply(text string) Decision {
	return Decision{kind: decisionSupply, text: text}
}

// Dispatch sends prompt for the paused step. An empty prompt sends the
// resolved template unchanged.
func Dispatch(prompt string) Decision {
	return Decision{kind: decisionDispatch, text: prompt}
}

type pause struct {
	index  int
	prompt string
	token  string
}

// Run is a single execution of a chain. Advance, Resume and Cancel may be
// called from different goroutines but Advance and Resume must not overlap.
type Run struct {
	engine      *Engine
	chain       *Chain
	header      Header
	interactive map[string]bool
	vars        *ExecutionContext
	log         zerolog.Logger

	runCtx    context.Context
	runCancel context.CancelFunc

	mu      sync.Mutex
	state   State
	next    int
	busy    bool
	paused  *pause
	entries []Entry
	outcome *Outcome
	failure error
}

func newRun(e *Engine, c *Chain, h Header, interactive map[string]bool) *Run {
	runCtx, runCancel := context.WithCancel(context.Background())
	return &Run{
		engine:      e,
		chain:       c,
		header:      h,
		interactive: interactive,
		vars:        NewExecutionContext(),
		log:         e.log.With().Str("run_id", h.RunID).Str("chain", c.Name).Logger(),
		runCtx:      runCtx,
		runCancel:   runCancel,
		state:       StatePending,
	}
}

// ID returns the run id.
func (r *Run) ID() string { return r.header.RunID }

// Chain returns the chain being run.
func (r *Run) Chain() *Chain { return r.chain }

// State returns the current state.
func (r *Run) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Err returns the failure of a failed run.
func (r *Run) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.failure
}

// Context returns the run's variables. Read it only while the run is
// paused or terminal.
func (r *Run) Context() *ExecutionContext { return r.vars }

// History returns a copy of the run's history so far.
func (r *Run) History() History {
	r.mu.Lock()
	defer r.mu.Unlock()
	h := History{Header: r.header, Entries: make([]Entry, len(r.entries))}
	copy(h.Entries, r.entries)
	if r.outcome != nil {
		o := *r.outcome
		h.Outcome = &o
	}
	return h
}

// Advance processes steps until the run completes, fails or pauses at an
// interactive step. Calling it on a paused run returns the pause again.
func (r *Run) Advance(ctx context.Context) (Status, error) {
	r.mu.Lock()
	if st, done := r.settled(); done {
		r.mu.Unlock()
		return st, st.Err
	}
	r.busy = true
	r.mu.Unlock()
	defer r.release()

	ctx, cancel := r.bind(ctx)
	defer cancel()
	return r.loop(ctx)
}

// Resume continues a paused run. The token must be the one returned with
// the pause.
func (r *Run) Resume(ctx context.Context, token string, d Decision) (Status, error) {
	r.mu.Lock()
	if r.state != StateAwaiting || r.paused == nil || r.busy {
		state := r.state
		r.mu.Unlock()
		return Status{State: state}, ErrNotAwaiting
	}
	if token != r.paused.token {
		p := r.paused
		r.mu.Unlock()
		return r.pausedStatus(p), ErrStaleToken
	}
	p := r.paused
	r.paused = nil
	r.busy = true
	r.state = StateRunning
	r.mu.Unlock()
	defer r.release()

	ctx, cancel := r.bind(ctx)
	defer cancel()

	step := r.chain.Steps[p.index]
	if err := r.cancelled(ctx); err != nil {
		return r.fail(ctx, step.ID, err)
	}
	switch d.kind {
	case decisionSupply:
		r.log.Info().Str("step", step.ID).Msg("response supplied")
		if err := r.record(ctx, step, p.prompt, d.text, SourceSupplied); err != nil {
			return r.fail(ctx, step.ID, err)
		}
	default:
		prompt := p.prompt
		if d.text != "" {
			prompt = d.text
		}
		if err := r.dispatch(ctx, step, prompt); err != nil {
			return r.fail(ctx, step.ID, err)
		}
	}

	r.mu.Lock()
	r.next = p.index + 1
	r.mu.Unlock()
	return r.loop(ctx)
}

// Cancel stops the run. A paused or idle run fails immediately with a
// Cancelled error after its history is flushed; an in-flight Advance or
// Resume fails the same way once its dispatch returns, and a response that
// arrives after Cancel is discarded.
func (r *Run) Cancel(ctx context.Context) error {
	r.mu.Lock()
	if r.state.Terminal() {
		r.mu.Unlock()
		return nil
	}
	r.runCancel()
	if r.busy {
		r.mu.Unlock()
		return nil
	}
	var stepID string
	if r.paused != nil {
		stepID = r.chain.Steps[r.paused.index].ID
		r.paused = nil
	}
	r.busy = true
	r.mu.Unlock()
	defer r.release()

	st, _ := r.fail(ctx, stepID, model.Errorf(model.KindCancelled, "run cancelled"))
	var flush *flushError
	if errors.As(st.Err, &flush) {
		return flush
	}
	return nil
}

func (r *Run) loop(ctx context.Context) (Status, error) {
	for {
		r.mu.Lock()
		i := r.next
		r.mu.Unlock()
		if i >= len(r.chain.Steps) {
			break
		}
		step := r.chain.Steps[i]

		if err := r.cancelled(ctx); err != nil {
			return r.fail(ctx, step.ID, err)
		}

		if step.Condition != "" {
			ok, err := r.evaluate(step)
			if err != nil {
				return r.fail(ctx, step.ID, err)
			}
			if !ok {
				r.log.Info().Str("step", step.ID).Str("condition", step.Condition).Msg("step skipped")
				r.engine.metrics.RecordStep(r.chain.Name, metrics.StatusSkipped)
				r.advanceTo(i + 1)
				continue
			}
		}

		prompt, err := Resolve(step.Template, r.vars, r.engine.sys)
		if err != nil {
			return r.fail(ctx, step.ID, err)
		}

		if r.interactive[step.ID] {
			p := &pause{index: i, prompt: prompt, token: uuid.NewString()}
			r.mu.Lock()
			r.paused = p
			r.state = StateAwaiting
			r.mu.Unlock()
			r.log.Info().Str("step", step.ID).Msg("awaiting interaction")
			return r.pausedStatus(p), nil
		}

		r.setState(StateRunning)
		if err := r.dispatch(ctx, step, prompt); err != nil {
			return r.fail(ctx, step.ID, err)
		}
		r.advanceTo(i + 1)
	}
	return r.complete(ctx)
}

func (r *Run) evaluate(step Step) (bool, error) {
	cond, err := ParseCondition(step.Condition)
	if err != nil {
		return false, err
	}
	return cond.Evaluate(r.vars, r.engine.sys)
}

func (r *Run) dispatch(ctx context.Context, step Step, prompt string) error {
	start := time.Now()
	response, err := r.engine.retry.do(ctx, func() (string, error) {
		return r.engine.dispatcher.Dispatch(ctx, r.chain, step, prompt)
	}, func(attempt int, err error, wait time.Duration) {
		r.log.Warn().Err(err).Str("step", step.ID).Int("attempt", attempt).Dur("wait", wait).Msg("retrying step")
	})
	if err != nil {
		return err
	}
	if err := r.cancelled(ctx); err != nil {
		return err
	}
	if response, err = step.Transform.Apply(response); err != nil {
		return err
	}
	r.log.Debug().Str("step", step.ID).Dur("elapsed", time.Since(start)).Msg("step dispatched")
	return r.record(ctx, step, prompt, response, SourceDispatched)
}

// record binds the response and appends the history entry. The store append
// completes before the next step starts. The cancellation check and the
// append happen under r.mu, which Cancel also holds.
func (r *Run) record(ctx context.Context, step Step, prompt, response string, source Source) error {
	entry := Entry{
		StepID:    step.ID,
		Prompt:    prompt,
		Response:  response,
		Timestamp: r.engine.now().UTC(),
		Source:    source,
	}
	r.mu.Lock()
	if err := r.cancelled(ctx); err != nil {
		r.mu.Unlock()
		return err
	}
	if err := r.vars.Bind(step.ID, response); err != nil {
		r.mu.Unlock()
		return err
	}
	r.entries = append(r.entries, entry)
	r.mu.Unlock()

	if r.engine.store != nil {
		if err := r.engine.store.Append(context.WithoutCancel(ctx), r.header.RunID, entry); err != nil {
			return &flushError{err: err}
		}
	}
	r.engine.metrics.RecordStep(r.chain.Name, metrics.StatusOK)
	return nil
}

func (r *Run) complete(ctx context.Context) (Status, error) {
	outcome := Outcome{State: StateCompleted, FinishedAt: r.engine.now().UTC()}

	r.mu.Lock()
	if err := r.cancelled(ctx); err != nil {
		r.mu.Unlock()
		return r.fail(ctx, "", err)
	}
	r.state = StateCompleted
	r.outcome = &outcome
	r.mu.Unlock()

	flushErr := r.finish(ctx, outcome)

	r.engine.metrics.RecordRun(r.chain.Name, string(StateCompleted))
	r.log.Info().Int("entries", len(r.entries)).Msg("run completed")
	if flushErr != nil {
		return Status{State: StateCompleted}, flushErr
	}
	return Status{State: StateCompleted}, nil
}

// fail moves the run to StateFailed. Cancellation of either the caller's
// context or the run itself is reported as a Cancelled error.
func (r *Run) fail(ctx context.Context, stepID string, cause error) (Status, error) {
	err := r.classify(stepID, cause)

	outcome := Outcome{
		State:      StateFailed,
		FailedStep: stepID,
		ErrorKind:  model.KindOf(err),
		Error:      err.Error(),
		FinishedAt: r.engine.now().UTC(),
	}
	if flushErr := r.finish(ctx, outcome); flushErr != nil {
		err = errors.Join(err, flushErr)
	}

	r.mu.Lock()
	r.state = StateFailed
	r.failure = err
	r.outcome = &outcome
	r.paused = nil
	r.mu.Unlock()

	if stepID != "" {
		r.engine.metrics.RecordStep(r.chain.Name, metrics.StatusError)
	}
	r.engine.metrics.RecordRun(r.chain.Name, string(StateFailed))
	r.log.Error().Err(err).Str("step", stepID).Msg("run failed")
	return Status{State: StateFailed, StepID: stepID, Err: err}, err
}

func (r *Run) classify(stepID string, cause error) error {
	var flush *flushError
	if errors.As(cause, &flush) {
		return cause
	}
	cancelled := r.runCtx.Err() != nil || errors.Is(cause, context.Canceled)
	if cancelled && !model.IsKind(cause, model.KindCancelled) {
		cause = model.Wrap(model.KindCancelled, cause, "run cancelled")
	}
	if e, ok := model.AsError(cause); ok {
		if stepID == "" {
			return e
		}
		return e.WithStep(stepID)
	}
	return model.Wrap(model.KindTransport, cause, "dispatch").WithStep(stepID)
}

func (r *Run) finish(ctx context.Context, o Outcome) error {
	if r.engine.store == nil {
		return nil
	}
	if err := r.engine.store.Finish(context.WithoutCancel(ctx), r.header.RunID, o); err != nil {
		r.log.Error().Err(err).Msg("history flush failed")
		return &flushError{err: err}
	}
	return nil
}

// cancelled reports a cancellation of the run or of ctx.
func (r *Run) cancelled(ctx context.Context) error {
	if err := r.runCtx.Err(); err != nil {
		return err
	}
	return ctx.Err()
}

// bind derives a context that is also cancelled by Cancel.
func (r *Run) bind(ctx context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(ctx)
	stop := context.AfterFunc(r.runCtx, cancel)
	return ctx, func() {
		stop()
		cancel()
	}
}

func (r *Run) settled() (Status, bool) {
	switch {
	case r.state.Terminal():
		return Status{State: r.state, StepID: r.outcomeStep(), Err: r.failure}, true
	case r.state == StateAwaiting && r.paused != nil:
		return r.pausedStatus(r.paused), true
	case r.busy:
		return Status{State: r.state}, true
	}
	return Status{}, false
}

func (r *Run) outcomeStep() string {
	if r.outcome == nil {
		return ""
	}
	return r.outcome.FailedStep
}

func (r *Run) pausedStatus(p *pause) Status {
	return Status{
		State:  StateAwaiting,
		StepID: r.chain.Steps[p.index].ID,
		Prompt: p.prompt,
		Token:  p.token,
	}
}

func (r *Run) setState(s State) {
	r.mu.Lock()
	r.state = s
	r.mu.Unlock()
}

func (r *Run) advanceTo(i int) {
	r.mu.Lock()
	r.next = i
	r.mu.Unlock()
}

func (r *Run) release() {
	r.mu.Lock()
	r.busy = false
	r.mu.Unlock()
}

// flushError marks a history store failure.
type flushError struct {
	err error
}

func (e *flushError) Error() string { return "persist history: " + e.err.Error() }

func (e *flushError) Unwrap() error { return e.err }
