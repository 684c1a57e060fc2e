// Chain Execution Engine.
//
// Information Hiding:
// - Run construction, validation and history header
// - Interactive step selection
// - Shared collaborators (dispatcher, store, retry, logging, metrics)

package chain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/richinex/llmchain/metrics"
	"github.com/richinex/llmchain/model"
	"github.com/rs/zerolog"
)

// Engine starts chain runs. It holds no per-run state and may start many
// runs concurrently; each Run is driven by one caller.
type Engine struct {
	dispatcher  Dispatcher
	store       HistoryStore
	sys         SystemVars
	retry       RetryPolicy
	log         zerolog.Logger
	metrics     *metrics.Collector
	interactive bool
	extraSteps  []string
	now         func() time.Time
	newRunID    func() string
}

// Option configures an Engine.
type Option func(*Engine)

// WithHistoryStore persists every run through store.
func WithHistoryStore(store HistoryStore) Option {
	return func(e *Engine) { e.store = store }
}

// WithSystemVars replaces the sys.* provider.
func WithSystemVars(sys SystemVars) Option {
	return func(e *Engine) { e.sys = sys }
}

// WithRetryPolicy sets the retry policy for retryable transport failures.
func WithRetryPolicy(p RetryPolicy) Option {
	return func(e *Engine) { e.retry = p }
}

// WithLogger sets the engine logger.
func WithLogger(l zerolog.Logger) Option {
	return func(e *Engine) { e.log = l }
}

// WithMetrics records step and run outcomes.
func WithMetrics(m *metrics.Collector) Option {
	return func(e *Engine) { e.metrics = m }
}

// WithInteractive enables interactive mode. The chain's default interactive
// steps pause, as do the extra step ids given here. Steps flagged
// interactive in the chain always pause.
func WithInteractive(enabled bool, extraSteps ...string) Option {
	return func(e *Engine) {
		e.interactive = enabled
		e.extraSteps = append(e.extraSteps, extraSteps...)
	}
}

// WithClock sets the clock used for history timestamps.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

// NewEngine creates an engine dispatching through d.
func NewEngine(d Dispatcher, opts ...Option) *Engine {
	e := &Engine{
		dispatcher: d,
		log:        zerolog.Nop(),
		now:        time.Now,
		newRunID:   uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Start validates c, binds input to the chain's input variable and writes
// the history header. No step runs until Advance is called.
func (e *Engine) Start(ctx context.Context, c *Chain, input string) (*Run, error) {
	if c == nil {
		return nil, model.Errorf(model.KindConfiguration, "nil chain")
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	if e.dispatcher == nil {
		return nil, model.Errorf(model.KindConfiguration, "engine has no dispatcher")
	}
	for _, id := range e.extraSteps {
		if c.StepIndex(id) < 0 {
			return nil, model.Errorf(model.KindConfiguration, "interactive step %q does not exist in chain %q", id, c.Name)
		}
	}

	header := Header{
		RunID:     e.newRunID(),
		Chain:     c.Name,
		InputVar:  c.InputName(),
		Input:     input,
		StartedAt: e.now().UTC(),
	}
	r := newRun(e, c, header, e.interactiveSteps(c))
	if err := r.vars.Bind(header.InputVar, input); err != nil {
		return nil, err
	}

	if e.store != nil {
		if err := e.store.Begin(ctx, header); err != nil {
			return nil, model.Wrap(model.KindConfiguration, err, "begin history for run %s", header.RunID)
		}
	}

	r.log.Info().Str("input_var", header.InputVar).Int("steps", len(c.Steps)).Msg("run started")
	return r, nil
}

// Execute runs c to completion without pausing. Interactive steps are
// dispatched as if resumed with Dispatch(""). The run is returned even on
// failure so its partial history can be inspected.
func (e *Engine) Execute(ctx context.Context, c *Chain, input string) (*Run, error) {
	r, err := e.Start(ctx, c, input)
	if err != nil {
		return nil, err
	}

	status, err := r.Advance(ctx)
	for err == nil && status.State == StateAwaiting {
		status, err = r.Resume(ctx, status.Token, Dispatch(""))
	}
	return r, err
}

func (e *Engine) interactiveSteps(c *Chain) map[string]bool {
	steps := make(map[string]bool)
	for _, s := range c.Steps {
		if s.Interactive {
			steps[s.ID] = true
		}
	}
	if e.interactive || c.Interactive.AutoStart {
		for _, id := range c.Interactive.DefaultSteps {
			steps[id] = true
		}
	}
	for _, id := range e.extraSteps {
		steps[id] = true
	}
	return steps
}
