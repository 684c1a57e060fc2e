// Evaluator - fans one request out to several backends and picks the best answer.
//
// Information Hiding:
// - One goroutine per target, joined before scoring
// - Per-target failures are isolated and never abort siblings
// - Tie-breaking by declaration order

package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/richinex/llmchain/llm"
	"github.com/richinex/llmchain/metrics"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// ErrNoCandidates is returned when every target failed.
var ErrNoCandidates = errors.New("no successful candidates")

// Target is a named backend the evaluator can query. *llm.Client satisfies it.
type Target interface {
	Name() string
	Chat(ctx context.Context, req *llm.ChatRequest) (*llm.ChatResponse, error)
	Complete(ctx context.Context, req *llm.CompletionRequest) (*llm.CompletionResponse, error)
}

// Scorer rates a response. Higher is better; scores of all scorers are summed.
type Scorer func(response string) float64

// Candidate is one successful, scored response.
type Candidate struct {
	Target  string
	Text    string
	Score   float64
	Elapsed time.Duration
	// index is the target's declaration position.
	index int
}

// Failure is one target that returned an error.
type Failure struct {
	Target string
	Err    error
}

// Report collects every outcome of one evaluation. Candidates and Failures
// keep target declaration order.
type Report struct {
	Candidates []Candidate
	Failures   []Failure
}

// Best returns the highest-scoring candidate; ties go to the target declared first.
func (r *Report) Best() (Candidate, error) {
	if r == nil || len(r.Candidates) == 0 {
		return Candidate{}, ErrNoCandidates
	}
	best := r.Candidates[0]
	for _, c := range r.Candidates[1:] {
		if c.Score > best.Score || (c.Score == best.Score && c.index < best.index) {
			best = c
		}
	}
	return best, nil
}

// Evaluator queries targets in parallel and scores their answers.
type Evaluator struct {
	targets []Target
	scorers []Scorer
	log     zerolog.Logger
	metrics *metrics.Collector
}

// New creates an evaluator. With no scorers every candidate scores zero and
// the first successful target wins.
func New(targets []Target, scorers ...Scorer) *Evaluator {
	return &Evaluator{
		targets: targets,
		scorers: scorers,
		log:     zerolog.Nop(),
	}
}

// WithLogger sets the logger used for per-target failures.
func (e *Evaluator) WithLogger(l zerolog.Logger) *Evaluator {
	e.log = l.With().Str("component", "evaluator").Logger()
	return e
}

// WithMetrics records one candidate outcome per target.
func (e *Evaluator) WithMetrics(m *metrics.Collector) *Evaluator {
	e.metrics = m
	return e
}

// Targets returns the configured target names in declaration order.
func (e *Evaluator) Targets() []string {
	names := make([]string, len(e.targets))
	for i, t := range e.targets {
		names[i] = t.Name()
	}
	return names
}

// EvaluateChat sends req to every target.
func (e *Evaluator) EvaluateChat(ctx context.Context, req *llm.ChatRequest) (*Report, error) {
	return e.evaluate(ctx, func(ctx context.Context, t Target) (string, error) {
		r := *req
		resp, err := t.Chat(ctx, &r)
		if err != nil {
			return "", err
		}
		return resp.Text(), nil
	})
}

// EvaluateCompletion sends req to every target.
func (e *Evaluator) EvaluateCompletion(ctx context.Context, req *llm.CompletionRequest) (*Report, error) {
	return e.evaluate(ctx, func(ctx context.Context, t Target) (string, error) {
		r := *req
		resp, err := t.Complete(ctx, &r)
		if err != nil {
			return "", err
		}
		return resp.Text, nil
	})
}

// Score sums the scorers for text.
func (e *Evaluator) Score(text string) float64 {
	var total float64
	for _, s := range e.scorers {
		total += s(text)
	}
	return total
}

type outcome struct {
	text    string
	err     error
	elapsed time.Duration
}

func (e *Evaluator) evaluate(ctx context.Context, call func(context.Context, Target) (string, error)) (*Report, error) {
	if len(e.targets) == 0 {
		return &Report{}, fmt.Errorf("%w: no targets configured", ErrNoCandidates)
	}

	outcomes := make([]outcome, len(e.targets))
	var eg errgroup.Group
	for i, t := range e.targets {
		eg.Go(func() error {
			start := time.Now()
			text, err := call(ctx, t)
			outcomes[i] = outcome{text: text, err: err, elapsed: time.Since(start)}
			return nil
		})
	}
	_ = eg.Wait()

	report := &Report{}
	var errs []error
	for i, o := range outcomes {
		name := e.targets[i].Name()
		e.metrics.RecordCandidate(name, o.err)
		if o.err != nil {
			e.log.Warn().Err(o.err).Str("target", name).Dur("elapsed", o.elapsed).Msg("candidate failed")
			report.Failures = append(report.Failures, Failure{Target: name, Err: o.err})
			errs = append(errs, fmt.Errorf("%s: %w", name, o.err))
			continue
		}
		score := e.Score(o.text)
		e.log.Debug().Str("target", name).Float64("score", score).Dur("elapsed", o.elapsed).Msg("candidate scored")
		report.Candidates = append(report.Candidates, Candidate{
			Target:  name,
			Text:    o.text,
			Score:   score,
			Elapsed: o.elapsed,
			index:   i,
		})
	}

	if len(report.Candidates) == 0 {
		return report, fmt.Errorf("%w: %w", ErrNoCandidates, errors.Join(errs...))
	}
	return report, nil
}
