package evaluator

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/richinex/llmchain/llm"
	"github.com/richinex/llmchain/metrics"
	"github.com/richinex/llmchain/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeTarget struct {
	name  string
	reply string
	err   error
	delay time.Duration
	calls atomic.Int32
}

func (f *fakeTarget) Name() string { return f.name }

func (f *fakeTarget) answer(ctx context.Context) (string, error) {
	f.calls.Add(1)
	if f.delay > 0 {
		select {
		case <-time.After(f.delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeTarget) Chat(ctx context.Context, _ *llm.ChatRequest) (*llm.ChatResponse, error) {
	text, err := f.answer(ctx)
	if err != nil {
		return nil, err
	}
	return &llm.ChatResponse{Message: llm.AssistantMessage(text)}, nil
}

func (f *fakeTarget) Complete(ctx context.Context, _ *llm.CompletionRequest) (*llm.CompletionResponse, error) {
	text, err := f.answer(ctx)
	if err != nil {
		return nil, err
	}
	return &llm.CompletionResponse{Text: text}, nil
}

// tableScorer looks the response up in a fixed score table.
func tableScorer(scores map[string]float64) Scorer {
	return func(response string) float64 { return scores[response] }
}

func chatRequest() *llm.ChatRequest {
	return &llm.ChatRequest{Messages: []llm.ChatMessage{llm.UserMessage("hi")}}
}

func TestEvaluateChatPicksHighestScore(t *testing.T) {
	x := &fakeTarget{name: "X", reply: "x"}
	y := &fakeTarget{name: "Y", err: model.Errorf(model.KindTransport, "connection refused")}
	z := &fakeTarget{name: "Z", reply: "z"}
	ev := New([]Target{x, y, z}, tableScorer(map[string]float64{"x": 0.4, "z": 0.9}))

	report, err := ev.EvaluateChat(context.Background(), chatRequest())
	require.NoError(t, err)

	best, err := report.Best()
	require.NoError(t, err)
	assert.Equal(t, "Z", best.Target)
	assert.Equal(t, "z", best.Text)
	assert.InDelta(t, 0.9, best.Score, 1e-9)

	require.Len(t, report.Candidates, 2)
	assert.Equal(t, "X", report.Candidates[0].Target)
	assert.Equal(t, "Z", report.Candidates[1].Target)
	require.Len(t, report.Failures, 1)
	assert.Equal(t, "Y", report.Failures[0].Target)
	assert.True(t, model.IsKind(report.Failures[0].Err, model.KindTransport))
}

func TestEvaluateTieGoesToFirstDeclared(t *testing.T) {
	a := &fakeTarget{name: "a", reply: "same", delay: 20 * time.Millisecond}
	b := &fakeTarget{name: "b", reply: "same"}
	ev := New([]Target{a, b}, LengthScorer(4))

	report, err := ev.EvaluateCompletion(context.Background(), &llm.CompletionRequest{Prompt: "p"})
	require.NoError(t, err)
	best, err := report.Best()
	require.NoError(t, err)
	assert.Equal(t, "a", best.Target)
}

func TestEvaluateAllFail(t *testing.T) {
	boom := errors.New("boom")
	ev := New([]Target{
		&fakeTarget{name: "a", err: boom},
		&fakeTarget{name: "b", err: boom},
	})

	report, err := ev.EvaluateChat(context.Background(), chatRequest())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNoCandidates)
	assert.ErrorIs(t, err, boom)
	assert.Len(t, report.Failures, 2)

	_, err = report.Best()
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestEvaluateNoTargets(t *testing.T) {
	_, err := New(nil).EvaluateChat(context.Background(), chatRequest())
	assert.ErrorIs(t, err, ErrNoCandidates)
}

func TestEvaluateRunsTargetsConcurrently(t *testing.T) {
	targets := make([]Target, 4)
	for i := range targets {
		targets[i] = &fakeTarget{name: string(rune('a' + i)), reply: "ok", delay: 100 * time.Millisecond}
	}
	start := time.Now()
	report, err := New(targets).EvaluateChat(context.Background(), chatRequest())
	require.NoError(t, err)
	assert.Len(t, report.Candidates, 4)
	assert.Less(t, time.Since(start), 350*time.Millisecond)
	for _, c := range report.Candidates {
		assert.GreaterOrEqual(t, c.Elapsed, 100*time.Millisecond)
	}
}

func TestEvaluateSlowFailureDoesNotCancelSiblings(t *testing.T) {
	fast := &fakeTarget{name: "fast", err: errors.New("down")}
	slow := &fakeTarget{name: "slow", reply: "late", delay: 50 * time.Millisecond}

	report, err := New([]Target{fast, slow}).EvaluateChat(context.Background(), chatRequest())
	require.NoError(t, err)
	best, _ := report.Best()
	assert.Equal(t, "late", best.Text)
}

func TestEvaluateRecordsCandidateMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	ev := New([]Target{
		&fakeTarget{name: "ok", reply: "r"},
		&fakeTarget{name: "bad", err: errors.New("x")},
	}).WithMetrics(metrics.New(reg))

	_, err := ev.EvaluateChat(context.Background(), chatRequest())
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "llmchain_evaluation_candidates_total")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestTargetsKeepsOrder(t *testing.T) {
	ev := New([]Target{&fakeTarget{name: "p"}, &fakeTarget{name: "q"}})
	assert.Equal(t, []string{"p", "q"}, ev.Targets())
}

var _ Target = (*llm.Client)(nil)
