package cli

import (
	"context"
	"fmt"

	"github.com/richinex/llmchain/evaluator"
	"github.com/richinex/llmchain/llm"
	"github.com/richinex/llmchain/model"
)

// EvalOptions selects the scorers and request shape for Eval.
type EvalOptions struct {
	Providers []string
	Mode      string
	Keywords  []string
	JSONKeys  []string
	// RequireJSON adds JSONScorer even without JSONKeys.
	RequireJSON bool
	Length      int
}

func (e EvalOptions) scorers() []evaluator.Scorer {
	var scorers []evaluator.Scorer
	if len(e.Keywords) > 0 {
		scorers = append(scorers, evaluator.KeywordScorer(e.Keywords...))
	}
	if e.RequireJSON || len(e.JSONKeys) > 0 {
		scorers = append(scorers, evaluator.JSONScorer(e.JSONKeys...))
	}
	if e.Length > 0 {
		scorers = append(scorers, evaluator.LengthScorer(e.Length))
	}
	return scorers
}

// Eval sends prompt to every provider in parallel and prints the ranking.
func Eval(ctx context.Context, prompt string, eopts EvalOptions, opts Options) (*evaluator.Report, error) {
	if len(eopts.Providers) == 0 {
		return nil, fmt.Errorf("at least one --target is required")
	}
	op, err := model.ParseOperation(eopts.Mode)
	if err != nil {
		return nil, err
	}
	if op == model.OpEmbedding {
		return nil, model.Errorf(model.KindConfiguration, "eval cannot score embeddings")
	}

	rt, err := newRuntime(opts)
	if err != nil {
		return nil, err
	}
	defer rt.flushMetrics(opts.MetricsFile)

	factory := rt.clientFactory()
	targets := make([]evaluator.Target, 0, len(eopts.Providers))
	for _, p := range eopts.Providers {
		ref, err := model.ParseProviderRef(rt.defaultProvider(p, ""))
		if err != nil {
			return nil, err
		}
		client, err := factory(ref)
		if err != nil {
			return nil, fmt.Errorf("target %s: %w", p, err)
		}
		targets = append(targets, client)
	}

	ev := evaluator.New(targets, eopts.scorers()...).WithLogger(rt.log).WithMetrics(rt.metrics)

	var report *evaluator.Report
	if op == model.OpCompletion {
		report, err = ev.EvaluateCompletion(ctx, &llm.CompletionRequest{Prompt: prompt})
	} else {
		report, err = ev.EvaluateChat(ctx, &llm.ChatRequest{Messages: []llm.ChatMessage{llm.UserMessage(prompt)}})
	}
	if report != nil {
		printReport(opts.out(), report)
	}
	return report, err
}
