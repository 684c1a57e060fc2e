// History - the replayable log of a chain run.
//
// Information Hiding:
// - Persistence hidden behind HistoryStore
// - Reconstruction of an ExecutionContext from a log

package chain

import (
	"context"
	"time"

	"github.com/richinex/llmchain/model"
)

// Source says how an entry's response was obtained.
type Source string

const (
	// SourceDispatched responses came from a backend.
	SourceDispatched Source = "dispatched"
	// SourceSupplied responses were provided at an interactive pause.
	SourceSupplied Source = "supplied"
)

// Header identifies a run.
type Header struct {
	RunID     string    `json:"run_id"`
	Chain     string    `json:"chain"`
	InputVar  string    `json:"input_var"`
	Input     string    `json:"input"`
	StartedAt time.Time `json:"started_at"`
}

// Entry records one completed step.
type Entry struct {
	StepID    string    `json:"step_id"`
	Prompt    string    `json:"prompt"`
	Response  string    `json:"response"`
	Timestamp time.Time `json:"timestamp"`
	Source    Source    `json:"source"`
}

// Outcome is the terminal record of a run.
type Outcome struct {
	State      State           `json:"state"`
	FailedStep string          `json:"failed_step,omitempty"`
	ErrorKind  model.ErrorKind `json:"error_kind,omitempty"`
	Error      string          `json:"error,omitempty"`
	FinishedAt time.Time       `json:"finished_at"`
}

// History is a header, the ordered entries and, once finished, the outcome.
type History struct {
	Header  Header   `json:"header"`
	Entries []Entry  `json:"entries"`
	Outcome *Outcome `json:"outcome,omitempty"`
}

// HistoryStore persists a run as it progresses. A run is its only writer.
// Append must be durable when it returns.
type HistoryStore interface {
	Begin(ctx context.Context, h Header) error
	Append(ctx context.Context, runID string, e Entry) error
	Finish(ctx context.Context, runID string, o Outcome) error
}

// HistoryLoader reads back persisted runs.
type HistoryLoader interface {
	Load(ctx context.Context, runID string) (*History, error)
	ListRuns(ctx context.Context) ([]string, error)
}

// Replay rebuilds the ExecutionContext of a run from its history without
// dispatching anything.
func Replay(h *History) (*ExecutionContext, error) {
	if h == nil {
		return nil, model.Errorf(model.KindConfiguration, "nil history")
	}
	inputVar := h.Header.InputVar
	if inputVar == "" {
		inputVar = DefaultInputVar
	}

	ctx := NewExecutionContext()
	if err := ctx.Bind(inputVar, h.Header.Input); err != nil {
		return nil, err
	}
	for _, e := range h.Entries {
		if err := ctx.Bind(e.StepID, e.Response); err != nil {
			return nil, withStep(err, e.StepID)
		}
	}
	return ctx, nil
}

// Stats summarizes a history.
func (h *History) Stats() (dispatched, supplied int) {
	for _, e := range h.Entries {
		if e.Source == SourceSupplied {
			supplied++
		} else {
			dispatched++
		}
	}
	return dispatched, supplied
}
