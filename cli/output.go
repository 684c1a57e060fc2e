package cli

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/richinex/llmchain/capability"
	"github.com/richinex/llmchain/chain"
	"github.com/richinex/llmchain/evaluator"
)

const maxPromptPreviewLen = 200

// printRun prints the final step output, or every entry when verbose.
func printRun(w io.Writer, run *chain.Run, verbose bool) {
	h := run.History()
	if verbose {
		printEntries(w, h.Entries)
	}
	if n := len(h.Entries); n > 0 && run.State() == chain.StateCompleted {
		fmt.Fprintf(w, "%s\n\n", h.Entries[n-1].Response)
	}
	dispatched, supplied := h.Stats()
	fmt.Fprintf(w, "(%s: %d dispatched, %d supplied)\n", run.State(), dispatched, supplied)
}

// printHistory prints a replayed run and its rebuilt bindings.
func printHistory(w io.Writer, h *chain.History, vars *chain.ExecutionContext, verbose bool) {
	fmt.Fprintf(w, "Run %s of %s started %s\n", h.Header.RunID, h.Header.Chain, h.Header.StartedAt.Format("2006-01-02 15:04:05"))
	if h.Outcome != nil {
		fmt.Fprintf(w, "Outcome: %s", h.Outcome.State)
		if h.Outcome.FailedStep != "" {
			fmt.Fprintf(w, " at %s (%s)", h.Outcome.FailedStep, h.Outcome.Error)
		}
		fmt.Fprintln(w)
	} else {
		fmt.Fprintln(w, "Outcome: unfinished")
	}
	fmt.Fprintln(w)
	if verbose {
		printEntries(w, h.Entries)
	}
	for _, name := range vars.Names() {
		v, _ := vars.Lookup(name)
		fmt.Fprintf(w, "%s = %s\n", name, truncateString(v, maxPromptPreviewLen))
	}
}

func printEntries(w io.Writer, entries []chain.Entry) {
	fmt.Fprintln(w, "--- Steps ---")
	for i, e := range entries {
		fmt.Fprintf(w, "[%d] %s (%s)\n", i+1, e.StepID, e.Source)
		fmt.Fprintf(w, "    Prompt: %s\n", truncateString(e.Prompt, maxPromptPreviewLen))
		fmt.Fprintf(w, "    Response: %s\n", truncateString(e.Response, maxPromptPreviewLen))
	}
	fmt.Fprintln(w, "-------------")
	fmt.Fprintln(w)
}

func printResolution(w io.Writer, id string, res capability.Resolution) {
	var caps []string
	for _, c := range res.Record.Capabilities() {
		caps = append(caps, c.String())
	}
	fmt.Fprintf(w, "%s [%s]\n", id, res.Source)
	fmt.Fprintf(w, "  capabilities: %s\n", strings.Join(caps, ", "))
	if res.Record.ContextWindow > 0 {
		fmt.Fprintf(w, "  context window: %d, max output: %d\n", res.Record.ContextWindow, res.Record.MaxOutputTokens)
	}
}

func printReport(w io.Writer, r *evaluator.Report) {
	for _, c := range r.Candidates {
		fmt.Fprintf(w, "%-32s score=%.3f  %s\n", c.Target, c.Score, c.Elapsed.Round(time.Millisecond))
	}
	for _, f := range r.Failures {
		fmt.Fprintf(w, "%-32s failed: %v\n", f.Target, f.Err)
	}
	if best, err := r.Best(); err == nil {
		fmt.Fprintf(w, "\nBest: %s\n\n%s\n", best.Target, best.Text)
	}
}

// truncateString truncates a string to maxLen runes, preserving UTF-8 boundaries.
func truncateString(s string, maxLen int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	runes := []rune(s)
	if len(runes) <= maxLen {
		return s
	}
	return string(runes[:maxLen]) + "..."
}
