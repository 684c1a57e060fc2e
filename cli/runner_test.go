package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/richinex/llmchain/chain"
	"github.com/richinex/llmchain/model"
	"github.com/richinex/llmchain/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// echoServer is an OpenAI-compatible chat endpoint that answers "echo:<last message>".
type echoServer struct {
	hits atomic.Int32
}

func (s *echoServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/v1/chat/completions" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	s.hits.Add(1)
	var req struct {
		Model    string `json:"model"`
		Messages []struct {
			Content string `json:"content"`
		} `json:"messages"`
	}
	body, _ := io.ReadAll(r.Body)
	_ = json.Unmarshal(body, &req)
	last := ""
	if n := len(req.Messages); n > 0 {
		last = req.Messages[n-1].Content
	}
	content, _ := json.Marshal("echo:" + last)

	w.Header().Set("Content-Type", "application/json")
	fmt.Fprintf(w, `{
		"id": "chatcmpl-1",
		"object": "chat.completion",
		"model": %q,
		"choices": [{"index": 0, "finish_reason": "stop", "message": {"role": "assistant", "content": %s}}],
		"usage": {"prompt_tokens": 3, "completion_tokens": 2, "total_tokens": 5}
	}`, req.Model, content)
}

// setup points the ollama backend at a fake server and isolates settings from the host.
func setup(t *testing.T) *echoServer {
	t.Helper()
	srv := &echoServer{}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	for key, val := range map[string]string{
		"OLLAMA_HOST":                ts.URL,
		"OLLAMA_MODEL":               "",
		"LLMCHAIN_PROVIDER":          "ollama",
		"LLMCHAIN_HISTORY":           "",
		"LLMCHAIN_CAPABILITIES":      "",
		"LLMCHAIN_CAPABILITIES_FILE": "",
		"LLMCHAIN_OVERRIDES_ORDER":   "",
		"LLMCHAIN_MAX_RETRIES":       "0",
		"LOG_LEVEL":                  "error",
		"LOG_FORMAT":                 "json",
	} {
		t.Setenv(key, val)
	}
	return srv
}

func testOptions(out *bytes.Buffer, in string) Options {
	return Options{Out: out, In: strings.NewReader(in)}
}

func TestRunRecordsAndReplays(t *testing.T) {
	srv := setup(t)
	dir := t.TempDir()
	chainPath := filepath.Join(dir, "demo.yaml")
	_, err := Create(chainPath, "demo", []string{"a", "b"}, "ollama:llama3.2", false)
	require.NoError(t, err)

	history := filepath.Join(dir, "history.db")
	var out bytes.Buffer
	opts := testOptions(&out, "")
	opts.HistoryPath = history
	opts.MetricsFile = filepath.Join(dir, "metrics.prom")

	require.NoError(t, Run(context.Background(), chainPath, "graphs", opts))
	assert.Equal(t, int32(2), srv.hits.Load())
	assert.Contains(t, out.String(), "echo:Step b. Work from:\necho:Step a. Work from:\ngraphs")
	assert.Contains(t, out.String(), "completed: 2 dispatched, 0 supplied")

	metricsText, err := os.ReadFile(opts.MetricsFile)
	require.NoError(t, err)
	assert.Contains(t, string(metricsText), "llmchain_steps_total")

	out.Reset()
	require.NoError(t, Replay(context.Background(), history, "", false, opts))
	assert.Equal(t, int32(2), srv.hits.Load(), "replay must not dispatch")
	assert.Contains(t, out.String(), "Outcome: completed")
	assert.Contains(t, out.String(), "a = echo:Step a.")
}

func TestReplayListsRuns(t *testing.T) {
	setup(t)
	dir := t.TempDir()
	chainPath := filepath.Join(dir, "demo.yaml")
	_, err := Create(chainPath, "demo", []string{"only"}, "ollama", false)
	require.NoError(t, err)

	runs := filepath.Join(dir, "runs")
	var out bytes.Buffer
	opts := testOptions(&out, "")
	opts.HistoryPath = runs
	require.NoError(t, Run(context.Background(), chainPath, "x", opts))

	out.Reset()
	require.NoError(t, Replay(context.Background(), runs, "", true, opts))
	assert.Len(t, strings.Fields(out.String()), 1)
}

func TestRunInteractiveSuppliedResponse(t *testing.T) {
	srv := setup(t)
	dir := t.TempDir()
	chainPath := filepath.Join(dir, "demo.yaml")
	_, err := Create(chainPath, "demo", []string{"a", "b"}, "", false)
	require.NoError(t, err)

	var out bytes.Buffer
	opts := testOptions(&out, "r\nmanual answer\n.\n")
	opts.InteractiveSteps = []string{"b"}

	require.NoError(t, Run(context.Background(), chainPath, "topic", opts))
	assert.Equal(t, int32(1), srv.hits.Load())
	assert.Contains(t, out.String(), "--- step b awaiting input ---")
	assert.Contains(t, out.String(), "manual answer\n")
	assert.Contains(t, out.String(), "1 dispatched, 1 supplied")
}

func TestRunInteractiveQuit(t *testing.T) {
	srv := setup(t)
	dir := t.TempDir()
	chainPath := filepath.Join(dir, "demo.yaml")
	_, err := Create(chainPath, "demo", []string{"a"}, "", false)
	require.NoError(t, err)

	var out bytes.Buffer
	opts := testOptions(&out, "q\n")
	opts.InteractiveSteps = []string{"a"}

	err = Run(context.Background(), chainPath, "topic", opts)
	require.ErrorIs(t, err, errAborted)
	assert.Equal(t, int32(0), srv.hits.Load())
	assert.Contains(t, out.String(), "failed")
}

// syncBuffer is a bytes.Buffer safe for the prompter goroutine and the test to share.
type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestRunInterruptedAtInteractiveStep(t *testing.T) {
	srv := setup(t)
	dir := t.TempDir()
	chainPath := filepath.Join(dir, "demo.yaml")
	_, err := Create(chainPath, "demo", []string{"a", "b"}, "", false)
	require.NoError(t, err)

	// stdin that never answers
	stdin, stdinWriter := io.Pipe()
	t.Cleanup(func() { stdinWriter.Close() })

	out := &syncBuffer{}
	history := filepath.Join(dir, "session.jsonl")
	opts := Options{Out: out, In: stdin, HistoryPath: history, InteractiveSteps: []string{"b"}}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		deadline := time.Now().Add(5 * time.Second)
		for !strings.Contains(out.String(), "[q] quit") && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}
		cancel()
	}()

	err = Run(ctx, chainPath, "topic", opts)
	require.Error(t, err)
	assert.True(t, model.IsKind(err, model.KindCancelled), "unexpected error: %v", err)
	assert.Equal(t, int32(1), srv.hits.Load())

	h, err := storage.ReadJSONLFile(history)
	require.NoError(t, err)
	require.Len(t, h.Entries, 1)
	assert.Equal(t, "a", h.Entries[0].StepID)
	require.NotNil(t, h.Outcome)
	assert.Equal(t, chain.StateFailed, h.Outcome.State)
	assert.Equal(t, "b", h.Outcome.FailedStep)
}

func TestRunRejectsUnknownInteractiveStep(t *testing.T) {
	setup(t)
	chainPath := filepath.Join(t.TempDir(), "demo.yaml")
	_, err := Create(chainPath, "demo", []string{"a"}, "", false)
	require.NoError(t, err)

	var out bytes.Buffer
	opts := testOptions(&out, "")
	opts.InteractiveSteps = []string{"nope"}
	assert.Error(t, Run(context.Background(), chainPath, "x", opts))
}

func TestCreateRefusesOverwrite(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "c.yaml")
	c, err := Create(path, "", nil, "", false)
	require.NoError(t, err)
	assert.Equal(t, "c", c.Name)
	assert.Len(t, c.Steps, 2)

	loaded, err := chain.Load(path)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(loaded.Steps[1].Template, "{{draft}}"))

	_, err = Create(path, "", nil, "", false)
	assert.Error(t, err)
	_, err = Create(path, "", []string{"x"}, "", true)
	assert.NoError(t, err)
}

func TestCapabilitiesShowsSource(t *testing.T) {
	setup(t)
	var out bytes.Buffer
	opts := testOptions(&out, "")
	opts.OverridesInline = "- name: llama3.2\n  chat: true\n  embeddings: true\n"

	require.NoError(t, Capabilities([]string{"llama3.2"}, opts))
	assert.Contains(t, out.String(), "llama3.2 [inline[1]]")
	assert.Contains(t, out.String(), "chat, embeddings")
}

func TestCapabilitiesRejectsBadOrder(t *testing.T) {
	setup(t)
	var out bytes.Buffer
	opts := testOptions(&out, "")
	opts.OverridesOrder = "inline,remote"
	assert.Error(t, Capabilities(nil, opts))
}

func TestEvalRanksTargets(t *testing.T) {
	srv := setup(t)
	var out bytes.Buffer

	report, err := Eval(context.Background(), "hello", EvalOptions{
		Providers: []string{"ollama:llama3.2", "ollama:llama3.1"},
		Keywords:  []string{"hello"},
	}, testOptions(&out, ""))
	require.NoError(t, err)
	assert.Equal(t, int32(2), srv.hits.Load())
	require.Len(t, report.Candidates, 2)

	best, err := report.Best()
	require.NoError(t, err)
	assert.Equal(t, "ollama:llama3.2", best.Target)
	assert.Contains(t, out.String(), "Best: ollama:llama3.2")
}

func TestEvalRequiresTargets(t *testing.T) {
	_, err := Eval(context.Background(), "p", EvalOptions{}, Options{})
	assert.Error(t, err)
	_, err = Eval(context.Background(), "p", EvalOptions{Providers: []string{"ollama"}, Mode: "embeddings"}, Options{})
	assert.Error(t, err)
}

func TestListProviders(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "sk-test")
	var out bytes.Buffer
	ListProviders(&out)
	assert.Contains(t, out.String(), "OPENAI_API_KEY")
	assert.Contains(t, out.String(), "bedrock")
	assert.Regexp(t, `openai\s+OPENAI_API_KEY\s+yes`, out.String())
}
