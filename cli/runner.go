// Command execution for CLI commands.
//
// Information Hiding:
// - Settings, logger, registry and metrics assembly
// - History store selection
// - Output formatting

package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/richinex/llmchain/capability"
	"github.com/richinex/llmchain/chain"
	"github.com/richinex/llmchain/config"
	"github.com/richinex/llmchain/internal/logger"
	"github.com/richinex/llmchain/llm"
	"github.com/richinex/llmchain/metrics"
	"github.com/richinex/llmchain/storage"
	"github.com/rs/zerolog"
)

// Options holds CLI execution options. Empty fields fall back to settings
// loaded from the environment.
type Options struct {
	Provider string
	Verbose  bool

	// Interactive enables the chain's default interactive steps.
	Interactive      bool
	InteractiveSteps []string

	HistoryPath     string
	OverridesFile   string
	OverridesInline string
	OverridesOrder  string
	MetricsFile     string

	In  io.Reader
	Out io.Writer
}

// DefaultOptions returns options bound to the standard streams.
func DefaultOptions() Options {
	return Options{In: os.Stdin, Out: os.Stdout}
}

func (o Options) out() io.Writer {
	if o.Out == nil {
		return os.Stdout
	}
	return o.Out
}

func (o Options) in() io.Reader {
	if o.In == nil {
		return os.Stdin
	}
	return o.In
}

// runtime is the shared wiring every command starts from.
type runtime struct {
	settings config.Settings
	log      zerolog.Logger
	registry *capability.Registry
	gatherer *prometheus.Registry
	metrics  *metrics.Collector
}

func newRuntime(opts Options) (*runtime, error) {
	settings, err := config.Load()
	if err != nil {
		return nil, err
	}
	if opts.OverridesFile != "" {
		settings.Registry.File = opts.OverridesFile
	}
	if opts.OverridesInline != "" {
		settings.Registry.Inline = opts.OverridesInline
	}
	if opts.OverridesOrder != "" {
		order, err := config.ParseOrder(opts.OverridesOrder)
		if err != nil {
			return nil, fmt.Errorf("--overrides-order: %w", err)
		}
		settings.Registry.Order = order
	}
	if opts.HistoryPath != "" {
		settings.History.Path = opts.HistoryPath
	}
	if opts.Verbose {
		settings.Log.Level = "debug"
	}

	log, err := logger.New(settings.Log.Level, settings.Log.Format)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	reg, err := settings.BuildRegistry()
	if err != nil {
		return nil, err
	}
	gatherer := prometheus.NewRegistry()
	return &runtime{
		settings: settings,
		log:      log,
		registry: reg,
		gatherer: gatherer,
		metrics:  metrics.New(gatherer),
	}, nil
}

func (rt *runtime) clientFactory() chain.ClientFactory {
	return rt.settings.ClientFactory(rt.registry, rt.log, rt.metrics)
}

// defaultProvider resolves the provider used by steps without one:
// the --provider flag, then the chain, then settings.
func (rt *runtime) defaultProvider(flag, fromChain string) string {
	switch {
	case flag != "":
		if !strings.Contains(flag, ":") {
			return normalizeProvider(rt.settings, flag)
		}
		return flag
	case fromChain != "":
		return fromChain
	default:
		return rt.settings.DefaultProvider()
	}
}

// normalizeProvider expands a bare backend name to "backend:model".
func normalizeProvider(s config.Settings, backend string) string {
	s.LLM.Provider = backend
	return s.DefaultProvider()
}

// openStore opens path, or returns nil when path is empty.
func openStore(path string) (storage.Store, error) {
	if path == "" {
		return nil, nil
	}
	store, err := storage.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open history %s: %w", path, err)
	}
	return store, nil
}

// flushMetrics writes the collected metrics in the text exposition format.
func (rt *runtime) flushMetrics(path string) {
	if path == "" {
		return
	}
	if dir := filepath.Dir(path); dir != "." {
		_ = os.MkdirAll(dir, 0755)
	}
	if err := prometheus.WriteToTextfile(path, rt.gatherer); err != nil {
		rt.log.Warn().Err(err).Str("path", path).Msg("failed to write metrics")
	}
}

// Run executes a chain file against input.
func Run(ctx context.Context, chainPath, input string, opts Options) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	defer rt.flushMetrics(opts.MetricsFile)

	c, err := chain.Load(chainPath)
	if err != nil {
		return err
	}
	for _, w := range c.Lint() {
		rt.log.Warn().Str("chain", c.Name).Msg(w)
	}
	c.DefaultProvider = rt.defaultProvider(opts.Provider, c.DefaultProvider)

	historyPath := rt.settings.History.Path
	if opts.HistoryPath == "" && c.Interactive.SavePath != "" {
		historyPath = c.Interactive.SavePath
	}
	store, err := openStore(historyPath)
	if err != nil {
		return err
	}
	if store != nil {
		defer store.Close()
	}

	engineOpts := []chain.Option{
		chain.WithLogger(rt.log),
		chain.WithMetrics(rt.metrics),
		chain.WithRetryPolicy(rt.settings.RetryPolicy()),
		chain.WithInteractive(opts.Interactive, opts.InteractiveSteps...),
	}
	if store != nil {
		engineOpts = append(engineOpts, chain.WithHistoryStore(store))
	}
	engine := chain.NewEngine(chain.NewClientDispatcher(rt.clientFactory()), engineOpts...)

	run, err := engine.Start(ctx, c, input)
	if err != nil {
		return err
	}

	out := opts.out()
	prompter := newPrompter(opts.in(), out)
	status, err := run.Advance(ctx)
	for err == nil && status.State == chain.StateAwaiting {
		d, derr := prompter.await(ctx, status)
		if derr != nil {
			if cerr := run.Cancel(context.WithoutCancel(ctx)); cerr != nil {
				rt.log.Warn().Err(cerr).Msg("cancel failed")
			}
			err = derr
			if ctx.Err() != nil && run.Err() != nil {
				err = run.Err()
			}
			break
		}
		status, err = run.Resume(ctx, status.Token, d)
	}

	printRun(out, run, opts.Verbose)
	if historyPath != "" {
		fmt.Fprintf(out, "History: %s (run %s)\n", historyPath, run.ID())
	}
	if err != nil {
		return fmt.Errorf("chain %s failed: %w", c.Name, err)
	}
	return nil
}

// Replay rebuilds a recorded run without dispatching anything.
func Replay(ctx context.Context, historyPath, runID string, list bool, opts Options) error {
	store, err := openStore(historyPath)
	if err != nil {
		return err
	}
	if store == nil {
		return fmt.Errorf("--history is required")
	}
	defer store.Close()
	out := opts.out()

	runs, err := store.ListRuns(ctx)
	if err != nil {
		return err
	}
	if list {
		for _, id := range runs {
			fmt.Fprintln(out, id)
		}
		return nil
	}
	if runID == "" {
		if len(runs) == 0 {
			return fmt.Errorf("no runs in %s", historyPath)
		}
		runID = runs[0]
	}

	h, err := store.Load(ctx, runID)
	if err != nil {
		return err
	}
	vars, err := chain.Replay(h)
	if err != nil {
		return err
	}
	printHistory(out, h, vars, opts.Verbose)
	return nil
}

// ListProviders prints every backend with its key variable and default model.
func ListProviders(w io.Writer) {
	fmt.Fprintf(w, "%-10s %-20s %-8s %s\n", "BACKEND", "KEY", "KEY SET", "DEFAULT MODEL")
	for _, bt := range llm.BackendTypes {
		key, set := "-", "n/a"
		if bt.RequiresKey() {
			key = bt.EnvVar()
			set = "no"
			if os.Getenv(key) != "" {
				set = "yes"
			}
		}
		fmt.Fprintf(w, "%-10s %-20s %-8s %s\n", bt, key, set, config.ModelFor(bt))
	}
}

// Capabilities prints the resolved capability record for each id, or every
// known model when ids is empty.
func Capabilities(ids []string, opts Options) error {
	rt, err := newRuntime(opts)
	if err != nil {
		return err
	}
	out := opts.out()
	fmt.Fprintf(out, "Sources: %s\n\n", strings.Join(rt.registry.Sources(), " < "))

	if len(ids) == 0 {
		for _, name := range rt.registry.Models() {
			res, err := rt.registry.Lookup(name)
			if err != nil {
				return err
			}
			printResolution(out, name, res)
		}
		return nil
	}
	for _, id := range ids {
		res, err := rt.registry.Lookup(id)
		if err != nil {
			return err
		}
		printResolution(out, id, res)
	}
	return nil
}

// Create writes a skeleton chain with one step per id, each feeding the next.
func Create(path, name string, stepIDs []string, provider string, force bool) (*chain.Chain, error) {
	if len(stepIDs) == 0 {
		stepIDs = []string{"draft", "refine"}
	}
	if name == "" {
		name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	c := &chain.Chain{Name: name, DefaultProvider: provider, InputVar: chain.DefaultInputVar}
	prev := chain.DefaultInputVar
	for _, id := range stepIDs {
		c.Steps = append(c.Steps, chain.Step{
			ID:       id,
			Template: fmt.Sprintf("Step %s. Work from:\n{{%s}}", id, prev),
		})
		prev = id
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}
	data, err := c.Marshal()
	if err != nil {
		return nil, err
	}

	if !force {
		if _, err := os.Stat(path); err == nil {
			return nil, fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, err
		}
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return nil, fmt.Errorf("failed to write chain: %w", err)
	}
	return c, nil
}
