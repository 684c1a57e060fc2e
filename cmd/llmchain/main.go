// Package main provides the llmchain CLI entry point.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/richinex/llmchain/cli"
	"github.com/richinex/llmchain/config"
	"github.com/spf13/cobra"
)

var (
	// Global flags
	provider        string
	verbose         bool
	overridesFile   string
	overridesInline string
	overridesOrder  string
	metricsFile     string
)

func main() {
	// Load .env file if present (ignore "file not found" errors)
	if err := godotenv.Load(); err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "Warning: failed to load .env file: %v\n", err)
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd := &cobra.Command{
		Use:   "llmchain",
		Short: "Run multi-step prompt chains across LLM backends",
		Long: `A CLI for composing prompt chains over OpenAI, Anthropic, Gemini,
DeepSeek, Ollama and AWS Bedrock through one client interface.

Each step's response is bound as a variable for later templates.
Steps can be skipped by conditions, paused for human input, and every
run is recorded so it can be replayed without calling any backend.`,
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&provider, "provider", "p", "", "Default provider as backend or backend:model ("+strings.Join(config.SupportedProviders(), ", ")+")")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show verbose output and debug logs")
	rootCmd.PersistentFlags().StringVar(&overridesFile, "capabilities", "", "Capability override file (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&overridesInline, "capabilities-inline", "", "Inline capability overrides (YAML or JSON)")
	rootCmd.PersistentFlags().StringVar(&overridesOrder, "overrides-order", "", "Override load order, later wins (e.g. file,inline)")
	rootCmd.PersistentFlags().StringVar(&metricsFile, "metrics-file", "", "Write Prometheus metrics to this file on exit")

	rootCmd.AddCommand(runCmd(ctx))
	rootCmd.AddCommand(replayCmd(ctx))
	rootCmd.AddCommand(createCmd())
	rootCmd.AddCommand(providersCmd())
	rootCmd.AddCommand(capabilitiesCmd())
	rootCmd.AddCommand(evalCmd(ctx))

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func baseOptions() cli.Options {
	opts := cli.DefaultOptions()
	opts.Provider = provider
	opts.Verbose = verbose
	opts.OverridesFile = overridesFile
	opts.OverridesInline = overridesInline
	opts.OverridesOrder = overridesOrder
	opts.MetricsFile = metricsFile
	return opts
}

func runCmd(ctx context.Context) *cobra.Command {
	var interactive bool
	var interactiveSteps []string
	var historyPath string
	var inputFile string

	cmd := &cobra.Command{
		Use:   "run [chain-file] [input]",
		Short: "Execute a chain against an input",
		Long: `Execute a chain file step by step.

The input is the second argument, the contents of --input-file, or stdin
when neither is given. Interactive steps pause and read a decision from
the terminal: send the prompt, edit it, or type the response yourself.`,
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			input, err := readInput(args, inputFile)
			if err != nil {
				return err
			}
			opts := baseOptions()
			opts.Interactive = interactive
			opts.InteractiveSteps = interactiveSteps
			opts.HistoryPath = historyPath
			return cli.Run(ctx, args[0], input, opts)
		},
	}

	cmd.Flags().BoolVarP(&interactive, "interactive", "i", false, "Pause at the chain's default interactive steps")
	cmd.Flags().StringSliceVar(&interactiveSteps, "interactive-steps", nil, "Additional step ids to pause at (comma-separated)")
	cmd.Flags().StringVar(&historyPath, "history", "", "History store: .db/.sqlite file, .jsonl file or directory")
	cmd.Flags().StringVarP(&inputFile, "input-file", "f", "", "Read the chain input from a file")

	return cmd
}

// readInput picks the run input from args, a file or stdin.
func readInput(args []string, inputFile string) (string, error) {
	switch {
	case len(args) == 2:
		return args[1], nil
	case inputFile != "":
		data, err := os.ReadFile(inputFile)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return string(data), nil
	default:
		fi, err := os.Stdin.Stat()
		if err != nil || fi.Mode()&os.ModeCharDevice != 0 {
			return "", fmt.Errorf("no input: pass it as an argument, --input-file or on stdin")
		}
		data, err := io.ReadAll(os.Stdin)
		if err != nil {
			return "", fmt.Errorf("failed to read input: %w", err)
		}
		return strings.TrimRight(string(data), "\n"), nil
	}
}

func replayCmd(ctx context.Context) *cobra.Command {
	var historyPath string
	var list bool

	cmd := &cobra.Command{
		Use:   "replay [run-id]",
		Short: "Rebuild a recorded run without calling any backend",
		Long: `Load a run from a history store and rebuild its variable bindings.

Without a run id the most recent run is replayed (for SQLite stores) or
the first run in sorted order (for JSONL directories).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return cli.Replay(ctx, historyPath, runID, list, baseOptions())
		},
	}

	cmd.Flags().StringVar(&historyPath, "history", ".llmchain/history.db", "History store to read")
	cmd.Flags().BoolVar(&list, "list", false, "List run ids instead of replaying")

	return cmd
}

func createCmd() *cobra.Command {
	var name string
	var steps []string
	var force bool

	cmd := &cobra.Command{
		Use:   "create [chain-file]",
		Short: "Write a skeleton chain file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := cli.Create(args[0], name, steps, provider, force)
			if err != nil {
				return err
			}
			fmt.Printf("Created %s with %d steps\n", args[0], len(c.Steps))
			return nil
		},
	}

	cmd.Flags().StringVar(&name, "name", "", "Chain name (defaults to the file name)")
	cmd.Flags().StringSliceVar(&steps, "steps", nil, "Step ids in order (comma-separated)")
	cmd.Flags().BoolVar(&force, "force", false, "Overwrite an existing file")

	return cmd
}

func providersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "providers",
		Short: "List supported backends and their credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			cli.ListProviders(os.Stdout)
			return nil
		},
	}
}

func capabilitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "capabilities [model-id...]",
		Short: "Show resolved model capabilities",
		Long: `Show the capability record each model id resolves to, and which
layer (builtin, override file or inline) answered. Without arguments
every known model is listed.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cli.Capabilities(args, baseOptions())
		},
	}
}

func evalCmd(ctx context.Context) *cobra.Command {
	var eopts cli.EvalOptions

	cmd := &cobra.Command{
		Use:   "eval [prompt]",
		Short: "Send one prompt to several backends in parallel and pick the best",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := cli.Eval(ctx, args[0], eopts, baseOptions())
			return err
		},
	}

	cmd.Flags().StringSliceVarP(&eopts.Providers, "target", "t", nil, "Targets as backend or backend:model (repeatable)")
	cmd.Flags().StringVar(&eopts.Mode, "mode", "chat", "chat or completion")
	cmd.Flags().StringSliceVar(&eopts.Keywords, "keywords", nil, "Score by keyword coverage")
	cmd.Flags().StringSliceVar(&eopts.JSONKeys, "json-keys", nil, "Score by presence of these JSON keys")
	cmd.Flags().BoolVar(&eopts.RequireJSON, "json", false, "Score responses containing JSON")
	cmd.Flags().IntVar(&eopts.Length, "length", 0, "Score closeness to this many characters")

	return cmd
}
