package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/ravi-parthasarathy/nodeflow/pkg/flow"
	"github.com/ravi-parthasarathy/nodeflow/pkg/flow/executors"
	"github.com/ravi-parthasarathy/nodeflow/pkg/llm"
	"github.com/ravi-parthasarathy/nodeflow/pkg/llm/providers"
	"github.com/ravi-parthasarathy/nodeflow/pkg/store"
)

func main() {
	// A .env in the working directory is optional.
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	var (
		logLevel  string
		logFormat string
	)

	root := &cobra.Command{
		Use:   "nodeflow",
		Short: "Nodeflow — graph execution engine for node-based flows",
		Long: `Nodeflow executes directed graphs of processing nodes.

Nodes are typed executors (textInput, llmPrompt, conditionalNode, …) wired
by edges that carry values between named handles. Flows load from editor
JSON exports or from DOT files.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			return initLogger(logLevel, logFormat)
		},
	}
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format: text or json")
	root.PersistentFlags().String("config", "", "path to a YAML config file (default "+defaultConfigFile+" if present)")

	root.AddCommand(runCmd())
	root.AddCommand(lintCmd())
	root.AddCommand(graphCmd())
	root.AddCommand(appsCmd())
	return root
}

// ─── run ─────────────────────────────────────────────────────────────────────

func runCmd() *cobra.Command {
	var (
		endpoint string
		fallback string
		model    string
		parallel int
		timeout  time.Duration
		asJSON   bool
		outPath  string
		save     bool
		dbPath   string
	)

	cmd := &cobra.Command{
		Use:   "run <flow.json|flow.dot>",
		Short: "Execute a flow and print its outputs",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfgPath, _ := cmd.Flags().GetString("config")
			cfg, err := loadConfig(cfgPath)
			if err != nil {
				return err
			}
			flags := cmd.Flags()
			if !flags.Changed("endpoint") && cfg.Endpoint != "" {
				endpoint = cfg.Endpoint
			}
			if !flags.Changed("fallback") && cfg.Fallback != "" {
				fallback = cfg.Fallback
			}
			if !flags.Changed("model") && cfg.Model != "" {
				model = cfg.Model
			}
			if !flags.Changed("parallel") && cfg.Parallel > 0 {
				parallel = cfg.Parallel
			}
			if !flags.Changed("db") && cfg.DB != "" {
				dbPath = cfg.DB
			}

			f, err := flow.LoadFile(args[0])
			if err != nil {
				return err
			}
			// Lint findings are warnings here: the engine tolerates all of
			// them and reports what could not run in its result.
			for _, lint := range flow.Validate(f) {
				slog.Warn("lint", "problem", lint.Error())
			}

			ctx := signalContext(cmd.Context())
			if timeout > 0 {
				var cancel context.CancelFunc
				ctx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}

			pb := flow.PlanBuilder{Default: endpoint, Fallback: fallback}
			plan := pb.Build(ctx, f)

			backend, err := buildBackend(model, plan.Endpoint)
			if err != nil {
				return err
			}
			eng, err := flow.NewEngine(plan, executors.Defaults(),
				flow.WithBackend(backend),
				flow.WithParallelism(parallel),
			)
			if err != nil {
				return err
			}

			started := time.Now()
			res, runErr := eng.Run(ctx)
			if res != nil {
				if err := printOutputs(cmd.OutOrStdout(), f, res.Outputs, asJSON); err != nil {
					return err
				}
				if err := writeOutputs(outPath, res.Outputs); err != nil {
					return err
				}
				if save {
					// Saved against the parent context so an interrupted
					// run still lands in the history.
					if err := recordRun(cmd.Context(), dbPath, appName(args[0], f), f, res, started); err != nil {
						return err
					}
				}
			}
			if runErr != nil {
				return runErr
			}
			if res.Deadlocked {
				return fmt.Errorf("flow deadlocked; unprocessed nodes: %s", strings.Join(res.Unprocessed, ", "))
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "endpoint", llm.DefaultEndpoint, "model endpoint base URL")
	cmd.Flags().StringVar(&fallback, "fallback", llm.FallbackEndpoint, "fallback endpoint when the default is unreachable")
	cmd.Flags().StringVar(&model, "model", "", "model backend: provider:model ref, or a bare model name served at the endpoint")
	cmd.Flags().IntVar(&parallel, "parallel", 1, "maximum nodes of a wave to run concurrently")
	cmd.Flags().DurationVar(&timeout, "timeout", 0, "abort the run after this duration (0 = none)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print outputs as JSON")
	cmd.Flags().StringVar(&outPath, "output", "", "also write outputs to this file as JSON")
	cmd.Flags().BoolVar(&save, "save", false, "record the flow and this run in the app store")
	cmd.Flags().StringVar(&dbPath, "db", "nodeflow.db", "path to the app store database")
	return cmd
}

// ─── lint ────────────────────────────────────────────────────────────────────

func lintCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lint <flow.json|flow.dot>",
		Short: "Validate a flow file without running it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := flow.LoadFile(args[0])
			if err != nil {
				return err
			}
			if err := flow.ValidateErr(f); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "OK: flow %q is valid (%d nodes, %d edges)\n",
				f.Name, len(f.Nodes), len(f.Edges))
			return nil
		},
	}
}

// ─── helpers ─────────────────────────────────────────────────────────────────

// buildBackend picks the model client. A "provider:model" ref goes through
// the provider registry; a bare model name (or none) means Ollama at the
// resolved endpoint.
func buildBackend(ref, endpoint string) (llm.Client, error) {
	if strings.Contains(ref, ":") {
		return llm.NewClient(ref)
	}
	return providers.NewOllama(endpoint, ref), nil
}

// printOutputs renders recorded node outputs in the flow's node order, or as
// one JSON object when asJSON is set.
func printOutputs(w io.Writer, f *flow.Flow, outputs map[string]any, asJSON bool) error {
	if asJSON {
		data, err := json.MarshalIndent(outputs, "", "  ")
		if err != nil {
			return fmt.Errorf("encode outputs: %w", err)
		}
		fmt.Fprintln(w, string(data))
		return nil
	}
	if len(outputs) == 0 {
		fmt.Fprintln(w, "(no outputs)")
		return nil
	}
	for i := range f.Nodes {
		id := f.Nodes[i].ID
		v, ok := outputs[id]
		if !ok {
			continue
		}
		fmt.Fprintf(w, "%s:\n%s\n\n", id, flow.Stringify(v))
	}
	return nil
}

// writeOutputs writes the outputs to path as indented JSON. An empty path is
// a no-op.
func writeOutputs(path string, outputs map[string]any) error {
	if path == "" {
		return nil
	}
	data, err := json.MarshalIndent(outputs, "", "  ")
	if err != nil {
		return fmt.Errorf("encode outputs: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write outputs: %w", err)
	}
	return nil
}

// recordRun upserts the app definition and appends the run to its history.
func recordRun(ctx context.Context, dbPath, name string, f *flow.Flow, res *flow.Result, started time.Time) error {
	s, err := store.Open(dbPath)
	if err != nil {
		return err
	}
	defer s.Close()
	if err := s.SaveApp(ctx, name, f); err != nil {
		return err
	}
	rec := &store.RunRecord{
		App:        name,
		Outputs:    res.Outputs,
		Deadlocked: res.Deadlocked,
		StartedAt:  started,
		Duration:   time.Since(started),
	}
	if err := s.SaveRun(ctx, rec); err != nil {
		return err
	}
	slog.Info("run saved", "app", name, "run", rec.ID)
	return nil
}

// appName picks the store name for a flow: its declared name, else the base
// name of the file it came from.
func appName(path string, f *flow.Flow) string {
	if f.Name != "" {
		return f.Name
	}
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// initLogger configures the process-wide slog default.
func initLogger(level, format string) error {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		return fmt.Errorf("unknown log level %q", level)
	}

	opts := &slog.HandlerOptions{Level: lvl}
	var handler slog.Handler
	switch strings.ToLower(format) {
	case "text":
		handler = slog.NewTextHandler(os.Stderr, opts)
	case "json":
		handler = slog.NewJSONHandler(os.Stderr, opts)
	default:
		return fmt.Errorf("unknown log format %q", format)
	}
	slog.SetDefault(slog.New(handler))
	return nil
}

// signalContext returns a context that is cancelled on SIGINT or SIGTERM.
func signalContext(parent context.Context) context.Context {
	ctx, cancel := context.WithCancel(parent)
	go func() {
		ch := make(chan os.Signal, 1)
		signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
		select {
		case <-ch:
			fmt.Fprintln(os.Stderr, "\n[nodeflow] interrupted — cancelling flow")
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx
}
