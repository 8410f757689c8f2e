package cli

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/cockroachdb/errors"
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/swarmsync/internal/harness"
	"github.com/roach88/swarmsync/internal/settings"
	"github.com/roach88/swarmsync/internal/store"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	*RootOptions
	Database string // keep instance dumps here instead of in memory
	Golden   string // directory of <scenario>.golden trace files
	Update   bool   // rewrite golden files instead of comparing
	Filter   string // glob on scenario file names
}

// ScenarioResult holds the result of a single scenario execution.
type ScenarioResult struct {
	Name   string   `json:"name"`
	File   string   `json:"file"`
	Pass   bool     `json:"pass"`
	Errors []string `json:"errors,omitempty"`
}

// RunSummary holds the overall result of a run.
type RunSummary struct {
	Scenarios []ScenarioResult `json:"scenarios"`
	Passed    int              `json:"passed"`
	Failed    int              `json:"failed"`
	Total     int              `json:"total"`
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "run <scenario-file|dir>",
		Short: "Run sync scenarios",
		Long: `Run one scenario file, or every scenario below a directory.

Each scenario simulates its devices against an in-memory relay, checks
step expectations and assertions, and optionally compares the trace with
a golden file.

Exit codes:
  0 - All scenarios passed
  1 - One or more scenarios failed
  2 - Command error (bad path, unreadable config, store error)

Examples:
  swarmsync run ./scenarios
  swarmsync run ./scenarios --filter "group-*" --golden ./scenarios/golden
  swarmsync run ./scenarios --golden ./scenarios/golden --update
  swarmsync run ./scenarios/contacts.yaml --db ./dumps.db --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runScenarios(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "SQLite file for instance dumps")
	cmd.Flags().StringVar(&opts.Golden, "golden", "", "golden trace directory")
	cmd.Flags().BoolVar(&opts.Update, "update", false, "regenerate golden files")
	cmd.Flags().StringVar(&opts.Filter, "filter", "", "filter scenarios by glob pattern")

	return cmd
}

func runScenarios(opts *RunOptions, path string, cmd *cobra.Command) error {
	if opts.Update && opts.Golden == "" {
		return NewExitError(ExitCommandError, "--update requires --golden")
	}
	limits, err := opts.limits()
	if err != nil {
		return err
	}
	formatter := opts.formatter(cmd)
	logger := opts.logger(cmd)
	defer func() { _ = logger.Sync() }()

	loaded, loadErrs := LoadScenarios(path, opts.Filter, LoadModeFailFast)
	if len(loadErrs) > 0 {
		return WrapExitError(ExitCommandError, "failed to load scenarios", loadErrs[0])
	}
	if len(loaded) == 0 {
		if opts.Format == "json" {
			return formatter.Success(RunSummary{Scenarios: []ScenarioResult{}})
		}
		fmt.Fprintln(cmd.OutOrStdout(), "No scenarios found.")
		return nil
	}

	var st *store.Store
	if opts.Database != "" {
		st, err = store.Open(opts.Database)
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to open database", err)
		}
		defer func() {
			if err := st.Close(); err != nil {
				logger.Error("close database", zap.Error(err))
			}
		}()
	}

	ctx, stop := signal.NotifyContext(commandContext(cmd), os.Interrupt, syscall.SIGTERM)
	defer stop()

	summary := RunSummary{Scenarios: make([]ScenarioResult, 0, len(loaded)), Total: len(loaded)}
	for _, l := range loaded {
		res, err := runOne(ctx, opts, l, limits, st, logger)
		if err != nil {
			return err
		}
		summary.Scenarios = append(summary.Scenarios, res)
		if res.Pass {
			summary.Passed++
		} else {
			summary.Failed++
		}
		if opts.Format != "json" {
			printScenarioResult(cmd, res)
		}
	}
	return outputSummary(cmd, formatter, summary)
}

func commandContext(cmd *cobra.Command) context.Context {
	if ctx := cmd.Context(); ctx != nil {
		return ctx
	}
	return context.Background()
}

// runOne runs a loaded scenario. A scenario that cannot run counts as a
// failure; only cancellation aborts the whole run.
func runOne(ctx context.Context, opts *RunOptions, l LoadedScenario, limits settings.Limits, st *store.Store, logger *zap.Logger) (ScenarioResult, error) {
	sc := l.Scenario
	res := ScenarioResult{Name: sc.Name, File: l.File}
	fail := func(format string, args ...any) (ScenarioResult, error) {
		res.Errors = append(res.Errors, fmt.Sprintf(format, args...))
		return res, nil
	}

	runOpts := []harness.Option{harness.WithLogger(logger), harness.WithLimits(limits)}
	if st != nil {
		runOpts = append(runOpts, harness.WithStore(st))
	}
	result, err := harness.Run(ctx, sc, runOpts...)
	if err != nil {
		if ctx.Err() != nil {
			return res, WrapExitError(ExitCommandError, "run interrupted", ctx.Err())
		}
		return fail("run failed: %v", err)
	}
	res.Errors = append(res.Errors, result.Errors...)

	if opts.Golden != "" {
		if err := checkGolden(opts, sc.Name, result); err != nil {
			res.Errors = append(res.Errors, err.Error())
		}
	}
	res.Pass = len(res.Errors) == 0
	return res, nil
}

func goldenPath(dir, name string) string {
	return filepath.Join(dir, name+".golden")
}

// checkGolden compares the trace with its golden file, or rewrites the
// file when --update is set.
func checkGolden(opts *RunOptions, name string, result *harness.Result) error {
	current, err := harness.TraceJSON(name, result)
	if err != nil {
		return errors.Wrap(err, "render trace")
	}
	path := goldenPath(opts.Golden, name)
	if opts.Update {
		if err := os.MkdirAll(opts.Golden, 0o755); err != nil {
			return errors.Wrap(err, "create golden directory")
		}
		return errors.Wrap(os.WriteFile(path, current, 0o644), "write golden file")
	}
	want, err := os.ReadFile(path)
	if err != nil {
		return errors.Wrap(err, "read golden file")
	}
	if !bytes.Equal(bytes.TrimSpace(want), bytes.TrimSpace(current)) {
		return errors.New("trace does not match golden file (run with --update to regenerate)")
	}
	return nil
}

func printScenarioResult(cmd *cobra.Command, res ScenarioResult) {
	w := cmd.OutOrStdout()
	if res.Pass {
		fmt.Fprintf(w, "✓ %s\n", res.Name)
		return
	}
	fmt.Fprintf(w, "✗ %s\n", res.Name)
	for _, e := range res.Errors {
		fmt.Fprintf(w, "  %s\n", e)
	}
}

func outputSummary(cmd *cobra.Command, formatter *OutputFormatter, summary RunSummary) error {
	failed := NewExitError(ExitFailure, fmt.Sprintf("%d scenario(s) failed", summary.Failed))
	if formatter.Format == "json" {
		if summary.Failed == 0 {
			return formatter.Success(summary)
		}
		if err := formatter.Error(ErrCodeFailed, failed.Message, summary); err != nil {
			return err
		}
		return failed
	}

	w := cmd.OutOrStdout()
	fmt.Fprintln(w)
	fmt.Fprintf(w, "Summary: %d passed, %d failed, %d total\n", summary.Passed, summary.Failed, summary.Total)
	if summary.Failed > 0 {
		return failed
	}
	fmt.Fprint(w, pterm.Success.Sprintln("All scenarios passed"))
	return nil
}
