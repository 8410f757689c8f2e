package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/swarmsync/internal/harness"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Action string // optional filter on command or step name
}

// TraceStats counts trace events by step.
type TraceStats struct {
	TotalEvents int  `json:"total_events"`
	Do          int  `json:"do"`
	Pushes      int  `json:"pushes"`
	Merges      int  `json:"merges"`
	Sends       int  `json:"sends"`
	Pass        bool `json:"pass"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	Scenario string               `json:"scenario"`
	Timeline []harness.TraceEvent `json:"timeline"`
	Stats    TraceStats           `json:"stats"`
	Errors   []string             `json:"errors,omitempty"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace <scenario-file>",
		Short: "Show the event timeline of a scenario",
		Long: `Run a single scenario and print its trace: every command outcome,
push, merge and message send, in order.

Examples:
  swarmsync trace ./scenarios/group-removal.yaml
  swarmsync trace ./scenarios/group-removal.yaml --action merge
  swarmsync trace ./scenarios/group-removal.yaml --format json`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Action, "action", "", "only show events with this command or step")

	return cmd
}

func runTrace(opts *TraceOptions, file string, cmd *cobra.Command) error {
	limits, err := opts.limits()
	if err != nil {
		return err
	}
	sc, err := harness.LoadScenario(file)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load scenario", err)
	}
	logger := opts.logger(cmd)
	defer func() { _ = logger.Sync() }()

	result, err := harness.Run(commandContext(cmd), sc, harness.WithLogger(logger), harness.WithLimits(limits))
	if err != nil {
		return WrapExitError(ExitFailure, "scenario run failed", err)
	}

	out := TraceResult{
		Scenario: sc.Name,
		Timeline: filterTrace(result.Trace, opts.Action),
		Stats:    traceStats(result),
		Errors:   result.Errors,
	}

	formatter := opts.formatter(cmd)
	rows := make([][]string, len(out.Timeline))
	for i, e := range out.Timeline {
		rows[i] = []string{strconv.FormatInt(e.Seq, 10), e.Step, e.Device, e.Target, e.Command, eventDetail(e)}
	}
	if err := formatter.Table(out, []string{"SEQ", "STEP", "DEVICE", "TARGET", "COMMAND", "DETAIL"}, rows); err != nil {
		return err
	}
	if opts.Format != "json" {
		s := out.Stats
		fmt.Fprintf(cmd.OutOrStdout(), "%d events: %d do, %d push, %d merge, %d send\n",
			s.TotalEvents, s.Do, s.Pushes, s.Merges, s.Sends)
		for _, e := range out.Errors {
			fmt.Fprintf(cmd.OutOrStdout(), "✗ %s\n", e)
		}
	}
	return nil
}

func filterTrace(trace []harness.TraceEvent, action string) []harness.TraceEvent {
	if action == "" {
		return trace
	}
	out := make([]harness.TraceEvent, 0, len(trace))
	for _, e := range trace {
		if e.Command == action || e.Step == action {
			out = append(out, e)
		}
	}
	return out
}

func traceStats(r *harness.Result) TraceStats {
	s := TraceStats{TotalEvents: len(r.Trace), Pass: r.Pass}
	for _, e := range r.Trace {
		switch e.Step {
		case harness.StepDo:
			s.Do++
		case harness.StepPush:
			s.Pushes++
		case harness.StepMerge:
			s.Merges++
		case harness.StepSend:
			s.Sends++
		}
	}
	return s
}

// eventDetail is the step-specific part of an event as one short string.
func eventDetail(e harness.TraceEvent) string {
	switch e.Step {
	case harness.StepDo:
		return e.Outcome
	case harness.StepPush:
		if len(e.Parts) > 0 {
			return strings.Join(e.Parts, "+")
		}
		return "seqno " + strconv.FormatInt(e.Seqno, 10)
	case harness.StepMerge:
		return fmt.Sprintf("%d merged", e.Merged)
	case harness.StepSend:
		return "read by " + strings.Join(e.Readers, ",")
	}
	return ""
}
