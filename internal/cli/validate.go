package cli

import (
	"fmt"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
)

// ValidationIssue is one file that failed to load.
type ValidationIssue struct {
	File    string `json:"file,omitempty"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Scenarios []string          `json:"scenarios"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	var filter string
	cmd := &cobra.Command{
		Use:   "validate <scenario-file|dir>",
		Short: "Validate scenarios without running them",
		Long: `Check scenario files against the scenario schema and cross-reference
devices and groups, without simulating anything. Every file is checked;
errors are reported together.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], filter, cmd)
		},
	}
	cmd.Flags().StringVar(&filter, "filter", "", "filter scenarios by glob pattern")
	return cmd
}

func runValidate(opts *RootOptions, path, filter string, cmd *cobra.Command) error {
	formatter := opts.formatter(cmd)
	loaded, errs := LoadScenarios(path, filter, LoadModeCollectAll)

	result := ValidationResult{Scenarios: make([]string, 0, len(loaded))}
	for _, l := range loaded {
		formatter.VerboseLog("valid: %s (%s)", l.Scenario.Name, l.File)
		result.Scenarios = append(result.Scenarios, l.Scenario.Name)
	}
	for _, err := range errs {
		issue := ValidationIssue{Code: ErrCodeGeneric, Message: err.Error()}
		var le *LoadError
		if errors.As(err, &le) {
			issue = ValidationIssue{File: le.File, Code: le.Code, Message: le.Message}
		}
		result.Errors = append(result.Errors, issue)
	}
	result.Valid = len(result.Errors) == 0

	if result.Valid {
		if opts.Format == "json" {
			return formatter.Success(result)
		}
		fmt.Fprintf(cmd.OutOrStdout(), "✓ %d scenario(s) valid\n", len(result.Scenarios))
		return nil
	}

	msg := fmt.Sprintf("%d scenario file(s) invalid", len(result.Errors))
	if opts.Format == "json" {
		if err := formatter.Error(ErrCodeInvalidInput, msg, result); err != nil {
			return err
		}
	} else {
		w := cmd.OutOrStdout()
		for _, e := range result.Errors {
			if e.File != "" {
				fmt.Fprintf(w, "✗ %s\n  %s\n", e.File, e.Message)
			} else {
				fmt.Fprintf(w, "✗ %s\n", e.Message)
			}
		}
	}
	return NewExitError(ExitFailure, msg)
}
