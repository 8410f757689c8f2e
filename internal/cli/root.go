package cli

import (
	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/roach88/swarmsync/internal/logging"
	"github.com/roach88/swarmsync/internal/settings"
)

// RootOptions holds global flags for all commands.
type RootOptions struct {
	Verbose bool
	Format  string // "json" | "text"
	Config  string // limits TOML file; empty means defaults
}

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// NewRootCommand creates the root command for the swarmsync CLI.
func NewRootCommand() *cobra.Command {
	opts := &RootOptions{}

	cmd := &cobra.Command{
		Use:   "swarmsync",
		Short: "swarmsync - replicated config and group state",
		Long: `Drive the swarmsync config engines and group state from the command line.

Scenarios simulate several devices syncing through an in-memory relay.
Dumps persisted in a SQLite store can be listed, removed and mutated with
single commands.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if !isValidFormat(opts.Format) {
				return NewExitError(ExitCommandError,
					errors.Newf("invalid format %q: must be one of %v", opts.Format, ValidFormats).Error())
			}
			return nil
		},
	}

	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", false, "verbose output")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().StringVar(&opts.Config, "config", "", "limits file (TOML)")

	cmd.AddCommand(NewRunCommand(opts))
	cmd.AddCommand(NewValidateCommand(opts))
	cmd.AddCommand(NewTraceCommand(opts))
	cmd.AddCommand(NewInvokeCommand(opts))
	cmd.AddCommand(NewDumpsCommand(opts))
	cmd.AddCommand(NewLimitsCommand(opts))
	cmd.AddCommand(NewBlindCommand(opts))

	return cmd
}

func isValidFormat(format string) bool {
	for _, f := range ValidFormats {
		if f == format {
			return true
		}
	}
	return false
}

// limits returns the defaults overlaid with --config.
func (o *RootOptions) limits() (settings.Limits, error) {
	if o.Config == "" {
		return settings.Default(), nil
	}
	l, err := settings.Load(o.Config)
	if err != nil {
		return l, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return l, nil
}

// logger writes to stderr so JSON output on stdout stays parseable.
func (o *RootOptions) logger(cmd *cobra.Command) *zap.Logger {
	return logging.New(logging.Options{
		Verbose: o.Verbose,
		JSON:    o.Format == "json",
		Writer:  cmd.ErrOrStderr(),
	})
}

func (o *RootOptions) formatter(cmd *cobra.Command) *OutputFormatter {
	return &OutputFormatter{
		Format:    o.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   o.Verbose,
	}
}
