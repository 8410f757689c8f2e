package cli

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/roach88/swarmsync/internal/command"
	"github.com/roach88/swarmsync/internal/engine"
	"github.com/roach88/swarmsync/internal/identity"
	"github.com/roach88/swarmsync/internal/store"
	"github.com/roach88/swarmsync/internal/worker"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Database string
	Target   string
	Seed     string
	ID       string
	Args     string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <command-kind>",
		Short: "Apply one command to a stored user config",
		Long: `Load a user config from the store (or start an empty one), apply a
single command and store the result.

The account is given by its 32-byte ed25519 seed in hex. The dump id
defaults to <session-id>/<target>.

Examples:
  swarmsync invoke contacts.set --db ./dumps.db --seed $SEED --target contacts \
    --args '{"id":"05...","name":"Bob","approved":true}'
  swarmsync invoke config.push --db ./dumps.db --seed $SEED --target contacts`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeCommand(opts, args[0], cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite database (required)")
	cmd.Flags().StringVar(&opts.Target, "target", "", fmt.Sprintf("config to operate on %v (required)", command.UserTargets))
	cmd.Flags().StringVar(&opts.Seed, "seed", "", "account seed, 64 hex characters (required)")
	cmd.Flags().StringVar(&opts.ID, "id", "", "dump id override")
	cmd.Flags().StringVar(&opts.Args, "args", "{}", "command arguments as JSON")
	_ = cmd.MarkFlagRequired("db")
	_ = cmd.MarkFlagRequired("target")
	_ = cmd.MarkFlagRequired("seed")

	return cmd
}

func invokeCommand(opts *InvokeOptions, kind string, cmd *cobra.Command) error {
	limits, err := opts.limits()
	if err != nil {
		return err
	}
	if !slices.Contains(command.UserTargets, opts.Target) {
		return NewExitError(ExitCommandError, fmt.Sprintf("unknown target %q: must be one of %v", opts.Target, command.UserTargets))
	}
	seed, err := hex.DecodeString(opts.Seed)
	if err != nil || len(seed) != 32 {
		return NewExitError(ExitCommandError, "--seed must be 32 bytes of hex")
	}
	self, err := identity.FromSeed(seed)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid seed", err)
	}
	c, err := command.Parse(kind, []byte(opts.Args))
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid command", err)
	}

	id := opts.ID
	if id == "" {
		id = self.SessionID() + "/" + opts.Target
	}
	logger := opts.logger(cmd)
	defer func() { _ = logger.Sync() }()

	return withStore(opts.Database, func(st *store.Store) error {
		open := func(_ string, dump []byte) (worker.Instance, error) {
			cfg, err := command.OpenConfig(opts.Target, self.Ed25519, dump, limits, engine.WithLogger(logger))
			if err != nil {
				return worker.Instance{}, err
			}
			return worker.Instance{Kind: opts.Target, Target: cfg}, nil
		}
		ctx := commandContext(cmd)
		reg, err := worker.NewRegistry(ctx, st, open, 1, worker.WithLogger(logger))
		if err != nil {
			return WrapExitError(ExitCommandError, "failed to start registry", err)
		}
		res, doErr := reg.Do(ctx, id, c)
		if err := reg.Close(); err != nil && doErr == nil {
			return WrapExitError(ExitCommandError, "failed to save dump", err)
		}

		formatter := opts.formatter(cmd)
		if doErr != nil {
			if err := formatter.Error(errorCode(doErr), doErr.Error(), map[string]string{"id": id, "command": kind}); err != nil {
				return err
			}
			return WrapExitError(ExitFailure, kind+" failed", doErr)
		}
		if opts.Format == "json" {
			return formatter.Success(res)
		}
		return printValue(cmd, res)
	})
}

// errorCode maps the engine error taxonomy to CLI error codes.
func errorCode(err error) string {
	switch {
	case engine.IsInvalidInput(err):
		return ErrCodeInvalidInput
	case engine.IsMisuse(err):
		return ErrCodeMisuse
	case errors.Is(err, store.ErrNotFound):
		return ErrCodeNotFound
	}
	return ErrCodeGeneric
}

func printValue(cmd *cobra.Command, v any) error {
	if v == nil {
		fmt.Fprintln(cmd.OutOrStdout(), "ok")
		return nil
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return errors.Wrap(err, "render result")
	}
	fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return nil
}
