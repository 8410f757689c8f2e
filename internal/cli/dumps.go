package cli

import (
	"fmt"
	"strconv"
	"time"

	"github.com/spf13/cobra"

	"github.com/roach88/swarmsync/internal/store"
)

// DumpRow is one stored dump as shown by dumps list.
type DumpRow struct {
	ID        string `json:"id"`
	Kind      string `json:"kind"`
	Size      int64  `json:"size"`
	Revision  int64  `json:"revision"`
	UpdatedAt string `json:"updated_at"`
}

// NewDumpsCommand creates the dumps command group.
func NewDumpsCommand(rootOpts *RootOptions) *cobra.Command {
	var db string
	cmd := &cobra.Command{
		Use:   "dumps",
		Short: "Inspect persisted instance dumps",
	}
	cmd.PersistentFlags().StringVar(&db, "db", "", "path to SQLite database (required)")

	var kind string
	list := &cobra.Command{
		Use:   "list",
		Short: "List stored dumps",
		Long: `List the dumps in a store, ordered by kind then id.

Examples:
  swarmsync dumps list --db ./dumps.db
  swarmsync dumps list --db ./dumps.db --kind contacts --format json`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(db, func(st *store.Store) error {
				return listDumps(rootOpts, st, kind, cmd)
			})
		},
	}
	list.Flags().StringVar(&kind, "kind", "", "only list dumps of this kind")

	del := &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a stored dump",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withStore(db, func(st *store.Store) error {
				return deleteDump(rootOpts, st, args[0], cmd)
			})
		},
	}

	cmd.AddCommand(list, del)
	return cmd
}

// withStore opens the database at path for the duration of fn.
func withStore(path string, fn func(*store.Store) error) error {
	if path == "" {
		return NewExitError(ExitCommandError, "--db is required")
	}
	st, err := store.Open(path)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open database", err)
	}
	err = fn(st)
	if closeErr := st.Close(); err == nil && closeErr != nil {
		err = WrapExitError(ExitCommandError, "failed to close database", closeErr)
	}
	return err
}

func listDumps(opts *RootOptions, st *store.Store, kind string, cmd *cobra.Command) error {
	infos, err := st.ListDumps(commandContext(cmd), kind)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to list dumps", err)
	}
	out := make([]DumpRow, len(infos))
	rows := make([][]string, len(infos))
	for i, d := range infos {
		out[i] = DumpRow{
			ID:        d.ID,
			Kind:      d.Kind,
			Size:      d.Size,
			Revision:  d.Revision,
			UpdatedAt: d.UpdatedAt.UTC().Format(time.RFC3339),
		}
		rows[i] = []string{d.ID, d.Kind, strconv.FormatInt(d.Size, 10), strconv.FormatInt(d.Revision, 10), out[i].UpdatedAt}
	}
	return opts.formatter(cmd).Table(out, []string{"ID", "KIND", "SIZE", "REVISION", "UPDATED"}, rows)
}

func deleteDump(opts *RootOptions, st *store.Store, id string, cmd *cobra.Command) error {
	ok, err := st.DeleteDump(commandContext(cmd), id)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to delete dump", err)
	}
	formatter := opts.formatter(cmd)
	if !ok {
		msg := fmt.Sprintf("no dump with id %q", id)
		if err := formatter.Error(ErrCodeNotFound, msg, nil); err != nil {
			return err
		}
		return NewExitError(ExitFailure, msg)
	}
	if opts.Format == "json" {
		return formatter.Success(map[string]string{"deleted": id})
	}
	fmt.Fprintf(cmd.OutOrStdout(), "deleted %s\n", id)
	return nil
}
