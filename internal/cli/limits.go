package cli

import (
	"reflect"
	"strconv"

	"github.com/spf13/cobra"
)

// NewLimitsCommand creates the limits command.
func NewLimitsCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "limits",
		Short: "Print the effective limits",
		Long: `Print the limits every engine is built with: the defaults, overlaid
with --config when given.`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			l, err := rootOpts.limits()
			if err != nil {
				return err
			}
			// Rows follow the toml keys so the table doubles as a config template.
			v := reflect.ValueOf(l)
			t := v.Type()
			out := make(map[string]int, t.NumField())
			rows := make([][]string, 0, t.NumField())
			for i := 0; i < t.NumField(); i++ {
				key := t.Field(i).Tag.Get("toml")
				n := int(v.Field(i).Int())
				out[key] = n
				rows = append(rows, []string{key, strconv.Itoa(n)})
			}
			return rootOpts.formatter(cmd).Table(out, []string{"LIMIT", "VALUE"}, rows)
		},
	}
}
