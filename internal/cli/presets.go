package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/eshaffer321/audience-mix/internal/domain/distribution"
)

func newPresetsCommand() *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "presets",
		Short: "List the built-in bucket layouts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if asJSON {
				return PrintJSON(cmd.OutOrStdout(), map[string][]distribution.Bracket{
					"age": distribution.AgeBrackets,
				})
			}

			labels := make(map[string]string, len(distribution.AgeBrackets))
			for _, b := range distribution.AgeBrackets {
				labels[b.Key] = b.Label
			}

			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "age:")
			PrintBucketTable(out, distribution.ZeroSet(distribution.AgeBracketKeys()...), labels)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Print as JSON")
	return cmd
}
