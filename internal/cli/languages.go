package cli

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var languagesCmd = &cobra.Command{
	Use:   "languages",
	Short: "List the languages the run service supports",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		langs, err := newClient().Languages(cmd.Context())
		if err != nil {
			return fmt.Errorf("listing languages: %w", err)
		}

		w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		for _, l := range langs {
			fmt.Fprintf(w, "%s\t%s\n", l.ID, l.Version)
		}
		return w.Flush()
	},
}
