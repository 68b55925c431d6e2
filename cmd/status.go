package main

import (
	"fmt"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show enrichment progress",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		stats, err := st.Stats(ctx)
		if err != nil {
			return eris.Wrap(err, "status")
		}

		out := cmd.OutOrStdout()
		fmt.Fprintf(out, "total:       %d\n", stats.Total)
		fmt.Fprintf(out, "enriched:    %d\n", stats.Enriched)
		fmt.Fprintf(out, "failed:      %d\n", stats.Failed)
		fmt.Fprintf(out, "never tried: %d\n", stats.NeverTried)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
