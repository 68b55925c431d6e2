package main

import (
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var resetErrorsOnly bool

var resetCmd = &cobra.Command{
	Use:   "reset",
	Short: "Clear enrichment state so toppers are picked up again",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		n, err := st.ResetEnrichment(ctx, resetErrorsOnly)
		if err != nil {
			return eris.Wrap(err, "reset")
		}

		zap.L().Info("reset complete",
			zap.Int64("toppers", n),
			zap.Bool("errors_only", resetErrorsOnly),
		)
		return nil
	},
}

func init() {
	resetCmd.Flags().BoolVar(&resetErrorsOnly, "errors-only", false, "only reset toppers whose last attempt failed")
	rootCmd.AddCommand(resetCmd)
}
