package main

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/topper-enrich/internal/enrich"
	"github.com/sells-group/topper-enrich/internal/generate"
	"github.com/sells-group/topper-enrich/internal/research"
)

var (
	enrichLimit       int
	enrichConcurrency int
	enrichDryRun      bool
)

var enrichCmd = &cobra.Command{
	Use:   "enrich",
	Short: "Enrich pending toppers",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if cmd.Flags().Changed("limit") {
			cfg.Batch.Limit = enrichLimit
		}
		if cmd.Flags().Changed("concurrency") {
			cfg.Batch.Concurrency = enrichConcurrency
		}
		if err := cfg.Validate(); err != nil {
			return err
		}

		st, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		searcher, err := research.NewSearcher(cfg.Search)
		if err != nil {
			return eris.Wrap(err, "init search provider")
		}
		provider, err := generate.NewProvider(ctx, cfg.Generation)
		if err != nil {
			return eris.Wrap(err, "init generation provider")
		}

		enricher := enrich.NewEnricher(
			research.NewCollector(searcher, cfg.Search),
			generate.New(provider, cfg.Generation),
			enrich.NewUpdater(st),
			enrichDryRun,
		)

		sum, err := enrich.NewBatch(st, enricher, cfg.Batch.Limit, cfg.Batch.Concurrency).Run(ctx)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(),
			"run %s: selected=%d succeeded=%d failed=%d errored=%d skipped=%d\n",
			sum.RunID, sum.Selected, sum.Succeeded, sum.Failed, sum.Errored, sum.Skipped,
		)
		if ctx.Err() != nil {
			zap.L().Warn("enrich: interrupted, unstarted toppers remain pending")
		}
		return nil
	},
}

func init() {
	enrichCmd.Flags().IntVar(&enrichLimit, "limit", 50, "max number of pending toppers to process (0 = all)")
	enrichCmd.Flags().IntVar(&enrichConcurrency, "concurrency", 1, "number of toppers processed in parallel")
	enrichCmd.Flags().BoolVar(&enrichDryRun, "dry-run", false, "research and compile prompts without generating or writing")
	rootCmd.AddCommand(enrichCmd)
}
