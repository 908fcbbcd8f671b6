package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/streetview-harvester/internal/dispatcher"
	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/worker"
)

func newEnrichCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "enrich",
		Short: "Fill capture date and copyright on discovered panoramas",
		Long: `Claims random batches of panoramas that lack a capture date or copyright and
fetches their metadata. Only attributes that are still empty are written.
Requires enrich.api_key (or GOOGLE_MAP_API_KEY).`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			fetcher, err := a.MetadataClient()
			if err != nil {
				return err
			}
			cfg := a.Config()
			reporter, err := a.Reporter(harvest.PassEnrich)
			if err != nil {
				return err
			}

			w := worker.NewMetadataWorker(a.Store(), fetcher)
			d := dispatcher.New[string](dispatcher.Config{
				Pass:            harvest.PassEnrich,
				BatchSize:       cfg.Enrich.BatchSize,
				Workers:         cfg.Enrich.Workers,
				IdlePoll:        cfg.Enrich.IdlePoll,
				ExitWhenDrained: once,
			}, a.Store().ClaimMissingMetadata, w, reporter, a.Logger().Named("enrich"))

			return withServer(cmd.Context(), a, func(ctx context.Context) error {
				sum, err := d.Run(ctx)
				printSummary(cmd, sum)
				return err
			})
		},
	}

	cmd.Flags().Int("batch-size", 0, "panoramas claimed per batch (overrides enrich.batch_size)")
	cmd.Flags().Int("workers", 0, "concurrent lookups (overrides enrich.workers)")
	cmd.Flags().BoolVar(&once, "once", false, "exit once no panorama missing metadata makes progress")
	bindFlag(cmd, "batch-size", "enrich.batch_size")
	bindFlag(cmd, "workers", "enrich.workers")
	return cmd
}
