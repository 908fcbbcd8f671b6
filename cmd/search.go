package cmd

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/streetview-harvester/internal/api"
	"github.com/JakeFAU/streetview-harvester/internal/app"
	"github.com/JakeFAU/streetview-harvester/internal/dispatcher"
	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/worker"
)

func newSearchCmd() *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "search",
		Short: "Search unsearched sample points for nearby panoramas",
		Long: `Claims random batches of unsearched sample points and looks each one up with
a bounded pool of workers. Discovered panoramas are stored once and the point
is marked searched in the same transaction. Failed lookups leave the point
unsearched for a later batch. Without --once the pass keeps polling for new
points until interrupted.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config()
			if cmd.Flags().Changed("keep-empty-unsearched") {
				keep, _ := cmd.Flags().GetBool("keep-empty-unsearched")
				cfg.Search.CountEmptyAsSearched = !keep
			}
			reporter, err := a.Reporter(harvest.PassSearch)
			if err != nil {
				return err
			}

			w := worker.NewSearchWorker(a.Store(), a.SearchClient(), worker.SearchConfig{
				CountEmptyAsSearched: cfg.Search.CountEmptyAsSearched,
			})
			d := dispatcher.New[harvest.SamplePoint](dispatcher.Config{
				Pass:            harvest.PassSearch,
				BatchSize:       cfg.Search.BatchSize,
				Workers:         cfg.Search.Workers,
				IdlePoll:        cfg.Search.IdlePoll,
				ExitWhenDrained: once,
			}, a.Store().ClaimUnsearched, w, reporter, a.Logger().Named("search"))

			return withServer(cmd.Context(), a, func(ctx context.Context) error {
				sum, err := d.Run(ctx)
				printSummary(cmd, sum)
				return err
			})
		},
	}

	cmd.Flags().Int("batch-size", 0, "points claimed per batch (overrides search.batch_size)")
	cmd.Flags().Int("workers", 0, "concurrent lookups (overrides search.workers)")
	cmd.Flags().BoolVar(&once, "once", false, "exit once no unsearched point makes progress")
	cmd.Flags().Bool("keep-empty-unsearched", false, "leave points with no panoramas unsearched")
	bindFlag(cmd, "batch-size", "search.batch_size")
	bindFlag(cmd, "workers", "search.workers")
	return cmd
}

// withServer runs fn, serving the HTTP API alongside it when server.enabled.
func withServer(ctx context.Context, a *app.App, fn func(context.Context) error) error {
	cfg := a.Config()
	if !cfg.Server.Enabled {
		return fn(ctx)
	}
	srvCtx, stop := context.WithCancel(ctx)
	defer stop()
	srv := api.NewServer(a.Store(), a.Clock(), a.Logger().Named("api"))
	srvErr := make(chan error, 1)
	go func() {
		err := srv.ListenAndServe(srvCtx, cfg.Server.Port)
		if err != nil {
			a.Logger().Error("api server failed", zap.Error(err))
		}
		srvErr <- err
	}()

	err := fn(ctx)
	stop()
	return errors.Join(err, <-srvErr)
}

func printSummary(cmd *cobra.Command, sum dispatcher.Summary) {
	out := cmd.OutOrStdout()
	p := newPrinter()
	p.Fprintf(out, "%d units in %d batches, %d panoramas found, %v elapsed\n",
		sum.Units, sum.Batches, sum.Found, sum.Duration.Round(time.Millisecond))
	for _, o := range []harvest.Outcome{
		harvest.OutcomeFound,
		harvest.OutcomeEmpty,
		harvest.OutcomeEmptyRetry,
		harvest.OutcomeEnriched,
		harvest.OutcomePartial,
		harvest.OutcomeNoMetadata,
		harvest.OutcomeError,
	} {
		if n := sum.Outcomes[o]; n > 0 {
			p.Fprintf(out, "  %-12s %d\n", o, n)
		}
	}
}
