package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/streetview-harvester/internal/geo"
	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/seed"
	"github.com/JakeFAU/streetview-harvester/internal/zones"
)

func newSampleCmd() *cobra.Command {
	var (
		reseed    bool
		zoneNames []string
	)
	cmd := &cobra.Command{
		Use:   "sample",
		Short: "Seed sample points inside zone boundaries",
		Long: `Reads zone boundaries from GeoJSON, lays a regular lattice over each zone and
stores every strictly interior point as an unsearched sample point. Zones that
already have points are skipped unless --reseed is given. A zone with invalid
geometry is skipped and reported; the remaining zones are still sampled.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := appFrom(cmd.Context())
			if err != nil {
				return err
			}
			cfg := a.Config()

			all, err := zones.Load(cfg.Zones.Path, cfg.Zones.NameProperty)
			if err != nil {
				return err
			}
			selected, err := zones.Filter(all, zoneNames)
			if err != nil {
				return err
			}
			reporter, err := a.Reporter(harvest.PassSample)
			if err != nil {
				return err
			}

			seeder := seed.New(a.Store(), seed.Config{
				Sampler: geo.SamplerConfig{
					IntervalMeters:  cfg.Sampler.IntervalMeters,
					MetersPerDegree: cfg.Sampler.MetersPerDegree,
					DedupePrecision: cfg.Sampler.DedupePrecision,
					ChunkSize:       cfg.Sampler.ChunkSize,
					CheckpointEvery: cfg.Sampler.CheckpointEvery,
				},
				Reseed: reseed,
			}, reporter, a.Logger().Named("sample"))

			sum, runErr := seeder.Run(cmd.Context(), selected)
			out := cmd.OutOrStdout()
			for _, z := range sum.Zones {
				if z.Discarded > 0 {
					fmt.Fprintf(out, "%s: discarded %d points from an incomplete run\n", z.Zone, z.Discarded)
				}
				switch {
				case z.Err != nil:
					fmt.Fprintf(out, "%s: failed: %v\n", z.Zone, z.Err)
				case z.Skipped:
					fmt.Fprintf(out, "%s: already seeded, skipped\n", z.Zone)
				default:
					fmt.Fprintf(out, "%s: %d points seeded (%d lattice points checked)\n", z.Zone, z.Seeded, z.Stats.Checked)
				}
			}
			if runErr != nil {
				return fmt.Errorf("%d of %d zones failed: %w", sum.Failed, len(selected), runErr)
			}
			return nil
		},
	}

	cmd.Flags().String("zones", "", "zone boundary GeoJSON (overrides zones.path)")
	cmd.Flags().Float64("interval", 0, "lattice spacing in meters (overrides sampler.interval_meters)")
	cmd.Flags().Int("dedupe-precision", 0, "round points to this many decimals and drop repeats; 0 disables")
	cmd.Flags().BoolVar(&reseed, "reseed", false, "sample zones that already have points")
	cmd.Flags().StringArrayVar(&zoneNames, "zone", nil, "only sample this zone (repeatable)")
	bindFlag(cmd, "zones", "zones.path")
	bindFlag(cmd, "interval", "sampler.interval_meters")
	bindFlag(cmd, "dedupe-precision", "sampler.dedupe_precision")
	return cmd
}
