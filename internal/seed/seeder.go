// Package seed runs the sampling pass: it turns zone boundaries into
// unsearched sample points in the task store.
package seed

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/JakeFAU/streetview-harvester/internal/geo"
	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/metrics"
	"github.com/JakeFAU/streetview-harvester/internal/progress"
)

// Store is the slice of harvest.TaskStore the seeder writes to.
type Store interface {
	ZoneSeeded(ctx context.Context, zone string) (bool, error)
	Seed(ctx context.Context, zone string, points []orb.Point) (int64, error)
	MarkZoneSeeded(ctx context.Context, zone string, points int64) error
	ClearZone(ctx context.Context, zone string) (int64, error)
}

// Config controls one sampling run.
type Config struct {
	Sampler geo.SamplerConfig
	// Reseed samples zones that already completed. Their points are kept,
	// so a reseed appends a second lattice.
	Reseed bool
}

// ZoneResult records what happened to one zone. Discarded counts points left
// by an earlier run of the zone that never completed.
type ZoneResult struct {
	Zone      string
	Skipped   bool
	Discarded int64
	Seeded    int64
	Stats     geo.SampleStats
	Err       error
}

// Summary totals a Run.
type Summary struct {
	Zones    []ZoneResult
	Seeded   int64
	Failed   int
	Duration time.Duration
}

// Seeder samples zones and seeds the resulting points.
type Seeder struct {
	store    Store
	cfg      Config
	sampler  *geo.Sampler
	reporter *progress.Reporter
	logger   *zap.Logger
}

// New builds a Seeder. reporter and logger may be nil.
func New(store Store, cfg Config, reporter *progress.Reporter, logger *zap.Logger) *Seeder {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Seeder{store: store, cfg: cfg, reporter: reporter, logger: logger}
	s.sampler = geo.NewSampler(cfg.Sampler, logger, s.checkpoint)
	return s
}

func (s *Seeder) checkpoint(cp geo.Checkpoint) {
	s.reporter.Emit(progress.Event{
		Stage:   progress.StageSampleCheckpoint,
		Zone:    cp.Zone,
		Label:   cp.Label(),
		Checked: int64(cp.Checked),
		Total:   int64(cp.Total),
		Found:   int64(cp.Contained),
	})
}

// Run samples every zone in order. A zone that fails does not stop the
// others; the returned error joins every zone failure. Cancellation stops the
// run and is reported as an error because the current zone may be partially
// seeded.
func (s *Seeder) Run(ctx context.Context, zones []harvest.Zone) (Summary, error) {
	start := time.Now()
	var (
		sum  Summary
		errs []error
	)
	s.reporter.Emit(progress.Event{Stage: progress.StageRunStart, Total: int64(len(zones))})
	s.logger.Info("sampling started",
		zap.Int("zones", len(zones)),
		zap.Float64("interval_meters", s.cfg.Sampler.IntervalMeters),
		zap.Bool("reseed", s.cfg.Reseed),
		zap.Stringer("run_id", s.reporter.RunID()),
	)

	for _, zone := range zones {
		if err := ctx.Err(); err != nil {
			errs = append(errs, fmt.Errorf("sampling interrupted: %w", err))
			break
		}
		res := s.runZone(ctx, zone)
		sum.Zones = append(sum.Zones, res)
		sum.Seeded += res.Seeded
		if res.Err != nil {
			sum.Failed++
			errs = append(errs, res.Err)
		}
	}

	sum.Duration = time.Since(start)
	err := errors.Join(errs...)
	evt := progress.Event{Stage: progress.StageRunDone, Found: sum.Seeded, Total: int64(len(zones)), Dur: sum.Duration}
	if err != nil {
		evt.Stage = progress.StageRunError
		evt.Note = err.Error()
	}
	s.reporter.Emit(evt)
	s.logger.Info("sampling finished",
		zap.Int("zones", len(sum.Zones)),
		zap.Int("failed", sum.Failed),
		zap.Int64("seeded", sum.Seeded),
		zap.Duration("elapsed", sum.Duration),
	)
	return sum, err
}

func (s *Seeder) runZone(ctx context.Context, zone harvest.Zone) ZoneResult {
	res := ZoneResult{Zone: zone.Name}
	log := s.logger.With(zap.String("zone", zone.Name))

	seeded, err := s.store.ZoneSeeded(ctx, zone.Name)
	if err != nil {
		res.Err = fmt.Errorf("zone %q: check seeded: %w", zone.Name, err)
		log.Error("seeded check failed", zap.Error(err))
		return res
	}
	switch {
	case seeded && !s.cfg.Reseed:
		res.Skipped = true
		log.Info("zone already seeded, skipping")
		return res
	case !seeded:
		removed, err := s.store.ClearZone(ctx, zone.Name)
		if err != nil {
			res.Err = fmt.Errorf("zone %q: clear incomplete points: %w", zone.Name, err)
			log.Error("clearing incomplete zone failed", zap.Error(err))
			return res
		}
		if removed > 0 {
			res.Discarded = removed
			log.Warn("discarded points from an incomplete run", zap.Int64("points", removed))
		}
	}

	stats, err := s.sampler.SampleZone(ctx, zone, func(points []orb.Point) error {
		n, err := s.store.Seed(ctx, zone.Name, points)
		if err != nil {
			return err
		}
		res.Seeded += n
		metrics.ObserveSeeded(zone.Name, n)
		return nil
	})
	res.Stats = stats
	if err != nil {
		res.Err = err
		if errors.Is(err, geo.ErrInvalidGeometry) {
			log.Error("invalid zone geometry, skipping", zap.Error(err))
		} else {
			log.Error("sampling zone failed", zap.Int64("seeded", res.Seeded), zap.Error(err))
		}
		return res
	}
	if err := s.store.MarkZoneSeeded(ctx, zone.Name, res.Seeded); err != nil {
		res.Err = fmt.Errorf("zone %q: mark seeded: %w", zone.Name, err)
		log.Error("marking zone seeded failed", zap.Error(err))
		return res
	}
	log.Info("zone seeded",
		zap.Int("polygons", stats.Polygons),
		zap.Int("checked", stats.Checked),
		zap.Int64("seeded", res.Seeded),
		zap.Int("duplicates", stats.Duplicates),
	)
	return res
}
