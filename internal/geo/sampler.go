package geo

import (
	"context"
	"fmt"
	"math"

	"github.com/paulmach/orb"
	"go.uber.org/zap"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

// SamplerConfig controls lattice spacing, chunking, and optional dedupe.
//   - IntervalMeters: lattice spacing (default 25).
//   - MetersPerDegree: flat conversion factor to degrees (default 111000).
//   - DedupePrecision: round emitted points to this many decimals and drop
//     repeats within a zone; 0 disables dedupe.
//   - ChunkSize: points handed to emit per call (default 5000).
//   - CheckpointEvery: lattice points between checkpoints (default 100).
type SamplerConfig struct {
	IntervalMeters  float64
	MetersPerDegree float64
	DedupePrecision int
	ChunkSize       int
	CheckpointEvery int
}

const (
	defaultIntervalMeters  = 25
	defaultMetersPerDegree = 111000
	defaultChunkSize       = 5000
	defaultCheckpointEvery = 100
)

func (c SamplerConfig) withDefaults() SamplerConfig {
	if c.IntervalMeters <= 0 {
		c.IntervalMeters = defaultIntervalMeters
	}
	if c.MetersPerDegree <= 0 {
		c.MetersPerDegree = defaultMetersPerDegree
	}
	if c.ChunkSize <= 0 {
		c.ChunkSize = defaultChunkSize
	}
	if c.CheckpointEvery <= 0 {
		c.CheckpointEvery = defaultCheckpointEvery
	}
	if c.DedupePrecision < 0 {
		c.DedupePrecision = 0
	}
	return c
}

// Step returns the lattice spacing in degrees.
func (c SamplerConfig) Step() float64 {
	c = c.withDefaults()
	return c.IntervalMeters / c.MetersPerDegree
}

// Checkpoint reports sampling progress through one polygon of a zone.
type Checkpoint struct {
	Zone      string
	Polygon   int
	Checked   int
	Total     int
	Contained int
}

// Label names the polygon the checkpoint refers to.
func (c Checkpoint) Label() string {
	return fmt.Sprintf("%s - polygon %d", c.Zone, c.Polygon)
}

// SampleStats summarises one SampleZone call.
type SampleStats struct {
	Polygons   int
	Checked    int
	Contained  int
	Emitted    int
	Duplicates int
}

// Sampler turns zones into streams of interior lattice points.
type Sampler struct {
	cfg          SamplerConfig
	logger       *zap.Logger
	onCheckpoint func(Checkpoint)
}

// NewSampler constructs a Sampler. onCheckpoint may be nil.
func NewSampler(cfg SamplerConfig, logger *zap.Logger, onCheckpoint func(Checkpoint)) *Sampler {
	if logger == nil {
		logger = zap.NewNop()
	}
	if onCheckpoint == nil {
		onCheckpoint = func(Checkpoint) {}
	}
	return &Sampler{cfg: cfg.withDefaults(), logger: logger, onCheckpoint: onCheckpoint}
}

// SampleZone streams the zone's interior lattice points to emit in chunks.
// Every polygon is prepared before any point is emitted, so an invalid part
// fails the whole zone without partial output.
func (s *Sampler) SampleZone(
	ctx context.Context,
	zone harvest.Zone,
	emit func([]orb.Point) error,
) (SampleStats, error) {
	var stats SampleStats
	if len(zone.Geometry) == 0 {
		return stats, fmt.Errorf("zone %q: %w: no polygons", zone.Name, ErrInvalidGeometry)
	}
	prepared := make([]*Prepared, 0, len(zone.Geometry))
	for i, poly := range zone.Geometry {
		p, err := Prepare(poly)
		if err != nil {
			return stats, fmt.Errorf("zone %q polygon %d: %w", zone.Name, i, err)
		}
		prepared = append(prepared, p)
	}

	step := s.cfg.Step()
	var seen map[orb.Point]struct{}
	if s.cfg.DedupePrecision > 0 {
		seen = make(map[orb.Point]struct{})
	}
	admit := func(pt orb.Point) (orb.Point, bool) {
		if seen == nil {
			return pt, true
		}
		pt = roundPoint(pt, s.cfg.DedupePrecision)
		if _, dup := seen[pt]; dup {
			stats.Duplicates++
			return pt, false
		}
		seen[pt] = struct{}{}
		return pt, true
	}
	chunk := make([]orb.Point, 0, s.cfg.ChunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		if err := emit(chunk); err != nil {
			return fmt.Errorf("zone %q: emit points: %w", zone.Name, err)
		}
		stats.Emitted += len(chunk)
		chunk = make([]orb.Point, 0, s.cfg.ChunkSize)
		return nil
	}

	for i, p := range prepared {
		stats.Polygons++
		cp := Checkpoint{Zone: zone.Name, Polygon: i, Total: LatticeSize(p.Bound(), step)}
		s.logger.Debug("sampling polygon",
			zap.String("zone", zone.Name),
			zap.Int("polygon", i),
			zap.Int("lattice_points", cp.Total),
		)
		for pt := range Lattice(p.Bound(), step) {
			cp.Checked++
			stats.Checked++
			if p.Contains(pt) {
				if kept, ok := admit(pt); ok {
					cp.Contained++
					stats.Contained++
					chunk = append(chunk, kept)
					if len(chunk) >= s.cfg.ChunkSize {
						if err := flush(); err != nil {
							return stats, err
						}
					}
				}
			}
			if cp.Checked%s.cfg.CheckpointEvery == 0 {
				if err := ctx.Err(); err != nil {
					return stats, fmt.Errorf("zone %q: %w", zone.Name, err)
				}
				s.onCheckpoint(cp)
			}
		}
		s.onCheckpoint(cp)
	}
	if err := flush(); err != nil {
		return stats, err
	}
	return stats, nil
}

func roundPoint(pt orb.Point, precision int) orb.Point {
	scale := math.Pow(10, float64(precision))
	return orb.Point{math.Round(pt[0]*scale) / scale, math.Round(pt[1]*scale) / scale}
}
