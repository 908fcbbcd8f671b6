package geo

import (
	"context"
	"errors"
	"math"
	"slices"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

func square(minX, minY, maxX, maxY float64) orb.Ring {
	return orb.Ring{{minX, minY}, {maxX, minY}, {maxX, maxY}, {minX, maxY}, {minX, minY}}
}

func unitSampler(cfg SamplerConfig, onCheckpoint func(Checkpoint)) *Sampler {
	cfg.IntervalMeters = 0.25
	cfg.MetersPerDegree = 1
	return NewSampler(cfg, nil, onCheckpoint)
}

func collect(t *testing.T, s *Sampler, zone harvest.Zone) ([]orb.Point, SampleStats, int) {
	t.Helper()
	var (
		points []orb.Point
		calls  int
	)
	stats, err := s.SampleZone(context.Background(), zone, func(chunk []orb.Point) error {
		calls++
		points = append(points, chunk...)
		return nil
	})
	require.NoError(t, err)
	return points, stats, calls
}

func TestLatticeIsHalfOpen(t *testing.T) {
	t.Parallel()

	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 0.5}}
	pts := slices.Collect(Lattice(b, 0.25))
	require.Len(t, pts, 8)
	require.Equal(t, 8, LatticeSize(b, 0.25))
	for _, p := range pts {
		require.Less(t, p[0], 1.0)
		require.Less(t, p[1], 0.5)
	}
	require.Equal(t, orb.Point{0, 0}, pts[0])
	require.Equal(t, orb.Point{0, 0.25}, pts[1])
}

func TestLatticeDegenerateInputs(t *testing.T) {
	t.Parallel()

	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 1}}
	require.Empty(t, slices.Collect(Lattice(b, 0)))
	require.Empty(t, slices.Collect(Lattice(b, -1)))
	flat := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{1, 0}}
	require.Equal(t, 0, LatticeSize(flat, 0.1))
}

func TestLatticeStopsEarly(t *testing.T) {
	t.Parallel()

	b := orb.Bound{Min: orb.Point{0, 0}, Max: orb.Point{10, 10}}
	n := 0
	for range Lattice(b, 0.001) {
		n++
		if n == 3 {
			break
		}
	}
	require.Equal(t, 3, n)
}

func TestPreparedContainsExcludesBoundary(t *testing.T) {
	t.Parallel()

	p, err := Prepare(orb.Polygon{square(0, 0, 1, 1)})
	require.NoError(t, err)

	cases := []struct {
		name string
		pt   orb.Point
		want bool
	}{
		{"center", orb.Point{0.5, 0.5}, true},
		{"near corner", orb.Point{0.001, 0.001}, true},
		{"left edge", orb.Point{0, 0.5}, false},
		{"top edge", orb.Point{0.5, 1}, false},
		{"corner", orb.Point{0, 0}, false},
		{"outside", orb.Point{1.5, 0.5}, false},
		{"below", orb.Point{0.5, -0.1}, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			require.Equal(t, tc.want, p.Contains(tc.pt))
		})
	}
}

func TestPreparedContainsRespectsHoles(t *testing.T) {
	t.Parallel()

	p, err := Prepare(orb.Polygon{square(0, 0, 4, 4), square(1, 1, 3, 3)})
	require.NoError(t, err)

	require.True(t, p.Contains(orb.Point{0.5, 0.5}))
	require.False(t, p.Contains(orb.Point{2, 2}))
	require.False(t, p.Contains(orb.Point{1, 2}), "hole boundary is outside")
	require.True(t, p.Contains(orb.Point{3.5, 2}))
}

func TestPreparedContainsConcave(t *testing.T) {
	t.Parallel()

	// U shape open to the top.
	ring := orb.Ring{{0, 0}, {3, 0}, {3, 3}, {2, 3}, {2, 1}, {1, 1}, {1, 3}, {0, 3}, {0, 0}}
	p, err := Prepare(orb.Polygon{ring})
	require.NoError(t, err)

	require.True(t, p.Contains(orb.Point{0.5, 2}))
	require.True(t, p.Contains(orb.Point{2.5, 2}))
	require.False(t, p.Contains(orb.Point{1.5, 2}))
	require.True(t, p.Contains(orb.Point{1.5, 0.5}))
}

func TestValidateRejectsMalformedRings(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		poly orb.Polygon
	}{
		{"empty", orb.Polygon{}},
		{"too few points", orb.Polygon{{{0, 0}, {1, 0}, {0, 0}}}},
		{"open ring", orb.Polygon{{{0, 0}, {1, 0}, {1, 1}, {0, 1}}}},
		{"nan", orb.Polygon{{{0, 0}, {math.NaN(), 0}, {1, 1}, {0, 0}}}},
		{"collinear", orb.Polygon{{{0, 0}, {1, 0}, {2, 0}, {0, 0}}}},
		{"bowtie", orb.Polygon{{{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0}}}},
		{"hole crosses shell", orb.Polygon{square(0, 0, 2, 2), square(1, 1, 3, 3)}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			err := Validate(tc.poly)
			require.Error(t, err)
			require.True(t, errors.Is(err, ErrInvalidGeometry))
		})
	}
}

func TestValidateAcceptsRepeatedVerticesAndTouchingHole(t *testing.T) {
	t.Parallel()

	repeated := orb.Ring{{0, 0}, {1, 0}, {1, 0}, {1, 1}, {0, 1}, {0, 0}}
	require.NoError(t, Validate(orb.Polygon{repeated}))

	// Hole touching the shell at a single vertex.
	hole := orb.Ring{{0, 1}, {1, 0.5}, {1, 1.5}, {0, 1}}
	require.NoError(t, Validate(orb.Polygon{square(0, 0, 2, 2), hole}))
}

func TestSampleZoneSquare(t *testing.T) {
	t.Parallel()

	s := unitSampler(SamplerConfig{}, nil)
	zone := harvest.Zone{Name: "square", Geometry: orb.MultiPolygon{{square(0, 0, 1, 1)}}}
	points, stats, _ := collect(t, s, zone)

	require.Len(t, points, 9)
	require.Equal(t, 16, stats.Checked)
	require.Equal(t, 9, stats.Emitted)
	for _, p := range points {
		require.Greater(t, p[0], 0.0)
		require.Less(t, p[0], 1.0)
		require.Greater(t, p[1], 0.0)
		require.Less(t, p[1], 1.0)
	}
}

func TestSampleZoneChunksAndCheckpoints(t *testing.T) {
	t.Parallel()

	var checkpoints []Checkpoint
	s := unitSampler(SamplerConfig{ChunkSize: 2, CheckpointEvery: 4}, func(cp Checkpoint) {
		checkpoints = append(checkpoints, cp)
	})
	zone := harvest.Zone{Name: "square", Geometry: orb.MultiPolygon{{square(0, 0, 1, 1)}}}
	points, _, calls := collect(t, s, zone)

	require.Len(t, points, 9)
	require.Equal(t, 5, calls)
	require.Len(t, checkpoints, 5)
	last := checkpoints[len(checkpoints)-1]
	require.Equal(t, 16, last.Checked)
	require.Equal(t, 16, last.Total)
	require.Equal(t, 9, last.Contained)
	require.Equal(t, "square - polygon 0", last.Label())
}

func TestSampleZoneDedupe(t *testing.T) {
	t.Parallel()

	zone := harvest.Zone{
		Name:     "overlap",
		Geometry: orb.MultiPolygon{{square(0, 0, 1, 1)}, {square(0, 0, 1, 1)}},
	}

	points, stats, _ := collect(t, unitSampler(SamplerConfig{}, nil), zone)
	require.Len(t, points, 18)
	require.Zero(t, stats.Duplicates)

	points, stats, _ = collect(t, unitSampler(SamplerConfig{DedupePrecision: 6}, nil), zone)
	require.Len(t, points, 9)
	require.Equal(t, 9, stats.Duplicates)
}

func TestSampleZoneInvalidPolygonEmitsNothing(t *testing.T) {
	t.Parallel()

	zone := harvest.Zone{
		Name: "broken",
		Geometry: orb.MultiPolygon{
			{square(0, 0, 1, 1)},
			{{{0, 0}, {1, 1}, {1, 0}, {0, 1}, {0, 0}}},
		},
	}
	called := false
	_, err := unitSampler(SamplerConfig{}, nil).SampleZone(context.Background(), zone, func([]orb.Point) error {
		called = true
		return nil
	})
	require.ErrorIs(t, err, ErrInvalidGeometry)
	require.False(t, called)
}

func TestSampleZoneStopsOnCancel(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	zone := harvest.Zone{Name: "square", Geometry: orb.MultiPolygon{{square(0, 0, 1, 1)}}}
	_, err := unitSampler(SamplerConfig{CheckpointEvery: 1}, nil).SampleZone(ctx, zone, func([]orb.Point) error {
		return nil
	})
	require.ErrorIs(t, err, context.Canceled)
}

func TestSampleZonePropagatesEmitError(t *testing.T) {
	t.Parallel()

	boom := errors.New("disk full")
	zone := harvest.Zone{Name: "square", Geometry: orb.MultiPolygon{{square(0, 0, 1, 1)}}}
	_, err := unitSampler(SamplerConfig{}, nil).SampleZone(context.Background(), zone, func([]orb.Point) error {
		return boom
	})
	require.ErrorIs(t, err, boom)
}
