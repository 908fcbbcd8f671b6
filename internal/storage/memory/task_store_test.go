package memory

import (
	"context"
	"testing"

	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

func TestTaskStoreSearchFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTaskStore()
	n, err := s.Seed(ctx, "East", []orb.Point{{77.6, 12.9}, {77.7, 13.0}})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)

	pts, err := s.ClaimUnsearched(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pts, 2)

	require.NoError(t, s.RecordSearchOutcome(ctx, pts[0].ID, []harvest.Panorama{{ID: "p1", Lat: 1}}))
	require.NoError(t, s.RecordSearchOutcome(ctx, pts[1].ID, []harvest.Panorama{{ID: "p1", Lat: 2}}))
	p, ok := s.Panorama("p1")
	require.True(t, ok)
	require.InDelta(t, 1.0, p.Lat, 1e-9)

	left, err := s.ClaimUnsearched(ctx, 10)
	require.NoError(t, err)
	require.Empty(t, left)

	require.ErrorIs(t, s.RecordSearchOutcome(ctx, 99, nil), harvest.ErrNotFound)
}

func TestTaskStoreMetadataFlow(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTaskStore()
	_, err := s.Seed(ctx, "East", []orb.Point{{77.6, 12.9}})
	require.NoError(t, err)
	pts, err := s.ClaimUnsearched(ctx, 1)
	require.NoError(t, err)
	require.NoError(t, s.RecordSearchOutcome(ctx, pts[0].ID, []harvest.Panorama{{ID: "p1"}}))

	require.NoError(t, s.RecordMetadataOutcome(ctx, "p1", harvest.Metadata{Date: harvest.StringPtr("2020-05")}))
	ids, err := s.ClaimMissingMetadata(ctx, 10)
	require.NoError(t, err)
	require.Equal(t, []string{"p1"}, ids)

	require.NoError(t, s.RecordMetadataOutcome(ctx, "p1", harvest.Metadata{
		Date:      harvest.StringPtr("1999-01"),
		Copyright: harvest.StringPtr("© Google"),
	}))
	p, _ := s.Panorama("p1")
	require.Equal(t, "1999-01", *p.Date)
	require.Equal(t, "© Google", *p.Copyright)

	counts, err := s.Counts(ctx)
	require.NoError(t, err)
	require.Equal(t, harvest.Counts{TotalPoints: 1, TotalPanoramas: 1, PanoramasWithMetadata: 1}, counts)

	zones, err := s.ZoneCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []harvest.ZoneCount{{Zone: "East", Points: 1, Searched: 1}}, zones)
}

func TestTaskStoreZoneMarkers(t *testing.T) {
	t.Parallel()

	ctx := context.Background()
	s := NewTaskStore()
	_, err := s.Seed(ctx, "East", []orb.Point{{77.6, 12.9}, {77.7, 13.0}})
	require.NoError(t, err)
	_, err = s.Seed(ctx, "West", []orb.Point{{77.1, 12.9}})
	require.NoError(t, err)

	seeded, err := s.ZoneSeeded(ctx, "East")
	require.NoError(t, err)
	require.False(t, seeded, "points alone do not mark a zone seeded")

	require.NoError(t, s.MarkZoneSeeded(ctx, "East", 2))
	seeded, err = s.ZoneSeeded(ctx, "East")
	require.NoError(t, err)
	require.True(t, seeded)

	removed, err := s.ClearZone(ctx, "East")
	require.NoError(t, err)
	require.Equal(t, int64(2), removed)
	seeded, err = s.ZoneSeeded(ctx, "East")
	require.NoError(t, err)
	require.False(t, seeded)

	zc, err := s.ZoneCounts(ctx)
	require.NoError(t, err)
	require.Equal(t, []harvest.ZoneCount{{Zone: "West", Points: 1}}, zc)
}
