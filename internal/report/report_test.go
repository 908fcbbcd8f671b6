package report

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

func TestCompute(t *testing.T) {
	t.Parallel()

	r := Compute(harvest.Counts{
		TotalPoints:           1000,
		UnsearchedPoints:      600,
		TotalPanoramas:        800,
		PanoramasWithMetadata: 200,
	})
	require.Equal(t, int64(400), r.SearchedPoints)
	require.InDelta(t, 0.4, r.SearchProgress, 1e-12)
	require.InDelta(t, 2.0, r.PanoramasPerPoint, 1e-12)
	require.InDelta(t, 0.25, r.MetadataProgress, 1e-12)
	require.InDelta(t, 2000.0, r.ProjectedPanoramas, 1e-9)
}

func TestComputeZeroDenominators(t *testing.T) {
	t.Parallel()

	r := Compute(harvest.Counts{})
	require.Zero(t, r.SearchProgress)
	require.Zero(t, r.PanoramasPerPoint)
	require.Zero(t, r.MetadataProgress)
	require.Zero(t, r.ProjectedPanoramas)

	// Points seeded but none searched yet.
	r = Compute(harvest.Counts{TotalPoints: 10, UnsearchedPoints: 10})
	require.Zero(t, r.PanoramasPerPoint)
	require.Zero(t, r.ProjectedPanoramas)

	r = Report{}.WithZones([]harvest.ZoneCount{{Zone: "Empty"}})
	require.Zero(t, r.Zones[0].Progress)
}

type fakeSource struct {
	counts harvest.Counts
	zones  []harvest.ZoneCount
	err    error
}

func (f fakeSource) Counts(context.Context) (harvest.Counts, error) { return f.counts, f.err }

func (f fakeSource) ZoneCounts(context.Context) ([]harvest.ZoneCount, error) { return f.zones, nil }

func TestBuildAndRender(t *testing.T) {
	t.Parallel()

	now := time.Date(2024, 3, 4, 5, 6, 7, 0, time.UTC)
	src := fakeSource{
		counts: harvest.Counts{TotalPoints: 1234568, UnsearchedPoints: 234568, TotalPanoramas: 2500000, PanoramasWithMetadata: 1250000},
		zones: []harvest.ZoneCount{
			{Zone: "East", Points: 1000000, Searched: 900000},
			{Zone: "West", Points: 234568, Searched: 100000},
		},
	}
	r, err := Build(context.Background(), src, now, true)
	require.NoError(t, err)
	require.Equal(t, now, r.GeneratedAt)
	require.Len(t, r.Zones, 2)
	require.InDelta(t, 0.9, r.Zones[0].Progress, 1e-12)

	var buf bytes.Buffer
	require.NoError(t, Render(&buf, r))
	out := buf.String()
	require.Contains(t, out, "[Point Search Progress]")
	require.Contains(t, out, "Searched Points: 1,000,000/1,234,568")
	require.Contains(t, out, "Total Panoramas: 2,500,000")
	require.Contains(t, out, "Panorama to Point Ratio: 2.50 pano/pt")
	require.Contains(t, out, "Panoramas with Metadata: 1,250,000/2,500,000")
	require.Contains(t, out, "Progress: 50.00%")
	require.Contains(t, out, "Expected Total Panoramas: 3,086,420")
	require.Contains(t, out, "East")
	require.Contains(t, out, "900,000")

	buf.Reset()
	require.NoError(t, RenderJSON(&buf, r))
	var decoded Report
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Equal(t, r.TotalPanoramas, decoded.TotalPanoramas)
	require.Len(t, decoded.Zones, 2)
}

func TestBuildPropagatesErrors(t *testing.T) {
	t.Parallel()

	boom := errors.New("locked")
	_, err := Build(context.Background(), fakeSource{err: boom}, time.Now(), false)
	require.ErrorIs(t, err, boom)
}
