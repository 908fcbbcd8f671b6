package sqlq

import (
	"testing"

	sq "github.com/Masterminds/squirrel"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

func TestClaimUnsearched(t *testing.T) {
	t.Parallel()

	query, args, err := New(sq.Question).ClaimUnsearched(25).ToSql()
	require.NoError(t, err)
	require.Equal(t,
		"SELECT id, lat, lon, COALESCE(label, '') FROM sample_coords WHERE searched = ? ORDER BY RANDOM() LIMIT 25",
		query)
	require.Equal(t, []any{false}, args)
}

func TestSeedPointsOrdersLatLon(t *testing.T) {
	t.Parallel()

	query, args, err := New(sq.Dollar).SeedPoints("East", []orb.Point{{77.6, 12.9}, {77.7, 13.0}}).ToSql()
	require.NoError(t, err)
	require.Contains(t, query, "INSERT INTO sample_coords")
	require.Contains(t, query, "$8")
	require.Equal(t, []any{12.9, 77.6, "East", false, 13.0, 77.7, "East", false}, args)
}

func TestInsertPanoramaIgnoresConflicts(t *testing.T) {
	t.Parallel()

	p := harvest.Panorama{ID: "p1", Lat: 1, Lon: 2, Date: harvest.StringPtr("2020-05"), Heading: 90}
	query, args, err := New(sq.Question).InsertPanorama(p).ToSql()
	require.NoError(t, err)
	require.Contains(t, query, "INSERT INTO search_panoramas")
	require.Contains(t, query, "ON CONFLICT (pano_id) DO NOTHING")
	require.Len(t, args, 8)
	require.Equal(t, "p1", args[0])
	require.Equal(t, "2020-05", *(args[3].(*string)))
	require.Nil(t, args[4])
}

func TestSetMetadataOnlySetsPresentValues(t *testing.T) {
	t.Parallel()

	b := New(sq.Dollar)

	_, ok := b.SetMetadata("p1", harvest.Metadata{})
	require.False(t, ok)

	q, ok := b.SetMetadata("p1", harvest.Metadata{Date: harvest.StringPtr("2020-05")})
	require.True(t, ok)
	query, args, err := q.ToSql()
	require.NoError(t, err)
	require.Equal(t, "UPDATE search_panoramas SET date = $1 WHERE pano_id = $2", query)
	require.NotContains(t, query, "copyright")
	require.Equal(t, []any{"2020-05", "p1"}, args)

	q, ok = b.SetMetadata("p1", harvest.Metadata{
		Date:      harvest.StringPtr("2020-05"),
		Copyright: harvest.StringPtr("© Google"),
	})
	require.True(t, ok)
	_, args, err = q.ToSql()
	require.NoError(t, err)
	require.Equal(t, []any{"2020-05", "© Google", "p1"}, args)
}

func TestCountsAndZoneCounts(t *testing.T) {
	t.Parallel()

	b := New(sq.Question)
	query, args, err := b.Counts().ToSql()
	require.NoError(t, err)
	require.Empty(t, args)
	require.Contains(t, query, "FROM sample_coords WHERE searched = FALSE")

	query, _, err = b.ZoneCounts().ToSql()
	require.NoError(t, err)
	require.Contains(t, query, "GROUP BY COALESCE(label, '')")
}
