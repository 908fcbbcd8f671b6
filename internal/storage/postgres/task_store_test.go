package postgres

import (
	"context"
	"errors"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v4"
	"github.com/paulmach/orb"
	"github.com/stretchr/testify/require"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

func newMockStore(t *testing.T) (*TaskStore, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mock.Close)
	store, err := NewTaskStoreWithPool(mock)
	require.NoError(t, err)
	return store, mock
}

func TestNewTaskStoreWithPoolRequiresPool(t *testing.T) {
	t.Parallel()

	_, err := NewTaskStoreWithPool(nil)
	require.Error(t, err)
}

func TestNewTaskStoreRequiresDSN(t *testing.T) {
	t.Parallel()

	_, err := NewTaskStore(context.Background(), Config{})
	require.Error(t, err)
}

func TestEnsureSchema(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sample_coords").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS search_panoramas").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE TABLE IF NOT EXISTS sample_zones").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_sample_coords_searched").WillReturnResult(pgxmock.NewResult("CREATE", 0))
	mock.ExpectExec("CREATE INDEX IF NOT EXISTS idx_sample_coords_label").WillReturnResult(pgxmock.NewResult("CREATE", 0))

	require.NoError(t, store.EnsureSchema(context.Background()))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSeedUsesCopy(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectCopyFrom(pgx.Identifier{"sample_coords"}, []string{"lat", "lon", "label", "searched"}).
		WillReturnResult(2)

	n, err := store.Seed(context.Background(), "East", []orb.Point{{77.6, 12.9}, {77.7, 13.0}})
	require.NoError(t, err)
	require.Equal(t, int64(2), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimUnsearched(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	rows := mock.NewRows([]string{"id", "lat", "lon", "label"}).
		AddRow(int64(1), 12.9, 77.6, "East").
		AddRow(int64(2), 13.0, 77.7, "East")
	mock.ExpectQuery(regexp.QuoteMeta("FROM sample_coords WHERE searched = $1 ORDER BY RANDOM() LIMIT 2")).
		WithArgs(false).
		WillReturnRows(rows)

	points, err := store.ClaimUnsearched(context.Background(), 2)
	require.NoError(t, err)
	require.Equal(t, []harvest.SamplePoint{
		{ID: 1, Lat: 12.9, Lon: 77.6, Zone: "East"},
		{ID: 2, Lat: 13.0, Lon: 77.7, Zone: "East"},
	}, points)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSearchOutcomeCommits(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	date := "2020-05"
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO search_panoramas").
		WithArgs("p1", 12.9, 77.6, &date, (*string)(nil), 90.0, 0.0, 0.0).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("UPDATE sample_coords SET searched").
		WithArgs(true, int64(7)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectCommit()

	err := store.RecordSearchOutcome(context.Background(), 7, []harvest.Panorama{
		{ID: "p1", Lat: 12.9, Lon: 77.6, Date: &date, Heading: 90},
	})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSearchOutcomeRollsBackOnInsertError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO search_panoramas").
		WithArgs(pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(),
			pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg(), pgxmock.AnyArg()).
		WillReturnError(errors.New("disk full"))
	mock.ExpectRollback()

	err := store.RecordSearchOutcome(context.Background(), 7, []harvest.Panorama{{ID: "p1"}})
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordSearchOutcomeUnknownPoint(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("UPDATE sample_coords SET searched").
		WithArgs(true, int64(9)).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectRollback()

	err := store.RecordSearchOutcome(context.Background(), 9, nil)
	require.ErrorIs(t, err, harvest.ErrNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestRecordMetadataOutcomeDateOnly(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE search_panoramas SET date = $1 WHERE pano_id = $2")).
		WithArgs("2020-05", "p1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))

	err := store.RecordMetadataOutcome(context.Background(), "p1", harvest.Metadata{Date: harvest.StringPtr("2020-05")})
	require.NoError(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClaimMissingMetadata(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT pano_id FROM search_panoramas").
		WillReturnRows(mock.NewRows([]string{"pano_id"}).AddRow("p1").AddRow("p2"))

	ids, err := store.ClaimMissingMetadata(context.Background(), 10)
	require.NoError(t, err)
	require.Equal(t, []string{"p1", "p2"}, ids)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountsAndZoneSeeded(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectQuery("SELECT").
		WillReturnRows(mock.NewRows([]string{"a", "b", "c", "d"}).AddRow(int64(10), int64(4), int64(12), int64(3)))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM sample_zones WHERE label = $1")).
		WithArgs("East").
		WillReturnRows(mock.NewRows([]string{"one"}))

	counts, err := store.Counts(context.Background())
	require.NoError(t, err)
	require.Equal(t, harvest.Counts{
		TotalPoints:           10,
		UnsearchedPoints:      4,
		TotalPanoramas:        12,
		PanoramasWithMetadata: 3,
	}, counts)

	seeded, err := store.ZoneSeeded(context.Background(), "East")
	require.NoError(t, err)
	require.False(t, seeded)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkZoneSeededUpserts(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO sample_zones (label,points,completed_at) VALUES ($1,$2,$3) ON CONFLICT (label) DO UPDATE")).
		WithArgs("East", int64(5), pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))

	require.NoError(t, store.MarkZoneSeeded(context.Background(), "East", 5))
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearZone(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sample_coords WHERE label = $1")).
		WithArgs("East").
		WillReturnResult(pgxmock.NewResult("DELETE", 4))
	mock.ExpectExec(regexp.QuoteMeta("DELETE FROM sample_zones WHERE label = $1")).
		WithArgs("East").
		WillReturnResult(pgxmock.NewResult("DELETE", 0))
	mock.ExpectCommit()

	removed, err := store.ClearZone(context.Background(), "East")
	require.NoError(t, err)
	require.Equal(t, int64(4), removed)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestClearZoneRollsBackOnError(t *testing.T) {
	t.Parallel()

	store, mock := newMockStore(t)
	mock.ExpectBegin()
	mock.ExpectExec("DELETE FROM sample_coords").
		WithArgs("East").
		WillReturnError(errors.New("lock timeout"))
	mock.ExpectRollback()

	_, err := store.ClearZone(context.Background(), "East")
	require.Error(t, err)
	require.NoError(t, mock.ExpectationsWereMet())
}
