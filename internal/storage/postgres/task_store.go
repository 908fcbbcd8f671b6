// Package postgres provides a Postgres-backed task store.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/paulmach/orb"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/storage/sqlq"
)

// Config controls the Postgres connection pool.
type Config struct {
	DSN             string
	MaxConns        int32
	MinConns        int32
	MaxConnLifetime time.Duration
}

type pool interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
	Begin(context.Context) (pgx.Tx, error)
	CopyFrom(context.Context, pgx.Identifier, []string, pgx.CopyFromSource) (int64, error)
	Close()
}

// TaskStore is a harvest.TaskStore backed by Postgres.
type TaskStore struct {
	pool pool
	q    sqlq.Builder
}

var _ harvest.TaskStore = (*TaskStore)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sample_coords (
		id BIGSERIAL PRIMARY KEY,
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		label TEXT,
		searched BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS search_panoramas (
		pano_id TEXT PRIMARY KEY,
		lat DOUBLE PRECISION,
		lon DOUBLE PRECISION,
		date TEXT,
		copyright TEXT,
		heading DOUBLE PRECISION,
		pitch DOUBLE PRECISION,
		roll DOUBLE PRECISION
	)`,
	`CREATE TABLE IF NOT EXISTS sample_zones (
		label TEXT PRIMARY KEY,
		points BIGINT NOT NULL DEFAULT 0,
		completed_at TIMESTAMPTZ
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sample_coords_searched ON sample_coords (searched)`,
	`CREATE INDEX IF NOT EXISTS idx_sample_coords_label ON sample_coords (label)`,
}

// NewTaskStore connects to Postgres using cfg and ensures the schema exists.
func NewTaskStore(ctx context.Context, cfg Config) (*TaskStore, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("store.dsn is required")
	}
	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse postgres dsn: %w", err)
	}
	if cfg.MaxConns > 0 {
		poolCfg.MaxConns = cfg.MaxConns
	}
	if cfg.MinConns > 0 {
		poolCfg.MinConns = cfg.MinConns
	}
	if cfg.MaxConnLifetime > 0 {
		poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	}
	p, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	s := &TaskStore{pool: p, q: sqlq.New(sq.Dollar)}
	if err := s.EnsureSchema(ctx); err != nil {
		p.Close()
		return nil, err
	}
	return s, nil
}

// NewTaskStoreWithPool constructs a store from an existing pool (primarily for testing).
func NewTaskStoreWithPool(p pool) (*TaskStore, error) {
	if p == nil {
		return nil, fmt.Errorf("pool is required")
	}
	return &TaskStore{pool: p, q: sqlq.New(sq.Dollar)}, nil
}

// EnsureSchema creates tables and indexes if missing.
func (s *TaskStore) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *TaskStore) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

// Seed bulk loads points with COPY.
func (s *TaskStore) Seed(ctx context.Context, zone string, points []orb.Point) (int64, error) {
	if len(points) == 0 {
		return 0, nil
	}
	n, err := s.pool.CopyFrom(
		ctx,
		pgx.Identifier{sqlq.PointsTable},
		[]string{"lat", "lon", "label", "searched"},
		pgx.CopyFromSlice(len(points), func(i int) ([]any, error) {
			return []any{points[i].Lat(), points[i].Lon(), zone, false}, nil
		}),
	)
	if err != nil {
		return 0, fmt.Errorf("copy points: %w", err)
	}
	return n, nil
}

// ZoneSeeded reports whether zone carries a completion marker.
func (s *TaskStore) ZoneSeeded(ctx context.Context, zone string) (bool, error) {
	query, args, err := s.q.ZoneSeeded(zone).ToSql()
	if err != nil {
		return false, fmt.Errorf("build zone probe: %w", err)
	}
	var one int
	err = s.pool.QueryRow(ctx, query, args...).Scan(&one)
	switch {
	case errors.Is(err, pgx.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("probe zone: %w", err)
	}
	return true, nil
}

// MarkZoneSeeded records that sampling zone completed.
func (s *TaskStore) MarkZoneSeeded(ctx context.Context, zone string, points int64) error {
	query, args, err := s.q.MarkZoneSeeded(zone, points, time.Now()).ToSql()
	if err != nil {
		return fmt.Errorf("build zone marker: %w", err)
	}
	if _, err := s.pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("mark zone %q seeded: %w", zone, err)
	}
	return nil
}

// ClearZone deletes the points and marker of zone.
func (s *TaskStore) ClearZone(ctx context.Context, zone string) (int64, error) {
	delPoints, pointArgs, err := s.q.DeleteZonePoints(zone).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build zone delete: %w", err)
	}
	delMarker, markerArgs, err := s.q.DeleteZoneMarker(zone).ToSql()
	if err != nil {
		return 0, fmt.Errorf("build marker delete: %w", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin clear tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	tag, err := tx.Exec(ctx, delPoints, pointArgs...)
	if err != nil {
		return 0, fmt.Errorf("delete zone points: %w", err)
	}
	if _, err := tx.Exec(ctx, delMarker, markerArgs...); err != nil {
		return 0, fmt.Errorf("delete zone marker: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("commit clear tx: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ClaimUnsearched returns up to limit unsearched points in random order.
func (s *TaskStore) ClaimUnsearched(ctx context.Context, limit int) ([]harvest.SamplePoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	query, args, err := s.q.ClaimUnsearched(limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build claim: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim unsearched: %w", err)
	}
	points, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (harvest.SamplePoint, error) {
		var p harvest.SamplePoint
		err := row.Scan(&p.ID, &p.Lat, &p.Lon, &p.Zone)
		return p, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan points: %w", err)
	}
	return points, nil
}

// RecordSearchOutcome stores panos and marks the point searched atomically.
func (s *TaskStore) RecordSearchOutcome(ctx context.Context, pointID int64, panos []harvest.Panorama) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin search tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, p := range panos {
		query, args, err := s.q.InsertPanorama(p).ToSql()
		if err != nil {
			return fmt.Errorf("build panorama insert: %w", err)
		}
		if _, err := tx.Exec(ctx, query, args...); err != nil {
			return fmt.Errorf("insert panorama %s: %w", p.ID, err)
		}
	}
	query, args, err := s.q.MarkSearched(pointID).ToSql()
	if err != nil {
		return fmt.Errorf("build mark searched: %w", err)
	}
	tag, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("mark searched: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("point %d: %w", pointID, harvest.ErrNotFound)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit search tx: %w", err)
	}
	return nil
}

// ClaimMissingMetadata returns up to limit panorama ids lacking metadata.
func (s *TaskStore) ClaimMissingMetadata(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	query, args, err := s.q.ClaimMissingMetadata(limit).ToSql()
	if err != nil {
		return nil, fmt.Errorf("build metadata claim: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("claim missing metadata: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("scan panorama ids: %w", err)
	}
	return ids, nil
}

// RecordMetadataOutcome writes the attributes present in md.
func (s *TaskStore) RecordMetadataOutcome(ctx context.Context, panoID string, md harvest.Metadata) error {
	update, ok := s.q.SetMetadata(panoID, md)
	if !ok {
		return nil
	}
	query, args, err := update.ToSql()
	if err != nil {
		return fmt.Errorf("build metadata update: %w", err)
	}
	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("panorama %s: %w", panoID, harvest.ErrNotFound)
	}
	return nil
}

// Counts returns the aggregate totals.
func (s *TaskStore) Counts(ctx context.Context) (harvest.Counts, error) {
	query, args, err := s.q.Counts().ToSql()
	if err != nil {
		return harvest.Counts{}, fmt.Errorf("build counts: %w", err)
	}
	var c harvest.Counts
	if err := s.pool.QueryRow(ctx, query, args...).Scan(
		&c.TotalPoints,
		&c.UnsearchedPoints,
		&c.TotalPanoramas,
		&c.PanoramasWithMetadata,
	); err != nil {
		return harvest.Counts{}, fmt.Errorf("count records: %w", err)
	}
	return c, nil
}

// ZoneCounts returns per-zone point totals ordered by zone name.
func (s *TaskStore) ZoneCounts(ctx context.Context) ([]harvest.ZoneCount, error) {
	query, args, err := s.q.ZoneCounts().ToSql()
	if err != nil {
		return nil, fmt.Errorf("build zone counts: %w", err)
	}
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("count zones: %w", err)
	}
	zones, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (harvest.ZoneCount, error) {
		var zc harvest.ZoneCount
		err := row.Scan(&zc.Zone, &zc.Points, &zc.Searched)
		return zc, err
	})
	if err != nil {
		return nil, fmt.Errorf("scan zone counts: %w", err)
	}
	return zones, nil
}
