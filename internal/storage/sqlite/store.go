// Package sqlite implements the task store on an embedded SQLite database.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/paulmach/orb"
	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
	"github.com/JakeFAU/streetview-harvester/internal/storage/sqlq"
)

const (
	defaultBusyTimeoutMs = 10000
	seedRowsPerStatement = 500
)

// Config controls how the database file is opened.
type Config struct {
	Path          string
	BusyTimeoutMs int
	MaxOpenConns  int
}

// Store is a harvest.TaskStore backed by SQLite.
type Store struct {
	db *sql.DB
	q  sqlq.Builder
}

var _ harvest.TaskStore = (*Store)(nil)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS sample_coords (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		lat REAL,
		lon REAL,
		label TEXT,
		searched BOOLEAN NOT NULL DEFAULT FALSE
	)`,
	`CREATE TABLE IF NOT EXISTS search_panoramas (
		pano_id TEXT PRIMARY KEY,
		lat REAL,
		lon REAL,
		date TEXT,
		copyright TEXT,
		heading REAL,
		pitch REAL,
		roll REAL
	)`,
	`CREATE TABLE IF NOT EXISTS sample_zones (
		label TEXT PRIMARY KEY,
		points INTEGER NOT NULL DEFAULT 0,
		completed_at TIMESTAMP
	)`,
	`CREATE INDEX IF NOT EXISTS idx_sample_coords_searched ON sample_coords (searched)`,
	`CREATE INDEX IF NOT EXISTS idx_sample_coords_label ON sample_coords (label)`,
	`CREATE TRIGGER IF NOT EXISTS sample_coords_searched_monotone
		BEFORE UPDATE OF searched ON sample_coords
		WHEN OLD.searched AND NOT NEW.searched
		BEGIN
			SELECT RAISE(ABORT, 'searched flag cannot be cleared');
		END`,
}

// Open connects to the database at cfg.Path and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.Path == "" {
		return nil, errors.New("sqlite path is required")
	}
	busy := cfg.BusyTimeoutMs
	if busy <= 0 {
		busy = defaultBusyTimeoutMs
	}
	db, err := sql.Open("sqlite", dsn(cfg.Path, busy))
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	s := &Store{db: db, q: sqlq.New(sq.Question)}
	if err := s.EnsureSchema(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func dsn(path string, busyTimeoutMs int) string {
	sep := "?"
	if strings.Contains(path, "?") {
		sep = "&"
	}
	return fmt.Sprintf(
		"%s%s_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(%d)&_txlock=immediate",
		path, sep, busyTimeoutMs,
	)
}

// EnsureSchema creates tables, indexes, and the monotone trigger if missing.
func (s *Store) EnsureSchema(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Seed inserts points in one transaction.
func (s *Store) Seed(ctx context.Context, zone string, points []orb.Point) (int64, error) {
	if len(points) == 0 {
		return 0, nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin seed tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var inserted int64
	for start := 0; start < len(points); start += seedRowsPerStatement {
		end := min(start+seedRowsPerStatement, len(points))
		res, err := s.q.SeedPoints(zone, points[start:end]).RunWith(tx).ExecContext(ctx)
		if err != nil {
			return 0, fmt.Errorf("insert points: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("rows affected: %w", err)
		}
		inserted += n
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit seed tx: %w", err)
	}
	return inserted, nil
}

// ZoneSeeded reports whether zone carries a completion marker.
func (s *Store) ZoneSeeded(ctx context.Context, zone string) (bool, error) {
	var one int
	err := s.q.ZoneSeeded(zone).RunWith(s.db).QueryRowContext(ctx).Scan(&one)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return false, nil
	case err != nil:
		return false, fmt.Errorf("probe zone: %w", err)
	}
	return true, nil
}

// MarkZoneSeeded records that sampling zone completed.
func (s *Store) MarkZoneSeeded(ctx context.Context, zone string, points int64) error {
	if _, err := s.q.MarkZoneSeeded(zone, points, time.Now()).RunWith(s.db).ExecContext(ctx); err != nil {
		return fmt.Errorf("mark zone %q seeded: %w", zone, err)
	}
	return nil
}

// ClearZone deletes the points and marker of zone.
func (s *Store) ClearZone(ctx context.Context, zone string) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin clear tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	res, err := s.q.DeleteZonePoints(zone).RunWith(tx).ExecContext(ctx)
	if err != nil {
		return 0, fmt.Errorf("delete zone points: %w", err)
	}
	removed, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("rows affected: %w", err)
	}
	if _, err := s.q.DeleteZoneMarker(zone).RunWith(tx).ExecContext(ctx); err != nil {
		return 0, fmt.Errorf("delete zone marker: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit clear tx: %w", err)
	}
	return removed, nil
}

// ClaimUnsearched returns up to limit unsearched points in random order.
func (s *Store) ClaimUnsearched(ctx context.Context, limit int) ([]harvest.SamplePoint, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.q.ClaimUnsearched(limit).RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim unsearched: %w", err)
	}
	defer rows.Close()

	var out []harvest.SamplePoint
	for rows.Next() {
		var p harvest.SamplePoint
		if err := rows.Scan(&p.ID, &p.Lat, &p.Lon, &p.Zone); err != nil {
			return nil, fmt.Errorf("scan point: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate points: %w", err)
	}
	return out, nil
}

// RecordSearchOutcome stores panos and marks the point searched atomically.
func (s *Store) RecordSearchOutcome(ctx context.Context, pointID int64, panos []harvest.Panorama) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin search tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, p := range panos {
		if _, err := s.q.InsertPanorama(p).RunWith(tx).ExecContext(ctx); err != nil {
			return fmt.Errorf("insert panorama %s: %w", p.ID, err)
		}
	}
	res, err := s.q.MarkSearched(pointID).RunWith(tx).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("mark searched: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("point %d: %w", pointID, harvest.ErrNotFound)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit search tx: %w", err)
	}
	return nil
}

// ClaimMissingMetadata returns up to limit panorama ids lacking metadata.
func (s *Store) ClaimMissingMetadata(ctx context.Context, limit int) ([]string, error) {
	if limit <= 0 {
		return nil, nil
	}
	rows, err := s.q.ClaimMissingMetadata(limit).RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("claim missing metadata: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan panorama id: %w", err)
		}
		out = append(out, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate panorama ids: %w", err)
	}
	return out, nil
}

// RecordMetadataOutcome writes the attributes present in md.
func (s *Store) RecordMetadataOutcome(ctx context.Context, panoID string, md harvest.Metadata) error {
	update, ok := s.q.SetMetadata(panoID, md)
	if !ok {
		return nil
	}
	res, err := update.RunWith(s.db).ExecContext(ctx)
	if err != nil {
		return fmt.Errorf("update metadata: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("panorama %s: %w", panoID, harvest.ErrNotFound)
	}
	return nil
}

// Counts returns the aggregate totals.
func (s *Store) Counts(ctx context.Context) (harvest.Counts, error) {
	var c harvest.Counts
	err := s.q.Counts().RunWith(s.db).QueryRowContext(ctx).Scan(
		&c.TotalPoints,
		&c.UnsearchedPoints,
		&c.TotalPanoramas,
		&c.PanoramasWithMetadata,
	)
	if err != nil {
		return harvest.Counts{}, fmt.Errorf("count records: %w", err)
	}
	return c, nil
}

// ZoneCounts returns per-zone point totals ordered by zone name.
func (s *Store) ZoneCounts(ctx context.Context) ([]harvest.ZoneCount, error) {
	rows, err := s.q.ZoneCounts().RunWith(s.db).QueryContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("count zones: %w", err)
	}
	defer rows.Close()

	var out []harvest.ZoneCount
	for rows.Next() {
		var zc harvest.ZoneCount
		if err := rows.Scan(&zc.Zone, &zc.Points, &zc.Searched); err != nil {
			return nil, fmt.Errorf("scan zone count: %w", err)
		}
		out = append(out, zc)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate zone counts: %w", err)
	}
	return out, nil
}
