package harvest

import (
	"context"
	"time"

	"github.com/paulmach/orb"
)

// TaskStore persists sample points and panoramas. Implementations enforce
// panorama uniqueness and the one-way searched flag themselves.
type TaskStore interface {
	// EnsureSchema creates tables and indexes when missing.
	EnsureSchema(ctx context.Context) error
	// Seed inserts unsearched points for zone and returns how many were written.
	Seed(ctx context.Context, zone string, points []orb.Point) (int64, error)
	// ZoneSeeded reports whether a sampling run of zone completed. Points
	// written by an interrupted run do not count.
	ZoneSeeded(ctx context.Context, zone string) (bool, error)
	// MarkZoneSeeded records that sampling zone completed with points seeded.
	MarkZoneSeeded(ctx context.Context, zone string, points int64) error
	// ClearZone deletes the points and completion marker of zone in one
	// transaction and returns how many points were removed.
	ClearZone(ctx context.Context, zone string) (int64, error)
	// ClaimUnsearched returns up to limit unsearched points in random order.
	ClaimUnsearched(ctx context.Context, limit int) ([]SamplePoint, error)
	// RecordSearchOutcome stores panos (insert-or-ignore) and marks the point
	// searched in a single transaction.
	RecordSearchOutcome(ctx context.Context, pointID int64, panos []Panorama) error
	// ClaimMissingMetadata returns up to limit panorama IDs lacking a date or
	// copyright, in random order.
	ClaimMissingMetadata(ctx context.Context, limit int) ([]string, error)
	// RecordMetadataOutcome writes the attributes present in md, replacing
	// values recorded at discovery. Absent attributes stay unchanged.
	RecordMetadataOutcome(ctx context.Context, panoID string, md Metadata) error
	Counts(ctx context.Context) (Counts, error)
	ZoneCounts(ctx context.Context) ([]ZoneCount, error)
	Close() error
}

// PanoramaSearcher finds panoramas near a coordinate.
type PanoramaSearcher interface {
	Search(ctx context.Context, lat, lon float64) ([]Panorama, error)
}

// MetadataFetcher loads capture metadata for a panorama. An empty Metadata
// with a nil error means the service has none.
type MetadataFetcher interface {
	Metadata(ctx context.Context, panoID string) (Metadata, error)
}

// Publisher pushes payloads to a topic (Pub/Sub or similar).
type Publisher interface {
	Publish(ctx context.Context, topic string, payload any) (string, error)
}

// Clock returns the current time (useful for testing).
type Clock interface {
	Now() time.Time
}
