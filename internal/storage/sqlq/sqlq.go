// Package sqlq builds the SQL shared by the relational task stores. Callers
// pick the placeholder format for their driver.
package sqlq

import (
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/paulmach/orb"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

// Table names match the layout of existing harvest databases.
const (
	PointsTable    = "sample_coords"
	PanoramasTable = "search_panoramas"
	ZonesTable     = "sample_zones"
)

const missingMetadata = "date IS NULL OR date = '' OR copyright IS NULL OR copyright = ''"

// Builder wraps a squirrel statement builder bound to one placeholder format.
type Builder struct {
	sb sq.StatementBuilderType
}

// New returns a Builder using format (sq.Question or sq.Dollar).
func New(format sq.PlaceholderFormat) Builder {
	return Builder{sb: sq.StatementBuilder.PlaceholderFormat(format)}
}

// SeedPoints inserts unsearched points labelled with zone.
func (b Builder) SeedPoints(zone string, points []orb.Point) sq.InsertBuilder {
	q := b.sb.Insert(PointsTable).Columns("lat", "lon", "label", "searched")
	for _, p := range points {
		q = q.Values(p.Lat(), p.Lon(), zone, false)
	}
	return q
}

// ZoneSeeded probes for the completion marker of zone.
func (b Builder) ZoneSeeded(zone string) sq.SelectBuilder {
	return b.sb.Select("1").From(ZonesTable).Where(sq.Eq{"label": zone}).Limit(1)
}

// MarkZoneSeeded upserts the completion marker of zone.
func (b Builder) MarkZoneSeeded(zone string, points int64, at time.Time) sq.InsertBuilder {
	return b.sb.Insert(ZonesTable).
		Columns("label", "points", "completed_at").
		Values(zone, points, at.UTC()).
		Suffix("ON CONFLICT (label) DO UPDATE SET points = EXCLUDED.points, completed_at = EXCLUDED.completed_at")
}

// DeleteZonePoints removes every point labelled zone.
func (b Builder) DeleteZonePoints(zone string) sq.DeleteBuilder {
	return b.sb.Delete(PointsTable).Where(sq.Eq{"label": zone})
}

// DeleteZoneMarker removes the completion marker of zone.
func (b Builder) DeleteZoneMarker(zone string) sq.DeleteBuilder {
	return b.sb.Delete(ZonesTable).Where(sq.Eq{"label": zone})
}

// ClaimUnsearched selects up to limit unsearched points in random order.
func (b Builder) ClaimUnsearched(limit int) sq.SelectBuilder {
	return b.sb.Select("id", "lat", "lon", "COALESCE(label, '')").
		From(PointsTable).
		Where(sq.Eq{"searched": false}).
		OrderBy("RANDOM()").
		Limit(uint64(limit))
}

// InsertPanorama inserts p unless its id already exists.
func (b Builder) InsertPanorama(p harvest.Panorama) sq.InsertBuilder {
	return b.sb.Insert(PanoramasTable).
		Columns("pano_id", "lat", "lon", "date", "copyright", "heading", "pitch", "roll").
		Values(p.ID, p.Lat, p.Lon, harvest.NonEmpty(p.Date), harvest.NonEmpty(p.Copyright), p.Heading, p.Pitch, p.Roll).
		Suffix("ON CONFLICT (pano_id) DO NOTHING")
}

// MarkSearched flips the searched flag for one point.
func (b Builder) MarkSearched(pointID int64) sq.UpdateBuilder {
	return b.sb.Update(PointsTable).Set("searched", true).Where(sq.Eq{"id": pointID})
}

// ClaimMissingMetadata selects panorama ids lacking a date or copyright.
func (b Builder) ClaimMissingMetadata(limit int) sq.SelectBuilder {
	return b.sb.Select("pano_id").
		From(PanoramasTable).
		Where(missingMetadata).
		OrderBy("RANDOM()").
		Limit(uint64(limit))
}

// SetMetadata writes the attributes present in md, replacing stored values.
// Absent attributes are left untouched. It returns false when md carries
// nothing to write.
func (b Builder) SetMetadata(panoID string, md harvest.Metadata) (sq.UpdateBuilder, bool) {
	q := b.sb.Update(PanoramasTable).Where(sq.Eq{"pano_id": panoID})
	set := false
	if v := harvest.NonEmpty(md.Date); v != nil {
		q = q.Set("date", *v)
		set = true
	}
	if v := harvest.NonEmpty(md.Copyright); v != nil {
		q = q.Set("copyright", *v)
		set = true
	}
	return q, set
}

// PanoramaExists probes for a panorama id.
func (b Builder) PanoramaExists(panoID string) sq.SelectBuilder {
	return b.sb.Select("1").From(PanoramasTable).Where(sq.Eq{"pano_id": panoID}).Limit(1)
}

// Counts selects total points, unsearched points, total panoramas, and
// panoramas with complete metadata in one row.
func (b Builder) Counts() sq.SelectBuilder {
	return b.sb.Select(
		"(SELECT COUNT(*) FROM "+PointsTable+")",
		"(SELECT COUNT(*) FROM "+PointsTable+" WHERE searched = FALSE)",
		"(SELECT COUNT(*) FROM "+PanoramasTable+")",
		"(SELECT COUNT(*) FROM "+PanoramasTable+" WHERE NOT ("+missingMetadata+"))",
	)
}

// ZoneCounts groups points by zone label.
func (b Builder) ZoneCounts() sq.SelectBuilder {
	return b.sb.Select(
		"COALESCE(label, '')",
		"COUNT(*)",
		"SUM(CASE WHEN searched THEN 1 ELSE 0 END)",
	).
		From(PointsTable).
		GroupBy("COALESCE(label, '')").
		OrderBy("COALESCE(label, '')")
}
