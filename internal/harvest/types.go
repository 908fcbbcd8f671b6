package harvest

import (
	"errors"
	"strings"

	"github.com/paulmach/orb"
)

// ErrNotFound signals that the referenced point or panorama does not exist.
var ErrNotFound = errors.New("record not found")

// Pass names one of the harvester's processing passes.
type Pass string

// Supported passes.
const (
	PassSample Pass = "sample"
	PassSearch Pass = "search"
	PassEnrich Pass = "enrich"
)

// Outcome classifies the result of processing one unit of work.
type Outcome string

// Unit outcomes recorded by the search and enrich workers.
const (
	OutcomeFound      Outcome = "found"
	OutcomeEmpty      Outcome = "empty"
	OutcomeEmptyRetry Outcome = "empty_retry"
	OutcomeError      Outcome = "error"
	OutcomeEnriched   Outcome = "enriched"
	OutcomePartial    Outcome = "partial"
	OutcomeNoMetadata Outcome = "no_metadata"
)

// Mutates reports whether the outcome changed stored state, so the unit will
// not be claimed again for the same reason. A partial fill may leave the
// panorama claimable, so it does not count.
func (o Outcome) Mutates() bool {
	switch o {
	case OutcomeFound, OutcomeEmpty, OutcomeEnriched:
		return true
	default:
		return false
	}
}

// Zone is a named administrative boundary used to seed sample points.
type Zone struct {
	Name     string
	Geometry orb.MultiPolygon
}

// SamplePoint is one candidate coordinate awaiting a panorama search.
type SamplePoint struct {
	ID       int64
	Lat      float64
	Lon      float64
	Zone     string
	Searched bool
}

// Panorama is a discovered panorama record. Date and Copyright stay nil until
// they are known.
type Panorama struct {
	ID        string
	Lat       float64
	Lon       float64
	Date      *string
	Copyright *string
	Heading   float64
	Pitch     float64
	Roll      float64
}

// Metadata carries the enrichable attributes of a panorama.
type Metadata struct {
	Date      *string
	Copyright *string
}

// Empty reports whether neither attribute is present.
func (m Metadata) Empty() bool {
	return NonEmpty(m.Date) == nil && NonEmpty(m.Copyright) == nil
}

// Complete reports whether both attributes are present.
func (m Metadata) Complete() bool {
	return NonEmpty(m.Date) != nil && NonEmpty(m.Copyright) != nil
}

// Counts aggregates the store totals used by progress reporting.
type Counts struct {
	TotalPoints           int64 `json:"total_points"`
	UnsearchedPoints      int64 `json:"unsearched_points"`
	TotalPanoramas        int64 `json:"total_panoramas"`
	PanoramasWithMetadata int64 `json:"panoramas_with_metadata"`
}

// ZoneCount is the per-zone breakdown of sample points.
type ZoneCount struct {
	Zone     string `json:"zone"`
	Points   int64  `json:"points"`
	Searched int64  `json:"searched"`
}

// NonEmpty returns nil for nil or blank strings and the trimmed value otherwise.
func NonEmpty(s *string) *string {
	if s == nil {
		return nil
	}
	v := strings.TrimSpace(*s)
	if v == "" {
		return nil
	}
	return &v
}

// StringPtr returns a pointer to s, or nil when s is blank.
func StringPtr(s string) *string {
	return NonEmpty(&s)
}
