// Package report aggregates task store counts into a progress report.
package report

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

// Report is a point-in-time view of harvest progress. Ratios are fractions
// in [0, 1] except PanoramasPerPoint.
type Report struct {
	GeneratedAt           time.Time      `json:"generated_at"`
	TotalPoints           int64          `json:"total_points"`
	SearchedPoints        int64          `json:"searched_points"`
	UnsearchedPoints      int64          `json:"unsearched_points"`
	SearchProgress        float64        `json:"search_progress"`
	TotalPanoramas        int64          `json:"total_panoramas"`
	PanoramasPerPoint     float64        `json:"panoramas_per_point"`
	PanoramasWithMetadata int64          `json:"panoramas_with_metadata"`
	MetadataProgress      float64        `json:"metadata_progress"`
	ProjectedPanoramas    float64        `json:"projected_panoramas"`
	Zones                 []ZoneProgress `json:"zones,omitempty"`
}

// ZoneProgress is the search progress of one zone.
type ZoneProgress struct {
	Zone     string  `json:"zone"`
	Points   int64   `json:"points"`
	Searched int64   `json:"searched"`
	Progress float64 `json:"progress"`
}

// Source is the subset of the task store a report reads.
type Source interface {
	Counts(ctx context.Context) (harvest.Counts, error)
	ZoneCounts(ctx context.Context) ([]harvest.ZoneCount, error)
}

func ratio(num, den float64) float64 {
	if den == 0 {
		return 0
	}
	return num / den
}

// Compute derives a Report from raw counts. Zero denominators yield zero.
func Compute(c harvest.Counts) Report {
	searched := c.TotalPoints - c.UnsearchedPoints
	perPoint := ratio(float64(c.TotalPanoramas), float64(searched))
	return Report{
		TotalPoints:           c.TotalPoints,
		SearchedPoints:        searched,
		UnsearchedPoints:      c.UnsearchedPoints,
		SearchProgress:        ratio(float64(searched), float64(c.TotalPoints)),
		TotalPanoramas:        c.TotalPanoramas,
		PanoramasPerPoint:     perPoint,
		PanoramasWithMetadata: c.PanoramasWithMetadata,
		MetadataProgress:      ratio(float64(c.PanoramasWithMetadata), float64(c.TotalPanoramas)),
		ProjectedPanoramas:    perPoint * float64(c.TotalPoints),
	}
}

// WithZones attaches per-zone progress to r.
func (r Report) WithZones(zones []harvest.ZoneCount) Report {
	r.Zones = make([]ZoneProgress, 0, len(zones))
	for _, z := range zones {
		r.Zones = append(r.Zones, ZoneProgress{
			Zone:     z.Zone,
			Points:   z.Points,
			Searched: z.Searched,
			Progress: ratio(float64(z.Searched), float64(z.Points)),
		})
	}
	return r
}

// Build reads counts from src and computes a report stamped with now.
func Build(ctx context.Context, src Source, now time.Time, withZones bool) (Report, error) {
	counts, err := src.Counts(ctx)
	if err != nil {
		return Report{}, fmt.Errorf("read counts: %w", err)
	}
	r := Compute(counts)
	r.GeneratedAt = now
	if withZones {
		zones, err := src.ZoneCounts(ctx)
		if err != nil {
			return Report{}, fmt.Errorf("read zone counts: %w", err)
		}
		r = r.WithZones(zones)
	}
	return r, nil
}

// Render writes the human-readable report.
func Render(w io.Writer, r Report) error {
	p := message.NewPrinter(language.English)
	lines := []string{
		p.Sprintf("Current Time: %s", r.GeneratedAt.Local().Format(time.DateTime)),
		"",
		"[Point Search Progress]",
		p.Sprintf("Progress: %.2f%%", r.SearchProgress*100),
		p.Sprintf("Searched Points: %d/%d", r.SearchedPoints, r.TotalPoints),
		"",
		"[Found Panoramas]",
		p.Sprintf("Total Panoramas: %d", r.TotalPanoramas),
		p.Sprintf("Panorama to Point Ratio: %.2f pano/pt", r.PanoramasPerPoint),
		"",
		"[Panorama Metadata Progress]",
		p.Sprintf("Progress: %.2f%%", r.MetadataProgress*100),
		p.Sprintf("Panoramas with Metadata: %d/%d", r.PanoramasWithMetadata, r.TotalPanoramas),
		"",
		"[Expected Total Panoramas]",
		p.Sprintf("Expected Total Panoramas: %.0f", r.ProjectedPanoramas),
	}
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}
	if len(r.Zones) == 0 {
		return nil
	}
	if _, err := fmt.Fprintf(w, "\n[Zones]\n%s\n", zoneTable(p, r.Zones)); err != nil {
		return fmt.Errorf("write zone table: %w", err)
	}
	return nil
}

func zoneTable(p *message.Printer, zones []ZoneProgress) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)
	tw.AppendHeader(table.Row{"Zone", "Points", "Searched", "Progress"})
	for _, z := range zones {
		name := z.Zone
		if name == "" {
			name = "(unlabelled)"
		}
		tw.AppendRow(table.Row{
			name,
			p.Sprintf("%d", z.Points),
			p.Sprintf("%d", z.Searched),
			p.Sprintf("%.2f%%", z.Progress*100),
		})
	}
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Number: 2, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 3, Align: text.AlignRight, AlignHeader: text.AlignLeft},
		{Number: 4, Align: text.AlignRight, AlignHeader: text.AlignLeft},
	})
	return tw.Render()
}

// RenderJSON writes r as indented JSON.
func RenderJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return nil
}
