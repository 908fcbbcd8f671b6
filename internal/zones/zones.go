// Package zones loads administrative zone boundaries from GeoJSON.
package zones

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

// DefaultNameProperty is the feature property holding the zone name.
const DefaultNameProperty = "namecol"

// ErrNoZones is returned when a file contains no usable polygon features.
var ErrNoZones = errors.New("no polygon zones found")

// Load reads a FeatureCollection from path.
func Load(path, nameProperty string) ([]harvest.Zone, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read zones file: %w", err)
	}
	zones, err := Parse(data, nameProperty)
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return zones, nil
}

// Parse decodes a FeatureCollection into zones. Polygon and MultiPolygon
// features are kept; other geometries are ignored. Features sharing a name
// are merged into one zone, in first-seen order.
func Parse(data []byte, nameProperty string) ([]harvest.Zone, error) {
	if nameProperty == "" {
		nameProperty = DefaultNameProperty
	}
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("decode feature collection: %w", err)
	}
	var zones []harvest.Zone
	index := make(map[string]int)
	for i, f := range fc.Features {
		var polys orb.MultiPolygon
		switch g := f.Geometry.(type) {
		case orb.Polygon:
			polys = orb.MultiPolygon{g}
		case orb.MultiPolygon:
			polys = g
		default:
			continue
		}
		name, err := featureName(f, nameProperty)
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		if at, ok := index[name]; ok {
			zones[at].Geometry = append(zones[at].Geometry, polys...)
			continue
		}
		index[name] = len(zones)
		zones = append(zones, harvest.Zone{Name: name, Geometry: polys})
	}
	if len(zones) == 0 {
		return nil, ErrNoZones
	}
	return zones, nil
}

func featureName(f *geojson.Feature, prop string) (string, error) {
	raw, ok := f.Properties[prop]
	if !ok || raw == nil {
		return "", fmt.Errorf("missing %q property", prop)
	}
	name := strings.TrimSpace(fmt.Sprint(raw))
	if name == "" {
		return "", fmt.Errorf("empty %q property", prop)
	}
	return name, nil
}

// Filter keeps zones whose names appear in names. An empty names list keeps all.
func Filter(all []harvest.Zone, names []string) ([]harvest.Zone, error) {
	if len(names) == 0 {
		return all, nil
	}
	byName := make(map[string]harvest.Zone, len(all))
	for _, z := range all {
		byName[z.Name] = z
	}
	out := make([]harvest.Zone, 0, len(names))
	for _, n := range names {
		z, ok := byName[n]
		if !ok {
			return nil, fmt.Errorf("unknown zone %q", n)
		}
		out = append(out, z)
	}
	return out, nil
}
