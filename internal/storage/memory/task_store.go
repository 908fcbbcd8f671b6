// Package memory provides an in-process task store for dry runs and tests.
package memory

import (
	"context"
	"fmt"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/paulmach/orb"

	"github.com/JakeFAU/streetview-harvester/internal/harvest"
)

// TaskStore is an in-memory harvest.TaskStore for dry runs and tests. It is
// not durable.
type TaskStore struct {
	mu     sync.RWMutex
	nextID int64
	points map[int64]harvest.SamplePoint
	panos  map[string]harvest.Panorama
	zones  map[string]int64
}

var _ harvest.TaskStore = (*TaskStore)(nil)

// NewTaskStore constructs an empty TaskStore.
func NewTaskStore() *TaskStore {
	return &TaskStore{
		points: make(map[int64]harvest.SamplePoint),
		panos:  make(map[string]harvest.Panorama),
		zones:  make(map[string]int64),
	}
}

// EnsureSchema is a no-op.
func (s *TaskStore) EnsureSchema(context.Context) error { return nil }

// Close is a no-op.
func (s *TaskStore) Close() error { return nil }

// Seed stores unsearched points.
func (s *TaskStore) Seed(_ context.Context, zone string, points []orb.Point) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range points {
		s.nextID++
		s.points[s.nextID] = harvest.SamplePoint{ID: s.nextID, Lat: p.Lat(), Lon: p.Lon(), Zone: zone}
	}
	return int64(len(points)), nil
}

// ZoneSeeded reports whether zone was marked seeded.
func (s *TaskStore) ZoneSeeded(_ context.Context, zone string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.zones[zone]
	return ok, nil
}

// MarkZoneSeeded records that sampling zone completed.
func (s *TaskStore) MarkZoneSeeded(_ context.Context, zone string, points int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.zones[zone] = points
	return nil
}

// ClearZone deletes the points and marker of zone.
func (s *TaskStore) ClearZone(_ context.Context, zone string) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var removed int64
	for id, p := range s.points {
		if p.Zone == zone {
			delete(s.points, id)
			removed++
		}
	}
	delete(s.zones, zone)
	return removed, nil
}

// ClaimUnsearched returns up to limit unsearched points in random order.
func (s *TaskStore) ClaimUnsearched(_ context.Context, limit int) ([]harvest.SamplePoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []harvest.SamplePoint
	for _, p := range s.points {
		if !p.Searched {
			out = append(out, p)
		}
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > limit {
		out = out[:max(limit, 0)]
	}
	return out, nil
}

// RecordSearchOutcome inserts unseen panoramas and marks the point searched.
func (s *TaskStore) RecordSearchOutcome(_ context.Context, pointID int64, panos []harvest.Panorama) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.points[pointID]
	if !ok {
		return fmt.Errorf("point %d: %w", pointID, harvest.ErrNotFound)
	}
	for _, pano := range panos {
		if _, exists := s.panos[pano.ID]; exists {
			continue
		}
		pano.Date = harvest.NonEmpty(pano.Date)
		pano.Copyright = harvest.NonEmpty(pano.Copyright)
		s.panos[pano.ID] = pano
	}
	p.Searched = true
	s.points[pointID] = p
	return nil
}

// ClaimMissingMetadata returns up to limit panorama ids lacking metadata.
func (s *TaskStore) ClaimMissingMetadata(_ context.Context, limit int) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []string
	for id, p := range s.panos {
		if !(harvest.Metadata{Date: p.Date, Copyright: p.Copyright}).Complete() {
			out = append(out, id)
		}
	}
	rand.Shuffle(len(out), func(i, j int) { out[i], out[j] = out[j], out[i] })
	if len(out) > limit {
		out = out[:max(limit, 0)]
	}
	return out, nil
}

// RecordMetadataOutcome writes the attributes present in md.
func (s *TaskStore) RecordMetadataOutcome(_ context.Context, panoID string, md harvest.Metadata) error {
	if md.Empty() {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.panos[panoID]
	if !ok {
		return fmt.Errorf("panorama %s: %w", panoID, harvest.ErrNotFound)
	}
	if v := harvest.NonEmpty(md.Date); v != nil {
		p.Date = v
	}
	if v := harvest.NonEmpty(md.Copyright); v != nil {
		p.Copyright = v
	}
	s.panos[panoID] = p
	return nil
}

// Counts returns the aggregate totals.
func (s *TaskStore) Counts(context.Context) (harvest.Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c := harvest.Counts{
		TotalPoints:    int64(len(s.points)),
		TotalPanoramas: int64(len(s.panos)),
	}
	for _, p := range s.points {
		if !p.Searched {
			c.UnsearchedPoints++
		}
	}
	for _, p := range s.panos {
		if (harvest.Metadata{Date: p.Date, Copyright: p.Copyright}).Complete() {
			c.PanoramasWithMetadata++
		}
	}
	return c, nil
}

// ZoneCounts returns per-zone totals ordered by zone name.
func (s *TaskStore) ZoneCounts(context.Context) ([]harvest.ZoneCount, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	byZone := make(map[string]*harvest.ZoneCount)
	for _, p := range s.points {
		zc, ok := byZone[p.Zone]
		if !ok {
			zc = &harvest.ZoneCount{Zone: p.Zone}
			byZone[p.Zone] = zc
		}
		zc.Points++
		if p.Searched {
			zc.Searched++
		}
	}
	out := make([]harvest.ZoneCount, 0, len(byZone))
	for _, zc := range byZone {
		out = append(out, *zc)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Zone < out[j].Zone })
	return out, nil
}

// Panorama returns a stored panorama, for inspection in tests.
func (s *TaskStore) Panorama(id string) (harvest.Panorama, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.panos[id]
	return p, ok
}
