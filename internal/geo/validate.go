package geo

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// ErrInvalidGeometry marks polygons that cannot be sampled.
var ErrInvalidGeometry = errors.New("invalid geometry")

type segment struct {
	a, b orb.Point
	ring int
	idx  int
	n    int // edge count of the owning ring
}

func (s segment) minX() float64 { return math.Min(s.a[0], s.b[0]) }
func (s segment) maxX() float64 { return math.Max(s.a[0], s.b[0]) }
func (s segment) minY() float64 { return math.Min(s.a[1], s.b[1]) }
func (s segment) maxY() float64 { return math.Max(s.a[1], s.b[1]) }

// Validate rejects polygons with short, open, degenerate, or
// self-intersecting rings. It never repairs anything.
func Validate(poly orb.Polygon) error {
	_, err := ringSegments(poly)
	return err
}

// ringSegments validates poly and returns its edges with consecutive duplicate
// vertices dropped.
func ringSegments(poly orb.Polygon) ([]segment, error) {
	if len(poly) == 0 {
		return nil, fmt.Errorf("%w: polygon has no rings", ErrInvalidGeometry)
	}
	var segs []segment
	for ri, ring := range poly {
		if len(ring) < 4 {
			return nil, fmt.Errorf("%w: ring %d has %d points, need at least 4", ErrInvalidGeometry, ri, len(ring))
		}
		if !ring.Closed() {
			return nil, fmt.Errorf("%w: ring %d is not closed", ErrInvalidGeometry, ri)
		}
		for _, p := range ring {
			if !finite(p[0]) || !finite(p[1]) {
				return nil, fmt.Errorf("%w: ring %d has a non-finite coordinate", ErrInvalidGeometry, ri)
			}
		}
		verts := dedupeVertices(ring)
		if len(verts) < 3 {
			return nil, fmt.Errorf("%w: ring %d collapses to %d distinct vertices", ErrInvalidGeometry, ri, len(verts))
		}
		if math.Abs(planar.Area(ring)) == 0 {
			return nil, fmt.Errorf("%w: ring %d has zero area", ErrInvalidGeometry, ri)
		}
		n := len(verts)
		for i := range n {
			segs = append(segs, segment{a: verts[i], b: verts[(i+1)%n], ring: ri, idx: i, n: n})
		}
	}
	if i, j, ok := firstIntersection(segs); ok {
		return nil, fmt.Errorf("%w: edge %d of ring %d intersects edge %d of ring %d",
			ErrInvalidGeometry, segs[i].idx, segs[i].ring, segs[j].idx, segs[j].ring)
	}
	return segs, nil
}

// dedupeVertices drops the closing point and consecutive repeats.
func dedupeVertices(ring orb.Ring) []orb.Point {
	out := make([]orb.Point, 0, len(ring))
	for _, p := range ring[:len(ring)-1] {
		if len(out) > 0 && out[len(out)-1] == p {
			continue
		}
		out = append(out, p)
	}
	for len(out) > 1 && out[len(out)-1] == out[0] {
		out = out[:len(out)-1]
	}
	return out
}

// firstIntersection sweeps edges ordered by minX. Edges of one ring may only
// meet their neighbours; edges of different rings may touch but not cross.
func firstIntersection(segs []segment) (int, int, bool) {
	order := make([]int, len(segs))
	for i := range order {
		order[i] = i
	}
	sort.Slice(order, func(a, b int) bool {
		return segs[order[a]].minX() < segs[order[b]].minX()
	})
	for oi, i := range order {
		si := segs[i]
		maxX := si.maxX()
		for _, j := range order[oi+1:] {
			sj := segs[j]
			if sj.minX() > maxX {
				break
			}
			if sj.minY() > si.maxY() || sj.maxY() < si.minY() {
				continue
			}
			if si.ring == sj.ring {
				if adjacent(si, sj) {
					continue
				}
				if segmentsIntersect(si.a, si.b, sj.a, sj.b, false) {
					return i, j, true
				}
				continue
			}
			if segmentsIntersect(si.a, si.b, sj.a, sj.b, true) {
				return i, j, true
			}
		}
	}
	return 0, 0, false
}

func adjacent(a, b segment) bool {
	d := a.idx - b.idx
	if d < 0 {
		d = -d
	}
	return d == 1 || d == a.n-1
}

func orient(a, b, c orb.Point) float64 {
	return (b[0]-a[0])*(c[1]-a[1]) - (b[1]-a[1])*(c[0]-a[0])
}

// segmentsIntersect reports whether p1p2 and q1q2 share a point. With
// properOnly set, only crossings through both interiors count.
func segmentsIntersect(p1, p2, q1, q2 orb.Point, properOnly bool) bool {
	d1 := orient(q1, q2, p1)
	d2 := orient(q1, q2, p2)
	d3 := orient(p1, p2, q1)
	d4 := orient(p1, p2, q2)
	if ((d1 > 0 && d2 < 0) || (d1 < 0 && d2 > 0)) && ((d3 > 0 && d4 < 0) || (d3 < 0 && d4 > 0)) {
		return true
	}
	if properOnly {
		return false
	}
	return (d1 == 0 && inBox(q1, q2, p1)) ||
		(d2 == 0 && inBox(q1, q2, p2)) ||
		(d3 == 0 && inBox(p1, p2, q1)) ||
		(d4 == 0 && inBox(p1, p2, q2))
}

func inBox(a, b, p orb.Point) bool {
	return p[0] >= math.Min(a[0], b[0]) && p[0] <= math.Max(a[0], b[0]) &&
		p[1] >= math.Min(a[1], b[1]) && p[1] <= math.Max(a[1], b[1])
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
