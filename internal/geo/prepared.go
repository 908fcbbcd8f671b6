package geo

import (
	"math"

	"github.com/paulmach/orb"
)

const (
	boundaryEpsilon = 1e-12
	maxBands        = 4096
)

// Prepared is a validated polygon with a horizontal band index over its edges
// so containment tests only visit edges that overlap the query row.
type Prepared struct {
	bound      orb.Bound
	segs       []segment
	bands      [][]int32
	minY       float64
	bandHeight float64
}

// Prepare validates poly and builds its edge index.
func Prepare(poly orb.Polygon) (*Prepared, error) {
	segs, err := ringSegments(poly)
	if err != nil {
		return nil, err
	}
	bound := poly.Bound()
	p := &Prepared{
		bound: bound,
		segs:  segs,
		minY:  bound.Min[1],
	}
	nBands := len(segs) / 4
	if nBands < 1 {
		nBands = 1
	}
	if nBands > maxBands {
		nBands = maxBands
	}
	height := bound.Max[1] - bound.Min[1]
	if height <= 0 {
		nBands = 1
	}
	p.bands = make([][]int32, nBands)
	p.bandHeight = height / float64(nBands)
	for i, s := range segs {
		lo, hi := p.band(s.minY()), p.band(s.maxY())
		for b := lo; b <= hi; b++ {
			p.bands[b] = append(p.bands[b], int32(i))
		}
	}
	return p, nil
}

// Bound returns the polygon's bounding box.
func (p *Prepared) Bound() orb.Bound {
	return p.bound
}

func (p *Prepared) band(y float64) int {
	if p.bandHeight <= 0 {
		return 0
	}
	b := int((y - p.minY) / p.bandHeight)
	if b < 0 {
		return 0
	}
	if b >= len(p.bands) {
		return len(p.bands) - 1
	}
	return b
}

// Contains reports whether pt lies strictly inside the polygon. Points on any
// ring, including hole rings, are outside.
func (p *Prepared) Contains(pt orb.Point) bool {
	if pt[0] <= p.bound.Min[0] || pt[0] >= p.bound.Max[0] ||
		pt[1] <= p.bound.Min[1] || pt[1] >= p.bound.Max[1] {
		return false
	}
	inside := false
	for _, i := range p.bands[p.band(pt[1])] {
		s := p.segs[i]
		if onSegment(s.a, s.b, pt) {
			return false
		}
		if (s.a[1] > pt[1]) != (s.b[1] > pt[1]) {
			x := s.a[0] + (pt[1]-s.a[1])*(s.b[0]-s.a[0])/(s.b[1]-s.a[1])
			if pt[0] < x {
				inside = !inside
			}
		}
	}
	return inside
}

func onSegment(a, b, p orb.Point) bool {
	dx, dy := b[0]-a[0], b[1]-a[1]
	length := math.Hypot(dx, dy)
	if length == 0 {
		return math.Hypot(p[0]-a[0], p[1]-a[1]) <= boundaryEpsilon
	}
	if math.Abs(orient(a, b, p))/length > boundaryEpsilon {
		return false
	}
	dot := (p[0]-a[0])*dx + (p[1]-a[1])*dy
	slack := boundaryEpsilon * length
	return dot >= -slack && dot <= length*length+slack
}
