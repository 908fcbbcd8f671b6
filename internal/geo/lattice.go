package geo

import (
	"iter"
	"math"

	"github.com/paulmach/orb"
)

// Lattice yields the grid min + i*step over b, columns first. Both axes are
// half-open: the max edge is never produced. Points are generated lazily.
func Lattice(b orb.Bound, step float64) iter.Seq[orb.Point] {
	return func(yield func(orb.Point) bool) {
		nx, ny := latticeDims(b, step)
		for i := range nx {
			x := b.Min[0] + float64(i)*step
			for j := range ny {
				if !yield(orb.Point{x, b.Min[1] + float64(j)*step}) {
					return
				}
			}
		}
	}
}

// LatticeSize returns the number of points Lattice yields for b.
func LatticeSize(b orb.Bound, step float64) int {
	nx, ny := latticeDims(b, step)
	return nx * ny
}

func latticeDims(b orb.Bound, step float64) (int, int) {
	if step <= 0 || !finite(step) {
		return 0, 0
	}
	return axisSteps(b.Min[0], b.Max[0], step), axisSteps(b.Min[1], b.Max[1], step)
}

func axisSteps(lo, hi, step float64) int {
	n := math.Ceil((hi - lo) / step)
	if n <= 0 || math.IsNaN(n) {
		return 0
	}
	return int(n)
}
