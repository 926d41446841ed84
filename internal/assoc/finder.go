// Public domain.

package assoc

import (
	"sort"

	"github.com/soniakeys/jointcal/internal/geom"
)

// Finder answers nearest neighbor queries on a fixed point list.
//
// Points are sorted in x, cut into slices of equal x extent, and sorted in
// y within each slice.  A query scans the slices overlapping the search
// window with a binary search in y.
type Finder struct {
	pts    []geom.Point
	order  []int // point indexes, by slice then y
	bounds []int // order[bounds[s]:bounds[s+1]] is slice s
	xmin   float64
	xstep  float64
}

// defaultSlices is the slice count used by NewFinder.
const defaultSlices = 100

// NewFinder indexes pts.  pts must not be modified while the Finder is in
// use.
func NewFinder(pts []geom.Point) *Finder {
	return newFinder(pts, defaultSlices)
}

func newFinder(pts []geom.Point, nslice int) *Finder {
	f := &Finder{pts: pts, order: make([]int, len(pts))}
	if len(pts) == 0 {
		return f
	}
	for i := range f.order {
		f.order[i] = i
	}
	sort.SliceStable(f.order, func(i, j int) bool {
		return pts[f.order[i]].X < pts[f.order[j]].X
	})
	f.xmin = pts[f.order[0]].X
	xmax := pts[f.order[len(pts)-1]].X
	if nslice > len(pts) {
		nslice = len(pts)
	}
	if xmax == f.xmin {
		nslice = 1
	}
	f.xstep = (xmax - f.xmin) / float64(nslice)
	f.bounds = make([]int, nslice+1)
	k := 0
	for s := 1; s < nslice; s++ {
		xend := f.xmin + float64(s)*f.xstep
		for k < len(pts) && pts[f.order[k]].X < xend {
			k++
		}
		f.bounds[s] = k
	}
	f.bounds[nslice] = len(pts)
	for s := 0; s < nslice; s++ {
		sl := f.order[f.bounds[s]:f.bounds[s+1]]
		sort.SliceStable(sl, func(i, j int) bool {
			return pts[sl[i]].Y < pts[sl[j]].Y
		})
	}
	return f
}

// Len returns the number of indexed points.
func (f *Finder) Len() int { return len(f.pts) }

// Closest returns the index of the point nearest to p within maxDist, and
// its squared distance.  Among equidistant points the lowest index is
// returned.  The index is -1 if no point is within maxDist.
func (f *Finder) Closest(p geom.Point, maxDist float64) (int, float64) {
	best, bestD2 := -1, maxDist*maxDist
	if len(f.pts) == 0 {
		return best, 0
	}
	nslice := len(f.bounds) - 1
	s0, s1 := 0, nslice
	if f.xstep > 0 {
		s0 = int((p.X - maxDist - f.xmin) / f.xstep)
		s1 = int((p.X+maxDist-f.xmin)/f.xstep) + 1
		if s0 < 0 {
			s0 = 0
		}
		if s1 > nslice {
			s1 = nslice
		}
	}
	for s := s0; s < s1; s++ {
		sl := f.order[f.bounds[s]:f.bounds[s+1]]
		i := sort.Search(len(sl), func(i int) bool {
			return f.pts[sl[i]].Y >= p.Y-maxDist
		})
		for ; i < len(sl); i++ {
			q := f.pts[sl[i]]
			if q.Y > p.Y+maxDist {
				break
			}
			d2 := p.Dist2(q)
			if d2 < bestD2 || d2 == bestD2 && (best < 0 || sl[i] < best) {
				best, bestD2 = sl[i], d2
			}
		}
	}
	if best < 0 {
		return -1, 0
	}
	return best, bestD2
}

// Match is a pair of indexes into two point lists.
type Match struct {
	I, J int
}

// ReciprocalMatches returns the pairs (i, j) such that b[j] is the nearest
// point of b to a[i], a[i] is the nearest point of a to b[j], and they are
// within maxDist.  Pairs are ordered by i.
func ReciprocalMatches(a, b []geom.Point, maxDist float64) []Match {
	return reciprocal(NewFinder(a), NewFinder(b), maxDist)
}

func reciprocal(fa, fb *Finder, maxDist float64) (m []Match) {
	for i, p := range fa.pts {
		j, _ := fb.Closest(p, maxDist)
		if j < 0 {
			continue
		}
		if back, _ := fa.Closest(fb.pts[j], maxDist); back == i {
			m = append(m, Match{i, j})
		}
	}
	return
}
