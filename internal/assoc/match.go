// Public domain.

package assoc

import (
	"math"

	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/star"
	"github.com/soniakeys/unit"
)

// AssociateCatalogs builds the fitted star list from scratch.
//
// Measured stars are projected through their input WCS onto the common
// tangent plane.  For every pair of images with overlapping footprints,
// reciprocal nearest neighbors closer than matchCutArcsec are linked, and
// linked stars are merged transitively.  Each merged group, and each
// unmatched measurement, becomes one fitted star.  Fitted stars are ordered
// by their first measurement in image registration order.
func (a *Associations) AssociateCatalogs(matchCutArcsec float64) {
	a.FittedStars = nil
	a.RefStars = nil
	a.deprojected = false
	tp := a.CommonTP()
	maxDist := unit.AngleFromSec(matchCutArcsec).Deg()

	// per image tangent plane positions and finders, and the offset of each
	// image in the union-find array
	type imagePoints struct {
		idx    []int // measured star index for each point
		pts    []geom.Point
		frame  geom.Frame
		finder *Finder
		offset int
	}
	ims := make([]imagePoints, len(a.CcdImages))
	n := 0
	for i, c := range a.CcdImages {
		ip := &ims[i]
		ip.offset = n
		n += len(c.Stars)
		for k, m := range c.Stars {
			m.Fitted = nil
			if !m.Valid {
				continue
			}
			ra, dec := c.WCS.PixToSky(m.Pix())
			p, ok := tp.Project(ra, dec)
			if !ok || math.IsNaN(p.X) || math.IsNaN(p.Y) {
				continue
			}
			if len(ip.pts) == 0 {
				ip.frame = geom.Frame{XMin: p.X, YMin: p.Y, XMax: p.X, YMax: p.Y}
			} else {
				ip.frame = ip.frame.Union(geom.Frame{XMin: p.X, YMin: p.Y, XMax: p.X, YMax: p.Y})
			}
			ip.idx = append(ip.idx, k)
			ip.pts = append(ip.pts, p)
		}
		ip.finder = NewFinder(ip.pts)
	}

	uf := newUnionFind(n)
	links := 0
	for i := range ims {
		fi := ims[i].frame
		fi = geom.Frame{XMin: fi.XMin - maxDist, YMin: fi.YMin - maxDist,
			XMax: fi.XMax + maxDist, YMax: fi.YMax + maxDist}
		for j := i + 1; j < len(ims); j++ {
			if len(ims[i].pts) == 0 || len(ims[j].pts) == 0 || !fi.Overlaps(ims[j].frame) {
				continue
			}
			for _, m := range reciprocal(ims[i].finder, ims[j].finder, maxDist) {
				uf.union(ims[i].offset+ims[i].idx[m.I], ims[j].offset+ims[j].idx[m.J])
				links++
			}
		}
	}

	// build fitted stars in registration order
	byRoot := map[int]*star.FittedStar{}
	for i, c := range a.CcdImages {
		ip := &ims[i]
		for q, k := range ip.idx {
			m := c.Stars[k]
			r := uf.find(ip.offset + k)
			fs := byRoot[r]
			if fs == nil {
				fs = &star.FittedStar{Index: len(a.FittedStars)}
				byRoot[r] = fs
				a.FittedStars = append(a.FittedStars, fs)
			}
			m.Fitted = fs
			fs.Measurements = append(fs.Measurements, m)
			fs.MeasurementCount++
			fs.X += ip.pts[q].X
			fs.Y += ip.pts[q].Y
			fs.Flux += m.InstFlux * c.PhotoCalib
		}
	}
	for _, fs := range a.FittedStars {
		w := 1 / float64(fs.MeasurementCount)
		fs.X *= w
		fs.Y *= w
		fs.Flux *= w
		fs.RA, fs.Dec = tp.Deproject(geom.Point{X: fs.X, Y: fs.Y})
	}
	a.Metrics.Associated = len(a.FittedStars)
	a.log.Info().Int("links", links).Int("fittedStars", len(a.FittedStars)).
		Float64("matchCut", matchCutArcsec).Msg("catalogs associated")
}

// unionFind is a disjoint set forest with path halving and union by size.
type unionFind struct {
	parent, size []int
}

func newUnionFind(n int) *unionFind {
	u := &unionFind{parent: make([]int, n), size: make([]int, n)}
	for i := range u.parent {
		u.parent[i] = i
		u.size[i] = 1
	}
	return u
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(i, j int) {
	ri, rj := u.find(i), u.find(j)
	if ri == rj {
		return
	}
	if u.size[ri] < u.size[rj] {
		ri, rj = rj, ri
	}
	u.parent[rj] = ri
	u.size[ri] += u.size[rj]
}
