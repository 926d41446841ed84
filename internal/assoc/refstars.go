// Public domain.

package assoc

import (
	"github.com/soniakeys/jointcal/internal/dataset"
	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/star"
	"github.com/soniakeys/unit"
)

// CollectRefStars attaches to each fitted star the nearest reference
// source within matchCutArcsec.
//
// A reference source nearest to several fitted stars goes to the closest
// one.  Exact distance ties go to the star with more measurements, then to
// the lower index.  Fitted stars losing a claim get no reference.  Fluxes
// are taken from the filter band; a source without that band keeps zero
// flux and flux error.  It returns the number of claimed references.
func (a *Associations) CollectRefStars(refCat []dataset.RefSource, matchCutArcsec float64, filter string) int {
	for _, fs := range a.FittedStars {
		fs.SetRef(nil)
	}
	a.RefStars = nil
	tp := a.CommonTP()
	maxDist := unit.AngleFromSec(matchCutArcsec).Deg()

	var pts []geom.Point
	var src []int
	for i := range refCat {
		p, ok := tp.Project(refCat[i].RA, refCat[i].Dec)
		if !ok {
			continue
		}
		pts = append(pts, p)
		src = append(src, i)
	}
	f := NewFinder(pts)

	type claim struct {
		fs *star.FittedStar
		d2 float64
	}
	claims := make(map[int]claim)
	var order []int // claimed ref points, first claim order
	for _, fs := range a.FittedStars {
		k, d2 := f.Closest(geom.Point{X: fs.X, Y: fs.Y}, maxDist)
		if k < 0 {
			continue
		}
		c, ok := claims[k]
		if !ok {
			order = append(order, k)
			claims[k] = claim{fs, d2}
			continue
		}
		if wins(fs, d2, c.fs, c.d2) {
			claims[k] = claim{fs, d2}
		}
	}
	for _, k := range order {
		r := &refCat[src[k]]
		rs := &star.RefStar{
			ID:     r.ID,
			RA:     r.RA,
			Dec:    r.Dec,
			RAErr:  r.RAErr,
			DecErr: r.DecErr,
		}
		if r.Flux != nil {
			rs.Flux = r.Flux[filter]
		}
		if r.FluxErr != nil {
			rs.FluxErr = r.FluxErr[filter]
		}
		claims[k].fs.SetRef(rs)
	}
	a.collectRefList()
	a.Metrics.CollectedRefStars = len(a.RefStars)
	a.log.Info().Int("refStars", len(a.RefStars)).Int("catalog", len(refCat)).
		Str("filter", filter).Msg("reference stars collected")
	return len(a.RefStars)
}

// collectRefList rebuilds RefStars from the fitted star list, in fitted
// star order.
func (a *Associations) collectRefList() {
	a.RefStars = a.RefStars[:0]
	for _, fs := range a.FittedStars {
		if fs.Ref != nil {
			a.RefStars = append(a.RefStars, fs.Ref)
		}
	}
}

// SelectFittedStars removes fitted stars with fewer than minMeasurements
// valid measurements.  Measurements of removed stars are detached and their
// reference stars released.  Remaining stars are renumbered.
func (a *Associations) SelectFittedStars(minMeasurements int) {
	kept := a.FittedStars[:0]
	removed := 0
	for _, fs := range a.FittedStars {
		if fs.MeasurementCount >= minMeasurements {
			fs.Index = len(kept)
			kept = append(kept, fs)
			continue
		}
		for _, m := range fs.Measurements {
			m.Fitted = nil
		}
		fs.Measurements = nil
		fs.MeasurementCount = 0
		fs.SetRef(nil)
		removed++
	}
	for i := len(kept); i < len(a.FittedStars); i++ {
		a.FittedStars[i] = nil
	}
	a.FittedStars = kept
	a.collectRefList()
	a.deprojected = false
	a.Metrics.SelectedFittedStars = len(a.FittedStars)
	a.Metrics.SelectedRefStars = len(a.RefStars)
	a.Metrics.SelectedCcdImages = a.NCcdImagesValidForFit()
	a.log.Info().Int("removed", removed).Int("fittedStars", len(a.FittedStars)).
		Int("refStars", len(a.RefStars)).Int("minMeasurements", minMeasurements).
		Msg("fitted stars selected")
}

// DeprojectFittedStars sets the sky position of each fitted star from its
// common tangent plane position.
func (a *Associations) DeprojectFittedStars() {
	tp := a.CommonTP()
	for _, fs := range a.FittedStars {
		fs.RA, fs.Dec = tp.Deproject(geom.Point{X: fs.X, Y: fs.Y})
	}
	a.deprojected = true
}

// wins reports whether fs at squared distance d2 takes a reference from
// the current claimant cur at squared distance curD2.
func wins(fs *star.FittedStar, d2 float64, cur *star.FittedStar, curD2 float64) bool {
	if d2 != curD2 {
		return d2 < curD2
	}
	if fs.MeasurementCount != cur.MeasurementCount {
		return fs.MeasurementCount > cur.MeasurementCount
	}
	return fs.Index < cur.Index
}
