// Public domain.

package assoc_test

import (
	"errors"
	"sort"
	"testing"

	"github.com/soniakeys/jointcal/internal/assoc"
	"github.com/soniakeys/jointcal/internal/dataset"
	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/sim"
	"github.com/soniakeys/jointcal/internal/wcs"
	"github.com/soniakeys/unit"
	xrand "golang.org/x/exp/rand"
)

func randomPoints(rnd *xrand.Rand, n int) []geom.Point {
	p := make([]geom.Point, n)
	for i := range p {
		p[i] = geom.Point{X: rnd.Float64() * 100, Y: rnd.Float64() * 100}
	}
	return p
}

func TestClosestMatchesBruteForce(t *testing.T) {
	rnd := xrand.New(&xrand.PCGSource{})
	rnd.Seed(3)
	pts := randomPoints(rnd, 500)
	f := assoc.NewFinder(pts)
	if f.Len() != len(pts) {
		t.Fatal("len", f.Len())
	}
	for _, q := range randomPoints(rnd, 200) {
		const maxDist = 4
		want, wantD2 := -1, maxDist*maxDist*1.
		for i, p := range pts {
			if d2 := q.Dist2(p); d2 < wantD2 {
				want, wantD2 = i, d2
			}
		}
		got, d2 := f.Closest(q, maxDist)
		if got != want {
			t.Fatal(q, "got", got, "want", want)
		}
		if got >= 0 && d2 != wantD2 {
			t.Fatal("d2", d2, wantD2)
		}
	}
}

func TestClosestTieLowerIndex(t *testing.T) {
	pts := []geom.Point{{X: 5, Y: 5}, {X: 3, Y: 3}, {X: 1, Y: 1}, {X: 3, Y: 3}}
	f := assoc.NewFinder(pts)
	if i, _ := f.Closest(geom.Point{X: 3, Y: 3}, 1); i != 1 {
		t.Fatal("coincident", i)
	}
	// equidistant from 0, 1 and 3
	if i, _ := f.Closest(geom.Point{X: 3, Y: 5}, 3); i != 0 {
		t.Fatal("equidistant", i)
	}
	if i, _ := f.Closest(geom.Point{X: 50, Y: 50}, 1); i != -1 {
		t.Fatal("out of range", i)
	}
	if i, _ := assoc.NewFinder(nil).Closest(geom.Point{}, 1); i != -1 {
		t.Fatal("empty", i)
	}
}

func TestReciprocalMatchesSymmetric(t *testing.T) {
	rnd := xrand.New(&xrand.PCGSource{})
	rnd.Seed(7)
	a := randomPoints(rnd, 300)
	var b []geom.Point
	for i, p := range a {
		if i%5 == 0 {
			continue
		}
		b = append(b, geom.Point{X: p.X + .3*rnd.NormFloat64(), Y: p.Y + .3*rnd.NormFloat64()})
	}
	b = append(b, randomPoints(rnd, 50)...)
	ab := assoc.ReciprocalMatches(a, b, 1.5)
	ba := assoc.ReciprocalMatches(b, a, 1.5)
	if len(ab) == 0 || len(ab) != len(ba) {
		t.Fatal(len(ab), len(ba))
	}
	swapped := make([]assoc.Match, len(ba))
	for k, m := range ba {
		swapped[k] = assoc.Match{I: m.J, J: m.I}
	}
	sort.Slice(swapped, func(i, j int) bool { return swapped[i].I < swapped[j].I })
	for k := range ab {
		if ab[k] != swapped[k] {
			t.Fatal(k, ab[k], swapped[k])
		}
	}
	// each index used at most once
	seenI := map[int]bool{}
	seenJ := map[int]bool{}
	for _, m := range ab {
		if seenI[m.I] || seenJ[m.J] {
			t.Fatal("reused", m)
		}
		seenI[m.I] = true
		seenJ[m.J] = true
	}
}

func TestEmptyAssociations(t *testing.T) {
	a := assoc.New()
	if err := a.Check(); err != assoc.ErrNoCcdImages {
		t.Fatal(err)
	}
	if a.NCcdImagesValidForFit() != 0 || a.FittedStarListSize() != 0 {
		t.Fatal("not empty")
	}
}

// tinyMeta is a one square arcminute image with an undistorted WCS.
func tinyMeta(visit int) dataset.ExposureMeta {
	s := .2 / 3600
	return dataset.ExposureMeta{
		Visit:      visit,
		Filter:     "r",
		BBox:       geom.Frame{XMax: 300, YMax: 300},
		PhotoCalib: 1,
		WCS: wcs.NewTan(geom.Point{X: 150, Y: 150},
			unit.AngleFromDeg(30), unit.AngleFromDeg(-10),
			geom.Linear{A11: -s, A22: s}),
	}
}

func TestAddImageNoSources(t *testing.T) {
	a := assoc.New()
	err := a.AddImage(nil, tinyMeta(1), assoc.Control{})
	if !errors.Is(err, assoc.ErrNoSources) {
		t.Fatal(err)
	}
	// sources all below the S/N cut
	src := []dataset.Source{{X: 10, Y: 10, InstFlux: 10, InstFluxErr: 5}}
	err = a.AddImage(src, tinyMeta(1), assoc.Control{MinSN: 3})
	if !errors.Is(err, assoc.ErrNoSources) {
		t.Fatal(err)
	}
	if len(a.CcdImages) != 0 {
		t.Fatal("image registered")
	}
	if err := a.AddImage(src, tinyMeta(1), assoc.Control{}); err != nil {
		t.Fatal(err)
	}
	if len(a.CcdImages) != 1 || a.CcdImages[0].Name != "1_0" {
		t.Fatal(a.CcdImages)
	}
}

func TestRefTieGoesToLowerIndex(t *testing.T) {
	a := assoc.New()
	src := []dataset.Source{
		{ID: 1, X: 100, Y: 100, InstFlux: 100, InstFluxErr: 1},
		{ID: 2, X: 100, Y: 100, InstFlux: 100, InstFluxErr: 1},
		{ID: 3, X: 200, Y: 200, InstFlux: 100, InstFluxErr: 1},
	}
	meta := tinyMeta(1)
	if err := a.AddImage(src, meta, assoc.Control{}); err != nil {
		t.Fatal(err)
	}
	a.AssociateCatalogs(1)
	if a.FittedStarListSize() != 3 {
		t.Fatal("fitted stars", a.FittedStarListSize())
	}
	ra, dec := meta.WCS.PixToSky(geom.Point{X: 100, Y: 100})
	ref := []dataset.RefSource{{ID: 9, RA: ra, Dec: dec,
		Flux: map[string]float64{"r": 50}}}
	if n := a.CollectRefStars(ref, 1, "r"); n != 1 {
		t.Fatal("claimed", n)
	}
	fs := a.FittedStars
	if fs[0].Ref == nil || fs[1].Ref != nil || fs[2].Ref != nil {
		t.Fatal("claim", fs[0].Ref, fs[1].Ref, fs[2].Ref)
	}
	if fs[0].Ref.Fitted != fs[0] || fs[0].Ref.Flux != 50 {
		t.Fatal("ref", fs[0].Ref)
	}
	if a.RefStars[0] != fs[0].Ref {
		t.Fatal("ref list")
	}
}

func simAssociations(t *testing.T) (*assoc.Associations, *dataset.Dataset) {
	ds, err := sim.Generate(sim.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	a := assoc.New()
	for _, e := range ds.Exposures {
		if err := a.AddImage(e.Sources, e.ExposureMeta, assoc.Control{}); err != nil {
			t.Fatal(err)
		}
	}
	return a, ds
}

func TestAssociateSim(t *testing.T) {
	a, ds := simAssociations(t)
	nDet := 0
	for _, c := range a.CcdImages {
		nDet += len(c.Stars)
	}
	if nDet < 1200 {
		t.Fatal("detections", nDet)
	}
	a.AssociateCatalogs(3)
	if err := a.Check(); err != assoc.ErrNoRefStars {
		t.Fatal(err)
	}
	pairs := 0
	for i, fs := range a.FittedStars {
		if fs.Index != i {
			t.Fatal("index", i, fs.Index)
		}
		if fs.MeasurementCount != len(fs.Measurements) || fs.MeasurementCount > len(a.CcdImages) {
			t.Fatal("measurements", fs.MeasurementCount, len(fs.Measurements))
		}
		seen := map[int]bool{}
		for _, m := range fs.Measurements {
			if m.Fitted != fs {
				t.Fatal("back pointer")
			}
			if seen[m.Ccd.Index] {
				t.Fatal("two measurements in one image")
			}
			seen[m.Ccd.Index] = true
		}
		if fs.MeasurementCount == 2 {
			pairs++
		}
	}
	if pairs < 300 {
		t.Fatal("pairs", pairs)
	}
	t.Log(len(a.FittedStars), "fitted stars,", pairs, "pairs")

	nRef := a.CollectRefStars(ds.RefCat, 3, "r")
	if nRef < 300 || nRef != a.RefStarListSize() {
		t.Fatal("refs", nRef, a.RefStarListSize())
	}
	refs := map[int64]bool{}
	for _, r := range a.RefStars {
		if refs[r.ID] {
			t.Fatal("ref claimed twice", r.ID)
		}
		refs[r.ID] = true
		if r.Fitted == nil || r.Fitted.Ref != r {
			t.Fatal("ref back pointer", r.ID)
		}
	}

	a.SelectFittedStars(2)
	if a.Deprojected() {
		t.Fatal("deprojected after selection")
	}
	for i, fs := range a.FittedStars {
		if fs.MeasurementCount < 2 || fs.Index != i {
			t.Fatal("selection", i, fs.MeasurementCount)
		}
	}
	for _, c := range a.CcdImages {
		for _, m := range c.Stars {
			if m.Fitted != nil && m.Fitted.MeasurementCount < 2 {
				t.Fatal("dangling measurement")
			}
		}
	}
	if err := a.Check(); err != nil {
		t.Fatal(err)
	}
	if a.Metrics.SelectedFittedStars != len(a.FittedStars) ||
		a.Metrics.SelectedRefStars != len(a.RefStars) ||
		a.Metrics.SelectedCcdImages != 2 {
		t.Fatalf("%+v", a.Metrics)
	}
	a.DeprojectFittedStars()
	if !a.Deprojected() {
		t.Fatal("not deprojected")
	}

	a.SelectFittedStars(3)
	if err := a.Check(); err != assoc.ErrNoFittedStars {
		t.Fatal(err)
	}
	if a.RefStarListSize() != 0 || a.NCcdImagesValidForFit() != 0 {
		t.Fatal("refs or images left", a.RefStarListSize(), a.NCcdImagesValidForFit())
	}
}

func TestSkyBoxCoversImages(t *testing.T) {
	a, _ := simAssociations(t)
	b := a.SkyBox()
	for _, c := range a.CcdImages {
		ra, dec := c.WCS.PixToSky(c.BBox.Center())
		if ra.Deg() < b.RAMin.Deg() || ra.Deg() > b.RAMax.Deg() ||
			dec.Deg() < b.DecMin.Deg() || dec.Deg() > b.DecMax.Deg() {
			t.Fatal(c.Name, "center outside sky box")
		}
	}
	tp := a.CommonTP()
	if p, ok := tp.Project(b.RA, b.Dec); !ok || p.X*p.X+p.Y*p.Y > 1e-20 {
		t.Fatal("tangent point", p)
	}
}
