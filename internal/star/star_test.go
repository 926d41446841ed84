// Public domain.

package star_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/star"
	"github.com/soniakeys/jointcal/internal/wcs"
	"github.com/soniakeys/unit"
)

func ExampleCcdName() {
	fmt.Println(star.CcdName(1228, 42))
	// Output:
	// 1228_42
}

func TestSetRef(t *testing.T) {
	f1 := &star.FittedStar{Index: 0}
	f2 := &star.FittedStar{Index: 1}
	r := &star.RefStar{ID: 5}
	f1.SetRef(r)
	if f1.Ref != r || r.Fitted != f1 {
		t.Fatal("attach")
	}
	r2 := &star.RefStar{ID: 6}
	f1.SetRef(r2)
	if r.Fitted != nil || r2.Fitted != f1 {
		t.Fatal("replace")
	}
	f2.SetRef(r)
	f1.SetRef(nil)
	if f1.Ref != nil || r2.Fitted != nil || r.Fitted != f2 {
		t.Fatal("detach")
	}
}

func TestInvalidate(t *testing.T) {
	c := &star.CcdImage{}
	fs := &star.FittedStar{}
	for i := 0; i < 3; i++ {
		m := &star.MeasuredStar{Ccd: c, Valid: true, Fitted: fs}
		c.Stars = append(c.Stars, m)
		fs.Measurements = append(fs.Measurements, m)
		fs.MeasurementCount++
	}
	c.Stars = append(c.Stars, &star.MeasuredStar{Ccd: c, Valid: true})
	if n := c.ValidCount(); n != 3 {
		t.Fatal("valid", n)
	}
	c.Stars[1].Invalidate()
	c.Stars[1].Invalidate()
	if fs.MeasurementCount != 2 || c.ValidCount() != 2 {
		t.Fatal(fs.MeasurementCount, c.ValidCount())
	}
	c.Stars[3].Invalidate()
	if c.Stars[3].Valid {
		t.Fatal("unattached star still valid")
	}
}

func TestFootprint(t *testing.T) {
	s := .2 / 3600
	mk := func(ra float64) *star.CcdImage {
		return &star.CcdImage{
			BBox: geom.Frame{XMax: 2000, YMax: 2000},
			WCS: wcs.NewTan(geom.Point{X: 1000, Y: 1000},
				unit.AngleFromDeg(ra), unit.AngleFromDeg(10),
				geom.Linear{A11: -s, A22: s}),
		}
	}
	// straddles RA 0
	b := star.Footprint([]*star.CcdImage{mk(359.95), mk(.05)})
	if math.Abs(math.Remainder(b.RA.Deg(), 360)) > 1e-6 {
		t.Fatal("center ra", b.RA.Deg())
	}
	if math.Abs(b.Dec.Deg()-10) > 1e-3 {
		t.Fatal("center dec", b.Dec.Deg())
	}
	w := b.RAMax.Deg() - b.RAMin.Deg()
	// two images .1° apart in RA, each 400" wide, at cos(10°)
	want := .1 + 400./3600/math.Cos(10*math.Pi/180)
	if math.Abs(w-want) > 1e-3 {
		t.Fatal("ra width", w, want)
	}
	if b.Radius.Deg() <= w/2 || b.Radius.Deg() > w {
		t.Fatal("radius", b.Radius.Deg())
	}
	// one image just east of RA 0: radius is the half diagonal
	b = star.Footprint([]*star.CcdImage{mk(.01)})
	if r := b.Radius.Sec(); math.Abs(r-200*math.Sqrt2) > 1 {
		t.Fatal("single image radius", r)
	}
	if (star.Footprint(nil) != star.SkyBox{}) {
		t.Fatal("empty footprint")
	}
}
