// Public domain.

package geom_test

import (
	"fmt"
	"math"
	"testing"

	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/unit"
)

func ExampleNTerms() {
	for n := 1; n <= 3; n++ {
		fmt.Println(n, geom.NTerms(n))
	}
	// Output:
	// 1 3
	// 2 6
	// 3 10
}

func TestLinearInvert(t *testing.T) {
	l := geom.Linear{Dx: 3, Dy: -2, A11: 1.1, A12: .2, A21: -.3, A22: .9}
	inv, ok := l.Invert()
	if !ok {
		t.Fatal("singular")
	}
	p := geom.Point{X: 12, Y: -7}
	q := inv.Apply(l.Apply(p))
	if q.Dist2(p) > 1e-20 {
		t.Fatal("round trip", p, q)
	}
	if c := inv.Compose(l).Apply(p); c.Dist2(p) > 1e-20 {
		t.Fatal("compose", p, c)
	}
	if _, ok := (geom.Linear{}).Invert(); ok {
		t.Fatal("zero transform inverted")
	}
}

func TestIdentityPoly(t *testing.T) {
	p := geom.NewIdentityPoly(3)
	q := geom.Point{X: .3, Y: -1.7}
	if r := p.Apply(q); r != q {
		t.Fatal(q, r)
	}
	j := p.Jacobian(q)
	if j != (geom.Jacobian2{{1, 0}, {0, 1}}) {
		t.Fatal(j)
	}
}

func TestFitPolyRecovers(t *testing.T) {
	f := geom.Frame{XMax: 2048, YMax: 4096}
	truth := func(p geom.Point) geom.Point {
		return geom.Point{
			.1 + 5e-5*p.X - 1e-6*p.Y + 3e-11*p.X*p.X,
			-.2 + 1e-6*p.X + 5e-5*p.Y - 2e-12*p.X*p.Y*p.Y/1000,
		}
	}
	src := f.Grid(8)
	dst := make([]geom.Point, len(src))
	for i, s := range src {
		dst[i] = truth(s)
	}
	p, err := geom.FitPoly(3, f, src, dst)
	if err != nil {
		t.Fatal(err)
	}
	for _, s := range []geom.Point{{X: 10, Y: 20}, {X: 1000, Y: 3000}, {X: 2000, Y: 100}} {
		if d := math.Sqrt(p.Apply(s).Dist2(truth(s))); d > 1e-10 {
			t.Fatal("fit error", s, d)
		}
	}
	if _, err := geom.FitPoly(3, f, src[:5], dst[:5]); err == nil {
		t.Fatal("expected too few points error")
	}
}

func TestPolyJacobianMatchesDifferences(t *testing.T) {
	f := geom.Frame{XMax: 100, YMax: 200}
	p := geom.NewNormalizedPoly(3, f)
	for i := range p.Coeffs {
		p.Coeffs[i] = math.Sin(float64(i + 1))
	}
	at := geom.Point{X: 33, Y: 150}
	j := p.Jacobian(at)
	h := 1e-5
	px := p.Apply(geom.Point{at.X + h, at.Y})
	mx := p.Apply(geom.Point{at.X - h, at.Y})
	py := p.Apply(geom.Point{at.X, at.Y + h})
	my := p.Apply(geom.Point{at.X, at.Y - h})
	num := geom.Jacobian2{
		{(px.X - mx.X) / (2 * h), (py.X - my.X) / (2 * h)},
		{(px.Y - mx.Y) / (2 * h), (py.Y - my.Y) / (2 * h)},
	}
	for r := 0; r < 2; r++ {
		for c := 0; c < 2; c++ {
			if math.Abs(j[r][c]-num[r][c]) > 1e-6 {
				t.Fatal(r, c, j[r][c], num[r][c])
			}
		}
	}
}

func TestTanRoundTrip(t *testing.T) {
	tp := geom.NewTanProjection(unit.AngleFromDeg(214.88), unit.AngleFromDeg(52.66))
	ra, dec := unit.AngleFromDeg(215.3), unit.AngleFromDeg(52.1)
	p, ok := tp.Project(ra, dec)
	if !ok {
		t.Fatal("not projected")
	}
	r2, d2 := tp.Deproject(p)
	if math.Abs((r2-ra).Sec()) > 1e-6 || math.Abs((d2-dec).Sec()) > 1e-6 {
		t.Fatal(ra.Deg(), dec.Deg(), r2.Deg(), d2.Deg())
	}
	if c, _ := tp.Project(tp.RA0, tp.Dec0); c != (geom.Point{}) {
		t.Fatal("tangent point maps to", c)
	}
	if _, ok := tp.Project(tp.RA0+unit.AngleFromDeg(180), -tp.Dec0); ok {
		t.Fatal("antipode projected")
	}
}

func TestTanJacobian(t *testing.T) {
	tp := geom.NewTanProjection(0, 0)
	// at the tangent point on the equator the projection is locally the
	// identity in degrees.
	j := tp.Jacobian(0, 0)
	if math.Abs(j[0][0]-1) > 1e-6 || math.Abs(j[1][1]-1) > 1e-6 ||
		math.Abs(j[0][1]) > 1e-6 || math.Abs(j[1][0]) > 1e-6 {
		t.Fatal(j)
	}
}

func TestJacobianTransform2(t *testing.T) {
	j := geom.Jacobian2{{2, 0}, {0, 3}}
	xx, yy, xy := j.Transform2(1, 1, .5)
	if xx != 4 || yy != 9 || xy != 3 {
		t.Fatal(xx, yy, xy)
	}
}
