// Public domain.

package fit

import (
	"math"
	"testing"

	"github.com/soniakeys/unit"
)

func TestTupleNames(t *testing.T) {
	for _, tc := range []struct{ base, meas, ref string }{
		{"out/astrometry-initial.csv", "out/astrometry-initial-meas.csv", "out/astrometry-initial-ref.csv"},
		{"chi2", "chi2-meas.csv", "chi2-ref.csv"},
		{"a.b/c.txt", "a.b/c-meas.txt", "a.b/c-ref.txt"},
	} {
		m, r := tupleNames(tc.base)
		if m != tc.meas || r != tc.ref {
			t.Fatal(tc.base, m, r)
		}
	}
}

func TestTermChi2(t *testing.T) {
	var tm term
	tm.n = 2
	tm.r = [2]float64{1, 2}
	if !tm.invert2(4, 1, 0) {
		t.Fatal("invert")
	}
	tm.setChi2()
	if tm.chi2 != 1./4+4 {
		t.Fatal(tm.chi2)
	}
	if tm.invert2(1, 1, 1) {
		t.Fatal("singular covariance inverted")
	}
	tm = term{n: 1, r: [2]float64{3}}
	tm.w[0][0] = .5
	tm.setChi2()
	if tm.chi2 != 4.5 {
		t.Fatal(tm.chi2)
	}
}

func TestRefRA(t *testing.T) {
	for _, tc := range []struct{ near, ra, want float64 }{
		{359.99, .01, 360.01},
		{.01, 359.99, -.01},
		{180, 181, 181},
	} {
		got := refRA(unit.AngleFromDeg(tc.near), unit.AngleFromDeg(tc.ra)).Deg()
		if math.Abs(got-tc.want) > 1e-9 {
			t.Fatal(tc.near, tc.ra, got)
		}
	}
}
