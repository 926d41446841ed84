// Public domain.

package geom

import (
	"math"

	"github.com/soniakeys/unit"
)

// TanProjection is a gnomonic projection about a tangent point.  Tangent
// plane coordinates are in degrees, x toward increasing RA, y toward
// increasing Dec.
type TanProjection struct {
	RA0, Dec0 unit.Angle
	sd0, cd0  float64
}

// NewTanProjection constructs a projection about ra0, dec0.
func NewTanProjection(ra0, dec0 unit.Angle) *TanProjection {
	t := &TanProjection{RA0: ra0, Dec0: dec0}
	t.sd0, t.cd0 = math.Sincos(dec0.Rad())
	return t
}

const rad2deg = 180 / math.Pi

// Project maps a sky position to the tangent plane.  ok is false for
// positions 90 degrees or more from the tangent point.
func (t *TanProjection) Project(ra, dec unit.Angle) (p Point, ok bool) {
	sd, cd := math.Sincos(dec.Rad())
	sda, cda := math.Sincos(ra.Rad() - t.RA0.Rad())
	cosc := t.sd0*sd + t.cd0*cd*cda
	if !(cosc > 0) {
		return
	}
	p.X = cd * sda / cosc * rad2deg
	p.Y = (t.cd0*sd - t.sd0*cd*cda) / cosc * rad2deg
	return p, true
}

// Deproject maps a tangent plane position back to the sky.  RA is returned
// in [0, 2π).
func (t *TanProjection) Deproject(p Point) (ra, dec unit.Angle) {
	xi := p.X / rad2deg
	eta := p.Y / rad2deg
	denom := t.cd0 - eta*t.sd0
	r := t.RA0.Rad() + math.Atan2(xi, denom)
	d := math.Atan2(t.sd0+eta*t.cd0, math.Hypot(xi, denom))
	r = math.Mod(r, 2*math.Pi)
	if r < 0 {
		r += 2 * math.Pi
	}
	return unit.Angle(r), unit.Angle(d)
}

// jacobianStep is the finite difference step, in degrees, for Jacobian.
const jacobianStep = 1e-6

// Jacobian returns the derivatives of the tangent plane position with
// respect to RA and Dec, both in degrees, at ra, dec.  Computed by central
// differences.
func (t *TanProjection) Jacobian(ra, dec unit.Angle) Jacobian2 {
	h := unit.AngleFromDeg(jacobianStep)
	pr, _ := t.Project(ra+h, dec)
	mr, _ := t.Project(ra-h, dec)
	pd, _ := t.Project(ra, dec+h)
	md, _ := t.Project(ra, dec-h)
	s := 1 / (2 * jacobianStep)
	return Jacobian2{
		{(pr.X - mr.X) * s, (pd.X - md.X) * s},
		{(pr.Y - mr.Y) * s, (pd.Y - md.Y) * s},
	}
}
