// Public domain.

// Package wcs implements the TAN-SIP world coordinate representation used
// for both the input exposure WCS and the exported fit results.
package wcs

import (
	"errors"
	"fmt"
	"math"

	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/unit"
)

// TanSip is a gnomonic projection with a linear CD matrix and optional SIP
// polynomial distortion.
//
// With u = x - CRPIX.X, v = y - CRPIX.Y,
//
//	(ξ, η) = CD · (u + f(u, v), v + g(u, v))
//
// where f = Σ A[p][q] uᵖ vᑫ and g = Σ B[p][q] uᵖ vᑫ for 2 <= p+q <= Order.
// ξ, η are tangent plane degrees about (RA, Dec).
type TanSip struct {
	CRPIX   geom.Point
	RA, Dec unit.Angle
	CD      geom.Linear // Dx, Dy unused
	Order   int         // SIP order, 0 for pure TAN
	A, B    [][]float64
}

// NewTan returns a TanSip without distortion.
func NewTan(crpix geom.Point, ra, dec unit.Angle, cd geom.Linear) *TanSip {
	cd.Dx, cd.Dy = 0, 0
	return &TanSip{CRPIX: crpix, RA: ra, Dec: dec, CD: cd}
}

// Projection returns the tangent plane projection about CRVAL.
func (w *TanSip) Projection() *geom.TanProjection {
	return geom.NewTanProjection(w.RA, w.Dec)
}

// PixToTP maps pixel coordinates to tangent plane degrees.
func (w *TanSip) PixToTP(p geom.Point) geom.Point {
	u := p.X - w.CRPIX.X
	v := p.Y - w.CRPIX.Y
	f, g := u, v
	if w.Order >= 2 {
		up := powers(u, w.Order)
		vp := powers(v, w.Order)
		for pu := 0; pu <= w.Order; pu++ {
			for q := 0; q <= w.Order-pu; q++ {
				if pu+q < 2 {
					continue
				}
				m := up[pu] * vp[q]
				f += w.A[pu][q] * m
				g += w.B[pu][q] * m
			}
		}
	}
	return w.CD.Apply(geom.Point{X: f, Y: g})
}

func powers(x float64, n int) []float64 {
	p := make([]float64, n+1)
	p[0] = 1
	for i := 1; i <= n; i++ {
		p[i] = p[i-1] * x
	}
	return p
}

// PixToSky maps pixel coordinates to the sky.
func (w *TanSip) PixToSky(p geom.Point) (ra, dec unit.Angle) {
	return w.Projection().Deproject(w.PixToTP(p))
}

// ErrNoInverse is returned when SkyToPix fails to converge or the position
// cannot be projected.
var ErrNoInverse = errors.New("wcs: sky position has no pixel inverse")

// SkyToPix maps a sky position to pixel coordinates by Newton iteration.
func (w *TanSip) SkyToPix(ra, dec unit.Angle) (geom.Point, error) {
	tp, ok := w.Projection().Project(ra, dec)
	if !ok {
		return geom.Point{}, ErrNoInverse
	}
	inv, ok := w.CD.Invert()
	if !ok {
		return geom.Point{}, fmt.Errorf("%w: singular CD", ErrNoInverse)
	}
	lin := inv.Apply(tp)
	p := geom.Point{X: lin.X + w.CRPIX.X, Y: lin.Y + w.CRPIX.Y}
	if w.Order < 2 {
		return p, nil
	}
	const h = 1e-3
	for i := 0; i < 20; i++ {
		c := w.PixToTP(p)
		rx, ry := c.X-tp.X, c.Y-tp.Y
		px := w.PixToTP(geom.Point{X: p.X + h, Y: p.Y})
		py := w.PixToTP(geom.Point{X: p.X, Y: p.Y + h})
		j := geom.Linear{
			A11: (px.X - c.X) / h, A12: (py.X - c.X) / h,
			A21: (px.Y - c.Y) / h, A22: (py.Y - c.Y) / h,
		}
		ji, ok := j.Invert()
		if !ok {
			break
		}
		d := ji.Apply(geom.Point{X: rx, Y: ry})
		p.X -= d.X
		p.Y -= d.Y
		if d.X*d.X+d.Y*d.Y < 1e-20 {
			return p, nil
		}
	}
	if c := w.PixToTP(p); math.Hypot(c.X-tp.X, c.Y-tp.Y) > 1e-9 {
		return p, ErrNoInverse
	}
	return p, nil
}

// Header renders FITS style keyword cards.
func (w *TanSip) Header() []string {
	ctype := "TAN"
	if w.Order >= 2 {
		ctype = "TAN-SIP"
	}
	h := []string{
		card("CTYPE1", "'RA---"+ctype+"'"),
		card("CTYPE2", "'DEC--"+ctype+"'"),
		card("CRPIX1", fmtF(w.CRPIX.X+1)), // FITS pixels are 1-based
		card("CRPIX2", fmtF(w.CRPIX.Y+1)),
		card("CRVAL1", fmtF(w.RA.Deg())),
		card("CRVAL2", fmtF(w.Dec.Deg())),
		card("CD1_1", fmtF(w.CD.A11)),
		card("CD1_2", fmtF(w.CD.A12)),
		card("CD2_1", fmtF(w.CD.A21)),
		card("CD2_2", fmtF(w.CD.A22)),
	}
	if w.Order < 2 {
		return h
	}
	h = append(h, card("A_ORDER", fmt.Sprint(w.Order)))
	for p := 0; p <= w.Order; p++ {
		for q := 0; q <= w.Order-p; q++ {
			if p+q >= 2 {
				h = append(h, card(fmt.Sprintf("A_%d_%d", p, q), fmtF(w.A[p][q])))
			}
		}
	}
	h = append(h, card("B_ORDER", fmt.Sprint(w.Order)))
	for p := 0; p <= w.Order; p++ {
		for q := 0; q <= w.Order-p; q++ {
			if p+q >= 2 {
				h = append(h, card(fmt.Sprintf("B_%d_%d", p, q), fmtF(w.B[p][q])))
			}
		}
	}
	return h
}

func card(k, v string) string { return fmt.Sprintf("%-8s= %20s", k, v) }

func fmtF(x float64) string { return fmt.Sprintf("%.15G", x) }
