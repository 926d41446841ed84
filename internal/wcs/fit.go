// Public domain.

package wcs

import (
	"fmt"

	"github.com/soniakeys/jointcal/internal/geom"
)

// gridSize is the number of samples per axis used to fit a TanSip.
const gridSize = 15

// Fit builds a TanSip of the given SIP order approximating pixToTP, a
// mapping from pixels in frame f to the tangent plane of tp.
//
// CRPIX is placed where pixToTP reaches the tangent point, so the fitted
// polynomial has no constant term.
func Fit(f geom.Frame, tp *geom.TanProjection, pixToTP func(geom.Point) geom.Point, order int) (*TanSip, error) {
	if order < 1 {
		order = 1
	}
	n := gridSize
	if m := order + 3; m > n {
		n = m
	}
	src := f.Grid(n)
	dst := make([]geom.Point, len(src))
	for i, s := range src {
		dst[i] = pixToTP(s)
	}
	full, err := geom.FitPoly(order, f, src, dst)
	if err != nil {
		return nil, fmt.Errorf("wcs fit: %w", err)
	}
	crpix, err := solveOrigin(full, f.Center())
	if err != nil {
		return nil, err
	}
	// refit about crpix with the same scaling so coefficients convert
	// exactly to unnormalized pixel offsets.
	p := &geom.Poly{Order: order, X0: crpix.X, Y0: crpix.Y, Sx: full.Sx, Sy: full.Sy,
		Coeffs: make([]float64, 2*geom.NTerms(order))}
	if err := p.Fit(src, dst); err != nil {
		return nil, fmt.Errorf("wcs fit: %w", err)
	}
	nt := geom.NTerms(order)
	w := &TanSip{CRPIX: crpix, RA: tp.RA0, Dec: tp.Dec0}
	w.CD = geom.Linear{
		A11: p.Coeffs[1] * p.Sx, A12: p.Coeffs[2] * p.Sy,
		A21: p.Coeffs[nt+1] * p.Sx, A22: p.Coeffs[nt+2] * p.Sy,
	}
	if order < 2 {
		return w, nil
	}
	inv, ok := w.CD.Invert()
	if !ok {
		return nil, fmt.Errorf("wcs fit: singular CD matrix")
	}
	w.Order = order
	w.A = triangle(order)
	w.B = triangle(order)
	k := 0
	for d := 0; d <= order; d++ {
		for q := 0; q <= d; q++ {
			pu := d - q
			if d >= 2 {
				s := pow(p.Sx, pu) * pow(p.Sy, q)
				c := inv.Apply(geom.Point{X: p.Coeffs[k] * s, Y: p.Coeffs[nt+k] * s})
				w.A[pu][q] = c.X
				w.B[pu][q] = c.Y
			}
			k++
		}
	}
	return w, nil
}

func triangle(n int) [][]float64 {
	t := make([][]float64, n+1)
	for i := range t {
		t[i] = make([]float64, n+1-i)
	}
	return t
}

func pow(x float64, n int) float64 {
	r := 1.
	for ; n > 0; n-- {
		r *= x
	}
	return r
}

// solveOrigin finds the input point where p evaluates to (0, 0).
func solveOrigin(p *geom.Poly, start geom.Point) (geom.Point, error) {
	x := start
	for i := 0; i < 50; i++ {
		r := p.Apply(x)
		j := p.Jacobian(x)
		ji, ok := geom.Linear{A11: j[0][0], A12: j[0][1], A21: j[1][0], A22: j[1][1]}.Invert()
		if !ok {
			return x, fmt.Errorf("wcs fit: singular mapping at %v", x)
		}
		d := ji.Apply(r)
		x.X -= d.X
		x.Y -= d.Y
		if d.X*d.X+d.Y*d.Y < 1e-18 {
			return x, nil
		}
	}
	return x, nil
}
