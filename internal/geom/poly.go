// Public domain.

package geom

import (
	"errors"
	"fmt"

	"gonum.org/v1/gonum/mat"
)

// Poly is a 2-D polynomial transform of a given total order.
//
// Inputs are normalized before monomials are formed,
//
//	u = (x - X0) * Sx,  v = (y - Y0) * Sy
//
// so that a pixel frame maps to roughly [-1, 1] and coefficients of
// different orders are of comparable size.  Monomials are ordered by total
// degree, then by decreasing power of u: 1, u, v, u², uv, v², ...
//
// Coeffs holds NTerms coefficients for the x output followed by NTerms for
// the y output.
type Poly struct {
	Order          int
	X0, Y0, Sx, Sy float64
	Coeffs         []float64
}

// NTerms returns the number of monomials of a polynomial of total order n.
func NTerms(n int) int {
	return (n + 1) * (n + 2) / 2
}

// NewIdentityPoly returns a polynomial of order n, with no input
// normalization, representing the identity.  n must be at least 1.
func NewIdentityPoly(n int) *Poly {
	p := &Poly{Order: n, Sx: 1, Sy: 1, Coeffs: make([]float64, 2*NTerms(n))}
	nt := NTerms(n)
	p.Coeffs[1] = 1    // x' = u
	p.Coeffs[nt+2] = 1 // y' = v
	return p
}

// NewNormalizedPoly returns a zero polynomial of order n normalized over
// frame f.
func NewNormalizedPoly(n int, f Frame) *Poly {
	c := f.Center()
	sx, sy := 1., 1.
	if w := f.Width(); w > 0 {
		sx = 2 / w
	}
	if h := f.Height(); h > 0 {
		sy = 2 / h
	}
	return &Poly{Order: n, X0: c.X, Y0: c.Y, Sx: sx, Sy: sy,
		Coeffs: make([]float64, 2*NTerms(n))}
}

// NPar is the number of coefficients.
func (p *Poly) NPar() int { return len(p.Coeffs) }

func (p *Poly) normalize(pt Point) (u, v float64) {
	return (pt.X - p.X0) * p.Sx, (pt.Y - p.Y0) * p.Sy
}

// Monomials evaluates the monomials at pt, appending to dst[:0].
func (p *Poly) Monomials(pt Point, dst []float64) []float64 {
	u, v := p.normalize(pt)
	return monomials(p.Order, u, v, dst)
}

func monomials(order int, u, v float64, dst []float64) []float64 {
	dst = dst[:0]
	up := make([]float64, order+1)
	vp := make([]float64, order+1)
	up[0], vp[0] = 1, 1
	for i := 1; i <= order; i++ {
		up[i] = up[i-1] * u
		vp[i] = vp[i-1] * v
	}
	for d := 0; d <= order; d++ {
		for j := 0; j <= d; j++ {
			dst = append(dst, up[d-j]*vp[j])
		}
	}
	return dst
}

// Apply implements Transform.
func (p *Poly) Apply(pt Point) Point {
	m := p.Monomials(pt, nil)
	nt := len(m)
	var x, y float64
	for k, mk := range m {
		x += p.Coeffs[k] * mk
		y += p.Coeffs[nt+k] * mk
	}
	return Point{x, y}
}

// Jacobian returns the derivatives of the output with respect to the
// (unnormalized) input at pt.
func (p *Poly) Jacobian(pt Point) Jacobian2 {
	u, v := p.normalize(pt)
	order := p.Order
	up := make([]float64, order+1)
	vp := make([]float64, order+1)
	up[0], vp[0] = 1, 1
	for i := 1; i <= order; i++ {
		up[i] = up[i-1] * u
		vp[i] = vp[i-1] * v
	}
	nt := NTerms(order)
	var j Jacobian2
	k := 0
	for d := 0; d <= order; d++ {
		for jv := 0; jv <= d; jv++ {
			iu := d - jv
			var du, dv float64
			if iu > 0 {
				du = float64(iu) * up[iu-1] * vp[jv]
			}
			if jv > 0 {
				dv = float64(jv) * up[iu] * vp[jv-1]
			}
			j[0][0] += p.Coeffs[k] * du
			j[0][1] += p.Coeffs[k] * dv
			j[1][0] += p.Coeffs[nt+k] * du
			j[1][1] += p.Coeffs[nt+k] * dv
			k++
		}
	}
	j[0][0] *= p.Sx
	j[1][0] *= p.Sx
	j[0][1] *= p.Sy
	j[1][1] *= p.Sy
	return j
}

// OffsetParams adds delta to the coefficients.
func (p *Poly) OffsetParams(delta []float64) {
	for i, d := range delta {
		p.Coeffs[i] += d
	}
}

// ErrTooFewPoints is returned by FitPoly when the system is underdetermined.
var ErrTooFewPoints = errors.New("too few points for polynomial fit")

// FitPoly fits a polynomial of order n, normalized over f, mapping src to
// dst in the least squares sense.
func FitPoly(n int, f Frame, src, dst []Point) (*Poly, error) {
	p := NewNormalizedPoly(n, f)
	if err := p.Fit(src, dst); err != nil {
		return nil, err
	}
	return p, nil
}

// Fit replaces the coefficients of p with a least squares fit mapping src to
// dst, keeping order and normalization.
func (p *Poly) Fit(src, dst []Point) error {
	nt := NTerms(p.Order)
	if len(src) != len(dst) {
		return fmt.Errorf("point count mismatch: %d vs %d", len(src), len(dst))
	}
	if len(src) < nt {
		return fmt.Errorf("%w: order %d needs %d, got %d",
			ErrTooFewPoints, p.Order, nt, len(src))
	}
	a := mat.NewDense(len(src), nt, nil)
	b := mat.NewDense(len(src), 2, nil)
	var m []float64
	for i, s := range src {
		m = p.Monomials(s, m)
		a.SetRow(i, m)
		b.Set(i, 0, dst[i].X)
		b.Set(i, 1, dst[i].Y)
	}
	var qr mat.QR
	qr.Factorize(a)
	var x mat.Dense
	if err := qr.SolveTo(&x, false, b); err != nil {
		return err
	}
	for k := 0; k < nt; k++ {
		p.Coeffs[k] = x.At(k, 0)
		p.Coeffs[nt+k] = x.At(k, 1)
	}
	return nil
}
