// Public domain.

// Package geom holds the planar geometry used by jointcal: points, frames,
// affine and polynomial transforms and the gnomonic projection.
package geom

import "math"

// Point is a position in some planar frame.  Pixel frames are in pixels,
// tangent planes are in degrees.
type Point struct {
	X, Y float64
}

// Dist2 returns the squared distance between p and q.
func (p Point) Dist2(q Point) float64 {
	dx := p.X - q.X
	dy := p.Y - q.Y
	return dx*dx + dy*dy
}

// Frame is an axis aligned rectangle.
type Frame struct {
	XMin, YMin, XMax, YMax float64
}

// Width of the frame.
func (f Frame) Width() float64 { return f.XMax - f.XMin }

// Height of the frame.
func (f Frame) Height() float64 { return f.YMax - f.YMin }

// Center returns the frame midpoint.
func (f Frame) Center() Point {
	return Point{(f.XMin + f.XMax) * .5, (f.YMin + f.YMax) * .5}
}

// Contains reports whether p is inside or on the frame boundary.
func (f Frame) Contains(p Point) bool {
	return p.X >= f.XMin && p.X <= f.XMax && p.Y >= f.YMin && p.Y <= f.YMax
}

// Union returns the smallest frame enclosing f and g.  A zero Frame is
// treated as empty.
func (f Frame) Union(g Frame) Frame {
	if f == (Frame{}) {
		return g
	}
	return Frame{
		math.Min(f.XMin, g.XMin), math.Min(f.YMin, g.YMin),
		math.Max(f.XMax, g.XMax), math.Max(f.YMax, g.YMax),
	}
}

// Overlaps reports whether f and g share any area.
func (f Frame) Overlaps(g Frame) bool {
	return f.XMin <= g.XMax && g.XMin <= f.XMax &&
		f.YMin <= g.YMax && g.YMin <= f.YMax
}

// Grid returns n x n points evenly covering the frame, edges included.
func (f Frame) Grid(n int) []Point {
	if n < 2 {
		return []Point{f.Center()}
	}
	pts := make([]Point, 0, n*n)
	dx := f.Width() / float64(n-1)
	dy := f.Height() / float64(n-1)
	for j := 0; j < n; j++ {
		for i := 0; i < n; i++ {
			pts = append(pts, Point{f.XMin + float64(i)*dx, f.YMin + float64(j)*dy})
		}
	}
	return pts
}

// Transform maps points between planar frames.
type Transform interface {
	Apply(Point) Point
}

// Linear is an affine transform,
//
//	x' = Dx + A11 x + A12 y
//	y' = Dy + A21 x + A22 y
type Linear struct {
	Dx, Dy             float64
	A11, A12, A21, A22 float64
}

// Identity is the identity affine transform.
var Identity = Linear{A11: 1, A22: 1}

// Apply implements Transform.
func (l Linear) Apply(p Point) Point {
	return Point{
		l.Dx + l.A11*p.X + l.A12*p.Y,
		l.Dy + l.A21*p.X + l.A22*p.Y,
	}
}

// Det returns the determinant of the linear part.
func (l Linear) Det() float64 {
	return l.A11*l.A22 - l.A12*l.A21
}

// Invert returns the inverse transform.  ok is false for a singular
// transform.
func (l Linear) Invert() (inv Linear, ok bool) {
	d := l.Det()
	if d == 0 {
		return
	}
	inv.A11 = l.A22 / d
	inv.A12 = -l.A12 / d
	inv.A21 = -l.A21 / d
	inv.A22 = l.A11 / d
	inv.Dx = -(inv.A11*l.Dx + inv.A12*l.Dy)
	inv.Dy = -(inv.A21*l.Dx + inv.A22*l.Dy)
	return inv, true
}

// Compose returns the transform applying m first, then l.
func (l Linear) Compose(m Linear) Linear {
	return Linear{
		Dx:  l.Dx + l.A11*m.Dx + l.A12*m.Dy,
		Dy:  l.Dy + l.A21*m.Dx + l.A22*m.Dy,
		A11: l.A11*m.A11 + l.A12*m.A21,
		A12: l.A11*m.A12 + l.A12*m.A22,
		A21: l.A21*m.A11 + l.A22*m.A21,
		A22: l.A21*m.A12 + l.A22*m.A22,
	}
}

// Jacobian2 is a 2x2 matrix of partial derivatives, J[i][j] = d out_i / d in_j.
type Jacobian2 [2][2]float64

// Transform2 returns J V Jᵀ for a symmetric 2x2 covariance given as
// vxx, vyy, vxy.
func (j Jacobian2) Transform2(vxx, vyy, vxy float64) (oxx, oyy, oxy float64) {
	a, b, c, d := j[0][0], j[0][1], j[1][0], j[1][1]
	oxx = a*a*vxx + 2*a*b*vxy + b*b*vyy
	oyy = c*c*vxx + 2*c*d*vxy + d*d*vyy
	oxy = a*c*vxx + (a*d+b*c)*vxy + b*d*vyy
	return
}
