// Public domain.

package star

import (
	"math"

	"github.com/soniakeys/coord"
	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/unit"
)

// SkyBox is the sky region covered by a set of images.
//
// RAMin and RAMax are measured continuously through the center RA, so
// RAMin may be negative or RAMax exceed 2π for a box straddling RA 0.
type SkyBox struct {
	RAMin, RAMax   unit.Angle
	DecMin, DecMax unit.Angle
	RA, Dec        unit.Angle // center
	Radius         unit.Angle // center to farthest corner
}

// footprintGrid is the number of points per side sampled on each image.
const footprintGrid = 3

// Footprint returns the sky box covering the bounding boxes of ccds, as
// mapped by their input WCS.  The zero SkyBox is returned for no images.
func Footprint(ccds []*CcdImage) SkyBox {
	type radec struct{ ra, dec unit.Angle }
	var pts []radec
	var sum coord.Cart
	for _, c := range ccds {
		for _, p := range c.BBox.Grid(footprintGrid) {
			ra, dec := c.WCS.PixToSky(p)
			pts = append(pts, radec{ra, dec})
			u := unitVector(ra, dec)
			sum.Add(&sum, &u)
		}
	}
	if len(pts) == 0 {
		return SkyBox{}
	}
	var b SkyBox
	sum.MulScalar(&sum, 1/math.Sqrt(sum.Square()))
	b.RA = unit.Angle(math.Atan2(sum.Y, sum.X))
	if b.RA < 0 {
		b.RA += 2 * math.Pi
	}
	b.Dec = unit.Angle(math.Asin(sum.Z))
	b.RAMin, b.DecMin = math.MaxFloat64, math.MaxFloat64
	b.RAMax, b.DecMax = -math.MaxFloat64, -math.MaxFloat64
	for _, p := range pts {
		ra := b.RA + unit.Angle(math.Remainder((p.ra-b.RA).Rad(), 2*math.Pi))
		b.RAMin = unit.Angle(math.Min(b.RAMin.Rad(), ra.Rad()))
		b.RAMax = unit.Angle(math.Max(b.RAMax.Rad(), ra.Rad()))
		b.DecMin = unit.Angle(math.Min(b.DecMin.Rad(), p.dec.Rad()))
		b.DecMax = unit.Angle(math.Max(b.DecMax.Rad(), p.dec.Rad()))
		if s := angle.Sep(b.RA, b.Dec, ra, p.dec); s > b.Radius {
			b.Radius = s
		}
	}
	return b
}

// TanProjection returns a gnomonic projection about the box center.
func (b SkyBox) TanProjection() *geom.TanProjection {
	return geom.NewTanProjection(b.RA, b.Dec)
}

func unitVector(ra, dec unit.Angle) coord.Cart {
	sd, cd := math.Sincos(dec.Rad())
	sr, cr := math.Sincos(ra.Rad())
	return coord.Cart{X: cr * cd, Y: sr * cd, Z: sd}
}
