// Public domain.

// Package sim generates synthetic jointcal datasets: a star field observed
// in several dithered visits through a distorted focal plane, with a noisy
// reference catalog.
package sim

import (
	"fmt"
	"math"

	"github.com/soniakeys/jointcal/internal/dataset"
	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/wcs"
	"github.com/soniakeys/unit"
	xrand "golang.org/x/exp/rand"
)

// Config describes a synthetic field.
type Config struct {
	Name   string
	Seed   uint64
	Filter string

	RA, Dec  unit.Angle // field center
	NStars   int
	NVisits  int
	NCcds    int     // per visit, on a square grid
	CcdSize  float64 // pixels, square
	Gap      float64 // pixels between ccds
	Scale    float64 // arcsec per pixel
	Dither   float64 // arcsec, uniform in ±Dither
	Rotation float64 // degrees, uniform in ±Rotation per visit

	// Distortion is the radial cubic displacement, in pixels, at a focal
	// plane radius of one ccd size.
	Distortion  float64
	Centroid    float64 // centroid noise sigma, pixels
	Outliers    float64 // fraction of detections displaced by OutlierSize
	OutlierSize float64 // pixels

	MinMag, MaxMag float64 // uniform star magnitudes
	RefMaxMag      float64 // reference catalog limit
	RefSigma       float64 // reference position noise, arcsec
	RefFluxSigma   float64 // relative reference flux noise
	FluxSigma      float64 // relative detection flux noise
	CalibScatter   float64 // relative scatter of true ccd calibrations

	// ErrorScale multiplies the true noise to get reported errors.
	ErrorScale float64
}

// DefaultConfig is two overlapping single-ccd visits.
func DefaultConfig() Config {
	return Config{
		Name:         "sim",
		Seed:         1,
		Filter:       "r",
		RA:           unit.AngleFromDeg(150),
		Dec:          unit.AngleFromDeg(2),
		NStars:       1100,
		NVisits:      2,
		NCcds:        1,
		CcdSize:      2048,
		Gap:          40,
		Scale:        0.2,
		Dither:       40,
		Rotation:     0.05,
		Distortion:   2,
		Centroid:     0.02,
		Outliers:     0.005,
		OutlierSize:  1,
		MinMag:       17,
		MaxMag:       22,
		RefMaxMag:    20.5,
		RefSigma:     0.01,
		RefFluxSigma: 0.01,
		FluxSigma:    0.01,
		CalibScatter: 0.02,
		ErrorScale:   math.Sqrt2,
	}
}

// pixelMM is the pixel pitch.
const pixelMM = 0.015

// nJy of a zero magnitude AB source.
const zeroPointNJy = 3.631e12

func magToNJy(mag float64) float64 { return zeroPointNJy * math.Pow(10, -.4*mag) }

type trueStar struct {
	ra, dec unit.Angle
	flux    float64
	mag     float64
}

// Generate builds a dataset from c.  The same Config always gives the same
// dataset.
func Generate(c Config) (*dataset.Dataset, error) {
	if c.NVisits < 1 || c.NCcds < 1 || c.NStars < 1 {
		return nil, fmt.Errorf("sim: need at least one visit, ccd and star")
	}
	rnd := xrand.New(&xrand.PCGSource{})
	rnd.Seed(c.Seed)
	g := &generator{c: c, rnd: rnd}
	g.layout()
	g.stars()
	ds := &dataset.Dataset{Name: c.Name}
	for v := 0; v < c.NVisits; v++ {
		exps, err := g.visit(v)
		if err != nil {
			return nil, err
		}
		ds.Exposures = append(ds.Exposures, exps...)
	}
	ds.RefCat = g.refCat()
	return ds, nil
}

type generator struct {
	c      Config
	rnd    *xrand.Rand
	side   int          // ccd grid side
	origin []geom.Point // focal plane mm of each ccd pixel origin
	truth  []trueStar
	degMM  float64 // tangent plane degrees per focal mm
}

func (g *generator) layout() {
	c := g.c
	g.side = int(math.Ceil(math.Sqrt(float64(c.NCcds))))
	pitch := (c.CcdSize + c.Gap) * pixelMM
	half := float64(g.side) * pitch / 2
	for k := 0; k < c.NCcds; k++ {
		i, j := k%g.side, k/g.side
		g.origin = append(g.origin, geom.Point{
			X: float64(i)*pitch - half + c.Gap*pixelMM/2,
			Y: float64(j)*pitch - half + c.Gap*pixelMM/2,
		})
	}
	g.degMM = c.Scale / 3600 / pixelMM
}

// fieldHalfWidth is the half size, in degrees, of the square the stars are
// drawn in.  It covers the focal plane and the dithers.
func (g *generator) fieldHalfWidth() float64 {
	c := g.c
	fp := float64(g.side) * (c.CcdSize + c.Gap) * c.Scale / 3600 / 2
	return fp*1.05 + c.Dither/3600
}

func (g *generator) stars() {
	tp := geom.NewTanProjection(g.c.RA, g.c.Dec)
	h := g.fieldHalfWidth()
	for i := 0; i < g.c.NStars; i++ {
		p := geom.Point{X: (2*g.rnd.Float64() - 1) * h, Y: (2*g.rnd.Float64() - 1) * h}
		ra, dec := tp.Deproject(p)
		mag := g.c.MinMag + g.rnd.Float64()*(g.c.MaxMag-g.c.MinMag)
		g.truth = append(g.truth, trueStar{ra, dec, magToNJy(mag), mag})
	}
}

// camera is the true pixel to tangent plane mapping of one ccd in one
// visit.
type camera struct {
	g        *generator
	ccd      int
	sin, cos float64
}

func (cm camera) focal(pix geom.Point) geom.Point {
	o := cm.g.origin[cm.ccd]
	return geom.Point{X: o.X + pix.X*pixelMM, Y: o.Y + pix.Y*pixelMM}
}

// pixToTP applies the radial distortion in the focal plane, the visit
// rotation and the plate scale.
func (cm camera) pixToTP(pix geom.Point) geom.Point {
	f := cm.focal(pix)
	r0 := cm.g.c.CcdSize * pixelMM
	k := cm.g.c.Distortion * pixelMM / (r0 * r0 * r0)
	s := 1 + k*(f.X*f.X+f.Y*f.Y)
	x, y := f.X*s, f.Y*s
	return geom.Point{
		X: (cm.cos*x - cm.sin*y) * cm.g.degMM,
		Y: (cm.sin*x + cm.cos*y) * cm.g.degMM,
	}
}

// tpToPix inverts pixToTP by Newton iteration.
func (cm camera) tpToPix(q geom.Point) (geom.Point, bool) {
	p := geom.Point{X: cm.g.c.CcdSize / 2, Y: cm.g.c.CcdSize / 2}
	const h = 1e-3
	for i := 0; i < 30; i++ {
		r := cm.pixToTP(p)
		px := cm.pixToTP(geom.Point{X: p.X + h, Y: p.Y})
		py := cm.pixToTP(geom.Point{X: p.X, Y: p.Y + h})
		j := geom.Linear{
			A11: (px.X - r.X) / h, A12: (py.X - r.X) / h,
			A21: (px.Y - r.Y) / h, A22: (py.Y - r.Y) / h,
		}
		inv, ok := j.Invert()
		if !ok {
			return p, false
		}
		d := inv.Apply(geom.Point{X: r.X - q.X, Y: r.Y - q.Y})
		p.X -= d.X
		p.Y -= d.Y
		if d.X*d.X+d.Y*d.Y < 1e-16 {
			return p, true
		}
	}
	return p, false
}

func (g *generator) visit(v int) ([]dataset.Exposure, error) {
	c := g.c
	center := geom.NewTanProjection(c.RA, c.Dec)
	ra, dec := center.Deproject(geom.Point{
		X: (2*g.rnd.Float64() - 1) * c.Dither / 3600,
		Y: (2*g.rnd.Float64() - 1) * c.Dither / 3600,
	})
	tp := geom.NewTanProjection(ra, dec)
	rot := (2*g.rnd.Float64() - 1) * c.Rotation * math.Pi / 180
	sin, cos := math.Sincos(rot)
	visitID := 1000 + v
	bbox := geom.Frame{XMax: c.CcdSize, YMax: c.CcdSize}
	var exps []dataset.Exposure
	for k := 0; k < c.NCcds; k++ {
		cm := camera{g: g, ccd: k, sin: sin, cos: cos}
		w, err := wcs.Fit(bbox, tp, cm.pixToTP, 1)
		if err != nil {
			return nil, fmt.Errorf("sim: visit %d ccd %d wcs: %w", visitID, k, err)
		}
		calib := 1 + c.CalibScatter*g.rnd.NormFloat64()
		e := dataset.Exposure{ExposureMeta: dataset.ExposureMeta{
			Visit:         visitID,
			Ccd:           k,
			Filter:        c.Filter,
			BBox:          bbox,
			WCS:           w,
			PhotoCalib:    1,
			PhotoCalibErr: c.CalibScatter,
			Detector: dataset.Detector{
				ID:   k,
				Name: fmt.Sprintf("ccd%02d", k),
				PixToFocal: geom.Linear{Dx: g.origin[k].X, Dy: g.origin[k].Y,
					A11: pixelMM, A22: pixelMM},
			},
		}}
		sig := c.Centroid
		rep := sig * c.ErrorScale
		for i, s := range g.truth {
			q, ok := tp.Project(s.ra, s.dec)
			if !ok {
				continue
			}
			pix, ok := cm.tpToPix(q)
			if !ok || !bbox.Contains(pix) {
				continue
			}
			pix.X += sig * g.rnd.NormFloat64()
			pix.Y += sig * g.rnd.NormFloat64()
			if g.rnd.Float64() < c.Outliers {
				a := 2 * math.Pi * g.rnd.Float64()
				pix.X += c.OutlierSize * math.Cos(a)
				pix.Y += c.OutlierSize * math.Sin(a)
			}
			inst := s.flux / calib
			fsig := c.FluxSigma * inst
			e.Sources = append(e.Sources, dataset.Source{
				ID:          int64(visitID)*100000 + int64(k)*10000 + int64(i),
				X:           pix.X,
				Y:           pix.Y,
				VX:          rep * rep,
				VY:          rep * rep,
				InstFlux:    inst + fsig*g.rnd.NormFloat64(),
				InstFluxErr: fsig * c.ErrorScale,
			})
		}
		exps = append(exps, e)
	}
	return exps, nil
}

func (g *generator) refCat() []dataset.RefSource {
	c := g.c
	center := geom.NewTanProjection(c.RA, c.Dec)
	var cat []dataset.RefSource
	posSig := c.RefSigma / 3600
	repErr := unit.AngleFromSec(c.RefSigma * c.ErrorScale)
	for i, s := range g.truth {
		if s.mag > c.RefMaxMag {
			continue
		}
		p, _ := center.Project(s.ra, s.dec)
		p.X += posSig * g.rnd.NormFloat64()
		p.Y += posSig * g.rnd.NormFloat64()
		ra, dec := center.Deproject(p)
		fsig := c.RefFluxSigma * s.flux
		cat = append(cat, dataset.RefSource{
			ID:      int64(i),
			RA:      ra,
			Dec:     dec,
			RAErr:   repErr,
			DecErr:  repErr,
			Flux:    map[string]float64{c.Filter: s.flux + fsig*g.rnd.NormFloat64()},
			FluxErr: map[string]float64{c.Filter: fsig * c.ErrorScale},
		})
	}
	return cat
}
