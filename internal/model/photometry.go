// Public domain.

package model

import (
	"fmt"

	"github.com/soniakeys/jointcal/internal/assoc"
	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/star"
)

// PhotometryModel maps instrumental fluxes to calibrated fluxes in nJy.
type PhotometryModel interface {
	Params() *ParamTable
	Apply(c *star.CcdImage, pix geom.Point, instFlux float64) float64
	// Derivatives sets d.DX to the derivatives of Apply with respect to
	// the model parameters.
	Derivatives(c *star.CcdImage, pix geom.Point, instFlux float64, d *Derivs)
	OffsetParams(delta []float64)
	Freeze(names ...string) error
	Thaw(names ...string) error
	ToPhotoCalib(c *star.CcdImage) (PhotoCalib, error)
}

// PhotometryConfig holds the degree of the per visit surface of the
// constrained model.
type PhotometryConfig struct {
	VisitOrder int
}

// NewPhotometryModel builds the model named by kind, "simple" or
// "constrained", for the images of a valid for fitting.
func NewPhotometryModel(kind string, a *assoc.Associations, cfg PhotometryConfig) (PhotometryModel, error) {
	ccds := validCcds(a)
	switch kind {
	case "simple":
		return NewSimplePhotometry(ccds), nil
	case "constrained":
		return NewConstrainedPhotometry(ccds, cfg.VisitOrder)
	}
	return nil, fmt.Errorf("unknown photometry model %q", kind)
}

// PhotoCalib is the exported calibration of one image.
type PhotoCalib struct {
	Mean float64 // instFlux to nJy, averaged over the image
	Err  float64

	scale   float64
	toFocal geom.Linear
	surface *surface
}

// Varies reports whether the calibration varies over the image.
func (p PhotoCalib) Varies() bool { return p.surface != nil && len(p.surface.coeffs) > 0 }

// InstFluxToNanojansky calibrates instFlux measured at pix.
func (p PhotoCalib) InstFluxToNanojansky(instFlux float64, pix geom.Point) float64 {
	f := instFlux * p.scale
	if p.surface != nil {
		f *= p.surface.value(p.toFocal.Apply(pix))
	}
	return f
}

func calibErr(c *star.CcdImage, mean float64) float64 {
	if c.PhotoCalib == 0 {
		return 0
	}
	return mean * c.PhotoCalibErr / c.PhotoCalib
}

type scaleParam struct {
	value float64
	start int
}

func initialScale(c *star.CcdImage) float64 {
	if c.PhotoCalib > 0 {
		return c.PhotoCalib
	}
	return 1
}

// SimplePhotometry fits one flux scale per image.
type SimplePhotometry struct {
	params ParamTable
	scales map[*star.CcdImage]*scaleParam
}

// NewSimplePhotometry starts each image scale at its input calibration.
func NewSimplePhotometry(ccds []*star.CcdImage) *SimplePhotometry {
	m := &SimplePhotometry{scales: make(map[*star.CcdImage]*scaleParam, len(ccds))}
	for _, c := range ccds {
		m.scales[c] = &scaleParam{value: initialScale(c), start: m.params.Add(Model, 1, false)}
	}
	return m
}

// Params implements PhotometryModel.
func (m *SimplePhotometry) Params() *ParamTable { return &m.params }

// Apply implements PhotometryModel.
func (m *SimplePhotometry) Apply(c *star.CcdImage, _ geom.Point, instFlux float64) float64 {
	return instFlux * m.scales[c].value
}

// Derivatives implements PhotometryModel.
func (m *SimplePhotometry) Derivatives(c *star.CcdImage, _ geom.Point, instFlux float64, d *Derivs) {
	d.Reset()
	d.Add(m.scales[c].start, instFlux, 0)
}

// OffsetParams implements PhotometryModel.
func (m *SimplePhotometry) OffsetParams(delta []float64) {
	for _, s := range m.scales {
		if m.params.Active(s.start) {
			s.value += delta[s.start]
		}
	}
}

// Freeze implements PhotometryModel.
func (m *SimplePhotometry) Freeze(names ...string) error { return m.params.Freeze(names...) }

// Thaw implements PhotometryModel.
func (m *SimplePhotometry) Thaw(names ...string) error { return m.params.Thaw(names...) }

// ToPhotoCalib implements PhotometryModel.
func (m *SimplePhotometry) ToPhotoCalib(c *star.CcdImage) (PhotoCalib, error) {
	s, ok := m.scales[c]
	if !ok {
		return PhotoCalib{}, fmt.Errorf("%s: %w", c.Name, ErrNoMapping)
	}
	return PhotoCalib{Mean: s.value, Err: calibErr(c, s.value), scale: s.value}, nil
}

// surface is 1 plus a polynomial without constant term over focal plane
// coordinates.
type surface struct {
	norm   *geom.Poly // supplies order and normalization only
	coeffs []float64
	start  int
}

func (s *surface) terms(fp geom.Point) []float64 {
	return s.norm.Monomials(fp, nil)[1:]
}

func (s *surface) value(fp geom.Point) float64 {
	v := 1.
	for k, m := range s.terms(fp) {
		v += s.coeffs[k] * m
	}
	return v
}

// ConstrainedPhotometry multiplies a scale per image by a surface per
// visit over focal plane coordinates.  The constant term of each surface
// is fixed at 1.
type ConstrainedPhotometry struct {
	params   ParamTable
	scales   map[*star.CcdImage]*scaleParam
	surfaces map[int]*surface
}

// NewConstrainedPhotometry starts scales at the input calibrations and
// surfaces flat.
func NewConstrainedPhotometry(ccds []*star.CcdImage, visitOrder int) (*ConstrainedPhotometry, error) {
	if visitOrder < 0 {
		return nil, fmt.Errorf("photometry visit order %d < 0", visitOrder)
	}
	m := &ConstrainedPhotometry{
		scales:   make(map[*star.CcdImage]*scaleParam, len(ccds)),
		surfaces: map[int]*surface{},
	}
	for _, c := range ccds {
		m.scales[c] = &scaleParam{value: initialScale(c), start: m.params.Add(ModelChip, 1, false)}
	}
	frames := map[int]geom.Frame{}
	var visits []int
	for _, c := range ccds {
		f, ok := frames[c.Visit]
		if !ok {
			visits = append(visits, c.Visit)
		}
		frames[c.Visit] = f.Union(focalFrame(c))
	}
	n := geom.NTerms(visitOrder) - 1
	for _, v := range visits {
		m.surfaces[v] = &surface{
			norm:   geom.NewNormalizedPoly(visitOrder, frames[v]),
			coeffs: make([]float64, n),
			start:  m.params.Add(ModelVisit, n, false),
		}
	}
	return m, nil
}

func focalFrame(c *star.CcdImage) geom.Frame {
	b := c.BBox
	var f geom.Frame
	for _, p := range []geom.Point{{X: b.XMin, Y: b.YMin}, {X: b.XMax, Y: b.YMin},
		{X: b.XMin, Y: b.YMax}, {X: b.XMax, Y: b.YMax}} {
		q := c.PixToFocal.Apply(p)
		f = f.Union(geom.Frame{XMin: q.X, YMin: q.Y, XMax: q.X, YMax: q.Y})
	}
	return f
}

// Params implements PhotometryModel.
func (m *ConstrainedPhotometry) Params() *ParamTable { return &m.params }

// Apply implements PhotometryModel.
func (m *ConstrainedPhotometry) Apply(c *star.CcdImage, pix geom.Point, instFlux float64) float64 {
	return instFlux * m.scales[c].value * m.surfaces[c.Visit].value(c.PixToFocal.Apply(pix))
}

// Derivatives implements PhotometryModel.
func (m *ConstrainedPhotometry) Derivatives(c *star.CcdImage, pix geom.Point, instFlux float64, d *Derivs) {
	d.Reset()
	s := m.scales[c]
	sf := m.surfaces[c.Visit]
	fp := c.PixToFocal.Apply(pix)
	d.Add(s.start, instFlux*sf.value(fp), 0)
	for k, t := range sf.terms(fp) {
		d.Add(sf.start+k, instFlux*s.value*t, 0)
	}
}

// OffsetParams implements PhotometryModel.
func (m *ConstrainedPhotometry) OffsetParams(delta []float64) {
	for _, s := range m.scales {
		if m.params.Active(s.start) {
			s.value += delta[s.start]
		}
	}
	for _, sf := range m.surfaces {
		if len(sf.coeffs) == 0 || !m.params.Active(sf.start) {
			continue
		}
		for k := range sf.coeffs {
			sf.coeffs[k] += delta[sf.start+k]
		}
	}
}

// Freeze implements PhotometryModel.
func (m *ConstrainedPhotometry) Freeze(names ...string) error { return m.params.Freeze(names...) }

// Thaw implements PhotometryModel.
func (m *ConstrainedPhotometry) Thaw(names ...string) error { return m.params.Thaw(names...) }

// photoCalibGrid is the per axis sample count for the mean calibration.
const photoCalibGrid = 5

// ToPhotoCalib implements PhotometryModel.
func (m *ConstrainedPhotometry) ToPhotoCalib(c *star.CcdImage) (PhotoCalib, error) {
	s, ok := m.scales[c]
	if !ok {
		return PhotoCalib{}, fmt.Errorf("%s: %w", c.Name, ErrNoMapping)
	}
	sf := m.surfaces[c.Visit]
	pc := PhotoCalib{scale: s.value, toFocal: c.PixToFocal,
		surface: &surface{norm: sf.norm, coeffs: append([]float64(nil), sf.coeffs...)}}
	grid := c.BBox.Grid(photoCalibGrid)
	for _, p := range grid {
		pc.Mean += pc.InstFluxToNanojansky(1, p)
	}
	pc.Mean /= float64(len(grid))
	pc.Err = calibErr(c, pc.Mean)
	return pc, nil
}
