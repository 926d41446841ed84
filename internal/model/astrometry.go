// Public domain.

// Package model holds the parametric distortion and photometric response
// models fitted by jointcal, and the parameter table they share with the
// fitter.
package model

import (
	"errors"
	"fmt"

	"github.com/soniakeys/jointcal/internal/assoc"
	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/projection"
	"github.com/soniakeys/jointcal/internal/star"
	"github.com/soniakeys/jointcal/internal/wcs"
)

// AstrometryModel maps pixel positions of an image to the tangent plane of
// its projection group, in degrees.
type AstrometryModel interface {
	Params() *ParamTable
	Projection(c *star.CcdImage) *geom.TanProjection
	Project(c *star.CcdImage, pix geom.Point) geom.Point
	// Jacobian is the derivative of Project with respect to pix.
	Jacobian(c *star.CcdImage, pix geom.Point) geom.Jacobian2
	// Derivatives sets d to the derivatives of Project with respect to
	// the model parameters, frozen or not.
	Derivatives(c *star.CcdImage, pix geom.Point, d *Derivs)
	// OffsetParams adds delta, indexed by the parameter table, to the
	// parameters of active blocks.
	OffsetParams(delta []float64)
	Freeze(names ...string) error
	Thaw(names ...string) error
	ProduceSipWcs(c *star.CcdImage) (*wcs.TanSip, error)
}

// AstrometryConfig holds polynomial orders.  Order is used by the simple
// model, ChipOrder and VisitOrder by the constrained model.
type AstrometryConfig struct {
	Order      int
	ChipOrder  int
	VisitOrder int
}

// ErrNotDeprojected is returned when an astrometry model is built before
// fitted star sky positions were computed.
var ErrNotDeprojected = errors.New("fitted stars not deprojected")

// ErrNoMapping is returned when exporting an image the model was not built
// for.
var ErrNoMapping = errors.New("no mapping for image")

// NewAstrometryModel builds the model named by kind, "simple" or
// "constrained", for the images of a valid for fitting.
func NewAstrometryModel(kind string, a *assoc.Associations, h projection.Handler, cfg AstrometryConfig) (AstrometryModel, error) {
	if !a.Deprojected() {
		return nil, ErrNotDeprojected
	}
	ccds := validCcds(a)
	switch kind {
	case "simple":
		return NewSimpleAstrometry(ccds, h, cfg.Order)
	case "constrained":
		return NewConstrainedAstrometry(ccds, h, cfg.ChipOrder, cfg.VisitOrder)
	}
	return nil, fmt.Errorf("unknown astrometry model %q", kind)
}

func validCcds(a *assoc.Associations) (v []*star.CcdImage) {
	for _, c := range a.CcdImageList() {
		if c.ValidCount() > 0 {
			v = append(v, c)
		}
	}
	return
}

// initGrid is the per axis sample count for initial polynomial fits.
const initGrid = 10

// wcsSamples maps a grid over c's bounding box through its input WCS onto
// the tangent plane tp.
func wcsSamples(c *star.CcdImage, tp *geom.TanProjection) (pix, tpPts []geom.Point) {
	for _, p := range c.BBox.Grid(initGrid) {
		ra, dec := c.WCS.PixToSky(p)
		q, ok := tp.Project(ra, dec)
		if !ok {
			continue
		}
		pix = append(pix, p)
		tpPts = append(tpPts, q)
	}
	return
}

// polyMapping is a polynomial with its place in the parameter table.
type polyMapping struct {
	poly  *geom.Poly
	start int
}

func (m *polyMapping) offset(t *ParamTable, delta []float64) {
	if !t.Active(m.start) {
		return
	}
	m.poly.OffsetParams(delta[m.start : m.start+m.poly.NPar()])
}

// SimpleAstrometry fits one independent polynomial per image.
type SimpleAstrometry struct {
	params ParamTable
	proj   projection.Handler
	order  int
	maps   map[*star.CcdImage]*polyMapping
}

// NewSimpleAstrometry builds per image polynomials of the given order,
// initialized from the input WCS.
func NewSimpleAstrometry(ccds []*star.CcdImage, h projection.Handler, order int) (*SimpleAstrometry, error) {
	if order < 1 {
		return nil, fmt.Errorf("astrometry order %d < 1", order)
	}
	m := &SimpleAstrometry{proj: h, order: order,
		maps: make(map[*star.CcdImage]*polyMapping, len(ccds))}
	for _, c := range ccds {
		src, dst := wcsSamples(c, h.Transform(c))
		p, err := geom.FitPoly(order, c.BBox, src, dst)
		if err != nil {
			return nil, fmt.Errorf("%s: initial mapping: %w", c.Name, err)
		}
		pm := &polyMapping{poly: p}
		pm.start = m.params.Add(Distortions, p.NPar(), false)
		m.maps[c] = pm
	}
	return m, nil
}

// Params implements AstrometryModel.
func (m *SimpleAstrometry) Params() *ParamTable { return &m.params }

// Projection implements AstrometryModel.
func (m *SimpleAstrometry) Projection(c *star.CcdImage) *geom.TanProjection {
	return m.proj.Transform(c)
}

// Project implements AstrometryModel.
func (m *SimpleAstrometry) Project(c *star.CcdImage, pix geom.Point) geom.Point {
	return m.maps[c].poly.Apply(pix)
}

// Jacobian implements AstrometryModel.
func (m *SimpleAstrometry) Jacobian(c *star.CcdImage, pix geom.Point) geom.Jacobian2 {
	return m.maps[c].poly.Jacobian(pix)
}

// Derivatives implements AstrometryModel.
func (m *SimpleAstrometry) Derivatives(c *star.CcdImage, pix geom.Point, d *Derivs) {
	d.Reset()
	pm := m.maps[c]
	mono := pm.poly.Monomials(pix, nil)
	nt := len(mono)
	for k, v := range mono {
		d.Add(pm.start+k, v, 0)
	}
	for k, v := range mono {
		d.Add(pm.start+nt+k, 0, v)
	}
}

// OffsetParams implements AstrometryModel.
func (m *SimpleAstrometry) OffsetParams(delta []float64) {
	for _, pm := range m.maps {
		pm.offset(&m.params, delta)
	}
}

// Freeze implements AstrometryModel.
func (m *SimpleAstrometry) Freeze(names ...string) error { return m.params.Freeze(names...) }

// Thaw implements AstrometryModel.
func (m *SimpleAstrometry) Thaw(names ...string) error { return m.params.Thaw(names...) }

// ProduceSipWcs implements AstrometryModel.
func (m *SimpleAstrometry) ProduceSipWcs(c *star.CcdImage) (*wcs.TanSip, error) {
	pm, ok := m.maps[c]
	if !ok {
		return nil, fmt.Errorf("%s: %w", c.Name, ErrNoMapping)
	}
	return wcs.Fit(c.BBox, m.proj.Transform(c), pm.poly.Apply, m.order)
}

// ConstrainedAstrometry composes a polynomial per sensor, shared by all
// visits, with a polynomial per visit shared by all sensors of the visit.
// The visit polynomial of the first visit is the identity and is not
// fitted.
type ConstrainedAstrometry struct {
	params     ParamTable
	proj       projection.Handler
	chipOrder  int
	visitOrder int
	chips      map[int]*polyMapping
	visits     map[int]*polyMapping // nil for the first visit
}

// maxSipOrder caps the SIP order used to export a composed mapping.
const maxSipOrder = 6

// NewConstrainedAstrometry builds chip and visit polynomials initialized
// from the input WCS.  Each chip polynomial is fit on the chip's image in
// the first visit, or its first image if absent from the first visit.
// Visit polynomials are then fit to the remaining mismatch.
func NewConstrainedAstrometry(ccds []*star.CcdImage, h projection.Handler, chipOrder, visitOrder int) (*ConstrainedAstrometry, error) {
	if chipOrder < 1 || visitOrder < 1 {
		return nil, fmt.Errorf("astrometry orders %d, %d: must be >= 1", chipOrder, visitOrder)
	}
	m := &ConstrainedAstrometry{proj: h, chipOrder: chipOrder, visitOrder: visitOrder,
		chips: map[int]*polyMapping{}, visits: map[int]*polyMapping{}}
	if len(ccds) == 0 {
		return m, nil
	}
	firstVisit := ccds[0].Visit
	chipImage := map[int]*star.CcdImage{}
	var chipOrderList, visitList []int
	byVisit := map[int][]*star.CcdImage{}
	for _, c := range ccds {
		if cur, ok := chipImage[c.Ccd]; !ok {
			chipImage[c.Ccd] = c
			chipOrderList = append(chipOrderList, c.Ccd)
		} else if cur.Visit != firstVisit && c.Visit == firstVisit {
			chipImage[c.Ccd] = c
		}
		if _, ok := byVisit[c.Visit]; !ok {
			visitList = append(visitList, c.Visit)
		}
		byVisit[c.Visit] = append(byVisit[c.Visit], c)
	}
	for _, id := range chipOrderList {
		c := chipImage[id]
		src, dst := wcsSamples(c, h.Transform(c))
		p, err := geom.FitPoly(chipOrder, c.BBox, src, dst)
		if err != nil {
			return nil, fmt.Errorf("chip %d: initial mapping: %w", id, err)
		}
		pm := &polyMapping{poly: p}
		pm.start = m.params.Add(DistortionsChip, p.NPar(), false)
		m.chips[id] = pm
	}
	for _, v := range visitList {
		if v == firstVisit {
			m.visits[v] = nil
			continue
		}
		var src, dst []geom.Point
		var f geom.Frame
		for _, c := range byVisit[v] {
			pix, tp := wcsSamples(c, h.Transform(c))
			chip := m.chips[c.Ccd].poly
			for i := range pix {
				q := chip.Apply(pix[i])
				src = append(src, q)
				f = f.Union(geom.Frame{XMin: q.X, YMin: q.Y, XMax: q.X, YMax: q.Y})
			}
			dst = append(dst, tp...)
		}
		p, err := geom.FitPoly(visitOrder, f, src, dst)
		if err != nil {
			return nil, fmt.Errorf("visit %d: initial mapping: %w", v, err)
		}
		pm := &polyMapping{poly: p}
		pm.start = m.params.Add(DistortionsVisit, p.NPar(), false)
		m.visits[v] = pm
	}
	return m, nil
}

// Params implements AstrometryModel.
func (m *ConstrainedAstrometry) Params() *ParamTable { return &m.params }

// Projection implements AstrometryModel.
func (m *ConstrainedAstrometry) Projection(c *star.CcdImage) *geom.TanProjection {
	return m.proj.Transform(c)
}

// Project implements AstrometryModel.
func (m *ConstrainedAstrometry) Project(c *star.CcdImage, pix geom.Point) geom.Point {
	q := m.chips[c.Ccd].poly.Apply(pix)
	if v := m.visits[c.Visit]; v != nil {
		return v.poly.Apply(q)
	}
	return q
}

// Jacobian implements AstrometryModel.
func (m *ConstrainedAstrometry) Jacobian(c *star.CcdImage, pix geom.Point) geom.Jacobian2 {
	chip := m.chips[c.Ccd].poly
	jc := chip.Jacobian(pix)
	v := m.visits[c.Visit]
	if v == nil {
		return jc
	}
	jv := v.poly.Jacobian(chip.Apply(pix))
	var j geom.Jacobian2
	for r := 0; r < 2; r++ {
		for s := 0; s < 2; s++ {
			j[r][s] = jv[r][0]*jc[0][s] + jv[r][1]*jc[1][s]
		}
	}
	return j
}

// Derivatives implements AstrometryModel.
func (m *ConstrainedAstrometry) Derivatives(c *star.CcdImage, pix geom.Point, d *Derivs) {
	d.Reset()
	cm := m.chips[c.Ccd]
	mono := cm.poly.Monomials(pix, nil)
	nt := len(mono)
	jv := geom.Jacobian2{{1, 0}, {0, 1}}
	v := m.visits[c.Visit]
	if v != nil {
		jv = v.poly.Jacobian(cm.poly.Apply(pix))
	}
	// chip x coefficients move the intermediate x, chip y coefficients
	// the intermediate y
	for k, mk := range mono {
		d.Add(cm.start+k, jv[0][0]*mk, jv[1][0]*mk)
	}
	for k, mk := range mono {
		d.Add(cm.start+nt+k, jv[0][1]*mk, jv[1][1]*mk)
	}
	if v == nil {
		return
	}
	vmono := v.poly.Monomials(cm.poly.Apply(pix), nil)
	nv := len(vmono)
	for k, mk := range vmono {
		d.Add(v.start+k, mk, 0)
	}
	for k, mk := range vmono {
		d.Add(v.start+nv+k, 0, mk)
	}
}

// OffsetParams implements AstrometryModel.
func (m *ConstrainedAstrometry) OffsetParams(delta []float64) {
	for _, pm := range m.chips {
		pm.offset(&m.params, delta)
	}
	for _, pm := range m.visits {
		if pm != nil {
			pm.offset(&m.params, delta)
		}
	}
}

// Freeze implements AstrometryModel.
func (m *ConstrainedAstrometry) Freeze(names ...string) error { return m.params.Freeze(names...) }

// Thaw implements AstrometryModel.
func (m *ConstrainedAstrometry) Thaw(names ...string) error { return m.params.Thaw(names...) }

// ProduceSipWcs implements AstrometryModel.
func (m *ConstrainedAstrometry) ProduceSipWcs(c *star.CcdImage) (*wcs.TanSip, error) {
	if _, ok := m.chips[c.Ccd]; !ok {
		return nil, fmt.Errorf("%s: %w", c.Name, ErrNoMapping)
	}
	if _, ok := m.visits[c.Visit]; !ok {
		return nil, fmt.Errorf("%s: %w", c.Name, ErrNoMapping)
	}
	order := m.chipOrder * m.visitOrder
	if order > maxSipOrder {
		order = maxSipOrder
	}
	return wcs.Fit(c.BBox, m.proj.Transform(c), func(p geom.Point) geom.Point {
		return m.Project(c, p)
	}, order)
}
