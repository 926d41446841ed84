// Public domain.

package fit

import (
	"errors"
	"fmt"

	"github.com/soniakeys/jointcal/internal/assoc"
	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/logging"
	"github.com/soniakeys/jointcal/internal/model"
	"github.com/soniakeys/unit"
)

// ErrParamsAssigned is returned when a model already carries star
// parameters from another fit.
var ErrParamsAssigned = errors.New("model already has star parameters")

// AstrometryFit fits an astrometry model and fitted star sky positions.
//
// A measurement term compares the model projection of the measured pixel
// position with the projection of its fitted star, both on the tangent
// plane of the image's group.  A reference term compares a fitted star
// with its reference star on a tangent plane about the reference.
type AstrometryFit struct {
	Fitter
	a        *assoc.Associations
	m        model.AstrometryModel
	posError float64 // pixels, added in quadrature
	pos      int     // first position parameter

	t term
}

// NewAstrometryFit prepares a fit of m to the stars of a.  posError is a
// position error floor in pixels.
func NewAstrometryFit(a *assoc.Associations, m model.AstrometryModel, posError float64) (*AstrometryFit, error) {
	if !a.Deprojected() {
		return nil, model.ErrNotDeprojected
	}
	if err := a.Check(); err != nil {
		return nil, err
	}
	t := m.Params()
	if t.Has(model.Positions) {
		return nil, ErrParamsAssigned
	}
	f := &AstrometryFit{a: a, m: m, posError: posError}
	f.pos = t.Add(model.Positions, 2*len(a.FittedStars), false)
	f.Fitter = Fitter{p: f, log: logging.For("jointcal.AstrometryFit")}
	if err := f.selectParams(model.Distortions + " " + model.Positions); err != nil {
		return nil, err
	}
	return f, nil
}

// Model returns the fitted model.
func (f *AstrometryFit) Model() model.AstrometryModel { return f.m }

func (f *AstrometryFit) params() *model.ParamTable { return f.m.Params() }
func (f *AstrometryFit) starStart() int            { return f.pos }
func (f *AstrometryFit) starBlock() int            { return 2 }

func (f *AstrometryFit) terms(derivs bool, fn func(t *term)) {
	t := &f.t
	pe2 := f.posError * f.posError
	for _, c := range f.a.CcdImages {
		if c.ValidCount() == 0 {
			continue
		}
		tp := f.m.Projection(c)
		for _, ms := range c.Stars {
			fs := ms.Fitted
			if !ms.Valid || fs == nil {
				continue
			}
			pix := ms.Pix()
			fp, ok := tp.Project(fs.RA, fs.Dec)
			if !ok {
				continue
			}
			mp := f.m.Project(c, pix)
			jm := f.m.Jacobian(c, pix)
			vxx, vyy, vxy := jm.Transform2(ms.VX+pe2, ms.VY+pe2, ms.VXY)
			*t = term{n: 2, r: [2]float64{mp.X - fp.X, mp.Y - fp.Y}, ms: ms, fs: fs, d: t.d}
			if !t.invert2(vxx, vyy, vxy) {
				continue
			}
			t.setChi2()
			t.d.Reset()
			if derivs {
				f.m.Derivatives(c, pix, &t.d)
				addPositionDerivs(&t.d, f.pos+2*fs.Index, tp.Jacobian(fs.RA, fs.Dec), -1)
			}
			fn(t)
		}
	}
	for _, fs := range f.a.FittedStars {
		r := fs.Ref
		if r == nil || !(r.RAErr > 0 && r.DecErr > 0) {
			continue
		}
		tp := geom.NewTanProjection(r.RA, r.Dec)
		p, ok := tp.Project(fs.RA, fs.Dec)
		if !ok {
			continue
		}
		rx, ry := r.RAErr.Deg(), r.DecErr.Deg()
		*t = term{n: 2, r: [2]float64{p.X, p.Y}, fs: fs, d: t.d}
		t.w = [2][2]float64{{1 / (rx * rx), 0}, {0, 1 / (ry * ry)}}
		t.setChi2()
		t.d.Reset()
		if derivs {
			addPositionDerivs(&t.d, f.pos+2*fs.Index, tp.Jacobian(fs.RA, fs.Dec), 1)
		}
		fn(t)
	}
}

// addPositionDerivs appends sign * j for RA and Dec at parameters i, i+1.
func addPositionDerivs(d *model.Derivs, i int, j geom.Jacobian2, sign float64) {
	d.Add(i, sign*j[0][0], sign*j[1][0])
	d.Add(i+1, sign*j[0][1], sign*j[1][1])
}

func (f *AstrometryFit) offsetParams(delta []float64) {
	f.m.OffsetParams(delta)
	t := f.params()
	if !t.Active(f.pos) {
		return
	}
	for _, fs := range f.a.FittedStars {
		i := f.pos + 2*fs.Index
		fs.RA += unit.AngleFromDeg(delta[i])
		fs.Dec += unit.AngleFromDeg(delta[i+1])
	}
}

func (f *AstrometryFit) reject(t *term) {
	if t.ms != nil {
		t.ms.Invalidate()
		return
	}
	t.fs.SetRef(nil)
}

// SaveChi2Contributions writes measurement and reference terms to
// <base>-meas.csv and <base>-ref.csv.  See tupleNames.
func (f *AstrometryFit) SaveChi2Contributions(baseName string) error {
	return saveTuples(baseName, f, astrometryTuples{})
}

// SaveResultTuples is SaveChi2Contributions.
func (f *AstrometryFit) SaveResultTuples(baseName string) error {
	return f.SaveChi2Contributions(baseName)
}

func (f *AstrometryFit) String() string {
	return fmt.Sprintf("AstrometryFit(%d images, %d fitted stars)",
		len(f.a.CcdImages), len(f.a.FittedStars))
}
