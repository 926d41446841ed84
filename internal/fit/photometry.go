// Public domain.

package fit

import (
	"fmt"

	"github.com/soniakeys/jointcal/internal/assoc"
	"github.com/soniakeys/jointcal/internal/logging"
	"github.com/soniakeys/jointcal/internal/model"
)

// PhotometryFit fits a photometry model and fitted star fluxes.
//
// A measurement term compares the calibrated flux of a measurement with
// its fitted star flux.  A reference term compares a fitted star flux with
// the reference flux.
type PhotometryFit struct {
	Fitter
	a         *assoc.Associations
	m         model.PhotometryModel
	fluxError float64 // fraction of flux, added in quadrature
	flux      int     // first flux parameter

	t term
}

// NewPhotometryFit prepares a fit of m to the stars of a.  fluxError is a
// relative flux error floor.
func NewPhotometryFit(a *assoc.Associations, m model.PhotometryModel, fluxError float64) (*PhotometryFit, error) {
	if err := a.Check(); err != nil {
		return nil, err
	}
	t := m.Params()
	if t.Has(model.Fluxes) {
		return nil, ErrParamsAssigned
	}
	f := &PhotometryFit{a: a, m: m, fluxError: fluxError}
	f.flux = t.Add(model.Fluxes, len(a.FittedStars), false)
	f.Fitter = Fitter{p: f, log: logging.For("jointcal.PhotometryFit")}
	if err := f.selectParams(model.Model + " " + model.Fluxes); err != nil {
		return nil, err
	}
	return f, nil
}

// Model returns the fitted model.
func (f *PhotometryFit) Model() model.PhotometryModel { return f.m }

func (f *PhotometryFit) params() *model.ParamTable { return f.m.Params() }
func (f *PhotometryFit) starStart() int            { return f.flux }
func (f *PhotometryFit) starBlock() int            { return 1 }

func (f *PhotometryFit) terms(derivs bool, fn func(t *term)) {
	t := &f.t
	for _, c := range f.a.CcdImages {
		if c.ValidCount() == 0 {
			continue
		}
		for _, ms := range c.Stars {
			fs := ms.Fitted
			if !ms.Valid || fs == nil {
				continue
			}
			pix := ms.Pix()
			flux := f.m.Apply(c, pix, ms.InstFlux)
			scale := f.m.Apply(c, pix, 1)
			fe := f.fluxError * flux
			v := scale*scale*ms.InstFluxErr*ms.InstFluxErr + fe*fe
			if !(v > 0) {
				continue
			}
			*t = term{n: 1, r: [2]float64{flux - fs.Flux}, ms: ms, fs: fs, d: t.d}
			t.w[0][0] = 1 / v
			t.setChi2()
			t.d.Reset()
			if derivs {
				f.m.Derivatives(c, pix, ms.InstFlux, &t.d)
				t.d.Add(f.flux+fs.Index, -1, 0)
			}
			fn(t)
		}
	}
	for _, fs := range f.a.FittedStars {
		r := fs.Ref
		if r == nil || !(r.FluxErr > 0) {
			continue
		}
		*t = term{n: 1, r: [2]float64{fs.Flux - r.Flux}, fs: fs, d: t.d}
		t.w[0][0] = 1 / (r.FluxErr * r.FluxErr)
		t.setChi2()
		t.d.Reset()
		if derivs {
			t.d.Add(f.flux+fs.Index, 1, 0)
		}
		fn(t)
	}
}

func (f *PhotometryFit) offsetParams(delta []float64) {
	f.m.OffsetParams(delta)
	if !f.params().Active(f.flux) {
		return
	}
	for _, fs := range f.a.FittedStars {
		fs.Flux += delta[f.flux+fs.Index]
	}
}

func (f *PhotometryFit) reject(t *term) {
	if t.ms != nil {
		t.ms.Invalidate()
		return
	}
	t.fs.SetRef(nil)
}

// SaveChi2Contributions writes measurement and reference terms to
// <base>-meas.csv and <base>-ref.csv.
func (f *PhotometryFit) SaveChi2Contributions(baseName string) error {
	return saveTuples(baseName, f, photometryTuples{f})
}

// SaveResultTuples is SaveChi2Contributions.
func (f *PhotometryFit) SaveResultTuples(baseName string) error {
	return f.SaveChi2Contributions(baseName)
}

func (f *PhotometryFit) String() string {
	return fmt.Sprintf("PhotometryFit(%d images, %d fitted stars)",
		len(f.a.CcdImages), len(f.a.FittedStars))
}
