// Public domain.

package jcprog

import (
	"errors"
	"fmt"

	"github.com/rs/zerolog"
	"github.com/soniakeys/jointcal/internal/assoc"
	"github.com/soniakeys/jointcal/internal/dataset"
	"github.com/soniakeys/jointcal/internal/fit"
	"github.com/soniakeys/jointcal/internal/logging"
	"github.com/soniakeys/jointcal/internal/model"
	"github.com/soniakeys/jointcal/internal/projection"
	"github.com/soniakeys/jointcal/internal/star"
	"github.com/soniakeys/jointcal/internal/wcs"
)

// Run fits ds according to cfg.  When cfg.WriteChi2Files is set, chi2
// contribution files are written with names based on tupleBase.
func Run(ds *dataset.Dataset, cfg Config, tupleBase string) (*dataset.Result, error) {
	log := logging.For("jointcal")
	if len(ds.Exposures) == 0 {
		return nil, fmt.Errorf("%s: %w", ds.Name, assoc.ErrNoCcdImages)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	r := &run{ds: ds, cfg: cfg, tupleBase: tupleBase, log: log,
		res:    &dataset.Result{Dataset: ds.Name, Metrics: map[string]float64{}},
		byName: map[string]*dataset.ExposureResult{}}
	if cfg.DoAstrometry {
		if err := r.astrometry(); err != nil {
			return nil, err
		}
	}
	if cfg.DoPhotometry {
		if err := r.photometry(); err != nil {
			return nil, err
		}
	}
	for _, e := range ds.Exposures {
		if er, ok := r.byName[star.CcdName(e.Visit, e.Ccd)]; ok {
			r.res.Exposures = append(r.res.Exposures, *er)
		}
	}
	return r.res, nil
}

type run struct {
	ds        *dataset.Dataset
	cfg       Config
	tupleBase string
	log       zerolog.Logger
	res       *dataset.Result
	byName    map[string]*dataset.ExposureResult
}

func (r *run) exposure(visit, ccd int, n string) *dataset.ExposureResult {
	er, ok := r.byName[n]
	if !ok {
		er = &dataset.ExposureResult{Name: n, Visit: visit, Ccd: ccd}
		r.byName[n] = er
	}
	return er
}

// associate loads the exposures and matches stars for one kind of fit,
// "astrometry" or "photometry".
func (r *run) associate(kind string) (*assoc.Associations, error) {
	a := assoc.New()
	ctl := assoc.Control{MinSN: r.cfg.MinSN}
	for _, e := range r.ds.Exposures {
		if err := a.AddImage(e.Sources, e.ExposureMeta, ctl); err != nil {
			if errors.Is(err, assoc.ErrNoSources) {
				r.log.Warn().Err(err).Msg("skipping exposure")
				continue
			}
			return nil, err
		}
	}
	if len(a.CcdImages) == 0 {
		return nil, fmt.Errorf("%s: %w", kind, assoc.ErrNoCcdImages)
	}
	a.AssociateCatalogs(r.cfg.MatchCut)
	filter := r.cfg.RefFilter
	if filter == "" {
		filter = a.CcdImages[0].Filter
	}
	b := a.SkyBox()
	r.log.Info().Float64("ra", b.RA.Deg()).Float64("dec", b.Dec.Deg()).
		Float64("radius", b.Radius.Deg()).Msg("reference region")
	a.CollectRefStars(r.ds.RefCat, r.cfg.MatchCut, filter)
	a.SelectFittedStars(r.cfg.MinMeasurements)
	a.DeprojectFittedStars()
	m := r.res.Metrics
	m["associated_"+kind+"_fittedStars"] = float64(a.Metrics.Associated)
	m["collected_"+kind+"_refStars"] = float64(a.Metrics.CollectedRefStars)
	m["selected_"+kind+"_refStars"] = float64(a.Metrics.SelectedRefStars)
	m["selected_"+kind+"_fittedStars"] = float64(a.Metrics.SelectedFittedStars)
	m["selected_"+kind+"_ccdImages"] = float64(a.Metrics.SelectedCcdImages)
	if err := a.Check(); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return a, nil
}

// fitter is the common part of the astrometry and photometry fits.
type fitter interface {
	fit.Minimizer
	SaveChi2Contributions(baseName string) error
}

// converge runs the staged minimizations, then the outlier loop on the
// last stage, and records metrics.
func (r *run) converge(kind string, f fitter, stages []string) error {
	log := logging.For("jointcal." + kind)
	if r.cfg.WriteChi2Files {
		if err := f.SaveChi2Contributions(r.tupleBase + "-" + kind + "-initial.csv"); err != nil {
			return err
		}
	}
	log.Info().Stringer("chi2", f.ComputeChi2()).Msg("initial")
	for _, s := range stages {
		if res := f.Minimize(s, 0); res == fit.Failed {
			return fmt.Errorf("%s %s: %w", kind, s, fit.ErrFitFailed)
		}
		log.Info().Stringer("chi2", f.ComputeChi2()).Msg(s)
	}
	o, err := fit.Converge(f, log, stages[len(stages)-1], r.cfg.OutlierSigma, r.cfg.MaxPasses)
	if err != nil {
		return fmt.Errorf("%s: %w", kind, err)
	}
	m := r.res.Metrics
	m[kind+"_final_chi2"] = o.Chi2.Chi2
	m[kind+"_final_ndof"] = float64(o.Chi2.Ndof)
	m[kind+"_passes"] = float64(o.Passes)
	if o.Converged {
		m[kind+"_converged"] = 1
	} else {
		m[kind+"_converged"] = 0
	}
	if r.cfg.WriteChi2Files {
		if err := f.SaveChi2Contributions(r.tupleBase + "-" + kind + "-final.csv"); err != nil {
			return err
		}
	}
	return nil
}

func (r *run) astrometry() error {
	a, err := r.associate("astrometry")
	if err != nil {
		return err
	}
	h, err := projection.New(r.cfg.Projection, a.CcdImages, a.CommonTP())
	if err != nil {
		return err
	}
	m, err := model.NewAstrometryModel(r.cfg.AstrometryModel, a, h, model.AstrometryConfig{
		Order:      r.cfg.PolyOrder,
		ChipOrder:  r.cfg.ChipOrder,
		VisitOrder: r.cfg.VisitOrder,
	})
	if err != nil {
		return err
	}
	f, err := fit.NewAstrometryFit(a, m, r.cfg.PosError)
	if err != nil {
		return err
	}
	stages := []string{model.Distortions, model.Positions, model.Distortions + " " + model.Positions}
	if err := r.converge("astrometry", f, stages); err != nil {
		return err
	}
	var ccds []*star.CcdImage
	for _, c := range a.CcdImages {
		if c.ValidCount() > 0 {
			ccds = append(ccds, c)
		}
	}
	err = exportWcs(m, ccds, func(c *star.CcdImage, w *wcs.TanSip) error {
		r.exposure(c.Visit, c.Ccd, c.Name).Wcs = dataset.NewWcsResult(w)
		return nil
	})
	if err != nil {
		r.log.Error().Err(err).Msg("wcs export failed")
	}
	return err
}

func (r *run) photometry() error {
	a, err := r.associate("photometry")
	if err != nil {
		return err
	}
	m, err := model.NewPhotometryModel(r.cfg.PhotometryModel, a, model.PhotometryConfig{
		VisitOrder: r.cfg.PhotometryVisitOrder,
	})
	if err != nil {
		return err
	}
	f, err := fit.NewPhotometryFit(a, m, r.cfg.FluxError)
	if err != nil {
		return err
	}
	stages := []string{model.Model, model.Fluxes, model.Model + " " + model.Fluxes}
	if err := r.converge("photometry", f, stages); err != nil {
		return err
	}
	for _, c := range a.CcdImages {
		if c.ValidCount() == 0 {
			continue
		}
		pc, err := m.ToPhotoCalib(c)
		if err != nil {
			r.log.Error().Err(err).Str("exposure", c.Name).Msg("photometric calibration export failed")
			return err
		}
		r.exposure(c.Visit, c.Ccd, c.Name).PhotoCalib = &dataset.PhotoCalibResult{
			Mean: pc.Mean, Err: pc.Err, Varies: pc.Varies()}
	}
	return nil
}
