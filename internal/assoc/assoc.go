// Public domain.

// Package assoc cross-matches measured stars between images into fitted
// stars, and fitted stars to a reference catalog.
package assoc

import (
	"errors"
	"fmt"
	"math"

	"github.com/rs/zerolog"
	"github.com/soniakeys/jointcal/internal/dataset"
	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/logging"
	"github.com/soniakeys/jointcal/internal/star"
)

// Precondition errors.  Check returns the first that applies.
var (
	ErrNoCcdImages      = errors.New("no images in the ccdImageList")
	ErrNoFittedStars    = errors.New("no stars in the fittedStarList")
	ErrNoRefStars       = errors.New("no stars in the reference star list")
	ErrNoValidCcdImages = errors.New("no images with valid measurements")
)

// ErrNoSources is returned by AddImage for an empty catalog.  It is not
// fatal; the image is skipped.
var ErrNoSources = errors.New("no sources in catalog")

// Control holds source ingestion settings.
type Control struct {
	// MinSN drops sources with InstFlux/InstFluxErr below it.  Zero keeps
	// all sources.
	MinSN float64
}

// Metrics counts stars at each association stage.
type Metrics struct {
	Associated          int // fitted stars built by AssociateCatalogs
	CollectedRefStars   int
	SelectedRefStars    int
	SelectedFittedStars int
	SelectedCcdImages   int
}

// Associations holds the images, their measurements and the fitted and
// reference stars they are matched to.
type Associations struct {
	CcdImages   []*star.CcdImage
	FittedStars []*star.FittedStar
	RefStars    []*star.RefStar

	Metrics Metrics

	commonTP    *geom.TanProjection
	deprojected bool
	log         zerolog.Logger
}

// New returns an empty Associations.
func New() *Associations {
	return &Associations{log: logging.For("jointcal.Associations")}
}

// AddImage registers one exposure and converts its catalog rows to
// measured stars.
func (a *Associations) AddImage(catalog []dataset.Source, meta dataset.ExposureMeta, ctl Control) error {
	name := star.CcdName(meta.Visit, meta.Ccd)
	if meta.WCS == nil {
		return fmt.Errorf("%s: missing wcs", name)
	}
	ccd := &star.CcdImage{
		Index:         len(a.CcdImages),
		Name:          name,
		Visit:         meta.Visit,
		Ccd:           meta.Ccd,
		Filter:        meta.Filter,
		BBox:          meta.BBox,
		PixToFocal:    meta.Detector.PixToFocal,
		Detector:      meta.Detector.Name,
		WCS:           meta.WCS,
		PhotoCalib:    meta.PhotoCalib,
		PhotoCalibErr: meta.PhotoCalibErr,
	}
	for _, s := range catalog {
		if !finite(s.X, s.Y, s.VX, s.VY, s.VXY, s.InstFlux, s.InstFluxErr) {
			continue
		}
		if ctl.MinSN > 0 && !(s.InstFluxErr > 0 && s.InstFlux/s.InstFluxErr >= ctl.MinSN) {
			continue
		}
		ccd.Stars = append(ccd.Stars, &star.MeasuredStar{
			ID: s.ID,
			X:  s.X, Y: s.Y,
			VX: s.VX, VY: s.VY, VXY: s.VXY,
			InstFlux:    s.InstFlux,
			InstFluxErr: s.InstFluxErr,
			Ccd:         ccd,
			Valid:       true,
		})
	}
	if len(ccd.Stars) == 0 {
		return fmt.Errorf("%s: %w", name, ErrNoSources)
	}
	a.CcdImages = append(a.CcdImages, ccd)
	a.commonTP = nil
	a.log.Debug().Str("ccd", name).Int("stars", len(ccd.Stars)).Msg("image added")
	return nil
}

func finite(x ...float64) bool {
	for _, v := range x {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return false
		}
	}
	return true
}

// SkyBox returns the region covered by the registered images.
func (a *Associations) SkyBox() star.SkyBox {
	return star.Footprint(a.CcdImages)
}

// CommonTP returns the tangent plane used for association, centered on
// the sky box.
func (a *Associations) CommonTP() *geom.TanProjection {
	if a.commonTP == nil {
		a.commonTP = a.SkyBox().TanProjection()
	}
	return a.commonTP
}

// CcdImageList returns the registered images.
func (a *Associations) CcdImageList() []*star.CcdImage { return a.CcdImages }

// RefStarListSize is the number of reference stars claimed by fitted stars.
func (a *Associations) RefStarListSize() int { return len(a.RefStars) }

// FittedStarListSize is the number of fitted stars.
func (a *Associations) FittedStarListSize() int { return len(a.FittedStars) }

// NCcdImagesValidForFit is the number of images with at least one valid
// measurement attached to a fitted star.
func (a *Associations) NCcdImagesValidForFit() (n int) {
	for _, c := range a.CcdImages {
		if c.ValidCount() > 0 {
			n++
		}
	}
	return
}

// Deprojected reports whether DeprojectFittedStars has run since the last
// change to the fitted star list.
func (a *Associations) Deprojected() bool { return a.deprojected }

// Check returns a precondition error if any collection a fit needs is
// empty.
func (a *Associations) Check() error {
	switch {
	case len(a.CcdImages) == 0:
		return ErrNoCcdImages
	case len(a.FittedStars) == 0:
		return ErrNoFittedStars
	case len(a.RefStars) == 0:
		return ErrNoRefStars
	case a.NCcdImagesValidForFit() == 0:
		return ErrNoValidCcdImages
	}
	return nil
}
