// Public domain.

// Package star holds the catalog records shared by association, models and
// fitting: measured detections, the fitted stars they are merged into,
// reference stars, and the exposures that own the detections.
package star

import (
	"fmt"

	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/wcs"
	"github.com/soniakeys/unit"
)

// CcdImage is one sensor's exposure.
type CcdImage struct {
	Index         int // registration order
	Name          string
	Visit, Ccd    int
	Filter        string
	BBox          geom.Frame
	PixToFocal    geom.Linear // pixels to focal plane mm
	Detector      string
	WCS           *wcs.TanSip
	PhotoCalib    float64
	PhotoCalibErr float64
	Stars         []*MeasuredStar

	// TP is the projection of the group this image belongs to.  Set by a
	// projection handler.
	TP *geom.TanProjection
}

// CcdName is the conventional image name, visit_ccd.
func CcdName(visit, ccd int) string {
	return fmt.Sprintf("%d_%d", visit, ccd)
}

// ValidCount is the number of valid measurements attached to a fitted star.
func (c *CcdImage) ValidCount() (n int) {
	for _, m := range c.Stars {
		if m.Valid && m.Fitted != nil {
			n++
		}
	}
	return
}

// MeasuredStar is one detection in one CcdImage.
type MeasuredStar struct {
	ID          int64
	X, Y        float64 // pixels
	VX, VY, VXY float64 // pixels²
	InstFlux    float64
	InstFluxErr float64
	Ccd         *CcdImage
	Valid       bool
	Fitted      *FittedStar
}

// Pix returns the pixel position.
func (m *MeasuredStar) Pix() geom.Point { return geom.Point{X: m.X, Y: m.Y} }

// Invalidate flags m as rejected and decrements the measurement count of
// its fitted star.
func (m *MeasuredStar) Invalidate() {
	if !m.Valid {
		return
	}
	m.Valid = false
	if m.Fitted != nil {
		m.Fitted.MeasurementCount--
	}
}

// FittedStar is a star inferred from one or more measurements.
type FittedStar struct {
	Index            int     // position in the fitted star list
	X, Y             float64 // common tangent plane, degrees
	RA, Dec          unit.Angle
	Ref              *RefStar
	MeasurementCount int
	Measurements     []*MeasuredStar
	Flux             float64
}

// SetRef attaches r, or detaches the current ref when r is nil.
func (f *FittedStar) SetRef(r *RefStar) {
	if f.Ref != nil {
		f.Ref.Fitted = nil
	}
	f.Ref = r
	if r != nil {
		r.Fitted = f
	}
}

// RefStar is a reference catalog star.
type RefStar struct {
	ID            int64
	RA, Dec       unit.Angle
	RAErr, DecErr unit.Angle
	Flux, FluxErr float64 // in the selected band
	Fitted        *FittedStar
}
