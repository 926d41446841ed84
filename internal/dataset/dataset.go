// Public domain.

// Package dataset defines the input consumed by jointcal and the results it
// produces, and the file formats used for them.
//
// Inputs are stored as a single gob file: a header followed by the
// Dataset.  Results are written as TOML.
package dataset

import (
	"encoding/gob"
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/wcs"
	"github.com/soniakeys/unit"
)

// Ext is the conventional file extension of a dataset file.
const Ext = ".jcds"

// formatVersion is written ahead of the dataset and checked on read.
const formatVersion = 1

// Source is one selected detection from an exposure catalog.
type Source struct {
	ID          int64
	X, Y        float64 // pixels
	VX, VY, VXY float64 // centroid covariance, pixels²
	InstFlux    float64
	InstFluxErr float64
}

// Detector describes sensor placement in the focal plane.
type Detector struct {
	ID         int
	Name       string
	PixToFocal geom.Linear // pixels to focal plane mm
}

// ExposureMeta is the per-exposure metadata that accompanies a catalog.
type ExposureMeta struct {
	Visit, Ccd    int
	Filter        string
	BBox          geom.Frame
	WCS           *wcs.TanSip
	PhotoCalib    float64 // instFlux to nJy
	PhotoCalibErr float64
	Detector      Detector
}

// Exposure is one sensor exposure with its selected sources.
type Exposure struct {
	ExposureMeta
	Sources []Source
}

// RefSource is one row of the reference catalog.
type RefSource struct {
	ID            int64
	RA, Dec       unit.Angle
	RAErr, DecErr unit.Angle
	Flux, FluxErr map[string]float64 // nJy, by filter
}

// Dataset is everything needed for one jointcal run.
type Dataset struct {
	Name      string
	Exposures []Exposure
	RefCat    []RefSource
}

// ReadFile reads a dataset written by WriteFile.
func ReadFile(fn string) (*Dataset, error) {
	f, err := os.Open(fn)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	dec := gob.NewDecoder(f)
	var v int
	if err := dec.Decode(&v); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	if v != formatVersion {
		return nil, fmt.Errorf("%s: dataset format %d, want %d", fn, v, formatVersion)
	}
	var ds Dataset
	if err := dec.Decode(&ds); err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return &ds, nil
}

// WriteFile writes ds to fn.
func WriteFile(fn string, ds *Dataset) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	enc := gob.NewEncoder(f)
	if err := enc.Encode(formatVersion); err != nil {
		f.Close()
		return err
	}
	if err := enc.Encode(ds); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// WcsResult is a fitted TAN-SIP WCS in FITS conventions (degrees, SIP
// coefficient triangles).
type WcsResult struct {
	CRPIX1, CRPIX2 float64
	CRVAL1, CRVAL2 float64
	CD             [2][2]float64
	SipOrder       int         `toml:"sip_order"`
	A              [][]float64 `toml:"a,omitempty"`
	B              [][]float64 `toml:"b,omitempty"`
}

// NewWcsResult converts a TanSip.
func NewWcsResult(w *wcs.TanSip) *WcsResult {
	return &WcsResult{
		CRPIX1: w.CRPIX.X, CRPIX2: w.CRPIX.Y,
		CRVAL1: w.RA.Deg(), CRVAL2: w.Dec.Deg(),
		CD:       [2][2]float64{{w.CD.A11, w.CD.A12}, {w.CD.A21, w.CD.A22}},
		SipOrder: w.Order,
		A:        w.A,
		B:        w.B,
	}
}

// PhotoCalibResult is a fitted photometric calibration.
type PhotoCalibResult struct {
	Mean   float64
	Err    float64
	Varies bool `toml:"spatially_varying"`
}

// ExposureResult holds the fit products for one exposure.
type ExposureResult struct {
	Name       string
	Visit, Ccd int
	Wcs        *WcsResult        `toml:"wcs,omitempty"`
	PhotoCalib *PhotoCalibResult `toml:"photo_calib,omitempty"`
}

// Result is everything produced by one jointcal run.
type Result struct {
	Dataset   string
	Metrics   map[string]float64
	Exposures []ExposureResult
}

// WriteResult writes r as TOML.
func WriteResult(fn string, r *Result) error {
	f, err := os.Create(fn)
	if err != nil {
		return err
	}
	if err := toml.NewEncoder(f).Encode(r); err != nil {
		f.Close()
		return fmt.Errorf("%s: %w", fn, err)
	}
	return f.Close()
}

// ReadResult reads a result file written by WriteResult.
func ReadResult(fn string) (*Result, error) {
	var r Result
	if _, err := toml.DecodeFile(fn, &r); err != nil {
		return nil, err
	}
	return &r, nil
}
