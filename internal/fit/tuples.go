// Public domain.

package fit

import (
	"encoding/csv"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/soniakeys/meeus/v3/angle"
	"github.com/soniakeys/unit"
)

// tupleNames inserts -meas and -ref before the extension of baseName, or
// appends them with a .csv extension when there is none.
func tupleNames(baseName string) (meas, ref string) {
	ext := filepath.Ext(baseName)
	if ext == "" {
		return baseName + "-meas.csv", baseName + "-ref.csv"
	}
	stem := strings.TrimSuffix(baseName, ext)
	return stem + "-meas" + ext, stem + "-ref" + ext
}

type tupleFormat interface {
	measHeader() []string
	measRow(t *term) []string
	refHeader() []string
	refRow(t *term) []string
}

func saveTuples(baseName string, p problem, tf tupleFormat) error {
	measName, refName := tupleNames(baseName)
	mf, err := os.Create(measName)
	if err != nil {
		return err
	}
	rf, err := os.Create(refName)
	if err != nil {
		mf.Close()
		return err
	}
	mw := csv.NewWriter(mf)
	rw := csv.NewWriter(rf)
	mw.Write(tf.measHeader())
	rw.Write(tf.refHeader())
	p.terms(false, func(t *term) {
		if t.ms != nil {
			mw.Write(tf.measRow(t))
		} else {
			rw.Write(tf.refRow(t))
		}
	})
	mw.Flush()
	rw.Flush()
	err = mw.Error()
	if e := rw.Error(); err == nil {
		err = e
	}
	if e := mf.Close(); err == nil {
		err = e
	}
	if e := rf.Close(); err == nil {
		err = e
	}
	return err
}

func fmtG(x float64) string { return strconv.FormatFloat(x, 'g', -1, 64) }
func fmtI(i int) string     { return strconv.Itoa(i) }

type astrometryTuples struct{}

func (astrometryTuples) measHeader() []string {
	return []string{"ccd", "visit", "id", "x", "y", "rx", "ry", "chi2", "fitted", "nmeas"}
}

// measRow reports residuals in arcsec.
func (astrometryTuples) measRow(t *term) []string {
	ms := t.ms
	return []string{ms.Ccd.Name, fmtI(ms.Ccd.Visit), strconv.FormatInt(ms.ID, 10),
		fmtG(ms.X), fmtG(ms.Y), fmtG(t.r[0] * 3600), fmtG(t.r[1] * 3600),
		fmtG(t.chi2), fmtI(t.fs.Index), fmtI(t.fs.MeasurementCount)}
}

func (astrometryTuples) refHeader() []string {
	return []string{"fitted", "ra", "dec", "ref_ra", "ref_dec", "sep", "chi2", "nmeas"}
}

// refRow reports positions in degrees and separation in arcsec.
func (astrometryTuples) refRow(t *term) []string {
	fs, r := t.fs, t.fs.Ref
	sep := angle.Sep(fs.RA, fs.Dec, refRA(fs.RA, r.RA), r.Dec)
	return []string{fmtI(fs.Index), fmtG(fs.RA.Deg()), fmtG(fs.Dec.Deg()),
		fmtG(r.RA.Deg()), fmtG(r.Dec.Deg()), fmtG(sep.Sec()),
		fmtG(t.chi2), fmtI(fs.MeasurementCount)}
}

// refRA returns ra shifted by whole turns to lie within half a turn of near.
func refRA(near, ra unit.Angle) unit.Angle {
	return near + unit.Angle(math.Remainder((ra-near).Rad(), 2*math.Pi))
}

type photometryTuples struct{ f *PhotometryFit }

func (photometryTuples) measHeader() []string {
	return []string{"ccd", "visit", "id", "x", "y", "inst_flux", "flux", "fitted_flux",
		"residual", "chi2", "fitted", "nmeas"}
}

func (p photometryTuples) measRow(t *term) []string {
	ms := t.ms
	return []string{ms.Ccd.Name, fmtI(ms.Ccd.Visit), strconv.FormatInt(ms.ID, 10),
		fmtG(ms.X), fmtG(ms.Y), fmtG(ms.InstFlux),
		fmtG(p.f.m.Apply(ms.Ccd, ms.Pix(), ms.InstFlux)), fmtG(t.fs.Flux),
		fmtG(t.r[0]), fmtG(t.chi2), fmtI(t.fs.Index), fmtI(t.fs.MeasurementCount)}
}

func (photometryTuples) refHeader() []string {
	return []string{"fitted", "flux", "ref_flux", "ref_flux_err", "chi2", "nmeas"}
}

func (photometryTuples) refRow(t *term) []string {
	fs := t.fs
	return []string{fmtI(fs.Index), fmtG(fs.Flux), fmtG(fs.Ref.Flux),
		fmtG(fs.Ref.FluxErr), fmtG(t.chi2), fmtI(fs.MeasurementCount)}
}
