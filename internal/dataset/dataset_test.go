// Public domain.

package dataset_test

import (
	"encoding/gob"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/soniakeys/jointcal/internal/dataset"
	"github.com/soniakeys/jointcal/internal/geom"
	"github.com/soniakeys/jointcal/internal/wcs"
	"github.com/soniakeys/unit"
)

func testDataset() *dataset.Dataset {
	s := .2 / 3600
	w := wcs.NewTan(geom.Point{X: 1024, Y: 2048},
		unit.AngleFromDeg(150), unit.AngleFromDeg(2),
		geom.Linear{A11: -s, A22: s})
	return &dataset.Dataset{
		Name: "tiny",
		Exposures: []dataset.Exposure{{
			ExposureMeta: dataset.ExposureMeta{
				Visit: 12, Ccd: 3, Filter: "r",
				BBox:       geom.Frame{XMax: 2048, YMax: 4096},
				WCS:        w,
				PhotoCalib: 1.1,
				Detector:   dataset.Detector{ID: 3, Name: "S03"},
			},
			Sources: []dataset.Source{
				{ID: 1, X: 10, Y: 20, VX: 1e-3, VY: 1e-3, InstFlux: 500, InstFluxErr: 5},
				{ID: 2, X: 30, Y: 40, VX: 1e-3, VY: 2e-3, VXY: 1e-4, InstFlux: 50, InstFluxErr: 2},
			},
		}},
		RefCat: []dataset.RefSource{{
			ID: 7, RA: unit.AngleFromDeg(150.01), Dec: unit.AngleFromDeg(2.01),
			RAErr: unit.AngleFromSec(.01), DecErr: unit.AngleFromSec(.01),
			Flux:    map[string]float64{"r": 1000, "g": 800},
			FluxErr: map[string]float64{"r": 10, "g": 9},
		}},
	}
}

func TestDatasetRoundTrip(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "tiny"+dataset.Ext)
	ds := testDataset()
	if err := dataset.WriteFile(fn, ds); err != nil {
		t.Fatal(err)
	}
	got, err := dataset.ReadFile(fn)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, ds) {
		t.Fatalf("round trip\n got %+v\nwant %+v", got, ds)
	}
}

func TestDatasetVersion(t *testing.T) {
	fn := filepath.Join(t.TempDir(), "old"+dataset.Ext)
	f, err := os.Create(fn)
	if err != nil {
		t.Fatal(err)
	}
	enc := gob.NewEncoder(f)
	if err := enc.Encode(99); err != nil {
		t.Fatal(err)
	}
	f.Close()
	if _, err := dataset.ReadFile(fn); err == nil {
		t.Fatal("version mismatch accepted")
	}
	if _, err := dataset.ReadFile(filepath.Join(t.TempDir(), "missing")); err == nil {
		t.Fatal("missing file accepted")
	}
}

func TestResultRoundTrip(t *testing.T) {
	w := testDataset().Exposures[0].WCS
	w.Order = 2
	w.A = [][]float64{{0, 0, 1e-7}, {0, 2e-7, 0}, {3e-7, 0, 0}}
	w.B = [][]float64{{0, 0, -1e-7}, {0, 0, 0}, {0, 0, 0}}
	r := &dataset.Result{
		Dataset: "tiny",
		Metrics: map[string]float64{"astrometry_final_chi2": 812.5, "astrometry_final_ndof": 900},
		Exposures: []dataset.ExposureResult{{
			Name: "12_3", Visit: 12, Ccd: 3,
			Wcs:        dataset.NewWcsResult(w),
			PhotoCalib: &dataset.PhotoCalibResult{Mean: 1.02, Err: .001, Varies: true},
		}, {
			Name: "13_3", Visit: 13, Ccd: 3,
		}},
	}
	fn := filepath.Join(t.TempDir(), "result.toml")
	if err := dataset.WriteResult(fn, r); err != nil {
		t.Fatal(err)
	}
	got, err := dataset.ReadResult(fn)
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(got, r) {
		t.Fatalf("round trip\n got %+v\nwant %+v", got, r)
	}
}
