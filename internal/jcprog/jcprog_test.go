// Public domain.

package jcprog_test

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/soniakeys/jointcal/internal/assoc"
	"github.com/soniakeys/jointcal/internal/dataset"
	"github.com/soniakeys/jointcal/internal/jcprog"
	"github.com/soniakeys/jointcal/internal/sim"
)

func writeConfig(t *testing.T, s string) string {
	fn := filepath.Join(t.TempDir(), "jointcal.toml")
	if err := os.WriteFile(fn, []byte(s), 0o644); err != nil {
		t.Fatal(err)
	}
	return fn
}

func TestReadConfig(t *testing.T) {
	cfg, err := jcprog.ReadConfig("")
	if err != nil || cfg != jcprog.DefaultConfig() {
		t.Fatal("defaults", err)
	}
	cfg, err = jcprog.ReadConfig(writeConfig(t, `
astrometry_model = "constrained"
chip_order = 3
do_photometry = false
`))
	if err != nil {
		t.Fatal(err)
	}
	want := jcprog.DefaultConfig()
	want.AstrometryModel = "constrained"
	want.ChipOrder = 3
	want.DoPhotometry = false
	if cfg != want {
		t.Fatalf("got %+v\nwant %+v", cfg, want)
	}
	if _, err := jcprog.ReadConfig(writeConfig(t, "poly_ordr = 4\n")); err == nil {
		t.Fatal("unknown key accepted")
	}
	if _, err := jcprog.ReadConfig(writeConfig(t, "match_cut = 0\n")); err == nil {
		t.Fatal("zero match cut accepted")
	}
	if _, err := jcprog.ReadConfig(writeConfig(t, "match_cut = \"3\"\n")); err == nil {
		t.Fatal("string match cut accepted")
	}
}

func TestRunNoExposures(t *testing.T) {
	_, err := jcprog.Run(&dataset.Dataset{Name: "empty"}, jcprog.DefaultConfig(), "")
	if !errors.Is(err, assoc.ErrNoCcdImages) {
		t.Fatal(err)
	}
}

func TestRunNoReferences(t *testing.T) {
	ds, err := sim.Generate(sim.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	ds.RefCat = nil
	if _, err := jcprog.Run(ds, jcprog.DefaultConfig(), ""); !errors.Is(err, assoc.ErrNoRefStars) {
		t.Fatal(err)
	}
}

func TestRunMinMeasurementsTooHigh(t *testing.T) {
	ds, err := sim.Generate(sim.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	cfg := jcprog.DefaultConfig()
	cfg.MinMeasurements = len(ds.Exposures) + 1
	if _, err := jcprog.Run(ds, cfg, ""); !errors.Is(err, assoc.ErrNoFittedStars) {
		t.Fatal(err)
	}
}

func TestRunSim(t *testing.T) {
	ds, err := sim.Generate(sim.DefaultConfig())
	if err != nil {
		t.Fatal(err)
	}
	cfg := jcprog.DefaultConfig()
	cfg.PosError = 0
	cfg.WriteChi2Files = true
	base := filepath.Join(t.TempDir(), "sim")
	res, err := jcprog.Run(ds, cfg, base)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Exposures) != len(ds.Exposures) {
		t.Fatal("exposures", len(res.Exposures))
	}
	for i, e := range res.Exposures {
		if e.Visit != ds.Exposures[i].Visit || e.Wcs == nil || e.PhotoCalib == nil {
			t.Fatalf("%d %+v", i, e)
		}
		if e.Wcs.SipOrder != cfg.PolyOrder {
			t.Fatal("sip order", e.Wcs.SipOrder)
		}
	}
	m := res.Metrics
	for _, k := range []string{"astrometry", "photometry"} {
		if m[k+"_converged"] != 1 {
			t.Fatal(k, "not converged")
		}
		r := m[k+"_final_chi2"] / m[k+"_final_ndof"]
		t.Log(k, "chi2/ndof", r, "passes", m[k+"_passes"])
		if r < .3 || r > .6 {
			t.Fatal(k, "chi2/ndof", r)
		}
		if m["selected_"+k+"_refStars"] < 300 || m["selected_"+k+"_ccdImages"] != 2 {
			t.Fatal(k, "selection", m["selected_"+k+"_refStars"], m["selected_"+k+"_ccdImages"])
		}
	}
	for _, fn := range []string{"sim-astrometry-initial-meas.csv", "sim-photometry-final-ref.csv"} {
		if _, err := os.Stat(filepath.Join(filepath.Dir(base), fn)); err != nil {
			t.Fatal(err)
		}
	}
	out := filepath.Join(t.TempDir(), "result.toml")
	if err := dataset.WriteResult(out, res); err != nil {
		t.Fatal(err)
	}
	back, err := dataset.ReadResult(out)
	if err != nil || back.Metrics["astrometry_final_chi2"] != m["astrometry_final_chi2"] {
		t.Fatal("result file", err)
	}
}

func TestRunConstrained(t *testing.T) {
	c := sim.DefaultConfig()
	c.NCcds = 4
	c.NStars = 3000
	ds, err := sim.Generate(c)
	if err != nil {
		t.Fatal(err)
	}
	cfg := jcprog.DefaultConfig()
	cfg.PosError = 0
	cfg.AstrometryModel = "constrained"
	cfg.ChipOrder = 3
	cfg.VisitOrder = 1
	cfg.PhotometryModel = "constrained"
	cfg.Projection = "visit"
	res, err := jcprog.Run(ds, cfg, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Exposures) != 8 {
		t.Fatal("exposures", len(res.Exposures))
	}
	for _, k := range []string{"astrometry", "photometry"} {
		r := res.Metrics[k+"_final_chi2"] / res.Metrics[k+"_final_ndof"]
		t.Log(k, "chi2/ndof", r)
		if res.Metrics[k+"_converged"] != 1 || r > 1 {
			t.Fatal(k, r)
		}
	}
	for _, e := range res.Exposures {
		if !e.PhotoCalib.Varies {
			t.Fatal(e.Name, "flat calibration")
		}
		if e.Wcs.SipOrder != 3 {
			t.Fatal(e.Name, "sip order", e.Wcs.SipOrder)
		}
	}
}
