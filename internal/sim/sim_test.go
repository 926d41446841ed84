// Public domain.

package sim_test

import (
	"reflect"
	"testing"

	"github.com/soniakeys/jointcal/internal/sim"
)

func TestGenerateDeterministic(t *testing.T) {
	c := sim.DefaultConfig()
	c.NStars = 200
	d1, err := sim.Generate(c)
	if err != nil {
		t.Fatal(err)
	}
	d2, _ := sim.Generate(c)
	if !reflect.DeepEqual(d1, d2) {
		t.Fatal("same seed, different datasets")
	}
	c.Seed++
	d3, _ := sim.Generate(c)
	if reflect.DeepEqual(d1.RefCat, d3.RefCat) {
		t.Fatal("seed ignored")
	}
}

func TestGenerateLayout(t *testing.T) {
	c := sim.DefaultConfig()
	c.NVisits = 3
	c.NCcds = 4
	c.NStars = 2000
	ds, err := sim.Generate(c)
	if err != nil {
		t.Fatal(err)
	}
	if len(ds.Exposures) != 12 {
		t.Fatal("exposures", len(ds.Exposures))
	}
	ids := map[int64]bool{}
	for k, e := range ds.Exposures {
		if e.Visit != 1000+k/4 || e.Ccd != k%4 {
			t.Fatal("order", k, e.Visit, e.Ccd)
		}
		if e.WCS == nil || len(e.Sources) == 0 {
			t.Fatal(k, "empty")
		}
		for _, s := range e.Sources {
			// centroid noise can push a source just off the edge
			if s.X < -1 || s.Y < -1 || s.X > c.CcdSize+1 || s.Y > c.CcdSize+1 {
				t.Fatal("off image", s.X, s.Y)
			}
			if ids[s.ID] {
				t.Fatal("duplicate id", s.ID)
			}
			ids[s.ID] = true
			if !(s.InstFluxErr > 0) || !(s.VX > 0) {
				t.Fatal("errors", s)
			}
		}
	}
	for _, r := range ds.RefCat {
		if r.Flux[c.Filter] <= 0 || r.FluxErr[c.Filter] <= 0 {
			t.Fatal("ref flux", r)
		}
	}
	if len(ds.RefCat) == 0 || len(ds.RefCat) >= c.NStars {
		t.Fatal("ref catalog", len(ds.RefCat))
	}
}

func TestGenerateBadConfig(t *testing.T) {
	c := sim.DefaultConfig()
	c.NVisits = 0
	if _, err := sim.Generate(c); err == nil {
		t.Fatal("accepted")
	}
}
