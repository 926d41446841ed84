// Public domain.

package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/soniakeys/exit"
	"github.com/soniakeys/jointcal/internal/dataset"
	"github.com/soniakeys/jointcal/internal/logging"
	"github.com/soniakeys/jointcal/internal/sim"
	"github.com/soniakeys/unit"
)

const versionString = "jcsim version 0.1 Go source."
const copyrightString = "Public domain."

// fileConfig is the TOML form of sim.Config.  Angles are in degrees.
type fileConfig struct {
	Name         string  `toml:"name"`
	Seed         uint64  `toml:"seed"`
	Filter       string  `toml:"filter"`
	RA           float64 `toml:"ra"`
	Dec          float64 `toml:"dec"`
	NStars       int     `toml:"n_stars"`
	NVisits      int     `toml:"n_visits"`
	NCcds        int     `toml:"n_ccds"`
	CcdSize      float64 `toml:"ccd_size"`
	Gap          float64 `toml:"gap"`
	Scale        float64 `toml:"scale"`
	Dither       float64 `toml:"dither"`
	Rotation     float64 `toml:"rotation"`
	Distortion   float64 `toml:"distortion"`
	Centroid     float64 `toml:"centroid"`
	Outliers     float64 `toml:"outliers"`
	OutlierSize  float64 `toml:"outlier_size"`
	MinMag       float64 `toml:"min_mag"`
	MaxMag       float64 `toml:"max_mag"`
	RefMaxMag    float64 `toml:"ref_max_mag"`
	RefSigma     float64 `toml:"ref_sigma"`
	RefFluxSigma float64 `toml:"ref_flux_sigma"`
	FluxSigma    float64 `toml:"flux_sigma"`
	CalibScatter float64 `toml:"calib_scatter"`
	ErrorScale   float64 `toml:"error_scale"`
}

func toFile(c sim.Config) fileConfig {
	return fileConfig{c.Name, c.Seed, c.Filter, c.RA.Deg(), c.Dec.Deg(),
		c.NStars, c.NVisits, c.NCcds, c.CcdSize, c.Gap, c.Scale, c.Dither,
		c.Rotation, c.Distortion, c.Centroid, c.Outliers, c.OutlierSize,
		c.MinMag, c.MaxMag, c.RefMaxMag, c.RefSigma, c.RefFluxSigma,
		c.FluxSigma, c.CalibScatter, c.ErrorScale}
}

func (f fileConfig) sim() sim.Config {
	return sim.Config{
		Name: f.Name, Seed: f.Seed, Filter: f.Filter,
		RA: unit.AngleFromDeg(f.RA), Dec: unit.AngleFromDeg(f.Dec),
		NStars: f.NStars, NVisits: f.NVisits, NCcds: f.NCcds,
		CcdSize: f.CcdSize, Gap: f.Gap, Scale: f.Scale,
		Dither: f.Dither, Rotation: f.Rotation, Distortion: f.Distortion,
		Centroid: f.Centroid, Outliers: f.Outliers, OutlierSize: f.OutlierSize,
		MinMag: f.MinMag, MaxMag: f.MaxMag, RefMaxMag: f.RefMaxMag,
		RefSigma: f.RefSigma, RefFluxSigma: f.RefFluxSigma,
		FluxSigma: f.FluxSigma, CalibScatter: f.CalibScatter,
		ErrorScale: f.ErrorScale,
	}
}

func main() {
	defer exit.Handler()
	logging.ConfigureRuntime()
	log := logging.For("jcsim")

	cPath := flag.String("c", "", "TOML simulation settings")
	oPath := flag.String("o", "sim"+dataset.Ext, "output dataset file")
	seed := flag.Uint64("s", 0, "seed, overrides config")
	dv := flag.Bool("v", false, "display version and copyright")
	flag.Parse()
	if *dv {
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		os.Exit(0)
	}
	if flag.NArg() > 0 {
		flag.Usage()
		os.Exit(1)
	}

	fc := toFile(sim.DefaultConfig())
	if *cPath != "" {
		md, err := toml.DecodeFile(*cPath, &fc)
		if err != nil {
			exit.Log(err)
		}
		if u := md.Undecoded(); len(u) > 0 {
			keys := make([]string, len(u))
			for i, k := range u {
				keys[i] = k.String()
			}
			exit.Log(fmt.Sprintf("%s: unrecognized keys: %s", *cPath, strings.Join(keys, ", ")))
		}
	}
	cfg := fc.sim()
	if *seed != 0 {
		cfg.Seed = *seed
	}
	ds, err := sim.Generate(cfg)
	if err != nil {
		exit.Log(err)
	}
	if err := dataset.WriteFile(*oPath, ds); err != nil {
		exit.Log(err)
	}
	n := 0
	for _, e := range ds.Exposures {
		n += len(e.Sources)
	}
	log.Info().Str("file", *oPath).Int("exposures", len(ds.Exposures)).
		Int("sources", n).Int("refs", len(ds.RefCat)).Msg("dataset written")
}
