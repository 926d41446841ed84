// Public domain.

package jcprog

import (
	"fmt"
	"strings"

	"github.com/BurntSushi/toml"
)

// Config holds the settings of a jointcal run.  Keys of the TOML config
// file are given by the field tags.
type Config struct {
	PosError             float64 `toml:"pos_error"` // pixels
	MatchCut             float64 `toml:"match_cut"` // arcsec
	MinMeasurements      int     `toml:"min_measurements"`
	MinSN                float64 `toml:"min_sn"`
	AstrometryModel      string  `toml:"astrometry_model"`
	PhotometryModel      string  `toml:"photometry_model"`
	PolyOrder            int     `toml:"poly_order"`
	ChipOrder            int     `toml:"chip_order"`
	VisitOrder           int     `toml:"visit_order"`
	PhotometryVisitOrder int     `toml:"photometry_visit_order"`
	FluxError            float64 `toml:"flux_error"`
	Projection           string  `toml:"projection"`
	MaxPasses            int     `toml:"max_passes"`
	OutlierSigma         float64 `toml:"outlier_sigma"`
	DoAstrometry         bool    `toml:"do_astrometry"`
	DoPhotometry         bool    `toml:"do_photometry"`
	WriteChi2Files       bool    `toml:"write_chi2_files"`
	RefFilter            string  `toml:"ref_filter"` // default: filter of the first image
}

// DefaultConfig returns the settings used when no config file is given.
func DefaultConfig() Config {
	return Config{
		PosError:             0.02,
		MatchCut:             3,
		MinMeasurements:      2,
		AstrometryModel:      "simple",
		PhotometryModel:      "simple",
		PolyOrder:            3,
		ChipOrder:            1,
		VisitOrder:           5,
		PhotometryVisitOrder: 2,
		Projection:           "shoot",
		MaxPasses:            20,
		OutlierSigma:         5,
		DoAstrometry:         true,
		DoPhotometry:         true,
	}
}

// ReadConfig reads a TOML config file over the defaults.  An empty path
// returns the defaults.  Unknown keys are an error.
func ReadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		return cfg, nil
	}
	md, err := toml.DecodeFile(path, &cfg)
	if err != nil {
		return cfg, err
	}
	if u := md.Undecoded(); len(u) > 0 {
		keys := make([]string, len(u))
		for i, k := range u {
			keys[i] = k.String()
		}
		return cfg, fmt.Errorf("%s: unrecognized keys: %s", path, strings.Join(keys, ", "))
	}
	return cfg, cfg.Validate()
}

// Validate checks value ranges.
func (c Config) Validate() error {
	switch {
	case c.PosError < 0:
		return fmt.Errorf("pos_error %g < 0", c.PosError)
	case !(c.MatchCut > 0):
		return fmt.Errorf("match_cut %g must be positive", c.MatchCut)
	case c.MinMeasurements < 1:
		return fmt.Errorf("min_measurements %d < 1", c.MinMeasurements)
	case c.MaxPasses < 1:
		return fmt.Errorf("max_passes %d < 1", c.MaxPasses)
	case c.OutlierSigma < 0:
		return fmt.Errorf("outlier_sigma %g < 0", c.OutlierSigma)
	case c.FluxError < 0:
		return fmt.Errorf("flux_error %g < 0", c.FluxError)
	}
	return nil
}
