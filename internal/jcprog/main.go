// Public domain.

// Package jcprog is the jointcal command.
package jcprog

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/soniakeys/exit"
	"github.com/soniakeys/jointcal/internal/dataset"
	"github.com/soniakeys/jointcal/internal/logging"
)

const versionString = "jointcal version 0.1 Go source."
const copyrightString = "Public domain."

func Main() {
	defer exit.Handler()
	logging.ConfigureRuntime()

	cl := parseCommandLine()
	cfg, err := ReadConfig(cl.config)
	if err != nil {
		exit.Log(err)
	}
	ds, err := dataset.ReadFile(cl.fnData)
	if err != nil {
		exit.Log(err)
	}
	res, err := Run(ds, cfg, cl.tuples)
	if err != nil {
		exit.Log(err)
	}
	if err := dataset.WriteResult(cl.out, res); err != nil {
		exit.Log(err)
	}
	log := logging.For("jointcal")
	log.Info().Str("file", cl.out).
		Int("exposures", len(res.Exposures)).Msg("results written")
}

type commandLine struct {
	config string // config file
	out    string // result file
	tuples string // chi2 contribution file base
	fnData string // dataset
}

func parseCommandLine() *commandLine {
	var cl commandLine
	dh := flag.Bool("h", false, "")
	dv := flag.Bool("v", false, "")
	flag.StringVar(&cl.config, "c", "", "")
	flag.StringVar(&cl.out, "o", "", "")
	flag.StringVar(&cl.tuples, "t", "", "")
	flag.Usage = func() {
		os.Stderr.WriteString(`
Usage: jointcal [options] <dataset>   fit the exposures of a dataset file
       jointcal -h                    display help and quick reference
       jointcal -v                    display version and copyright

Options:
       -c <config-file>
       -o <result-file>               default <dataset>.toml
       -t <tuple-base>                default res_<dataset>
`)
	}
	flag.Parse()
	switch {
	case *dh:
		printHelp()
		os.Exit(0)
	case *dv:
		fmt.Println(versionString)
		fmt.Println(copyrightString)
		os.Exit(0)
	case flag.NArg() != 1:
		flag.Usage()
		os.Exit(1)
	}
	cl.fnData = flag.Arg(0)
	stem := strings.TrimSuffix(filepath.Base(cl.fnData), filepath.Ext(cl.fnData))
	if cl.out == "" {
		cl.out = stem + ".toml"
	}
	if cl.tuples == "" {
		cl.tuples = "res_" + stem
	}
	return &cl
}

func printHelp() {
	fmt.Println(versionString)
	os.Stdout.WriteString(`
Jointcal fits astrometric and photometric calibrations jointly over a set
of overlapping exposures.

Config file keys, TOML:

       pos_error = 0.02             position error floor, pixels
       match_cut = 3.0              association radius, arcsec
       min_measurements = 2
       min_sn = 0                   source flux/error cut, 0 for none
       astrometry_model = "simple"  or "constrained"
       photometry_model = "simple"  or "constrained"
       poly_order = 3               simple astrometry
       chip_order = 1               constrained astrometry
       visit_order = 5              constrained astrometry
       photometry_visit_order = 2   constrained photometry
       flux_error = 0.0             relative flux error floor
       projection = "shoot"         or "visit"
       max_passes = 20
       outlier_sigma = 5.0
       do_astrometry = true
       do_photometry = true
       write_chi2_files = false
       ref_filter = ""              default: filter of the first exposure

Environment:

       JOINTCAL_LOG_LEVEL           trace, debug, info, warn, error, off
       JOINTCAL_LOG_NOCOLOR         true to disable console colors
`)
}
