/*
Command jointcal fits astrometric and photometric calibrations jointly over
a set of overlapping exposures.

Contents

	Program overview
	Command line usage
	Configuration
	File formats
	Algorithm outline

# Program overview

Input is a dataset file holding, for each sensor exposure, a catalog of
selected sources with their pixel positions, position covariances and
instrumental fluxes, the exposure metadata (visit and sensor ids, bounding
box, filter, an initial WCS, an initial photometric calibration and the
sensor placement in the focal plane), and a reference catalog covering the
exposures.  Output is a file giving for each exposure a fitted TAN-SIP WCS
and a fitted photometric calibration, along with metrics of the fit.

Datasets can be produced by the companion program jcsim, which simulates a
star field observed through a distorted camera.

Sample run:

	jcsim -o field.jcds
	jointcal field.jcds

writes field.toml.

Command line usage

	jointcal [options] <dataset>   fit the exposures of a dataset file
	jointcal -h                    display help and quick reference
	jointcal -v                    display version and copyright

Options:

	-c <config-file>
	-o <result-file>      default <dataset>.toml
	-t <tuple-base>       default res_<dataset>

The tuple base names the chi2 contribution files written when
write_chi2_files is set.  For each fit, initial and final files are written,
each as a pair of CSV files, one row per measurement and one row per
reference star, for example res_field-astrometry-final-meas.csv and
res_field-astrometry-final-ref.csv.

# Configuration

The configuration file is TOML.  Any key may be omitted to take the default.
Unrecognized keys are an error.  jointcal -h lists the keys and defaults.

Logging goes to stderr.  The environment variable JOINTCAL_LOG_LEVEL sets the
level, one of trace, debug, info, warn, error or off.  JOINTCAL_LOG_NOCOLOR
set to true turns off console colors.

# File formats

The dataset file is a Go gob encoding of a format version number followed by
the dataset.  The result file is TOML.  CRPIX values in the result are zero
based pixel coordinates; the FITS header cards produced by the wcs package
are one based.

# Algorithm outline

Sources of all exposures are projected through their initial WCS onto a
tangent plane at the center of the region covered.  For each pair of
overlapping exposures, sources that are each other's nearest neighbor
within match_cut arc seconds are linked.  Linked sources are merged, also
transitively, into fitted stars.  Each fitted star then takes the nearest
reference star within match_cut, a reference star going to the closest of
the fitted stars that want it.  Fitted stars with fewer than
min_measurements measurements are dropped.

The astrometric model maps the pixel coordinates of each exposure to a
tangent plane, either one per visit or one for all exposures.  The simple
model has one polynomial per exposure.  The constrained model composes a
polynomial per sensor with a polynomial per visit, the first visit's being
fixed to the identity.  The photometric model multiplies instrumental flux
by a scale per exposure, and in the constrained model also by a polynomial
surface over the focal plane per visit.

The fit minimizes chi2 by Gauss-Newton steps.  The normal equations are
built for the selected parameter blocks, star blocks are eliminated, and
the remaining system is solved by Cholesky factorization.  Fitting is
staged: model parameters alone, star parameters alone, then both.  Finally
outliers are rejected: terms with chi2 more than outlier_sigma standard
deviations above the mean are removed, at most one per parameter per
round, the strongest first, and the system is solved again.  This repeats
until no more outliers are found or max_passes is reached.

Fitted models are exported by sampling them over each exposure and fitting
a TAN-SIP WCS with CRPIX placed at the tangent point.

-------------
Public domain.
*/
package main
