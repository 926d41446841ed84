/*
Command jcsim writes a synthetic dataset for jointcal.

Usage

	jcsim [options]

Options:

	-c <config-file>   TOML simulation settings
	-o <dataset-file>  default sim.jcds
	-s <seed>          overrides the seed of the config
	-v                 display version and copyright

The simulation places stars uniformly over a field, observes them in a
number of dithered visits with a grid of sensors, displaces them by a
radial cubic distortion of the focal plane and adds centroid noise, a
fraction of gross outliers, and flux noise.  A reference catalog of the
brighter stars is written with its own position and flux noise.  Reported
errors are the true noise scaled by error_scale.

Config keys are the snake case names of the fields of sim.Config, for
example n_stars, n_visits, distortion and error_scale.  The same settings
and seed always give the same dataset.
*/
package main
