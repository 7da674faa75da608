// Package config defines the stager settings and provides helpers to load,
// validate and save them in YAML format.
//
// Defaults reproduce the historical layout: the project root three levels
// above the working directory and a "systemml" package directory. Values can
// be overridden by a YAML file, by SYSTEMML_STAGER_* environment variables
// (optionally read from a .env file) and finally by command-line flags.
package config
