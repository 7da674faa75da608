// Package stager copies build outputs into the python package directory
// before distribution.
//
// A run recreates the java staging directory, copies every build-output
// archive matching the configured glob plus the whole scripts tree into it,
// then recreates the cpp staging directory and copies the native source,
// header and build file into it. Removal failures are logged and ignored;
// every other filesystem error aborts the run and leaves partial state behind.
// A YAML manifest with checksums of the staged files is written last.
package stager
