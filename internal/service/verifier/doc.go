// Package verifier compares the staging directories with the manifest of the
// last staging run and reports missing, modified and unexpected files.
package verifier
