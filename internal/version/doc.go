// Package version exposes build metadata for the stager binary.
//
// Version, Commit and BuildTime are injected by the mage Build target through
// -ldflags and default to placeholder values for `go build` and tests.
package version
