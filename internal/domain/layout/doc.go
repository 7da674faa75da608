// Package layout contains the path model of a staging run.
//
// A Layout is resolved once from the working directory and the configuration
// and then passed around as plain absolute paths.
package layout
