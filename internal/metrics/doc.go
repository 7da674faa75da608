// Package metrics records staging statistics with Prometheus collectors and
// writes them in the node-exporter textfile format for build agents.
//
// A nil *Recorder is valid and discards every observation, so callers that
// run without a metrics file need no special casing.
package metrics
