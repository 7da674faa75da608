package metrics

import (
	"fmt"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "systemml_stager"

// Kind labels of staged files.
const (
	KindArchive = "archive"
	KindScript  = "script"
	KindNative  = "native"
)

// Recorder collects metrics of staging runs. A nil *Recorder discards everything.
type Recorder struct {
	registry        *prom.Registry
	stagedFiles     *prom.CounterVec
	stagedBytes     *prom.CounterVec
	removalFailures prom.Counter
	runs            *prom.CounterVec
	runDuration     prom.Gauge
	lastSuccess     prom.Gauge
}

// NewRecorder constructs the collectors and registers them on a private registry.
func NewRecorder() *Recorder {
	r := &Recorder{
		registry: prom.NewRegistry(),
		stagedFiles: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "staged_files_total",
			Help:      "Files copied into the staging directories by kind",
		}, []string{"kind"}),
		stagedBytes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "staged_bytes_total",
			Help:      "Bytes copied into the staging directories by kind",
		}, []string{"kind"}),
		removalFailures: prom.NewCounter(prom.CounterOpts{
			Namespace: namespace,
			Name:      "removal_failures_total",
			Help:      "Staging directory removals that failed and were ignored",
		}),
		runs: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Staging runs by outcome",
		}, []string{"outcome"}),
		runDuration: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Duration of the last staging run",
		}),
		lastSuccess: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "last_success_timestamp_seconds",
			Help:      "Unix time of the last successful staging run",
		}),
	}

	r.registry.MustRegister(r.stagedFiles, r.stagedBytes, r.removalFailures, r.runs, r.runDuration, r.lastSuccess)

	return r
}

// Registry exposes the underlying registry.
func (r *Recorder) Registry() *prom.Registry {
	if r == nil {
		return nil
	}

	return r.registry
}

// ObserveFile counts one staged file of the given kind and size.
func (r *Recorder) ObserveFile(kind string, size int64) {
	if r == nil {
		return
	}

	r.stagedFiles.WithLabelValues(kind).Inc()
	r.stagedBytes.WithLabelValues(kind).Add(float64(size))
}

// IncRemovalFailure counts a swallowed removal error.
func (r *Recorder) IncRemovalFailure() {
	if r == nil {
		return
	}

	r.removalFailures.Inc()
}

// ObserveRun records the outcome and duration of a run finished at end.
func (r *Recorder) ObserveRun(d time.Duration, end time.Time, success bool) {
	if r == nil {
		return
	}

	outcome := "failure"
	if success {
		outcome = "success"

		r.lastSuccess.Set(float64(end.Unix()))
	}

	r.runs.WithLabelValues(outcome).Inc()
	r.runDuration.Set(d.Seconds())
}

// WriteTextfile writes all metrics to path atomically.
func (r *Recorder) WriteTextfile(path string) error {
	if r == nil || path == "" {
		return nil
	}

	if err := prom.WriteToTextfile(path, r.registry); err != nil {
		return fmt.Errorf("write metrics textfile: %w", err)
	}

	return nil
}
