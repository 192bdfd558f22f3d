// Package metrics writes run outcomes in the Prometheus textfile format so a
// node_exporter textfile collector can pick up scheduled runs.
package metrics

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"

	"github.com/adamancini/vsupdater/internal/types"
)

// Run is the outcome of one invocation.
type Run struct {
	Mode       types.Mode
	FinalState types.State
	Version    string
	Failed     bool
	FinishedAt time.Time
	Duration   time.Duration
}

// Exporter writes a textfile per run. A zero path disables it.
type Exporter struct {
	path   string
	logger zerolog.Logger
}

// NewExporter creates an exporter writing to path.
func NewExporter(path string, logger zerolog.Logger) *Exporter {
	return &Exporter{path: path, logger: logger}
}

// Enabled reports whether a textfile path is configured.
func (e *Exporter) Enabled() bool {
	return e != nil && e.path != ""
}

// Write replaces the textfile with metrics describing run.
func (e *Exporter) Write(run Run) error {
	if !e.Enabled() {
		return nil
	}

	reg := prometheus.NewRegistry()
	labels := prometheus.Labels{"mode": run.Mode.String()}

	success := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "vsupdater_last_run_success",
		Help:        "1 if the last run finished without error.",
		ConstLabels: labels,
	})
	finished := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "vsupdater_last_run_timestamp_seconds",
		Help:        "Unix time the last run finished.",
		ConstLabels: labels,
	})
	duration := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "vsupdater_last_run_duration_seconds",
		Help:        "Wall time of the last run.",
		ConstLabels: labels,
	})
	state := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name:        "vsupdater_last_run_state",
		Help:        "Final state of the last run, 1 for the state reached.",
		ConstLabels: labels,
	}, []string{"state"})
	installed := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: "vsupdater_installed_version_info",
		Help: "Installed server version after the last run.",
	}, []string{"version"})

	reg.MustRegister(success, finished, duration, state, installed)

	if !run.Failed {
		success.Set(1)
	}
	finished.Set(float64(run.FinishedAt.Unix()))
	duration.Set(run.Duration.Seconds())
	for _, s := range types.AllStates() {
		v := 0.0
		if s == run.FinalState {
			v = 1
		}
		state.WithLabelValues(s.String()).Set(v)
	}
	if run.Version != "" {
		installed.WithLabelValues(run.Version).Set(1)
	}

	if err := os.MkdirAll(filepath.Dir(e.path), 0755); err != nil {
		return fmt.Errorf("failed to create metrics directory: %w", err)
	}
	if err := prometheus.WriteToTextfile(e.path, reg); err != nil {
		return fmt.Errorf("failed to write metrics textfile: %w", err)
	}

	e.logger.Debug().Str("path", e.path).Msg("Metrics textfile written")
	return nil
}
