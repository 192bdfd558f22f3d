package cmd

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamancini/vsupdater/internal/config"
	"github.com/adamancini/vsupdater/internal/history"
	"github.com/adamancini/vsupdater/internal/lock"
	"github.com/adamancini/vsupdater/internal/logging"
	"github.com/adamancini/vsupdater/internal/metrics"
	"github.com/adamancini/vsupdater/internal/notify"
	"github.com/adamancini/vsupdater/internal/output"
	"github.com/adamancini/vsupdater/internal/types"
	"github.com/adamancini/vsupdater/internal/update"
)

// loadConfig reads and validates the configuration selected by --config.
func loadConfig() (config.Config, error) {
	cfg, err := config.Load(configPath, nil)
	if err != nil {
		return cfg, err
	}
	logging.GetLogger("config").Debug().Str("source", cfg.Source).Msg("Configuration loaded")
	return cfg, nil
}

// newWriter returns the output writer selected by --output.
func newWriter(w io.Writer) (*output.Writer, error) {
	format, err := output.ParseFormat(outputFormat)
	if err != nil {
		return nil, err
	}
	return output.NewWriter(w, format), nil
}

// session bundles an orchestrator with the resources it holds open.
type session struct {
	orch    *update.Orchestrator
	history history.Store
}

func (s *session) Close() error {
	if s.history != nil {
		return s.history.Close()
	}
	return nil
}

// newSession wires the production orchestrator for cfg. notifications=false
// replaces the Discord notifier with a no-op.
func newSession(cfg config.Config, notifications bool) (*session, error) {
	logger := logging.GetLogger("update")
	deps := update.DefaultDeps(cfg, logger)

	if notifications {
		sink, err := notify.New(cfg.Discord, logging.GetLogger("notify"))
		if err != nil {
			return nil, err
		}
		deps.Notifier = sink
	}

	deps.Metrics = metrics.NewExporter(cfg.Metrics.TextfilePath, logging.GetLogger("metrics"))

	s := &session{}
	if cfg.History.Enabled {
		store, err := history.Open(cfg.History.StorePath())
		if err != nil {
			logger.Warn().Err(err).Str("path", cfg.History.StorePath()).Msg("Run history disabled")
		} else {
			s.history = store
			deps.Recorder = store
		}
	}

	s.orch = update.NewOrchestrator(cfg, deps, logger)
	return s, nil
}

// withLock runs fn while holding the installation lock.
func withLock(cfg config.Config, fn func() error) error {
	l, err := lock.Acquire(cfg.LocalServer.LockPath())
	if err != nil {
		return err
	}
	defer func() {
		if err := l.Release(); err != nil {
			logging.GetLogger("lock").Warn().Err(err).Msg("Failed to release lock")
		}
	}()
	return fn()
}

// runSession loads config, takes the lock and hands fn a wired orchestrator.
func runSession(ctx context.Context, notifications bool, fn func(ctx context.Context, o *update.Orchestrator) error) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	return withLock(cfg, func() error {
		s, err := newSession(cfg, notifications)
		if err != nil {
			return err
		}
		defer func() {
			if err := s.Close(); err != nil {
				logging.GetLogger("history").Warn().Err(err).Msg("Failed to close history store")
			}
		}()
		return fn(ctx, s.orch)
	})
}

func stateLine(logger zerolog.Logger, res *update.Result) {
	if res == nil {
		return
	}
	logger.Info().
		Str("run_id", res.RunID).
		Str("state", res.FinalState.String()).
		Dur("duration", res.Duration).
		Msg("Run finished")
}

func versionOrDash(v string) string {
	if v == "" {
		return "-"
	}
	return v
}

func describeResult(res *update.Result) output.Fields {
	f := output.Fields{}.
		Add("Run", res.RunID).
		Add("State", res.FinalState.String()).
		Add("Installed", versionOrDash(res.FromVersion))
	if res.FinalState != types.StateUpToDate {
		f = f.Add("Target", res.ToVersion)
	}
	return f.Add("World backup", res.WorldBackup).
		Add("Duration", res.Duration.Round(time.Millisecond).String())
}

func summary(res *update.Result) string {
	switch {
	case res.Updated():
		return fmt.Sprintf("Server was successfully updated to version %s", res.ToVersion)
	case res.FinalState == types.StateUpToDate:
		return fmt.Sprintf("Current server version %s is the latest, no need to update", res.FromVersion)
	case res.FinalState == types.StateNeedsUpdate && res.Mode == types.ModeManual:
		return "Update cancelled"
	default:
		return ""
	}
}
