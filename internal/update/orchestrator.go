// Package update implements the server update state machine: deciding
// whether an update is needed, rotating the installation aside, installing
// the new build and rolling back on failure.
package update

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/adamancini/vsupdater/internal/backup"
	"github.com/adamancini/vsupdater/internal/config"
	vserrors "github.com/adamancini/vsupdater/internal/errors"
	"github.com/adamancini/vsupdater/internal/history"
	"github.com/adamancini/vsupdater/internal/install"
	"github.com/adamancini/vsupdater/internal/metrics"
	"github.com/adamancini/vsupdater/internal/notify"
	"github.com/adamancini/vsupdater/internal/service"
	"github.com/adamancini/vsupdater/internal/types"
)

// Deps are the collaborators of an Orchestrator. Nil Notifier and Recorder
// fall back to no-ops; a nil Metrics disables the textfile.
type Deps struct {
	Resolver  VersionResolver
	Inspector Inspector
	Fetcher   ArchiveFetcher
	Extractor ArchiveExtractor
	Service   ServiceController
	Backups   WorldBackuper
	Notifier  notify.Sink
	Recorder  history.Recorder
	Metrics   *metrics.Exporter
}

// DefaultDeps wires the production implementations for cfg. Notifier,
// Recorder and Metrics are left for the caller.
func DefaultDeps(cfg config.Config, logger zerolog.Logger) Deps {
	fs := cfg.FileServer
	ls := cfg.LocalServer
	return Deps{
		Resolver:  NewCatalogResolver(fs.URL, fs.Timeout(), logger.With().Str("component", "resolver").Logger()),
		Inspector: install.NewInspector(logger.With().Str("component", "inspector").Logger()),
		Fetcher:   NewHTTPFetcher(fs.Timeout(), logger.With().Str("component", "fetcher").Logger()),
		Extractor: NewTarGzExtractor(logger.With().Str("component", "extractor").Logger()),
		Service:   service.NewController(ls.ServerFullpath, ls.ServiceTimeout(), logger.With().Str("component", "service").Logger()),
		Backups:   backup.NewManager(ls.WorldBackupRoot(), logger.With().Str("component", "backup").Logger()),
	}
}

// Orchestrator runs checks, updates and world backups against one
// installation.
type Orchestrator struct {
	cfg    config.Config
	deps   Deps
	logger zerolog.Logger
	now    func() time.Time
	newID  func() string
}

// NewOrchestrator creates an orchestrator for cfg.
func NewOrchestrator(cfg config.Config, deps Deps, logger zerolog.Logger) *Orchestrator {
	if deps.Notifier == nil {
		deps.Notifier = notify.Nop{}
	}
	if deps.Recorder == nil {
		deps.Recorder = history.Nop{}
	}
	return &Orchestrator{
		cfg:    cfg,
		deps:   deps,
		logger: logger,
		now:    time.Now,
		newID:  uuid.NewString,
	}
}

// Check compares the installed version against the latest remote one. It
// changes nothing on disk.
func (o *Orchestrator) Check(ctx context.Context) (*CheckResult, error) {
	release, err := o.deps.Resolver.LatestVersion(ctx)
	if err != nil {
		return nil, err
	}

	current, err := o.deps.Inspector.CurrentVersion(o.cfg.LocalServer.ServerFullpath)
	if err != nil {
		return nil, err
	}

	res := &CheckResult{
		CurrentVersion:  current,
		LatestVersion:   release.Version,
		UpdateAvailable: current != release.Version,
		ArchiveURL:      o.cfg.FileServer.ArchiveURL(release.Version, release.Archive),
	}

	if res.UpdateAvailable {
		o.logger.Info().Str("current", current).Str("latest", release.Version).Msg("Installed server is outdated")
	} else {
		o.logger.Info().Str("current", current).Msg("Installed server is the latest version")
	}

	return res, nil
}

// Update is the operator-driven path: check, then install if needed or
// forced. The service is not touched.
func (o *Orchestrator) Update(ctx context.Context, opts UpdateOptions) (res *Result, err error) {
	tx := o.newTransaction(types.ModeManual)
	defer func() { res = o.finish(ctx, tx, err, opts.Notify) }()

	needed, err := o.decide(ctx, tx, opts.Force)
	if err != nil || !needed {
		return nil, err
	}

	if opts.Confirm != nil && !opts.Confirm(tx.fromVersion, tx.toVersion) {
		tx.logger.Info().Msg("Update declined")
		return nil, nil
	}

	return nil, o.install(ctx, tx)
}

// AutoUpdate is the unattended path: check, safe gate, stop the server,
// back up the world, install, and always start the server again.
func (o *Orchestrator) AutoUpdate(ctx context.Context, opts AutoUpdateOptions) (res *Result, err error) {
	tx := o.newTransaction(types.ModeAuto)
	defer func() { res = o.finish(ctx, tx, err, opts.Notify) }()

	needed, err := o.decide(ctx, tx, false)
	if err != nil || !needed {
		return nil, err
	}

	if opts.SafeUpdate {
		if err := CheckSafeUpgrade(tx.fromVersion, tx.toVersion); err != nil {
			return nil, err
		}
	}

	o.announce(ctx)

	tx.stopped = true
	defer func() {
		if startErr := o.deps.Service.Start(context.WithoutCancel(ctx)); startErr != nil {
			o.logger.Error().Err(startErr).Msg("Failed to start server")
			err = errors.Join(err, startErr)
		}
	}()

	if err := o.deps.Service.Stop(ctx); err != nil {
		return nil, err
	}

	if tx.worldBackup, err = o.backupWorld(tx.fromVersion); err != nil {
		return nil, err
	}

	return nil, o.install(ctx, tx)
}

// BackupWorld snapshots the world save, tagged with the installed version.
func (o *Orchestrator) BackupWorld(ctx context.Context) (string, error) {
	current, err := o.deps.Inspector.CurrentVersion(o.cfg.LocalServer.ServerFullpath)
	if err != nil {
		return "", err
	}
	return o.backupWorld(current)
}

func (o *Orchestrator) backupWorld(version string) (string, error) {
	live := o.cfg.LocalServer.ServerFullpath

	dataPath, err := o.deps.Inspector.ResolveDataPath(live)
	if err != nil {
		return "", err
	}
	if !o.deps.Inspector.ValidateDataPath(dataPath) {
		return "", vserrors.Newf(vserrors.ErrDataPathNotFound,
			"DATAPATH %s from %s has no %s", dataPath, install.ControlScript, install.ServerConfigFile).
			WithDetail("path", dataPath)
	}
	savePath, err := o.deps.Inspector.WorldSavePath(dataPath)
	if err != nil {
		return "", err
	}
	return o.deps.Backups.BackupWorldFile(dataPath, savePath, version)
}

func (o *Orchestrator) announce(ctx context.Context) {
	msg := o.cfg.LocalServer.AnnounceMessage
	if msg == "" {
		return
	}
	if err := o.deps.Service.RunCommand(ctx, msg); err != nil {
		o.logger.Warn().Err(err).Msg("Failed to announce restart")
	}
}

func (o *Orchestrator) newTransaction(mode types.Mode) *transaction {
	id := o.newID()
	return &transaction{
		runID:      id,
		mode:       mode,
		startedAt:  o.now(),
		livePath:   o.cfg.LocalServer.ServerFullpath,
		backupPath: o.cfg.LocalServer.BackupPath(),
		state:      types.StateIdle,
		logger:     o.logger.With().Str("run_id", id).Str("mode", mode.String()).Logger(),
	}
}

// decide runs the Checking step and reports whether to proceed.
func (o *Orchestrator) decide(ctx context.Context, tx *transaction, force bool) (bool, error) {
	if err := tx.transition(types.StateChecking); err != nil {
		return false, err
	}

	check, err := o.Check(ctx)
	if err != nil {
		return false, err
	}
	tx.fromVersion = check.CurrentVersion
	tx.toVersion = check.LatestVersion
	tx.archiveURL = check.ArchiveURL

	if !check.UpdateAvailable && !force {
		return false, tx.transition(types.StateUpToDate)
	}
	if !check.UpdateAvailable {
		tx.logger.Info().Str("version", check.LatestVersion).Msg("Force flag set, re-installing current version")
	}

	return true, tx.transition(types.StateNeedsUpdate)
}

// install runs Rotating through Patching. Every return after rotation goes
// through the single deferred commit-or-rollback below.
func (o *Orchestrator) install(ctx context.Context, tx *transaction) (err error) {
	if err := tx.transition(types.StateRotating); err != nil {
		return err
	}

	defer func() {
		if err == nil {
			err = tx.commit()
			return
		}
		err = tx.rollback(err)
	}()

	tx.logger.Info().Str("from", tx.fromVersion).Str("to", tx.toVersion).Msg("Server update started")

	if err := tx.rotate(); err != nil {
		return err
	}

	if err := tx.transition(types.StateDownloading); err != nil {
		return err
	}
	if err := o.deps.Fetcher.Fetch(ctx, tx.archiveURL, tx.archivePath()); err != nil {
		return err
	}

	if err := tx.transition(types.StateExtracting); err != nil {
		return err
	}
	if err := o.deps.Extractor.Extract(tx.archivePath(), tx.livePath); err != nil {
		return err
	}

	if err := tx.transition(types.StatePatching); err != nil {
		return err
	}
	return tx.patch()
}

// finish builds the result and performs the side channels: notification,
// history and metrics. None of them can change err.
func (o *Orchestrator) finish(ctx context.Context, tx *transaction, err error, notifyEnabled bool) *Result {
	finished := o.now()
	res := &Result{
		RunID:       tx.runID,
		Mode:        tx.mode,
		FromVersion: tx.fromVersion,
		ToVersion:   tx.toVersion,
		FinalState:  tx.state,
		WorldBackup: tx.worldBackup,
		ArchiveURL:  tx.archiveURL,
		StartedAt:   tx.startedAt,
		Duration:    finished.Sub(tx.startedAt),
	}

	switch {
	case res.FinalState.IsTransactional():
		tx.logger.Error().
			Str("state", res.FinalState.String()).
			Str("backup", tx.backupPath).
			Str("path", tx.livePath).
			Msg("Run ended before the installation was restored, recover it from the backup manually")
	case !res.FinalState.IsTerminal():
		tx.logger.Info().Str("state", res.FinalState.String()).Msg("Run stopped before completion")
	default:
		tx.logger.Debug().Str("state", res.FinalState.String()).Msg("Run finished")
	}

	sideCtx := context.WithoutCancel(ctx)

	if notifyEnabled {
		o.notify(sideCtx, res, err)
	}

	rec := history.RunRecord{
		RunID:       res.RunID,
		Mode:        res.Mode,
		StartedAt:   res.StartedAt,
		FinishedAt:  finished,
		FromVersion: res.FromVersion,
		ToVersion:   res.ToVersion,
		FinalState:  res.FinalState,
		WorldBackup: res.WorldBackup,
	}
	if err != nil {
		rec.Error = err.Error()
	}
	if recErr := o.deps.Recorder.Save(sideCtx, rec); recErr != nil {
		o.logger.Warn().Err(recErr).Msg("Failed to record run history")
	}

	installed := res.FromVersion
	if res.Updated() {
		installed = res.ToVersion
	}
	if mErr := o.deps.Metrics.Write(metrics.Run{
		Mode:       res.Mode,
		FinalState: res.FinalState,
		Version:    installed,
		Failed:     err != nil,
		FinishedAt: finished,
		Duration:   res.Duration,
	}); mErr != nil {
		o.logger.Warn().Err(mErr).Msg("Failed to write metrics")
	}

	return res
}

func (o *Orchestrator) notify(ctx context.Context, res *Result, err error) {
	ev := notify.Event{
		Version:         res.ToVersion,
		PreviousVersion: res.FromVersion,
		URL:             res.ArchiveURL,
	}

	var nErr error
	switch {
	case err != nil:
		ev.Error = err.Error()
		nErr = o.deps.Notifier.NotifyError(ctx, ev)
	case res.Updated():
		nErr = o.deps.Notifier.NotifySuccess(ctx, ev)
	default:
		return
	}

	if nErr != nil {
		o.logger.Warn().Err(nErr).Msg("Failed to send notification")
	}
}
