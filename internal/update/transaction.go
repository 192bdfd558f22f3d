package update

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/adamancini/vsupdater/internal/config"
	vserrors "github.com/adamancini/vsupdater/internal/errors"
	"github.com/adamancini/vsupdater/internal/install"
	"github.com/adamancini/vsupdater/internal/types"
)

// ArchiveFileName is where the archive is downloaded inside the fresh
// installation directory.
const ArchiveFileName = "vs_server.tar.gz"

// transaction tracks one invocation through the state machine. Once rotated
// is set, the run must end in StateCommitted or StateRolledBack.
type transaction struct {
	runID     string
	mode      types.Mode
	startedAt time.Time

	livePath   string
	backupPath string

	fromVersion string
	toVersion   string
	archiveURL  string
	worldBackup string

	state   types.State
	stopped bool
	rotated bool

	logger zerolog.Logger
}

// transition moves to next, refusing anything the state table does not allow.
func (tx *transaction) transition(next types.State) error {
	if !tx.state.CanTransition(next) {
		return vserrors.Newf(vserrors.ErrInternal, "illegal state transition %s -> %s", tx.state, next).
			WithDetail("run_id", tx.runID)
	}
	tx.logger.Debug().Str("from", tx.state.String()).Str("to", next.String()).Msg("State transition")
	tx.state = next
	return nil
}

func (tx *transaction) archivePath() string {
	return filepath.Join(tx.livePath, ArchiveFileName)
}

// rotate moves the live installation aside and leaves an empty directory in
// its place.
func (tx *transaction) rotate() error {
	info, err := os.Stat(tx.livePath)
	if err != nil || !info.IsDir() {
		return vserrors.Newf(vserrors.ErrInstallationMissing, "server folder %s not found", tx.livePath).
			WithDetail("path", tx.livePath)
	}

	if config.PathsOverlap(tx.backupPath, tx.livePath) {
		return vserrors.Newf(vserrors.ErrConfigValid,
			"backup path %s overlaps the server folder %s", tx.backupPath, tx.livePath).
			WithDetail("backup", tx.backupPath).
			WithDetail("path", tx.livePath)
	}

	if err := os.RemoveAll(tx.backupPath); err != nil {
		return fmt.Errorf("failed to remove previous backup %s: %w", tx.backupPath, err)
	}

	if err := os.Rename(tx.livePath, tx.backupPath); err != nil {
		return fmt.Errorf("failed to move %s to %s: %w", tx.livePath, tx.backupPath, err)
	}
	tx.rotated = true
	tx.logger.Info().Str("backup", tx.backupPath).Msg("Previous installation moved to backup")

	if err := os.Mkdir(tx.livePath, info.Mode().Perm()); err != nil {
		return fmt.Errorf("failed to create %s: %w", tx.livePath, err)
	}

	return nil
}

// patch carries the operator's control script over from the backup.
func (tx *transaction) patch() error {
	src := filepath.Join(tx.backupPath, install.ControlScript)
	dst := filepath.Join(tx.livePath, install.ControlScript)

	info, err := os.Stat(src)
	if os.IsNotExist(err) {
		tx.logger.Warn().
			Str("backup", tx.backupPath).
			Msgf("No %s in previous installation, adjust the default one manually", install.ControlScript)
		return nil
	}
	if err != nil {
		return vserrors.Wrapf(err, vserrors.ErrPatchFailed, "failed to stat %s", src)
	}

	if err := copyPreserving(src, dst, info); err != nil {
		return vserrors.Wrapf(err, vserrors.ErrPatchFailed, "failed to restore %s", install.ControlScript)
	}

	tx.logger.Info().Msgf("Restored %s from previous installation", install.ControlScript)
	return nil
}

// commit removes the downloaded archive. Failing to do so only warns.
func (tx *transaction) commit() error {
	if err := tx.transition(types.StateCommitted); err != nil {
		return err
	}
	if err := os.Remove(tx.archivePath()); err != nil && !os.IsNotExist(err) {
		tx.logger.Warn().Err(err).Str("archive", tx.archivePath()).Msg("Failed to remove downloaded archive")
	}
	tx.logger.Info().Str("version", tx.toVersion).Msg("Server was successfully updated")
	return nil
}

// rollback restores the backup to the live path. It never takes a context:
// once started it runs to completion.
func (tx *transaction) rollback(cause error) error {
	if err := tx.transition(types.StateRollingBack); err != nil {
		return errors.Join(cause, err)
	}

	if !tx.rotated {
		_ = tx.transition(types.StateRolledBack)
		return cause
	}

	tx.logger.Warn().Err(cause).Msg("Error during update, restoring previous installation")

	var removeErr error
	if _, err := os.Lstat(tx.livePath); err == nil {
		if removeErr = os.RemoveAll(tx.livePath); removeErr != nil {
			tx.logger.Error().Err(removeErr).Str("path", tx.livePath).Msg("Failed to remove partial installation")
		}
	}

	if err := os.Rename(tx.backupPath, tx.livePath); err != nil {
		return vserrors.Wrap(errors.Join(cause, removeErr, err), vserrors.ErrRollbackFailed,
			"rollback failed, manual intervention required").
			WithDetail("backup", tx.backupPath).
			WithDetail("live", tx.livePath)
	}

	_ = tx.transition(types.StateRolledBack)
	tx.logger.Info().Str("path", tx.livePath).Msg("Previous installation restored")

	return fmt.Errorf("update failed, previous installation restored: %w", cause)
}

func copyPreserving(src, dst string, info os.FileInfo) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	if err := os.Remove(dst); err != nil && !os.IsNotExist(err) {
		return err
	}
	out, err := os.OpenFile(dst, os.O_CREATE|os.O_EXCL|os.O_WRONLY, info.Mode().Perm())
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	if err := os.Chmod(dst, info.Mode().Perm()); err != nil {
		return err
	}
	return os.Chtimes(dst, info.ModTime(), info.ModTime())
}
