package update

import (
	"context"
	"time"

	"github.com/adamancini/vsupdater/internal/types"
)

// Release is the newest server build listed by the file server.
type Release struct {
	Version string
	// Archive is the listed file name. Empty when the source does not name
	// one, in which case fileserver.archive_pattern builds it.
	Archive string
}

// VersionResolver finds the newest version on the remote file server.
type VersionResolver interface {
	LatestVersion(ctx context.Context) (Release, error)
}

// ArchiveFetcher streams a remote archive to a local file.
type ArchiveFetcher interface {
	Fetch(ctx context.Context, url, dest string) error
}

// ArchiveExtractor unpacks an archive into a directory.
type ArchiveExtractor interface {
	Extract(archivePath, destDir string) error
}

// Inspector reads the local installation.
type Inspector interface {
	CurrentVersion(installPath string) (string, error)
	ResolveDataPath(installPath string) (string, error)
	ValidateDataPath(dataPath string) bool
	WorldSavePath(dataPath string) (string, error)
}

// ServiceController stops and starts the game server.
type ServiceController interface {
	Stop(ctx context.Context) error
	Start(ctx context.Context) error
	RunCommand(ctx context.Context, text string) error
}

// WorldBackuper snapshots the world save.
type WorldBackuper interface {
	BackupWorldFile(dataPath, savePath, version string) (string, error)
}

// CheckResult is the read-only update decision.
type CheckResult struct {
	CurrentVersion  string `json:"current_version" yaml:"current_version"`
	LatestVersion   string `json:"latest_version" yaml:"latest_version"`
	UpdateAvailable bool   `json:"update_available" yaml:"update_available"`
	ArchiveURL      string `json:"archive_url" yaml:"archive_url"`
}

// UpdateOptions controls a manual update.
type UpdateOptions struct {
	Force  bool // re-apply even when already on the latest version
	Notify bool

	// Confirm, when set, is asked before the installation is touched.
	// Declining ends the run in StateNeedsUpdate without error.
	Confirm func(current, target string) bool
}

// AutoUpdateOptions controls an unattended update.
type AutoUpdateOptions struct {
	SafeUpdate bool // only allow updates within the installed major.minor
	Notify     bool
}

// Result summarizes one Update or AutoUpdate invocation.
type Result struct {
	RunID       string        `json:"run_id" yaml:"run_id"`
	Mode        types.Mode    `json:"mode" yaml:"mode"`
	FromVersion string        `json:"from_version" yaml:"from_version"`
	ToVersion   string        `json:"to_version" yaml:"to_version"`
	FinalState  types.State   `json:"final_state" yaml:"final_state"`
	WorldBackup string        `json:"world_backup,omitempty" yaml:"world_backup,omitempty"`
	ArchiveURL  string        `json:"archive_url,omitempty" yaml:"archive_url,omitempty"`
	StartedAt   time.Time     `json:"started_at" yaml:"started_at"`
	Duration    time.Duration `json:"duration" yaml:"duration"`
}

// Updated reports whether the run installed a new build.
func (r *Result) Updated() bool {
	return r != nil && r.FinalState == types.StateCommitted
}
