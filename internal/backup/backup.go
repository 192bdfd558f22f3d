// Package backup snapshots the world save file into a version-tagged,
// timestamped tree. Snapshots are never overwritten or deleted.
package backup

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
)

// TimestampFormat names snapshot directories. It sorts lexicographically in
// creation order.
const TimestampFormat = "2006-01-02_15-04-05"

// ManifestFile is written next to every snapshot copy.
const ManifestFile = "manifest.json"

const maxSameSecond = 100

// Snapshot describes a single world-save backup.
type Snapshot struct {
	ID        string    `json:"id" yaml:"id"`
	Version   string    `json:"version" yaml:"version"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Source    string    `json:"source" yaml:"source"`
	Path      string    `json:"path" yaml:"path"`
	Size      int64     `json:"size" yaml:"size"`
	Digest    string    `json:"blake3" yaml:"blake3"`
}

// Manager handles world backup operations.
type Manager struct {
	root   string
	logger zerolog.Logger
	now    func() time.Time
}

// NewManager creates a backup manager rooted at root.
func NewManager(root string, logger zerolog.Logger) *Manager {
	return &Manager{
		root:   root,
		logger: logger,
		now:    time.Now,
	}
}

// NewManagerWithClock creates a backup manager with a custom clock (for testing).
func NewManagerWithClock(root string, logger zerolog.Logger, now func() time.Time) *Manager {
	m := NewManager(root, logger)
	m.now = now
	return m
}

// Root returns the backup tree root.
func (m *Manager) Root() string {
	return m.root
}

// BackupWorldFile copies the world save into
// <root>/<version>/<timestamp>/<filename> and returns the copy's path.
// savePath may be absolute or relative to dataPath.
func (m *Manager) BackupWorldFile(dataPath, savePath, version string) (_ string, err error) {
	if !filepath.IsAbs(savePath) {
		savePath = filepath.Join(dataPath, savePath)
	}

	srcInfo, err := os.Stat(savePath)
	if err != nil || srcInfo.IsDir() {
		return "", vserrors.Newf(vserrors.ErrWorldFileMissing,
			"world save %s not found, has the server been run yet?", savePath).
			WithDetail("path", savePath)
	}

	createdAt := m.now()

	versionDir := filepath.Join(m.root, version)
	if err := os.MkdirAll(versionDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}

	snapshotDir, stamp, err := createSnapshotDir(versionDir, createdAt.Format(TimestampFormat))
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = os.RemoveAll(snapshotDir)
		}
	}()

	dst := filepath.Join(snapshotDir, filepath.Base(savePath))
	digest, size, err := copyFile(savePath, dst, srcInfo)
	if err != nil {
		return "", err
	}

	written, err := fileDigest(dst)
	if err != nil {
		return "", err
	}
	if written != digest {
		return "", fmt.Errorf("backup verification failed for %s: digest mismatch", dst)
	}

	snap := Snapshot{
		ID:        version + "/" + stamp,
		Version:   version,
		CreatedAt: createdAt,
		Source:    savePath,
		Path:      dst,
		Size:      size,
		Digest:    digest,
	}
	if err := writeManifest(snapshotDir, snap); err != nil {
		return "", err
	}

	m.logger.Info().
		Str("source", savePath).
		Str("backup", dst).
		Int64("bytes", size).
		Msg("World save backed up")

	return dst, nil
}

// List returns all snapshots sorted by creation time (newest first).
// Directories without a readable manifest are skipped.
func (m *Manager) List() ([]Snapshot, error) {
	versions, err := os.ReadDir(m.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []Snapshot{}, nil
		}
		return nil, fmt.Errorf("failed to read backup directory: %w", err)
	}

	snapshots := []Snapshot{}
	for _, v := range versions {
		if !v.IsDir() {
			continue
		}
		stamps, err := os.ReadDir(filepath.Join(m.root, v.Name()))
		if err != nil {
			continue
		}
		for _, s := range stamps {
			if !s.IsDir() {
				continue
			}
			snap, err := loadManifest(filepath.Join(m.root, v.Name(), s.Name()))
			if err != nil {
				m.logger.Debug().Err(err).Str("dir", s.Name()).Msg("Skipping snapshot without manifest")
				continue
			}
			snapshots = append(snapshots, *snap)
		}
	}

	sort.Slice(snapshots, func(i, j int) bool {
		if snapshots[i].CreatedAt.Equal(snapshots[j].CreatedAt) {
			return snapshots[i].ID > snapshots[j].ID
		}
		return snapshots[i].CreatedAt.After(snapshots[j].CreatedAt)
	})

	return snapshots, nil
}

// createSnapshotDir creates a new directory named stamp under versionDir,
// adding a counter when a backup was already taken within the same second.
// Existing snapshot directories are never reused.
func createSnapshotDir(versionDir, stamp string) (string, string, error) {
	for n := 0; n < maxSameSecond; n++ {
		name := stamp
		if n > 0 {
			name = fmt.Sprintf("%s_%02d", stamp, n)
		}
		dir := filepath.Join(versionDir, name)
		err := os.Mkdir(dir, 0755)
		if err == nil {
			return dir, name, nil
		}
		if !os.IsExist(err) {
			return "", "", fmt.Errorf("failed to create backup directory: %w", err)
		}
	}
	return "", "", fmt.Errorf("too many backups in %s at %s", versionDir, stamp)
}

// copyFile copies src to a new file at dst, hashing the bytes as they are
// written, and carries over the source mode and modification time.
func copyFile(src, dst string, srcInfo os.FileInfo) (string, int64, error) {
	in, err := os.Open(src)
	if err != nil {
		return "", 0, fmt.Errorf("failed to open world save: %w", err)
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, srcInfo.Mode().Perm())
	if err != nil {
		return "", 0, fmt.Errorf("failed to create backup file: %w", err)
	}

	hasher := blake3.New()
	size, err := io.Copy(io.MultiWriter(out, hasher), in)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		_ = os.Remove(dst)
		return "", 0, fmt.Errorf("failed to copy world save: %w", err)
	}

	if err := os.Chtimes(dst, srcInfo.ModTime(), srcInfo.ModTime()); err != nil {
		return "", 0, fmt.Errorf("failed to preserve modification time: %w", err)
	}

	return hex.EncodeToString(hasher.Sum(nil)), size, nil
}

func fileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	hasher := blake3.New()
	if _, err := io.Copy(hasher, f); err != nil {
		return "", fmt.Errorf("failed to hash %s: %w", path, err)
	}
	return hex.EncodeToString(hasher.Sum(nil)), nil
}

func writeManifest(dir string, snap Snapshot) error {
	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ManifestFile), data, 0644); err != nil {
		return fmt.Errorf("failed to write manifest: %w", err)
	}
	return nil
}

func loadManifest(dir string) (*Snapshot, error) {
	data, err := os.ReadFile(filepath.Join(dir, ManifestFile))
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var snap Snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	return &snap, nil
}
