package update

import (
	"archive/tar"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/gzip"
	"github.com/rs/zerolog"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
)

// TarGzExtractor unpacks gzip-compressed tar archives.
type TarGzExtractor struct {
	logger zerolog.Logger
}

// NewTarGzExtractor creates a new extractor
func NewTarGzExtractor(logger zerolog.Logger) *TarGzExtractor {
	return &TarGzExtractor{logger: logger}
}

// Extract unpacks archivePath into destDir. Regular files, directories,
// symlinks and hard links are restored with their modes. Entries that would
// land outside destDir are rejected.
func (x *TarGzExtractor) Extract(archivePath, destDir string) error {
	count, err := x.extract(archivePath, destDir)
	if err != nil {
		return vserrors.Wrapf(err, vserrors.ErrArchiveExtractionFailed, "failed to extract %s", filepath.Base(archivePath)).
			WithDetail("archive", archivePath)
	}
	x.logger.Info().Int("entries", count).Str("dest", destDir).Msg("Archive extracted")
	return nil
}

func (x *TarGzExtractor) extract(archivePath, destDir string) (int, error) {
	f, err := os.Open(archivePath)
	if err != nil {
		return 0, err
	}
	defer func() { _ = f.Close() }()

	gz, err := gzip.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("not a gzip stream: %w", err)
	}
	defer func() { _ = gz.Close() }()

	root, err := filepath.Abs(destDir)
	if err != nil {
		return 0, err
	}

	tr := tar.NewReader(gz)
	count := 0
	for {
		hdr, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return count, nil
		}
		if err != nil {
			return count, fmt.Errorf("corrupt archive: %w", err)
		}

		target, err := safeJoin(root, hdr.Name)
		if err != nil {
			return count, err
		}
		mode := os.FileMode(hdr.Mode).Perm()

		switch hdr.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, mode|0700); err != nil {
				return count, err
			}
			if err := os.Chmod(target, mode|0700); err != nil {
				return count, err
			}

		case tar.TypeReg:
			if err := writeEntry(tr, target, mode); err != nil {
				return count, fmt.Errorf("%s: %w", hdr.Name, err)
			}
			_ = os.Chtimes(target, hdr.ModTime, hdr.ModTime)

		case tar.TypeSymlink:
			if err := checkLinkTarget(root, target, hdr.Linkname); err != nil {
				return count, err
			}
			if err := replaceWith(target, func() error { return os.Symlink(hdr.Linkname, target) }); err != nil {
				return count, err
			}

		case tar.TypeLink:
			source, err := safeJoin(root, hdr.Linkname)
			if err != nil {
				return count, err
			}
			if err := replaceWith(target, func() error { return os.Link(source, target) }); err != nil {
				return count, err
			}

		default:
			x.logger.Debug().Str("entry", hdr.Name).Int("type", int(hdr.Typeflag)).Msg("Skipping unsupported tar entry")
			continue
		}
		count++
	}
}

// safeJoin resolves name under root and rejects anything that escapes it.
func safeJoin(root, name string) (string, error) {
	if filepath.IsAbs(name) {
		return "", fmt.Errorf("archive entry %q has an absolute path", name)
	}
	target := filepath.Join(root, name)
	if !within(root, target) {
		return "", fmt.Errorf("archive entry %q escapes the destination", name)
	}
	return target, nil
}

func checkLinkTarget(root, linkPath, linkname string) error {
	if filepath.IsAbs(linkname) {
		return fmt.Errorf("symlink %q points to absolute path %q", linkPath, linkname)
	}
	if !within(root, filepath.Join(filepath.Dir(linkPath), linkname)) {
		return fmt.Errorf("symlink %q escapes the destination", linkPath)
	}
	return nil
}

func within(root, path string) bool {
	rel, err := filepath.Rel(root, path)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

// writeEntry creates target fresh, so an existing symlink at that path is
// replaced rather than followed.
func writeEntry(r io.Reader, target string, mode os.FileMode) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	out, err := os.OpenFile(target, os.O_CREATE|os.O_EXCL|os.O_WRONLY, mode)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, r)
	if closeErr := out.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return err
	}
	// OpenFile modes are filtered by the umask.
	return os.Chmod(target, mode)
}

func replaceWith(target string, create func() error) error {
	if err := os.MkdirAll(filepath.Dir(target), 0755); err != nil {
		return err
	}
	if err := os.Remove(target); err != nil && !os.IsNotExist(err) {
		return err
	}
	return create()
}
