package update

import (
	"archive/tar"
	"bytes"
	"io/fs"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"howett.net/plist"
)

// archiveEntry describes one tar entry for buildArchive.
type archiveEntry struct {
	Name     string
	Body     string
	Mode     int64
	Type     byte
	Linkname string
}

// buildArchive returns a gzip-compressed tar containing entries.
func buildArchive(t *testing.T, entries []archiveEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	tw := tar.NewWriter(gz)

	for _, e := range entries {
		typ := e.Type
		if typ == 0 {
			typ = tar.TypeReg
		}
		mode := e.Mode
		if mode == 0 {
			mode = 0644
			if typ == tar.TypeDir {
				mode = 0755
			}
		}
		hdr := &tar.Header{
			Name:     e.Name,
			Mode:     mode,
			Typeflag: typ,
			Linkname: e.Linkname,
			ModTime:  time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		}
		if typ == tar.TypeReg {
			hdr.Size = int64(len(e.Body))
		}
		if err := tw.WriteHeader(hdr); err != nil {
			t.Fatalf("WriteHeader(%s): %v", e.Name, err)
		}
		if typ == tar.TypeReg {
			if _, err := tw.Write([]byte(e.Body)); err != nil {
				t.Fatalf("Write(%s): %v", e.Name, err)
			}
		}
	}

	if err := tw.Close(); err != nil {
		t.Fatalf("tar close: %v", err)
	}
	if err := gz.Close(); err != nil {
		t.Fatalf("gzip close: %v", err)
	}
	return buf.Bytes()
}

func versionPlist(t *testing.T, version string) string {
	t.Helper()
	data, err := plist.Marshal(map[string]string{"CFBundleShortVersionString": version}, plist.BinaryFormat)
	if err != nil {
		t.Fatalf("plist.Marshal: %v", err)
	}
	return string(data)
}

// serverArchive is a minimal release of the given version.
func serverArchive(t *testing.T, version string) []byte {
	return buildArchive(t, []archiveEntry{
		{Name: "Info.plist", Body: versionPlist(t, version)},
		{Name: "server.sh", Body: "#!/bin/sh\n# stock script\n", Mode: 0755},
		{Name: "VintagestoryServer.dll", Body: "dll " + version},
		{Name: "assets/", Type: tar.TypeDir},
		{Name: "assets/game/lang/en.json", Body: "{}"},
	})
}

// fileState is the content and mode of one file in a tree.
type fileState struct {
	Content string
	Mode    fs.FileMode
	ModTime time.Time
}

// snapshotTree records every regular file under root.
func snapshotTree(t *testing.T, root string) map[string]fileState {
	t.Helper()
	out := map[string]fileState{}
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		rel, _ := filepath.Rel(root, path)
		out[rel] = fileState{Content: string(data), Mode: info.Mode(), ModTime: info.ModTime()}
		return nil
	})
	if err != nil {
		t.Fatalf("snapshotTree(%s): %v", root, err)
	}
	return out
}

func assertSameTree(t *testing.T, want, got map[string]fileState) {
	t.Helper()
	if len(want) != len(got) {
		t.Errorf("tree has %d files, want %d", len(got), len(want))
	}
	for path, w := range want {
		g, ok := got[path]
		if !ok {
			t.Errorf("%s missing after run", path)
			continue
		}
		if g.Content != w.Content {
			t.Errorf("%s content changed", path)
		}
		if g.Mode != w.Mode {
			t.Errorf("%s mode = %v, want %v", path, g.Mode, w.Mode)
		}
		if !g.ModTime.Equal(w.ModTime) {
			t.Errorf("%s mtime changed", path)
		}
	}
}

func writeFile(t *testing.T, path, content string, mode os.FileMode) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		t.Fatalf("MkdirAll: %v", err)
	}
	if err := os.WriteFile(path, []byte(content), mode); err != nil {
		t.Fatalf("WriteFile(%s): %v", path, err)
	}
	if err := os.Chmod(path, mode); err != nil {
		t.Fatalf("Chmod(%s): %v", path, err)
	}
}
