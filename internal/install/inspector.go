// Package install inspects a local Vintage Story server installation: its
// version metadata, control script and data directory.
package install

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/tidwall/jsonc"
	"howett.net/plist"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
)

// File names inside an installation and its data directory.
const (
	ControlScript    = "server.sh"
	VersionFile      = "Info.plist"
	ServerConfigFile = "serverconfig.json"

	dataPathVar = "DATAPATH"
)

// Inspector reads local installation state. It never mutates anything.
type Inspector struct {
	logger zerolog.Logger
}

// NewInspector creates a new inspector
func NewInspector(logger zerolog.Logger) *Inspector {
	return &Inspector{logger: logger}
}

type bundleInfo struct {
	ShortVersion string `plist:"CFBundleShortVersionString"`
}

// CurrentVersion returns the version recorded in <installPath>/Info.plist.
// Binary and XML property lists are both accepted.
func (i *Inspector) CurrentVersion(installPath string) (string, error) {
	path := filepath.Join(installPath, VersionFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", vserrors.Newf(vserrors.ErrNotInstalled,
				"version file %q not found, is the server installed?", VersionFile).
				WithDetail("path", path)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	var info bundleInfo
	format, err := plist.Unmarshal(data, &info)
	if err != nil {
		return "", vserrors.Wrapf(err, vserrors.ErrNotInstalled, "failed to parse %s", VersionFile).
			WithDetail("path", path)
	}
	if info.ShortVersion == "" {
		return "", vserrors.New(vserrors.ErrNotInstalled, "version file has no CFBundleShortVersionString").
			WithDetail("path", path)
	}

	i.logger.Debug().
		Str("path", path).
		Str("format", plist.FormatNames[format]).
		Str("version", info.ShortVersion).
		Msg("Read installed version")

	return info.ShortVersion, nil
}

// ValidateInstallPath reports whether path holds both the control script and
// the version file.
func (i *Inspector) ValidateInstallPath(path string) bool {
	return isFile(filepath.Join(path, ControlScript)) && isFile(filepath.Join(path, VersionFile))
}

// ValidateDataPath reports whether path holds a serverconfig.json.
func (i *Inspector) ValidateDataPath(path string) bool {
	return isFile(filepath.Join(path, ServerConfigFile))
}

// ResolveDataPath scans the control script for its DATAPATH assignment.
func (i *Inspector) ResolveDataPath(installPath string) (string, error) {
	script := filepath.Join(installPath, ControlScript)

	f, err := os.Open(script)
	if err != nil {
		if os.IsNotExist(err) {
			return "", vserrors.Newf(vserrors.ErrInstallationMissing, "control script %s not found", script)
		}
		return "", fmt.Errorf("failed to open %s: %w", script, err)
	}
	defer func() { _ = f.Close() }()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		if value, ok := parseAssignment(scanner.Text(), dataPathVar); ok && value != "" {
			i.logger.Debug().Str("script", script).Str("dataPath", value).Msg("Resolved data path")
			return value, nil
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("failed to read %s: %w", script, err)
	}

	return "", vserrors.Newf(vserrors.ErrDataPathNotFound, "no %s assignment in %s", dataPathVar, script).
		WithDetail("script", script)
}

// parseAssignment extracts the value of `[export ]NAME=value` from a shell
// line. Quotes are stripped; an unquoted trailing comment is dropped.
func parseAssignment(line, name string) (string, bool) {
	line = strings.TrimSpace(line)
	if strings.HasPrefix(line, "#") {
		return "", false
	}
	line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
	if !strings.HasPrefix(line, name+"=") {
		return "", false
	}
	value := strings.TrimSpace(strings.TrimPrefix(line, name+"="))

	if len(value) > 0 && (value[0] == '"' || value[0] == '\'') {
		quote := value[0]
		if end := strings.IndexByte(value[1:], quote); end >= 0 {
			return value[1 : end+1], true
		}
		return strings.Trim(value, string(quote)), true
	}

	if idx := strings.Index(value, " #"); idx >= 0 {
		value = value[:idx]
	}
	if fields := strings.Fields(value); len(fields) > 0 {
		return fields[0], true
	}
	return "", true
}

type serverConfig struct {
	WorldConfig struct {
		SaveFileLocation string `json:"SaveFileLocation"`
	} `json:"WorldConfig"`
}

// WorldSavePath returns the world save file named by serverconfig.json in
// dataPath. Relative locations are resolved against dataPath.
func (i *Inspector) WorldSavePath(dataPath string) (string, error) {
	path := filepath.Join(dataPath, ServerConfigFile)

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return "", vserrors.Newf(vserrors.ErrDataPathNotFound, "%s not found in %s", ServerConfigFile, dataPath)
		}
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	var cfg serverConfig
	if err := json.Unmarshal(jsonc.ToJSON(data), &cfg); err != nil {
		return "", fmt.Errorf("parsing %s: %w", path, err)
	}

	location := cfg.WorldConfig.SaveFileLocation
	if location == "" {
		return "", vserrors.New(vserrors.ErrWorldFileMissing, "WorldConfig.SaveFileLocation is not set").
			WithDetail("config", path)
	}
	if !filepath.IsAbs(location) {
		location = filepath.Join(dataPath, location)
	}

	return location, nil
}

func isFile(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}
