// Package config loads, validates and persists the vsupdater configuration.
//
// Configuration is layered with koanf: embedded defaults, then the TOML
// config file, then explicit overrides from the command line, then
// VSUPDATER_* environment variables. The result is a plain Config value that
// is handed to every component constructor and never mutated afterwards.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/adrg/xdg"
	koanftoml "github.com/knadh/koanf/parsers/toml"
	"github.com/knadh/koanf/providers/confmap"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
	"github.com/pelletier/go-toml/v2"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
)

//go:embed embedded/defaults.toml
var defaultConfig []byte

const (
	// EnvPrefix prefixes every environment override, e.g.
	// VSUPDATER_LOCAL_SERVER__SERVER_FULLPATH.
	EnvPrefix = "VSUPDATER_"
	// EnvConfigPath names an explicit config file location.
	EnvConfigPath = "VSUPDATER_CONFIG"
	// DefaultFileName is the config file name looked up in the working directory.
	DefaultFileName = "config.toml"

	defaultBackupDirName      = "server_backup"
	defaultWorldBackupDirName = "world_backups"
)

// FileServer describes where versions are discovered and downloaded.
type FileServer struct {
	URL            string `koanf:"url" toml:"url"`
	CDNURL         string `koanf:"cdn_url" toml:"cdn_url"`
	ArchivePattern string `koanf:"archive_pattern" toml:"archive_pattern"` // %s is replaced by the version
	TimeoutSeconds int    `koanf:"timeout_seconds" toml:"timeout_seconds"`
}

// LocalServer describes the managed installation.
type LocalServer struct {
	ServerFullpath        string `koanf:"server_fullpath" toml:"server_fullpath"`
	BackupFullpath        string `koanf:"backup_fullpath" toml:"backup_fullpath"`
	WorldBackupPath       string `koanf:"world_backup_path" toml:"world_backup_path"`
	LockFile              string `koanf:"lock_file" toml:"lock_file"`
	ServiceTimeoutSeconds int    `koanf:"service_timeout_seconds" toml:"service_timeout_seconds"`
	AnnounceMessage       string `koanf:"announce_message" toml:"announce_message"` // sent in-game before an automated stop
}

// Discord configures the webhook notifier.
type Discord struct {
	Enabled         bool   `koanf:"enabled" toml:"enabled"`
	WebhookURL      string `koanf:"webhook_url" toml:"webhook_url"`
	ErrorWebhookURL string `koanf:"error_webhook_url" toml:"error_webhook_url"`
	Username        string `koanf:"username" toml:"username"`
	TimeoutSeconds  int    `koanf:"timeout_seconds" toml:"timeout_seconds"`
	SuccessTitle    string `koanf:"success_title" toml:"success_title"`
	SuccessTemplate string `koanf:"success_template" toml:"success_template"`
	ErrorTitle      string `koanf:"error_title" toml:"error_title"`
	ErrorTemplate   string `koanf:"error_template" toml:"error_template"`
}

// History configures the run history store.
type History struct {
	Enabled bool   `koanf:"enabled" toml:"enabled"`
	Path    string `koanf:"path" toml:"path"`
}

// Metrics configures the Prometheus textfile output.
type Metrics struct {
	TextfilePath string `koanf:"textfile_path" toml:"textfile_path"`
}

// Config is the complete configuration.
type Config struct {
	FileServer  FileServer  `koanf:"fileserver" toml:"fileserver"`
	LocalServer LocalServer `koanf:"local_server" toml:"local_server"`
	Discord     Discord     `koanf:"discord" toml:"discord"`
	History     History     `koanf:"history" toml:"history"`
	Metrics     Metrics     `koanf:"metrics" toml:"metrics"`

	// Source is the file the configuration was read from, if any.
	Source string `koanf:"-" toml:"-"`
}

// Timeout returns the HTTP timeout for catalog and archive requests.
func (f FileServer) Timeout() time.Duration {
	return time.Duration(f.TimeoutSeconds) * time.Second
}

// ArchiveURL returns the download URL of the server archive for version.
// archive is the file name listed by the catalog; when empty the name is
// built from ArchivePattern.
func (f FileServer) ArchiveURL(version, archive string) string {
	base := f.CDNURL
	if base != "" && !strings.HasSuffix(base, "/") {
		base += "/"
	}
	if archive == "" {
		archive = fmt.Sprintf(f.ArchivePattern, version)
	}
	return base + archive
}

// ServiceTimeout bounds every control script invocation.
func (l LocalServer) ServiceTimeout() time.Duration {
	return time.Duration(l.ServiceTimeoutSeconds) * time.Second
}

// BackupPath returns the server backup directory, defaulting to a
// server_backup sibling of the installation.
func (l LocalServer) BackupPath() string {
	if l.BackupFullpath != "" {
		return l.BackupFullpath
	}
	return filepath.Join(filepath.Dir(l.ServerFullpath), defaultBackupDirName)
}

// WorldBackupRoot returns the root of the world-save backup tree.
func (l LocalServer) WorldBackupRoot() string {
	if l.WorldBackupPath != "" {
		return l.WorldBackupPath
	}
	return filepath.Join(filepath.Dir(l.ServerFullpath), defaultWorldBackupDirName)
}

// LockPath returns the run lock file path.
func (l LocalServer) LockPath() string {
	if l.LockFile != "" {
		return l.LockFile
	}
	return filepath.Clean(l.ServerFullpath) + ".lock"
}

// Timeout returns the webhook request timeout.
func (d Discord) Timeout() time.Duration {
	return time.Duration(d.TimeoutSeconds) * time.Second
}

// ErrorURL returns the webhook used for error notifications.
func (d Discord) ErrorURL() string {
	if d.ErrorWebhookURL != "" {
		return d.ErrorWebhookURL
	}
	return d.WebhookURL
}

// StorePath returns the history database directory.
func (h History) StorePath() string {
	if h.Path != "" {
		return h.Path
	}
	return filepath.Join(xdg.StateHome, "vsupdater", "history")
}

// WithServerPath returns a copy of c pointing at a new installation. The
// server backup is moved next to it, as the configure command always did.
func (c Config) WithServerPath(serverPath string) (Config, error) {
	abs, err := filepath.Abs(serverPath)
	if err != nil {
		return c, fmt.Errorf("failed to resolve %s: %w", serverPath, err)
	}
	c.LocalServer.ServerFullpath = abs
	c.LocalServer.BackupFullpath = filepath.Join(filepath.Dir(abs), defaultBackupDirName)
	return c, nil
}

// FindConfigFile returns the config file to read, or "" when none exists.
// Precedence: explicit path, $VSUPDATER_CONFIG, ./config.toml,
// $XDG_CONFIG_HOME/vsupdater/config.toml.
func FindConfigFile(explicitPath string) (string, error) {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err != nil {
			return "", fmt.Errorf("specified config file not found: %s", explicitPath)
		}
		return explicitPath, nil
	}

	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		if _, err := os.Stat(envPath); err == nil {
			return envPath, nil
		}
	}

	for _, path := range []string{DefaultFileName, DefaultPath()} {
		if _, err := os.Stat(path); err == nil {
			return path, nil
		}
	}

	return "", nil
}

// TargetPath returns where the configure command should write.
func TargetPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}
	if envPath := os.Getenv(EnvConfigPath); envPath != "" {
		return envPath
	}
	if _, err := os.Stat(DefaultFileName); err == nil {
		return DefaultFileName
	}
	return DefaultPath()
}

// DefaultPath returns $XDG_CONFIG_HOME/vsupdater/config.toml.
func DefaultPath() string {
	return filepath.Join(xdg.ConfigHome, "vsupdater", DefaultFileName)
}

// Load reads and validates the configuration.
func Load(explicitPath string, overrides map[string]interface{}) (Config, error) {
	cfg, err := LoadUnvalidated(explicitPath, overrides)
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, vserrors.Wrap(err, vserrors.ErrConfigValid, "invalid configuration")
	}
	return cfg, nil
}

// LoadUnvalidated reads the configuration layers without validating the
// result. configure uses it so a broken or empty file can be repaired.
func LoadUnvalidated(explicitPath string, overrides map[string]interface{}) (Config, error) {
	var cfg Config

	path, err := FindConfigFile(explicitPath)
	if err != nil {
		return cfg, vserrors.Wrap(err, vserrors.ErrConfigLoad, "failed to locate config file")
	}

	k := koanf.New(".")

	if err := k.Load(&rawBytesProvider{bytes: defaultConfig}, koanftoml.Parser()); err != nil {
		return cfg, vserrors.Wrap(err, vserrors.ErrConfigLoad, "failed to load defaults")
	}

	if path != "" {
		if err := k.Load(file.Provider(path), koanftoml.Parser()); err != nil {
			return cfg, vserrors.Wrapf(err, vserrors.ErrConfigLoad, "failed to load config from %s", path)
		}
	}

	if len(overrides) > 0 {
		if err := k.Load(confmap.Provider(overrides, "."), nil); err != nil {
			return cfg, vserrors.Wrap(err, vserrors.ErrConfigLoad, "failed to apply overrides")
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envKey), nil); err != nil {
		return cfg, vserrors.Wrap(err, vserrors.ErrConfigLoad, "failed to load environment")
	}

	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return cfg, vserrors.Wrap(err, vserrors.ErrConfigLoad, "failed to decode configuration")
	}
	cfg.Source = path

	return cfg, nil
}

// envKey maps VSUPDATER_LOCAL_SERVER__LOCK_FILE to local_server.lock_file.
func envKey(s string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(s, EnvPrefix)), "__", ".")
}

// Save writes cfg as TOML to path, replacing the file atomically.
func Save(path string, cfg Config) error {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("failed to replace config: %w", err)
	}
	return nil
}

// rawBytesProvider implements koanf provider for raw bytes
type rawBytesProvider struct{ bytes []byte }

func (r *rawBytesProvider) ReadBytes() ([]byte, error) { return r.bytes, nil }
func (r *rawBytesProvider) Read() (map[string]interface{}, error) {
	return nil, errors.New("not implemented")
}
