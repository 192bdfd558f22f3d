package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/adamancini/vsupdater/internal/config"
	"github.com/adamancini/vsupdater/internal/install"
	"github.com/adamancini/vsupdater/internal/logging"
)

func newConfigureCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "configure <server-path>",
		Aliases: []string{"setpath"},
		Short:   "Set the server installation path",
		Long: `Configure stores the absolute path of the server installation in the
config file. The server backup path is reset to a "server_backup" directory
next to it.

The config file is the one given with --config, $VSUPDATER_CONFIG,
./config.toml if it exists, or $XDG_CONFIG_HOME/vsupdater/config.toml.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runConfigure(cmd, args[0])
		},
	}
}

func runConfigure(cmd *cobra.Command, serverPath string) error {
	logger := logging.GetLogger("configure")

	cfg, err := config.LoadUnvalidated(configPath, nil)
	if err != nil {
		return err
	}

	cfg, err = cfg.WithServerPath(serverPath)
	if err != nil {
		return err
	}

	if !install.NewInspector(logger).ValidateInstallPath(cfg.LocalServer.ServerFullpath) {
		logger.Warn().Str("path", cfg.LocalServer.ServerFullpath).
			Msgf("No %s or %s found, path does not look like a server installation yet", install.ControlScript, install.VersionFile)
	}

	target := config.TargetPath(configPath)
	if err := config.Save(target, cfg); err != nil {
		return err
	}
	logger.Info().Str("config", target).Str("server", cfg.LocalServer.ServerFullpath).Msg("Server path changed")

	w, err := newWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return w.Write(map[string]string{
		"config":          target,
		"server_fullpath": cfg.LocalServer.ServerFullpath,
		"backup_fullpath": cfg.LocalServer.BackupFullpath,
	}, textf("Server path set to %s (backup: %s)\nConfig written to %s",
		cfg.LocalServer.ServerFullpath, cfg.LocalServer.BackupFullpath, target))
}

// text is a preformatted text rendering.
type text string

func (t text) String() string { return string(t) }

func textf(format string, args ...interface{}) text {
	return text(fmt.Sprintf(format, args...))
}
