package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	vserrors "github.com/adamancini/vsupdater/internal/errors"
	"github.com/adamancini/vsupdater/internal/logging"
)

var (
	// Global flags
	outputFormat string
	configPath   string
	verbosity    int
)

// buildInfo is set by Execute from the linker flags.
var buildInfo = struct {
	version, commit, date string
}{"dev", "none", "unknown"}

// Execute runs the command line. Failures are logged here; the caller only
// needs to turn a non-nil error into a non-zero exit status.
func Execute(version, commit, date string) error {
	buildInfo.version, buildInfo.commit, buildInfo.date = version, commit, date

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newRootCmd().ExecuteContext(ctx)
	if err != nil {
		reportError(os.Stderr, err)
	}
	return err
}

// ExitCode maps err to the process exit status: 0 on success, 2 when the
// installation may be left in an unknown state, 1 otherwise.
func ExitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case vserrors.Severity(err) >= vserrors.SeverityCritical:
		return 2
	default:
		return 1
	}
}

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "vsupdater",
		Short: "Keep a Vintage Story dedicated server up to date",
		Long: `vsupdater updates a Linux Vintage Story dedicated server in place.

It compares the installed version with the newest one on the official file
server, moves the current installation aside, installs the new build and
restores the previous one if anything goes wrong.

Set the server location first:
  vsupdater configure /absolute/path/to/server

Then check or update:
  vsupdater check
  vsupdater update
  vsupdater autoupdate --safe-update   # for cron/systemd timers`,
		Version: buildInfo.version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "text", "Output format: text, json, yaml")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to config.toml")
	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE and full error report)")

	rootCmd.AddCommand(newConfigureCmd())
	rootCmd.AddCommand(newCheckCmd())
	rootCmd.AddCommand(newUpdateCmd())
	rootCmd.AddCommand(newAutoUpdateCmd())
	rootCmd.AddCommand(newWorldBackupCmd())
	rootCmd.AddCommand(newHistoryCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())

	_ = rootCmd.RegisterFlagCompletionFunc("output", func(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
		return []string{"text", "json", "yaml"}, cobra.ShellCompDirectiveNoFileComp
	})

	return rootCmd
}

// reportError logs err. Critical failures are logged at fatal level and
// always printed in full to w; otherwise the full report needs -vvv.
func reportError(w io.Writer, err error) {
	severity := vserrors.Severity(err)

	event := log.Error()
	if severity >= vserrors.SeverityCritical {
		event = log.WithLevel(zerolog.FatalLevel)
	}
	event = event.Err(err).Int("severity", severity)
	if code := vserrors.GetErrorCode(err); code != vserrors.ErrUnknown {
		event = event.Str("code", string(code))
	}
	event.Msg("Command failed")

	if severity >= vserrors.SeverityCritical || verbosity >= logging.MaxVerbosity {
		fmt.Fprintf(w, "FATAL: %s\n", vserrors.Describe(err))
	}
}
