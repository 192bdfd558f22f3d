package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/adamancini/vsupdater/internal/interactive"
	"github.com/adamancini/vsupdater/internal/logging"
	"github.com/adamancini/vsupdater/internal/update"
)

func newUpdateCmd() *cobra.Command {
	var (
		force     bool
		noDiscord bool
		yes       bool
	)

	cmd := &cobra.Command{
		Use:   "update",
		Short: "Update the server to the latest version",
		Long: `Update installs the newest server version if the installed one is outdated.

The current installation is moved to the backup path, the new archive is
downloaded and unpacked, and the previous server.sh is copied over. If any
step fails the previous installation is restored.

Update does not stop or start the server; use autoupdate for that. When run
from a terminal it asks for confirmation first unless --yes is given.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := update.UpdateOptions{Force: force, Notify: !noDiscord}
			if !yes && interactive.IsTerminal() {
				opts.Confirm = interactive.NewPrompter().ConfirmUpdate
			}
			return runUpdate(cmd, !noDiscord, func(ctx context.Context, o *update.Orchestrator) (*update.Result, error) {
				return o.Update(ctx, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "Update the server regardless of the installed version")
	cmd.Flags().BoolVar(&noDiscord, "no-discord", false, "Do not send Discord notifications")
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "Skip the confirmation prompt")

	return cmd
}

func newAutoUpdateCmd() *cobra.Command {
	var (
		safeUpdate bool
		noDiscord  bool
	)

	cmd := &cobra.Command{
		Use:   "autoupdate",
		Short: "Stop, back up, update and restart the server",
		Long: `Autoupdate is meant for scheduled runs. When an update is available it
announces the restart in game, stops the server, backs up the world save,
installs the new version and starts the server again. The server is always
started again, even when the update fails.

With --safe-update only updates within the installed major.minor series are
applied.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := update.AutoUpdateOptions{SafeUpdate: safeUpdate, Notify: !noDiscord}
			return runUpdate(cmd, !noDiscord, func(ctx context.Context, o *update.Orchestrator) (*update.Result, error) {
				return o.AutoUpdate(ctx, opts)
			})
		},
	}

	cmd.Flags().BoolVar(&safeUpdate, "safe-update", false, "Only update within the same major.minor version")
	cmd.Flags().BoolVar(&noDiscord, "no-discord", false, "Do not send Discord notifications")

	return cmd
}

func runUpdate(cmd *cobra.Command, notifications bool, run func(context.Context, *update.Orchestrator) (*update.Result, error)) error {
	w, err := newWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	return runSession(cmd.Context(), notifications, func(ctx context.Context, o *update.Orchestrator) error {
		res, runErr := run(ctx, o)
		stateLine(logging.GetLogger("update"), res)
		if res == nil {
			return runErr
		}
		if err := w.Write(res, resultText{res}); err != nil && runErr == nil {
			return err
		}
		return runErr
	})
}

type resultText struct {
	res *update.Result
}

func (r resultText) String() string {
	fields := describeResult(r.res).String()
	if s := summary(r.res); s != "" {
		return s + "\n\n" + fields
	}
	return fields
}
