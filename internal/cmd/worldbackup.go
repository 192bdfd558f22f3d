package cmd

import (
	"context"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/adamancini/vsupdater/internal/backup"
	"github.com/adamancini/vsupdater/internal/logging"
	"github.com/adamancini/vsupdater/internal/output"
	"github.com/adamancini/vsupdater/internal/update"
)

func newWorldBackupCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "worldbackup",
		Short: "Back up the world save",
		Long: `Worldbackup copies the world save file to
<world_backup_path>/<installed version>/<timestamp>/.

The save location is read from serverconfig.json in the data path that the
server's server.sh points to. Backups are never deleted automatically.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorldBackup(cmd)
		},
	}

	cmd.AddCommand(newWorldBackupListCmd())

	return cmd
}

func newWorldBackupListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List world backups",
		Long:  `List displays all world backups, newest first.`,
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorldBackupList(cmd)
		},
	}
}

func runWorldBackup(cmd *cobra.Command) error {
	w, err := newWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	return runSession(cmd.Context(), false, func(ctx context.Context, o *update.Orchestrator) error {
		path, err := o.BackupWorld(ctx)
		if err != nil {
			return err
		}
		return w.Write(map[string]string{"path": path}, textf("World backup created: %s", path))
	})
}

func runWorldBackupList(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	manager := backup.NewManager(cfg.LocalServer.WorldBackupRoot(), logging.GetLogger("backup"))
	snapshots, err := manager.List()
	if err != nil {
		return err
	}

	w, err := newWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	tbl := output.Table{
		Headers: []string{"ID", "VERSION", "CREATED", "SIZE", "PATH"},
		Empty:   "No world backups found in " + manager.Root(),
	}
	for _, s := range snapshots {
		tbl.Rows = append(tbl.Rows, []string{
			s.ID,
			s.Version,
			s.CreatedAt.Local().Format("2006-01-02 15:04:05"),
			humanize.IBytes(uint64(s.Size)),
			s.Path,
		})
	}
	return w.Write(snapshots, tbl)
}
