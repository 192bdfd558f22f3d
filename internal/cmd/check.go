package cmd

import (
	"github.com/spf13/cobra"

	"github.com/adamancini/vsupdater/internal/logging"
	"github.com/adamancini/vsupdater/internal/output"
	"github.com/adamancini/vsupdater/internal/update"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Check whether a newer server version is available",
		Long: `Check compares the installed server version with the newest version on the
file server. Nothing is changed on disk.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCheck(cmd)
		},
	}
}

func runCheck(cmd *cobra.Command) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logger := logging.GetLogger("update")
	o := update.NewOrchestrator(cfg, update.DefaultDeps(cfg, logger), logger)

	res, err := o.Check(cmd.Context())
	if err != nil {
		return err
	}

	w, err := newWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}
	return w.Write(res, checkText(res))
}

func checkText(res *update.CheckResult) text {
	if !res.UpdateAvailable {
		return textf("Current server version %s is the latest, no need to update", res.CurrentVersion)
	}
	fields := output.Fields{}.
		Add("Installed", res.CurrentVersion).
		Add("Latest", res.LatestVersion).
		Add("Archive", res.ArchiveURL)
	return textf("Current server version %s is outdated, the latest is %s\n\n%s",
		res.CurrentVersion, res.LatestVersion, fields)
}
