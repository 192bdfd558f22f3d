package cmd

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/adamancini/vsupdater/internal/history"
	"github.com/adamancini/vsupdater/internal/output"
)

func newHistoryCmd() *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "history [run-id]",
		Short: "Show past update runs",
		Long: `History lists recorded update and autoupdate runs, newest first.
Pass a run ID to show a single run in full.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			runID := ""
			if len(args) == 1 {
				runID = args[0]
			}
			return runHistory(cmd, runID, limit)
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Maximum number of runs to show (0 for all)")

	return cmd
}

func runHistory(cmd *cobra.Command, runID string, limit int) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	store, err := history.Open(cfg.History.StorePath())
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	w, err := newWriter(cmd.OutOrStdout())
	if err != nil {
		return err
	}

	if runID != "" {
		rec, err := store.Get(cmd.Context(), runID)
		if err != nil {
			return err
		}
		fields := output.Fields{}.
			Add("Run", rec.RunID).
			Add("Mode", rec.Mode.String()).
			Add("State", rec.FinalState.String()).
			Add("Started", rec.StartedAt.Local().Format(time.RFC3339)).
			Add("Finished", rec.FinishedAt.Local().Format(time.RFC3339)).
			Add("From", rec.FromVersion).
			Add("To", rec.ToVersion).
			Add("World backup", rec.WorldBackup).
			Add("Error", rec.Error)
		return w.Write(rec, fields)
	}

	records, err := store.List(cmd.Context(), limit)
	if err != nil {
		return err
	}

	tbl := output.Table{
		Headers: []string{"RUN", "MODE", "STARTED", "FROM", "TO", "STATE"},
		Empty:   "No runs recorded yet",
	}
	for _, r := range records {
		tbl.Rows = append(tbl.Rows, []string{
			r.RunID,
			r.Mode.String(),
			r.StartedAt.Local().Format("2006-01-02 15:04:05"),
			versionOrDash(r.FromVersion),
			versionOrDash(r.ToVersion),
			r.FinalState.String(),
		})
	}
	return w.Write(records, tbl)
}
