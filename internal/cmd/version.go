package cmd

import (
	"github.com/spf13/cobra"
)

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := newWriter(cmd.OutOrStdout())
			if err != nil {
				return err
			}
			return w.Write(map[string]string{
				"version": buildInfo.version,
				"commit":  buildInfo.commit,
				"date":    buildInfo.date,
			}, textf("vsupdater version %s\n  commit: %s\n  built:  %s",
				buildInfo.version, buildInfo.commit, buildInfo.date))
		},
	}
}
