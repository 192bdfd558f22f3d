package main

import (
	"os"

	"github.com/adamancini/vsupdater/internal/cmd"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

func main() {
	if err := cmd.Execute(version, commit, date); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
