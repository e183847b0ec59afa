package main

import (
	"runtime"

	"github.com/spf13/cobra"

	"github.com/crucible-ai/crucible/internal/daemon"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the Crucible version",
	Run: func(cmd *cobra.Command, args []string) {
		cmd.Printf("crucible %s (%s/%s, %s)\n",
			daemon.Version, runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}
