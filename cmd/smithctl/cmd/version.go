package cmd

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Set via -ldflags at build time
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

// versionCmd represents the version command
var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version information",
	Run: func(cmd *cobra.Command, args []string) {
		if outputJSON {
			printOutput(map[string]string{
				"version":    version,
				"commit":     commit,
				"build_date": buildDate,
				"go_version": runtime.Version(),
			})
			return
		}
		fmt.Printf("smithctl %s (commit %s, built %s, %s)\n", version, commit, buildDate, runtime.Version())
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
