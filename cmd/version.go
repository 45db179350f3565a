package cmd

import (
	"fmt"
	"runtime"
	"runtime/debug"

	"github.com/spf13/cobra"
)

// Set with -ldflags "-X github.com/spigell/rfp-matcher/cmd.version=...".
var version = "unknown"

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, _ []string) {
		info, _ := debug.ReadBuildInfo()
		fmt.Fprintln(cmd.OutOrStdout(), versionLine(info))
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}

func versionLine(info *debug.BuildInfo) string {
	revision := "none"
	if info != nil {
		for _, setting := range info.Settings {
			if setting.Key == "vcs.revision" && setting.Value != "" {
				revision = setting.Value
				if len(revision) > 12 {
					revision = revision[:12]
				}
			}
		}
	}

	return fmt.Sprintf("%s %s (commit %s, %s)", app, version, revision, runtime.Version())
}
