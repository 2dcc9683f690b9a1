// File: cmd/version.go
package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
)

// Build metadata, set at build time via ldflags, e.g.
// go build -ldflags "-X github.com/robit-man/web-scrape-service/cmd.Version=1.2.0"
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print version and build information.",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("web-scrape-service %s (commit %s, built %s)\n", Version, Commit, Date)
	},
}

func init() {
	rootCmd.AddCommand(versionCmd)
}
