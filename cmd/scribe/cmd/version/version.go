package version

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"
)

// Overridden at build time with -ldflags.
var (
	Version   = "dev"
	GitCommit = "unknown"
)

var Cmd = &cobra.Command{
	Use:   "version",
	Short: "Print build information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("scribe %s (%s) %s/%s %s\n",
			Version, GitCommit, runtime.GOOS, runtime.GOARCH, runtime.Version())
	},
}
