package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/nak1ro/micro-scribe-sub003/cmd/scribe/cmd/reap"
	"github.com/nak1ro/micro-scribe-sub003/cmd/scribe/cmd/serve"
	"github.com/nak1ro/micro-scribe-sub003/cmd/scribe/cmd/version"
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:   "scribe",
	Short: "Transcription ingestion pipeline: uploads, normalization, transcription, webhooks",
	Long: `scribe runs the media transcription backend.
- Clients upload audio or video through resumable upload sessions
- Files are validated, normalized with ffmpeg and transcribed in chunks
- Job lifecycle events fan out to registered webhooks`,
	TraverseChildren: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.AddCommand(serve.Cmd)
	rootCmd.AddCommand(reap.Cmd)
	rootCmd.AddCommand(version.Cmd)
}
