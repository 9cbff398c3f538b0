package main

import (
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:          "stt",
	Short:        "Interview speech-to-text pipeline",
	SilenceUsage: true,
	Long: `stt transcribes uploaded interview recordings with whisper, whisperx or
a wordcab server, and stores a canonical transcript on the interview record.

Configuration comes from .env files, the process environment and the YAML
file named by STT_CONFIG_FILE.`,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
