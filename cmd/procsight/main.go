package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "procsight",
	Short: "procsight - host process telemetry with AI diagnosis",
	Long: `procsight samples host processes into a bounded rolling log, streams it to
subscribers and answers questions about it with a local or remote model.`,
	SilenceUsage: true,
}

var envFile string

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env", ".env", "Path to the .env file")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(watchCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
