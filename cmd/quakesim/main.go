// Package main provides the quakesim CLI for offline scoring and model
// bundle management.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configPath string

	rootCmd := &cobra.Command{
		Use:   "quakesim",
		Short: "Earthquake damage risk estimates for buildings",
		Long: `quakesim scores buildings with the heuristic damage formula or a trained
model bundle, and inspects or publishes bundles on local disk, S3 or GCS.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "quakesim.yaml", "Path to the YAML config file")

	rootCmd.AddCommand(
		newScoreCmd(),
		newPredictCmd(&configPath),
		newBundleCmd(&configPath),
	)
	return rootCmd
}
