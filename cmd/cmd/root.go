// Package cmd wires the curator CLI's cobra commands.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"curator/internal/config"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "Daily arXiv research-paper curation pipeline",
	Long:  "curator runs the L1-Post-L3 curation pipeline: fetch preprints, filter by vector similarity, judge relevance with an LLM, and produce full-text reviews for the papers that pass.",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configFile, "config", "", "path to a YAML config file (default: .curator.yaml in the working or home directory)")
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig() *config.Config {
	cfg, err := config.Load(configFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	return cfg
}
