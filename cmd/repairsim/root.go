package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "repairsim",
	Short: "Repair state simulator",
	Long: `Simulates a repair scheduler on top of the repair state engine: a token
ring, its replication, a seeded repair history and per-table snapshots
carried from cycle to cycle.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "repairsim.yaml", "Path to the YAML configuration file")
}
