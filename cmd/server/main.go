package main

import (
	"os"

	"github.com/spf13/cobra"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:   "cfs",
	Short: "Escrow crowdfunding service",
	Long:  "Runs a single escrow crowdfunding project and settles its payouts.",
	// serve is the default action.
	RunE:         runServe,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "config file (default: config.yaml in ., ./config, /etc/cfs)")
	rootCmd.AddCommand(serveCmd, migrateCmd, tokenCmd, requeueCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
