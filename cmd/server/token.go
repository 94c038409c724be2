package main

import (
	"fmt"
	"time"

	"github.com/blues/cfs-escrow/internal/crowdfund"
	"github.com/blues/cfs-escrow/internal/middleware"
	"github.com/spf13/cobra"
)

var tokenTTL time.Duration

var tokenCmd = &cobra.Command{
	Use:   "token <address>",
	Short: "Issue a bearer token for an account",
	Long: `Issue a bearer token whose subject is the given account address.

Example:
  cfs token 0x1111111111111111111111111111111111111111 --ttl 1h`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		token, err := middleware.IssueToken(cfg.Auth, crowdfund.Address(args[0]), tokenTTL)
		if err != nil {
			return fmt.Errorf("failed to sign token: %w", err)
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
