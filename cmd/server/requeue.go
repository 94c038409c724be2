package main

import (
	"fmt"

	"github.com/blues/cfs-escrow/internal/logger"
	"github.com/spf13/cobra"
)

var requeueCmd = &cobra.Command{
	Use:   "requeue <settlement-id>",
	Short: "Return a failed payout to the settlement queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := setup()
		if err != nil {
			return err
		}
		defer logger.Sync()

		backend, err := openBackend(cfg)
		if err != nil {
			return fmt.Errorf("failed to open %s store: %w", cfg.Store.Driver, err)
		}
		defer backend.Close()

		if err := backend.Requeue(cmd.Context(), args[0]); err != nil {
			return fmt.Errorf("failed to requeue settlement %s: %w", args[0], err)
		}
		logger.Info("Settlement %s requeued", args[0])
		return nil
	},
}
