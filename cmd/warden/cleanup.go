package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/warden/internal/config"
)

func cleanupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "cleanup",
		Short: "Remove expired and orphaned bindings",
		Long:  `Sweeps the pass-through registry and the binding store, removing entries whose access window has lapsed and pruning expired voucher usage.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.LogLevel, verbose)
			defer logger.Sync()

			eng, portal, _, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer portal.Close()

			res, err := eng.CleanupExpired(cmd.Context())
			if err != nil {
				return err
			}

			fmt.Printf("removed %d binding(s), pruned %d voucher record(s)", res.RemovedCount, res.VouchersPruned)
			if res.Failures > 0 {
				fmt.Printf(", %d step(s) failed", res.Failures)
			}
			fmt.Println()
			return nil
		},
	}
}
