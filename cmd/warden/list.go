package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/warden/internal/config"
)

func listCmd() *cobra.Command {
	var zone string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List the reconciled binding view",
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

			bindings, err := eng.ListBindings(cmd.Context(), zone)
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(bindings)
		},
	}

	cmd.Flags().StringVar(&zone, "zone", "", "restrict to one zone")
	return cmd
}
