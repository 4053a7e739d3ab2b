package main

import (
	"encoding/json"
	"os"

	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/warden/internal/config"
)

func searchCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "search QUERY",
		Short: "Search the reconciled view by substring",
		Args:  cobra.ExactArgs(1),
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

			matches, err := eng.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(matches)
		},
	}
}
