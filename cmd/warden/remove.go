package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jbweber/homelab/warden/internal/config"
	"github.com/jbweber/homelab/warden/internal/engine"
)

func removeCmd() *cobra.Command {
	var zone string

	cmd := &cobra.Command{
		Use:   "remove MAC",
		Short: "Tear down every trace of a device binding",
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

			res, err := eng.RemoveBinding(cmd.Context(), args[0], zone)
			if err != nil {
				return err
			}

			switch res.Outcome {
			case engine.OutcomeNotFound:
				fmt.Printf("%s: not found\n", args[0])
			case engine.OutcomeNotFoundInZone:
				fmt.Printf("%s: not found in zone %q (exists elsewhere)\n", args[0], zone)
			default:
				fmt.Printf("%s: removed (store=%d sessions=%d rules=%d entries=%d failures=%d)\n",
					args[0], res.StoreRemoved, res.SessionsTerminated,
					res.RulesFlushed, res.EntriesRemoved, res.Failures)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&zone, "zone", "", "restrict the teardown to one zone")
	return cmd
}
