package main

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jbweber/homelab/warden/internal/api"
	"github.com/jbweber/homelab/warden/internal/config"
)

func serveCmd() *cobra.Command {
	var port string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the warden web service",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(envFile)
			if err != nil {
				return err
			}
			if port != "" {
				cfg.Port = port
			}

			logger := setupLogger(cfg.LogLevel, verbose)
			defer logger.Sync()

			eng, portal, reg, err := buildEngine(cfg, logger)
			if err != nil {
				return err
			}
			defer portal.Close()

			r := chi.NewRouter()
			r.Use(middleware.Logger)
			r.Use(middleware.Recoverer)

			api.NewAPI(eng, logger).RegisterRoutes(r)

			// Health check endpoint
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				zones, err := reg.ListZones()
				if err != nil {
					http.Error(w, "registry unavailable", http.StatusServiceUnavailable)
					return
				}
				w.Header().Set("Content-Type", "application/json")
				if err := json.NewEncoder(w).Encode(map[string]any{
					"status":     "ok",
					"store_path": cfg.StorePath,
					"zones":      len(zones),
				}); err != nil {
					logger.Warn("failed to write response", zap.Error(err))
				}
			})

			addr := ":" + cfg.Port
			logger.Info("starting warden web service", zap.String("addr", addr))
			return http.ListenAndServe(addr, r)
		},
	}

	cmd.Flags().StringVarP(&port, "port", "p", "", "listen port (overrides config)")
	return cmd
}
