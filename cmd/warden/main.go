package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/jbweber/homelab/warden/internal/audit"
	"github.com/jbweber/homelab/warden/internal/bindingstore"
	"github.com/jbweber/homelab/warden/internal/config"
	"github.com/jbweber/homelab/warden/internal/engine"
	"github.com/jbweber/homelab/warden/internal/firewall"
	"github.com/jbweber/homelab/warden/internal/registry"
	"github.com/jbweber/homelab/warden/internal/repository"
	"github.com/jbweber/homelab/warden/internal/sessiondb"
)

var (
	envFile string
	verbose bool
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "warden",
		Short: "MAC binding lifecycle engine for captive-portal zones",
		Long: `Warden reconciles the local binding store with the pass-through
registry, portal session databases, and voucher ledgers, and tears down
expired or revoked device access across all of them.`,
	}

	rootCmd.PersistentFlags().StringVarP(&envFile, "env-file", "e", "", "env file path")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")

	rootCmd.AddCommand(
		serveCmd(),
		listCmd(),
		removeCmd(),
		cleanupCmd(),
		searchCmd(),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func setupLogger(level string, verbose bool) *zap.Logger {
	cfg := zap.NewProductionConfig()
	lvl := zapcore.InfoLevel
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		lvl = zapcore.InfoLevel
	}
	if verbose {
		lvl = zapcore.DebugLevel
	}
	cfg.Level = zap.NewAtomicLevelAt(lvl)

	cfg.EncoderConfig.TimeKey = "timestamp"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, _ := cfg.Build()
	return logger
}

// buildEngine wires the engine and its collaborators from config.
func buildEngine(cfg *config.Config, logger *zap.Logger) (*engine.Engine, *sessiondb.DB, *registry.FileRegistry, error) {
	if err := cfg.EnsureDirs(); err != nil {
		return nil, nil, nil, err
	}

	store := bindingstore.New(cfg.StorePath, logger)
	bindings := repository.NewBindingRepository(store)
	vouchers := repository.NewVoucherUsageRepository(store)

	reg, err := registry.Open(cfg.RegistryPath, splitCmd(cfg.RegistryReloadCmd), logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("failed to open pass-through registry: %w", err)
	}

	portal := sessiondb.New(cfg.SessionDBDir, logger)
	fw := firewall.New(splitCmd(cfg.FirewallDeleteCmd), splitCmd(cfg.FirewallFlushCmd), logger)

	var auditor engine.Auditor
	if cfg.AuditPath != "" {
		auditor = audit.NewLog(cfg.AuditPath)
	}

	eng := engine.New(bindings, vouchers, reg, portal, portal, fw, auditor, logger, engine.Options{
		DefaultWindow: cfg.DefaultWindow,
		OrphanGrace:   cfg.OrphanGrace,
	})
	return eng, portal, reg, nil
}

func splitCmd(tmpl string) []string {
	if tmpl == "" {
		return nil
	}
	return strings.Fields(tmpl)
}
