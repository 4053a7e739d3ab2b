package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the warden service.
type Config struct {
	// StorePath is the JSON binding store document.
	StorePath string
	// RegistryPath is the pass-through registry file shared with the
	// portal frontend.
	RegistryPath string
	// SessionDBDir holds the per-zone portal sqlite databases.
	SessionDBDir string
	// AuditPath is the JSONL audit trail. Empty disables auditing.
	AuditPath string
	Port      string

	// DefaultWindow is the access window applied when an admission
	// carries no duration and no expiry could be resolved.
	DefaultWindow time.Duration
	// OrphanGrace protects freshly committed entries from the orphan
	// sweep while their store write may still be in flight.
	OrphanGrace time.Duration

	// FirewallDeleteCmd and FirewallFlushCmd are exec templates with
	// %ZONE% and %MAC% placeholders. Empty disables the step.
	FirewallDeleteCmd string
	FirewallFlushCmd  string
	// RegistryReloadCmd is run after a registry commit, with %ZONE%.
	RegistryReloadCmd string

	// LogLevel is debug, info, warn, or error.
	LogLevel string
}

// NewConfig creates a new Config with default values.
func NewConfig() *Config {
	return &Config{
		StorePath:     "~/warden/data/bindings.json",
		RegistryPath:  "~/warden/data/passthrough.json",
		SessionDBDir:  "~/warden/data/portal",
		AuditPath:     "~/warden/data/audit.jsonl",
		Port:          "8080",
		DefaultWindow: 30 * 24 * time.Hour,
		OrphanGrace:   2 * time.Minute,
		LogLevel:      "info",
	}
}

// Load builds a Config from defaults, an optional .env file, and the
// process environment. Environment variables win over the file.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file %s: %w", envFile, err)
		}
	} else {
		// Best effort: a missing .env in the working directory is fine.
		_ = godotenv.Load()
	}

	c := NewConfig()
	c.StorePath = getEnv("WARDEN_STORE_PATH", c.StorePath)
	c.RegistryPath = getEnv("WARDEN_REGISTRY_PATH", c.RegistryPath)
	c.SessionDBDir = getEnv("WARDEN_SESSION_DB_DIR", c.SessionDBDir)
	c.AuditPath = getEnv("WARDEN_AUDIT_PATH", c.AuditPath)
	c.Port = getEnv("WARDEN_PORT", c.Port)
	c.FirewallDeleteCmd = getEnv("WARDEN_FW_DELETE_CMD", c.FirewallDeleteCmd)
	c.FirewallFlushCmd = getEnv("WARDEN_FW_FLUSH_CMD", c.FirewallFlushCmd)
	c.RegistryReloadCmd = getEnv("WARDEN_RELOAD_CMD", c.RegistryReloadCmd)
	c.LogLevel = getEnv("WARDEN_LOG_LEVEL", c.LogLevel)

	var err error
	if c.DefaultWindow, err = getDurationEnv("WARDEN_DEFAULT_WINDOW", c.DefaultWindow); err != nil {
		return nil, err
	}
	if c.OrphanGrace, err = getDurationEnv("WARDEN_ORPHAN_GRACE", c.OrphanGrace); err != nil {
		return nil, err
	}

	c.StorePath = expandPath(c.StorePath)
	c.RegistryPath = expandPath(c.RegistryPath)
	c.SessionDBDir = expandPath(c.SessionDBDir)
	c.AuditPath = expandPath(c.AuditPath)
	return c, nil
}

// EnsureDirs creates the directories the file-backed stores live in.
func (c *Config) EnsureDirs() error {
	for _, p := range []string{c.StorePath, c.RegistryPath, c.AuditPath} {
		if p == "" {
			continue
		}
		if err := os.MkdirAll(filepath.Dir(p), 0755); err != nil {
			return fmt.Errorf("failed to create directory for %s: %w", p, err)
		}
	}
	if c.SessionDBDir != "" {
		if err := os.MkdirAll(c.SessionDBDir, 0755); err != nil {
			return fmt.Errorf("failed to create session db directory: %w", err)
		}
	}
	return nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("invalid duration in %s: %w", key, err)
	}
	return d, nil
}

// expandPath expands ~ to home directory.
func expandPath(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		// Return original path if we can't get home dir
		return path
	}

	return filepath.Join(homeDir, path[2:])
}
