// Command churchctl runs administrative tasks against the commhub database
// and configuration.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ekklesia/commhub/internal/config"
	"github.com/ekklesia/commhub/internal/pkg/logger"
)

var configPath string

var rootCmd = &cobra.Command{
	Use:           "churchctl",
	Short:         "Administer the commhub backend",
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "config/config.yaml", "path to the YAML config file")
	rootCmd.AddCommand(migrateCmd, createAdminCmd, providersCmd, normalizeCmd)
}

func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromEnv(configPath)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	logger.SetLevel(logger.ParseLevel(cfg.Logging.Level))
	return cfg, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
