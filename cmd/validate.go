package cmd

import (
	"log/slog"

	"github.com/matrixise/survey-gate/internal/config"
	"github.com/matrixise/survey-gate/internal/scheduler"
	"github.com/spf13/cobra"
)

var validateCmd = &cobra.Command{
	Use:   "validate-config",
	Short: "Validate configuration file",
	Long:  `Validate the configuration file syntax and values without running the application.`,
	RunE:  validateConfig,
}

func init() {
	rootCmd.AddCommand(validateCmd)
}

func validateConfig(cmd *cobra.Command, args []string) error {
	setupLogger(cmd, nil)

	cfg, err := config.Load(cfgFile)
	if err != nil {
		slog.Error("Configuration validation failed", "error", err)
		return err
	}
	_, dbErr := config.DatabaseURL()

	slog.Info("Configuration valid",
		"rpc_endpoints", len(cfg.RPCUrls),
		"tokens", len(cfg.Tokens),
		"price_feed", cfg.PriceFeed.Address,
		"cache_backend", cfg.Cache.Backend,
		"cache_ttl", cfg.Cache.TTL,
		"schedule", scheduler.DescribeSchedule(cfg.Interval, cfg.GetTimezone()),
		"log_level", cfg.LogLevel,
		"database_url_set", dbErr == nil,
	)

	return nil
}
