package cmd

import (
	"github.com/matrixise/survey-gate/internal/config"
	"github.com/matrixise/survey-gate/internal/logger"
	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	logLevel  string
	logFormat string
)

// rootCmd represents the base command
var rootCmd = &cobra.Command{
	Use:   "survey-gate",
	Short: "Wallet-based survey targeting and reward engine",
	Long: `survey-gate classifies wallets by their native ETH holdings, decides which
surveys a user may see from country and balance-bracket rules, and hands out
capped survey rewards. Balances are read from Ethereum mainnet, priced with a
Chainlink feed and cached; users and surveys are persisted to PostgreSQL.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default: ./config.toml)")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "info", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "text", "log format (text, json)")
}

// setupLogger applies the config file's logging settings unless the flags
// were given explicitly
func setupLogger(cmd *cobra.Command, cfg *config.Config) {
	level, format := logLevel, logFormat
	if cfg != nil {
		if cfg.LogLevel != "" && !cmd.Flags().Changed("log-level") {
			level = cfg.LogLevel
		}
		if cfg.LogFormat != "" && !cmd.Flags().Changed("log-format") {
			format = cfg.LogFormat
		}
	}
	logger.SetupWithFormat(level, format)
}
