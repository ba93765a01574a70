package main

import (
	"fmt"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/sawpanic/obscan/internal/config"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:   appName,
		Short: "Scan perpetual-futures orderbooks for manipulation signals",
		Long: `obscan fetches Bitget USDT-M orderbooks for low-FDV tokens, flags bid walls
and bid/ask imbalance, and cross-checks listings and prices on Hyperliquid and
Binance futures before reporting.`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().String("config", "", "YAML config file")
	root.PersistentFlags().String("env-file", ".env", "dotenv file loaded before the environment")

	root.AddCommand(newScanCmd(), newServeCmd(), newVersionCmd())
	return root
}

// loadConfig builds the run configuration and applies its log level
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	envFile, _ := cmd.Flags().GetString("env-file")

	cfg, err := config.Load(path, envFile)
	if err != nil {
		return nil, err
	}
	if err := cfg.ApplyFlags(cmd.Flags()); err != nil {
		return nil, err
	}

	lvl, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, &config.ConfigurationError{Problems: []string{err.Error()}}
	}
	zerolog.SetGlobalLevel(lvl)
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s %s\n", appName, version)
		},
	}
}
