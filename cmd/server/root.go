package main

import (
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/vovakirdan/counselchat/internal/config"
	"github.com/vovakirdan/counselchat/internal/log"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:          "counselchat",
	Short:        "Counseling chat server",
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config.yaml)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(counselorCmd)
	rootCmd.AddCommand(banCodeCmd)
	rootCmd.AddCommand(smokeCmd)
}

// loadConfig resolves configuration and builds the logger it asks for.
func loadConfig() (config.Config, *zerolog.Logger, error) {
	bootstrap := log.New("info", "console")
	cfg, path, err := config.Load(bootstrap, cfgFile)
	if err != nil {
		return cfg, bootstrap, err
	}
	logger := log.New(cfg.LogLevel, cfg.LogFormat)
	logger.Debug().Str("config_path", path).Msg("configuration loaded")
	return cfg, logger, nil
}
