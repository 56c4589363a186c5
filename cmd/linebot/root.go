package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/memohai/linebot/internal/config"
)

type globalFlags struct {
	ConfigPath string
	Verbose    bool
}

var flags globalFlags

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "linebot",
		Short: "LINE bot that stores attachments in OneDrive and reads receipts with AI",
		Long: `linebot receives LINE Messaging API webhooks, answers text commands,
uploads images and files to OneDrive and reads receipts with an OpenAI model.
It also offers offline helpers for commission and receipt summaries.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&flags.ConfigPath, "config", "c", "", "config file path (default $CONFIG_PATH or config.toml)")
	rootCmd.PersistentFlags().BoolVarP(&flags.Verbose, "verbose", "v", false, "debug logging")

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newCommissionCmd())
	rootCmd.AddCommand(newSummarizeCmd())
	rootCmd.AddCommand(newTokenCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// loadConfig resolves the config path from the flag, then CONFIG_PATH.
func loadConfig() (config.Config, error) {
	path := flags.ConfigPath
	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	cfg, err := config.Load(path)
	if err != nil {
		return config.Config{}, fmt.Errorf("load config: %w", err)
	}
	if flags.Verbose {
		cfg.Log.Level = "debug"
	}
	return cfg, nil
}
