// promptboost is the desktop client: a clipboard watcher with a terminal
// feedback dialog, plus one-shot commands against the server.
package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/ashureev/promptboost/internal/client"
	"github.com/ashureev/promptboost/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	apiURL     string
	userID     string
	logLevel   string

	cfg *config.ClientConfig

	rootCmd = &cobra.Command{
		Use:           "promptboost",
		Short:         "Enhance prompts from the clipboard or the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			loaded, err := config.LoadClient(configPath)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("api-url") {
				loaded.APIURL = apiURL
			}
			if cmd.Flags().Changed("user-id") {
				loaded.UserID = userID
			}
			if cmd.Flags().Changed("log-level") {
				loaded.LogLevel = logLevel
			}
			if err := loaded.Validate(); err != nil {
				return fmt.Errorf("invalid client configuration: %w", err)
			}
			cfg = loaded
			return nil
		},
	}
)

func init() {
	defaultPath, err := config.DefaultClientConfigPath()
	if err != nil {
		defaultPath = ""
	}
	rootCmd.PersistentFlags().StringVar(&configPath, "config", defaultPath, "client config file (YAML)")
	rootCmd.PersistentFlags().StringVar(&apiURL, "api-url", "", "server base URL")
	rootCmd.PersistentFlags().StringVar(&userID, "user-id", "", "user id sent with every request")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "debug, info, warn or error")

	rootCmd.AddCommand(watchCmd, enhanceCmd, feedbackCmd, statsCmd, recentCmd, rejectRecentCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newClient() *client.Client {
	return client.New(cfg.APIURL, cfg.UserID, cfg.Timeout)
}

func newLogger(w io.Writer) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: config.ParseLogLevel(cfg.LogLevel),
	}))
}
