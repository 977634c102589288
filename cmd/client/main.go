package main

import (
	"fmt"
	"os"
	"time"

	"messenger/internal/config"
	"messenger/pkg/logger"

	"github.com/spf13/cobra"
)

var (
	serverURL      string
	reconnectDelay time.Duration
	logLevel       string
	username       string
	password       string
)

var rootCmd = &cobra.Command{
	Use:   "messenger",
	Short: "Terminal client for the messenger relay",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return logger.Init(logLevel, true)
	},
	SilenceUsage: true,
}

func init() {
	cfg := config.LoadClient()

	rootCmd.PersistentFlags().StringVar(&serverURL, "server", cfg.ServerURL, "server base URL")
	rootCmd.PersistentFlags().DurationVar(&reconnectDelay, "reconnect-delay", cfg.ReconnectDelay, "wait between reconnect attempts")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "warn", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().StringVarP(&username, "username", "u", "", "account username")
	rootCmd.PersistentFlags().StringVarP(&password, "password", "p", "", "account password")

	rootCmd.AddCommand(registerCmd, loginCmd, chatCmd)
}

func main() {
	defer logger.Sync()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
