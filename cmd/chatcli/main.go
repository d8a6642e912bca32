// chatcli is a terminal client for the messaging sync core: an interactive
// chat, an inbox listing, and a local mock backend to run them against.
package main

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/edusphere/chatsync/internal/config"
	"github.com/edusphere/chatsync/internal/log"
)

var (
	flagConfig   string
	flagLogLevel string
	flagJSONLog  bool
)

func main() {
	root := &cobra.Command{
		Use:           "chatcli",
		Short:         "Learning-platform chat client",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to config file")
	root.PersistentFlags().StringVar(&flagLogLevel, "log-level", "", "log level (debug, info, warn, error)")
	root.PersistentFlags().BoolVar(&flagJSONLog, "json-log", false, "machine-readable log output")

	root.AddCommand(newChatCmd(), newInboxCmd(), newMockServerCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "chatcli: %v\n", err)
		os.Exit(1)
	}
}

// setup loads configuration and builds the logger most commands share.
func setup() (config.Config, *zerolog.Logger, error) {
	boot := log.New("info", flagJSONLog)

	cfg, _, err := config.Load(boot, flagConfig)
	if err != nil {
		return cfg, boot, fmt.Errorf("load config: %w", err)
	}
	if flagLogLevel != "" {
		cfg.LogLevel = flagLogLevel
	}

	return cfg, log.New(cfg.LogLevel, flagJSONLog), nil
}
