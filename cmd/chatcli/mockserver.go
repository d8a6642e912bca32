package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edusphere/chatsync/internal/devserver"
)

func newMockServerCmd() *cobra.Command {
	var addr string

	cmd := &cobra.Command{
		Use:   "mockserver",
		Short: "Run the in-memory mock backend for local development",
		RunE: func(cmd *cobra.Command, _ []string) error {
			_, logger, err := setup()
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			logger.Info().Str("addr", addr).Msg("starting mock backend")
			return devserver.New(logger).Run(ctx, addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	return cmd
}
