package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edusphere/chatsync/internal/client"
)

func newInboxCmd() *cobra.Command {
	var userID int64

	cmd := &cobra.Command{
		Use:   "inbox",
		Short: "List conversations, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == 0 {
				return errors.New("--user is required")
			}
			return runInbox(userID)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "local user id")
	return cmd
}

func runInbox(userID int64) error {
	cfg, logger, err := setup()
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cl, err := client.FromConfig(cfg, userID, logger)
	if err != nil {
		return err
	}
	cl.Start(ctx)
	defer cl.Stop()

	if err := cl.RefreshInbox(ctx); err != nil {
		return err
	}

	rows := cl.Inbox()
	if len(rows) == 0 {
		fmt.Println("no conversations yet")
		return nil
	}
	for _, s := range rows {
		unread := ""
		if s.UnreadCount > 0 {
			unread = fmt.Sprintf(" (%d unread)", s.UnreadCount)
		}
		fmt.Printf("user %d%s — %s [%s]\n",
			s.CounterpartID, unread, s.LastMessage, s.LastMessageTime.Local().Format("Jan 2 15:04"))
	}
	return nil
}
