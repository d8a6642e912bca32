package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edusphere/chatsync/internal/client"
	"github.com/edusphere/chatsync/internal/core"
)

func newChatCmd() *cobra.Command {
	var userID, peerID int64

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Open an interactive conversation with one peer",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if userID == 0 || peerID == 0 {
				return errors.New("--user and --peer are required")
			}
			return runChat(userID, peerID)
		},
	}

	cmd.Flags().Int64Var(&userID, "user", 0, "local user id")
	cmd.Flags().Int64Var(&peerID, "peer", 0, "counterpart user id")
	return cmd
}

func runChat(userID, peerID int64) error {
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
		logger.Warn().Err(err).Msg("inbox fetch failed, continuing without it")
	}

	if err := cl.OpenConversation(ctx, peerID); err != nil {
		var fetchErr *core.HistoryFetchError
		if errors.As(err, &fetchErr) {
			// Retryable: one more attempt before giving up.
			logger.Warn().Err(err).Msg("history fetch failed, retrying")
			if err = cl.OpenConversation(ctx, peerID); err != nil {
				return err
			}
		} else {
			return err
		}
	}
	defer cl.CloseConversation()

	for _, m := range cl.Messages() {
		printMessage(userID, m)
	}

	// Redraw the newest entry whenever the reconciled log changes.
	cl.OnConversationRefresh(func() {
		msgs := cl.Messages()
		if len(msgs) > 0 {
			printMessage(userID, msgs[len(msgs)-1])
		}
	})

	if err := cl.MarkRead(ctx, peerID); err != nil {
		logger.Warn().Err(err).Msg("mark read failed")
	}

	fmt.Println("Type messages and press Enter to send. Ctrl+C to exit.")

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			text := strings.TrimSpace(line)
			if text == "" {
				continue
			}
			if _, err := cl.Send(ctx, peerID, text); err != nil {
				var failure *core.SendFailure
				if errors.As(err, &failure) {
					// Content is preserved; show it back so nothing is lost.
					fmt.Printf("send failed (%v), your text: %s\n", failure.Err, failure.Content)
					continue
				}
				return err
			}
		}
	}
}

func printMessage(userID int64, m core.Message) {
	who := fmt.Sprintf("user %d", m.SenderID)
	if m.SenderID == userID {
		who = "you"
	}
	fmt.Printf("[%s] %s: %s\n", m.CreatedAt.Local().Format("15:04:05"), who, m.Content)
}
