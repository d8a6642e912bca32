// Package store defines the optional local cache behind the inbox. It lets
// the client render conversations instantly on startup, before the first
// REST fetch resolves.
package store

import (
	"context"

	"github.com/edusphere/chatsync/internal/core"
)

// Cache persists conversation summaries and recent messages between app
// sessions. All writes are best-effort: a cache failure never interrupts the
// sync flow, it is only logged.
type Cache interface {
	// SaveSummary upserts one inbox row.
	SaveSummary(ctx context.Context, s core.ConversationSummary) error
	// Summaries returns every cached inbox row.
	Summaries(ctx context.Context) ([]core.ConversationSummary, error)

	// SaveMessage inserts one message. Messages are immutable; saving an
	// already-known id is a no-op.
	SaveMessage(ctx context.Context, m core.Message) error
	// RecentMessages returns up to limit newest messages of a conversation,
	// in display order (ascending by created_at, id).
	RecentMessages(ctx context.Context, key core.ConversationKey, limit int) ([]core.Message, error)

	Close() error
}
