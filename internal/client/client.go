// Package client is the application-scope facade over the messaging
// synchronization core: one shared connection, one event bus, one reconciled
// conversation log and one aggregated inbox, consumed by any number of
// screens through acquire/subscribe-style APIs.
package client

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog"

	"github.com/edusphere/chatsync/internal/config"
	"github.com/edusphere/chatsync/internal/conn"
	"github.com/edusphere/chatsync/internal/core"
	"github.com/edusphere/chatsync/internal/store"
	"github.com/edusphere/chatsync/internal/store/sqlite"
	"github.com/edusphere/chatsync/internal/transport/rest"
	"github.com/edusphere/chatsync/internal/transport/ws"
)

// Client owns the sync core for one authenticated user. The user id comes
// from the auth subsystem; no authentication happens here.
type Client struct {
	cfg    config.Config
	log    *zerolog.Logger
	userID int64

	bus   *core.Bus
	mgr   *conn.Manager
	rest  *rest.Client
	rec   *core.Reconciler
	agg   *core.Aggregator
	cache store.Cache

	tokens []string
	sends  *pendingSends
}

// New wires a client from explicit collaborators. cache may be nil; it is
// closed by Stop when set.
func New(cfg config.Config, userID int64, transport conn.Transport, restc *rest.Client, cache store.Cache, logger *zerolog.Logger) *Client {
	bus := core.NewBus()
	return &Client{
		cfg:    cfg,
		log:    logger,
		userID: userID,
		bus:    bus,
		mgr:    conn.NewManager(transport, bus, logger),
		rest:   restc,
		rec:    core.NewReconciler(logger),
		agg:    core.NewAggregator(userID, logger),
		cache:  cache,
		sends:  newPendingSends(),
	}
}

// FromConfig builds a client with the default websocket transport, REST
// client and, when configured, the sqlite cache.
func FromConfig(cfg config.Config, userID int64, logger *zerolog.Logger) (*Client, error) {
	transport := ws.New(ws.Options{
		URL:               cfg.SocketURL,
		ConnectTimeout:    cfg.ConnectTimeout,
		ReconnectMinDelay: cfg.ReconnectMinDelay,
		ReconnectMaxDelay: cfg.ReconnectMaxDelay,
		MaxAttempts:       cfg.MaxReconnectAttempts,
	}, logger)

	restc := rest.New(cfg.APIBaseURL, cfg.RequestTimeout, logger)

	var cache store.Cache
	if cfg.CachePath != "" {
		c, err := sqlite.New(cfg.CachePath)
		if err != nil {
			return nil, fmt.Errorf("open cache: %w", err)
		}
		cache = c
	}

	return New(cfg, userID, transport, restc, cache, logger), nil
}

// Start acquires the shared connection, subscribes the core consumers and
// warm-starts the inbox from the local cache. The authoritative inbox fetch
// is a separate, retryable RefreshInbox call.
func (c *Client) Start(ctx context.Context) {
	c.tokens = append(c.tokens,
		c.bus.Subscribe(core.EventNewMessage, c.handleIncoming),
		c.bus.Subscribe(core.EventMessageSent, c.handleEcho),
		c.bus.Subscribe(core.EventMessageError, c.handleSendError),
	)

	c.mgr.Acquire(c.userID)

	if c.cache != nil {
		cached, err := c.cache.Summaries(ctx)
		if err != nil {
			c.log.Warn().Err(err).Msg("cache warm start failed")
		} else if len(cached) > 0 {
			c.agg.Seed(cached)
		}
	}
}

// Stop releases the shared connection and tears down this client's
// subscriptions, leaving any other consumer of the bus untouched.
func (c *Client) Stop() {
	for _, token := range c.tokens {
		c.bus.Unsubscribe(token)
	}
	c.tokens = nil

	c.mgr.Release()

	if c.cache != nil {
		if err := c.cache.Close(); err != nil {
			c.log.Warn().Err(err).Msg("cache close failed")
		}
	}
}

// Bus exposes the event bus for additional UI subscribers.
func (c *Client) Bus() *core.Bus {
	return c.bus
}

// Connection exposes the connection manager for additional acquire/release
// consumers.
func (c *Client) Connection() *conn.Manager {
	return c.mgr
}

// RefreshInbox fetches the authoritative conversation list and seeds the
// aggregator. Safe to call again on failure.
func (c *Client) RefreshInbox(ctx context.Context) error {
	list, err := c.rest.Conversations(ctx, c.userID)
	if err != nil {
		return fmt.Errorf("refresh inbox: %w", err)
	}
	c.agg.Seed(list)
	c.persistSummaries(ctx, list)
	return nil
}

// OpenConversation loads the history of the conversation with otherID and
// makes it the reconciled log. A returned HistoryFetchError is retryable by
// calling OpenConversation again: live events that arrived in the meantime
// stay buffered. Returns core.ErrStaleGeneration when a newer open
// superseded this load before its fetch resolved.
func (c *Client) OpenConversation(ctx context.Context, otherID int64) error {
	key := core.NewConversationKey(c.userID, otherID)
	gen := c.rec.Open(key)

	history, err := c.rest.MessagesBetween(ctx, c.userID, otherID)
	if err != nil {
		return &core.HistoryFetchError{Key: key, Err: err}
	}

	if err := c.rec.SeedHistory(gen, history); err != nil {
		return err
	}

	for _, m := range history {
		c.persistMessage(ctx, m)
	}
	return nil
}

// CloseConversation discards the open conversation; an in-flight history
// fetch for it becomes stale.
func (c *Client) CloseConversation() {
	c.rec.Close()
}

// Messages returns the reconciled log of the open conversation.
func (c *Client) Messages() []core.Message {
	return c.rec.Messages()
}

// Inbox returns the aggregated summaries, newest first.
func (c *Client) Inbox() []core.ConversationSummary {
	return c.agg.Summaries()
}

// OnConversationRefresh registers the UI refresh signal for the open
// conversation's log.
func (c *Client) OnConversationRefresh(fn func()) {
	c.rec.SetOnChange(fn)
}

// OnInboxRefresh registers the UI refresh signal for the inbox.
func (c *Client) OnInboxRefresh(fn func()) {
	c.agg.SetOnChange(fn)
}

// MarkRead marks the conversation with otherID as read and resets its unread
// count. The count is reset, never decremented.
func (c *Client) MarkRead(ctx context.Context, otherID int64) error {
	if _, err := c.rest.MarkRead(ctx, c.userID, otherID); err != nil {
		return fmt.Errorf("mark read: %w", err)
	}
	c.agg.ResetUnread(otherID)

	if s, ok := c.agg.Summary(otherID); ok {
		c.persistSummaries(ctx, []core.ConversationSummary{s})
	}
	return nil
}

// handleIncoming feeds a pushed message into both consumers of the event
// stream: the open conversation's log and the inbox.
func (c *Client) handleIncoming(ev core.Event) {
	c.rec.Apply(ev.Message)
	c.agg.Apply(ev.Message)
	c.persistMessage(context.Background(), ev.Message)
	if counterpart, ok := ev.Message.Counterpart(c.userID); ok {
		if s, found := c.agg.Summary(counterpart); found {
			c.persistSummaries(context.Background(), []core.ConversationSummary{s})
		}
	}
}

// handleEcho resolves the pending socket send with its canonical record and
// then treats the echo like any other live event.
func (c *Client) handleEcho(ev core.Event) {
	c.sends.resolve(ev.Message)
	c.handleIncoming(ev)
}

func (c *Client) handleSendError(ev core.Event) {
	msg := "send rejected"
	if ev.Error != nil {
		msg = ev.Error.Message
	}
	c.sends.fail(errors.New(msg))
}

func (c *Client) persistMessage(ctx context.Context, m core.Message) {
	if c.cache == nil {
		return
	}
	if err := c.cache.SaveMessage(ctx, m); err != nil {
		c.log.Warn().Err(err).Int64("id", m.ID).Msg("cache message write failed")
	}
}

func (c *Client) persistSummaries(ctx context.Context, list []core.ConversationSummary) {
	if c.cache == nil {
		return
	}
	for _, s := range list {
		if err := c.cache.SaveSummary(ctx, s); err != nil {
			c.log.Warn().Err(err).Int64("counterpart", s.CounterpartID).Msg("cache summary write failed")
		}
	}
}
