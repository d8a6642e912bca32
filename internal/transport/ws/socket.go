// Package ws implements the realtime transport over a websocket connection.
// It reconnects on its own with capped exponential backoff and reports every
// transition to the owning connection manager.
package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/rs/zerolog"

	"github.com/edusphere/chatsync/internal/conn"
	"github.com/edusphere/chatsync/internal/proto"
)

// Options configures the socket transport.
type Options struct {
	URL            string
	ConnectTimeout time.Duration

	// Reconnect backoff bounds. MaxAttempts == 0 retries forever.
	ReconnectMinDelay time.Duration
	ReconnectMaxDelay time.Duration
	MaxAttempts       int
}

var errNotEstablished = errors.New("socket not established")

// Socket is a conn.Transport over a single websocket. Each connect attempt
// dials a fresh connection; a dropped connection is redialed until Close.
type Socket struct {
	opts Options
	log  *zerolog.Logger

	mu      sync.Mutex
	conn    *websocket.Conn
	cancel  context.CancelFunc
	running bool
}

// New builds a socket transport. Zero option fields get defaults.
func New(opts Options, logger *zerolog.Logger) *Socket {
	if opts.ConnectTimeout == 0 {
		opts.ConnectTimeout = 10 * time.Second
	}
	if opts.ReconnectMinDelay == 0 {
		opts.ReconnectMinDelay = 500 * time.Millisecond
	}
	if opts.ReconnectMaxDelay == 0 {
		opts.ReconnectMaxDelay = 30 * time.Second
	}
	return &Socket{opts: opts, log: logger}
}

// Open starts the connect/read loop. Calling it while already running is a
// no-op.
func (s *Socket) Open(sink conn.Sink) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return nil
	}
	s.running = true

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	go s.run(ctx, sink)
	return nil
}

// Close stops reconnecting and tears down the current connection.
func (s *Socket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.running {
		return nil
	}
	s.running = false
	s.cancel()
	if s.conn != nil {
		_ = s.conn.Close(websocket.StatusNormalClosure, "closing")
		s.conn = nil
	}
	return nil
}

// Send writes one event frame on the current connection.
func (s *Socket) Send(event string, payload any) error {
	s.mu.Lock()
	c := s.conn
	s.mu.Unlock()

	if c == nil {
		return errNotEstablished
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal %s payload: %w", event, err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.opts.ConnectTimeout)
	defer cancel()
	return wsjson.Write(ctx, c, proto.Envelope{Event: event, Data: data})
}

func (s *Socket) run(ctx context.Context, sink conn.Sink) {
	attempt := 0
	for {
		dialCtx, cancel := context.WithTimeout(ctx, s.opts.ConnectTimeout)
		c, _, err := websocket.Dial(dialCtx, s.opts.URL, nil)
		cancel()

		if err != nil {
			if ctx.Err() != nil {
				return
			}
			attempt++
			s.log.Debug().Err(err).Int("attempt", attempt).Msg("dial failed")
			if s.opts.MaxAttempts > 0 && attempt >= s.opts.MaxAttempts {
				sink.TransportDown(fmt.Errorf("giving up after %d attempts: %w", attempt, err))
				return
			}
			sink.TransportDown(err)
			if !s.sleep(ctx, attempt) {
				return
			}
			continue
		}

		s.mu.Lock()
		if !s.running {
			s.mu.Unlock()
			_ = c.Close(websocket.StatusNormalClosure, "closing")
			return
		}
		s.conn = c
		s.mu.Unlock()

		attempt = 0
		sink.TransportConnected()

		readErr := s.readLoop(ctx, c, sink)

		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		_ = c.Close(websocket.StatusNormalClosure, "closing")

		if ctx.Err() != nil {
			return
		}

		switch websocket.CloseStatus(readErr) {
		case websocket.StatusNormalClosure, websocket.StatusGoingAway:
			readErr = nil
		}
		sink.TransportDown(readErr)

		attempt++
		if !s.sleep(ctx, attempt) {
			return
		}
	}
}

func (s *Socket) readLoop(ctx context.Context, c *websocket.Conn, sink conn.Sink) error {
	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, c, &env); err != nil {
			return err
		}
		sink.TransportEvent(env.Event, env.Data)
	}
}

// sleep waits out the backoff delay for the given attempt. Returns false if
// the context was cancelled while waiting.
func (s *Socket) sleep(ctx context.Context, attempt int) bool {
	delay := s.opts.ReconnectMinDelay << (attempt - 1)
	if delay > s.opts.ReconnectMaxDelay || delay <= 0 {
		delay = s.opts.ReconnectMaxDelay
	}
	// Jitter to avoid thundering herds of reconnecting clients.
	delay += time.Duration(rand.Int63n(int64(delay)/4 + 1))

	select {
	case <-ctx.Done():
		return false
	case <-time.After(delay):
		return true
	}
}
