package conn

import (
	"encoding/json"
	"sync"

	"github.com/rs/zerolog"

	"github.com/edusphere/chatsync/internal/core"
	"github.com/edusphere/chatsync/internal/proto"
)

// State of the shared realtime connection.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Sink receives transport notifications. The Manager implements it.
type Sink interface {
	// TransportConnected fires on every successful (re)connect.
	TransportConnected()
	// TransportDown fires when the connection drops. The transport keeps
	// retrying on its own unless it was explicitly closed.
	TransportDown(err error)
	// TransportEvent delivers one server-pushed event frame.
	TransportEvent(event string, data json.RawMessage)
}

// Transport is the physical realtime channel. Open begins connecting and
// reports progress through the sink; Close stops it for good.
type Transport interface {
	Open(sink Sink) error
	Close() error
	Send(event string, payload any) error
}

// Manager owns exactly one transport connection and shares it between any
// number of consumers through reference counting: the connection opens on the
// first Acquire and closes only when the last consumer releases it. On every
// connected transition it (re-)registers the last known user id with the
// server, which holds no routing state across disconnects.
type Manager struct {
	mu  sync.Mutex
	log *zerolog.Logger
	bus *core.Bus

	transport Transport
	refs      int
	state     State
	userID    int64
}

// NewManager wires a transport to the event bus.
func NewManager(t Transport, bus *core.Bus, logger *zerolog.Logger) *Manager {
	return &Manager{
		log:       logger,
		bus:       bus,
		transport: t,
	}
}

// Acquire registers one more consumer of the shared connection and returns
// the current state. The first consumer triggers the connect; for the rest
// the call is a no-op besides the count. Registration with userID is sent
// once the transport reports connected.
func (m *Manager) Acquire(userID int64) State {
	m.mu.Lock()

	reRegister := m.state == StateConnected && userID != m.userID
	m.userID = userID
	m.refs++
	first := m.refs == 1

	if first && m.state == StateDisconnected {
		m.state = StateConnecting
	}
	state := m.state
	m.mu.Unlock()

	if first && state == StateConnecting {
		if err := m.transport.Open(m); err != nil {
			m.log.Warn().Err(err).Msg("transport open failed")
			m.publishConnectionError(err)
		}
	}
	if reRegister {
		m.sendRegister(userID)
	}
	return state
}

// Release drops one consumer. When the count reaches zero the transport is
// closed; an in-flight reconnect is abandoned.
func (m *Manager) Release() {
	m.mu.Lock()
	if m.refs > 0 {
		m.refs--
	}
	last := m.refs == 0
	if last {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	if last {
		if err := m.transport.Close(); err != nil {
			m.log.Warn().Err(err).Msg("transport close failed")
		}
	}
}

// State returns a snapshot of the connection state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Send pushes one event over the socket. It returns core.ErrNotConnected if
// the connection is not established; network-level write failures are not
// returned synchronously, they surface on the connection_error channel.
func (m *Manager) Send(event string, payload any) error {
	m.mu.Lock()
	connected := m.state == StateConnected
	m.mu.Unlock()

	if !connected {
		return core.ErrNotConnected
	}
	if err := m.transport.Send(event, payload); err != nil {
		m.log.Warn().Err(err).Str("event", event).Msg("socket send failed")
		m.publishConnectionError(err)
	}
	return nil
}

// TransportConnected implements Sink.
func (m *Manager) TransportConnected() {
	m.mu.Lock()
	m.state = StateConnected
	userID := m.userID
	m.mu.Unlock()

	m.log.Debug().Int64("user_id", userID).Msg("transport connected, registering")
	if userID != 0 {
		m.sendRegister(userID)
	}
	m.bus.Publish(core.Event{Kind: core.EventConnected})
}

// TransportDown implements Sink.
func (m *Manager) TransportDown(err error) {
	m.mu.Lock()
	if m.refs > 0 {
		// Unexpected drop: the transport retries with its own backoff.
		m.state = StateConnecting
	} else {
		m.state = StateDisconnected
	}
	m.mu.Unlock()

	m.bus.Publish(core.Event{Kind: core.EventDisconnected})
	if err != nil {
		m.publishConnectionError(err)
	}
}

// TransportEvent implements Sink. Malformed payloads are dropped with a log,
// never surfaced to consumers.
func (m *Manager) TransportEvent(event string, data json.RawMessage) {
	switch event {
	case proto.EventNewMessage, proto.EventMessageSent:
		msg, err := proto.DecodeMessage(data)
		if err != nil {
			m.log.Warn().Err(err).Str("event", event).Msg("dropping malformed message event")
			return
		}
		kind := core.EventNewMessage
		if event == proto.EventMessageSent {
			kind = core.EventMessageSent
		}
		m.bus.Publish(core.Event{Kind: kind, Message: msg})

	case proto.EventMessageError:
		var payload proto.ErrorData
		if err := json.Unmarshal(data, &payload); err != nil {
			m.log.Warn().Err(err).Msg("dropping malformed message_error event")
			return
		}
		m.bus.Publish(core.Event{
			Kind:  core.EventMessageError,
			Error: &core.CoreError{Code: core.ErrCodeSendFailed, Message: payload.Error},
		})

	default:
		m.log.Debug().Str("event", event).Msg("ignoring unknown socket event")
	}
}

func (m *Manager) sendRegister(userID int64) {
	if err := m.transport.Send(proto.EventRegister, proto.RegisterData{UserID: userID}); err != nil {
		m.log.Warn().Err(err).Msg("register send failed")
		m.publishConnectionError(err)
	}
}

func (m *Manager) publishConnectionError(err error) {
	m.bus.Publish(core.Event{
		Kind:  core.EventConnectionError,
		Error: &core.CoreError{Code: core.ErrCodeConnection, Message: err.Error()},
	})
}
