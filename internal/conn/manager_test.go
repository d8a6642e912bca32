package conn

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"

	"github.com/edusphere/chatsync/internal/core"
	"github.com/edusphere/chatsync/internal/proto"
)

type sentFrame struct {
	event   string
	payload any
}

type fakeTransport struct {
	mu     sync.Mutex
	sink   Sink
	opens  int
	closes int
	sent   []sentFrame
}

func (f *fakeTransport) Open(sink Sink) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sink = sink
	f.opens++
	return nil
}

func (f *fakeTransport) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closes++
	return nil
}

func (f *fakeTransport) Send(event string, payload any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sentFrame{event: event, payload: payload})
	return nil
}

func (f *fakeTransport) frames(event string) []sentFrame {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []sentFrame
	for _, fr := range f.sent {
		if fr.event == event {
			out = append(out, fr)
		}
	}
	return out
}

func newTestManager() (*Manager, *fakeTransport, *core.Bus) {
	logger := zerolog.Nop()
	bus := core.NewBus()
	transport := &fakeTransport{}
	return NewManager(transport, bus, &logger), transport, bus
}

func TestManagerReferenceCounting(t *testing.T) {
	m, transport, _ := newTestManager()

	const n = 3
	for i := 0; i < n; i++ {
		m.Acquire(7)
	}
	if transport.opens != 1 {
		t.Fatalf("transport opened %d times, want 1", transport.opens)
	}

	for i := 0; i < n-1; i++ {
		m.Release()
	}
	if transport.closes != 0 {
		t.Fatal("transport closed while consumers remain")
	}

	m.Release()
	if transport.closes != 1 {
		t.Fatalf("transport closed %d times after last release, want 1", transport.closes)
	}
	if m.State() != StateDisconnected {
		t.Fatalf("state after last release = %v", m.State())
	}
}

func TestManagerRegistersOnConnect(t *testing.T) {
	m, transport, _ := newTestManager()

	m.Acquire(7)
	if got := transport.frames(proto.EventRegister); len(got) != 0 {
		t.Fatalf("register sent before transport connected: %v", got)
	}
	if m.State() != StateConnecting {
		t.Fatalf("state after acquire = %v, want connecting", m.State())
	}

	// Deferred registration fires on the connected transition.
	transport.sink.TransportConnected()

	regs := transport.frames(proto.EventRegister)
	if len(regs) != 1 {
		t.Fatalf("register frames = %d, want 1", len(regs))
	}
	if data, ok := regs[0].payload.(proto.RegisterData); !ok || data.UserID != 7 {
		t.Fatalf("register payload = %+v", regs[0].payload)
	}
	if m.State() != StateConnected {
		t.Fatalf("state after connect = %v", m.State())
	}
}

func TestManagerReRegistersOnReconnect(t *testing.T) {
	m, transport, _ := newTestManager()

	m.Acquire(7)
	transport.sink.TransportConnected()
	transport.sink.TransportDown(errors.New("connection reset"))

	if m.State() != StateConnecting {
		t.Fatalf("state after unexpected drop = %v, want connecting", m.State())
	}

	transport.sink.TransportConnected()
	if regs := transport.frames(proto.EventRegister); len(regs) != 2 {
		t.Fatalf("register frames after reconnect = %d, want 2", len(regs))
	}
}

func TestManagerSendRequiresConnection(t *testing.T) {
	m, transport, _ := newTestManager()

	m.Acquire(7)
	err := m.Send(proto.EventSendMessage, proto.SendMessageData{SenderID: 7, ReceiverID: 8, Content: "hi"})
	if !errors.Is(err, core.ErrNotConnected) {
		t.Fatalf("send while connecting = %v, want ErrNotConnected", err)
	}

	transport.sink.TransportConnected()
	if err := m.Send(proto.EventSendMessage, proto.SendMessageData{SenderID: 7, ReceiverID: 8, Content: "hi"}); err != nil {
		t.Fatalf("send while connected: %v", err)
	}
	if got := transport.frames(proto.EventSendMessage); len(got) != 1 {
		t.Fatalf("send frames = %d, want 1", len(got))
	}
}

func TestManagerPublishesDecodedMessageEvents(t *testing.T) {
	m, transport, bus := newTestManager()

	var got []core.Event
	bus.Subscribe(core.EventNewMessage, func(ev core.Event) { got = append(got, ev) })

	m.Acquire(7)
	transport.sink.TransportConnected()

	payload, _ := json.Marshal(proto.BackendMessage{ID: 5, SenderID: 8, ReceiverID: 7, Content: "hi"})
	transport.sink.TransportEvent(proto.EventNewMessage, payload)

	if len(got) != 1 || got[0].Message.ID != 5 || got[0].Message.SenderID != 8 {
		t.Fatalf("published events: %+v", got)
	}
}

func TestManagerDropsMalformedEvents(t *testing.T) {
	m, transport, bus := newTestManager()

	fired := 0
	bus.Subscribe(core.EventNewMessage, func(core.Event) { fired++ })

	m.Acquire(7)
	transport.sink.TransportConnected()

	// Missing id and sender: must be dropped, never published or thrown.
	transport.sink.TransportEvent(proto.EventNewMessage, json.RawMessage(`{"receiver_id":7,"content":"x"}`))
	transport.sink.TransportEvent(proto.EventNewMessage, json.RawMessage(`not json`))

	if fired != 0 {
		t.Fatalf("malformed events published %d times", fired)
	}
}

func TestManagerRoutesMessageErrors(t *testing.T) {
	m, transport, bus := newTestManager()

	var got []core.Event
	bus.Subscribe(core.EventMessageError, func(ev core.Event) { got = append(got, ev) })

	m.Acquire(7)
	transport.sink.TransportConnected()
	transport.sink.TransportEvent(proto.EventMessageError, json.RawMessage(`{"error":"receiver missing"}`))

	if len(got) != 1 || got[0].Error == nil || got[0].Error.Code != core.ErrCodeSendFailed {
		t.Fatalf("message_error events: %+v", got)
	}
	if got[0].Error.Message != "receiver missing" {
		t.Fatalf("error message = %q", got[0].Error.Message)
	}
}

func TestManagerConnectionErrorsAreRecoverable(t *testing.T) {
	m, transport, bus := newTestManager()

	var connErrs []core.Event
	bus.Subscribe(core.EventConnectionError, func(ev core.Event) { connErrs = append(connErrs, ev) })

	m.Acquire(7)
	transport.sink.TransportConnected()
	transport.sink.TransportDown(errors.New("broken pipe"))

	if len(connErrs) != 1 || connErrs[0].Error.Code != core.ErrCodeConnection {
		t.Fatalf("connection_error events: %+v", connErrs)
	}
	// The manager stays usable: the transport reconnects and state recovers.
	transport.sink.TransportConnected()
	if m.State() != StateConnected {
		t.Fatalf("state after recovery = %v", m.State())
	}
}
