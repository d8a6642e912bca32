package core

// EventKind is a notification delivered to subscribers through the Bus.
type EventKind int

const (
	// EventNewMessage notifies that a message addressed to the local user
	// arrived over the realtime channel.
	EventNewMessage EventKind = iota
	// EventMessageSent is the server's echo confirming the local user's own
	// socket send, carrying the canonical stored record.
	EventMessageSent
	// EventMessageError reports a server-side rejection of a socket send.
	EventMessageError
	// EventConnected fires when the realtime transport becomes established,
	// including after an automatic reconnect.
	EventConnected
	// EventDisconnected fires when the realtime transport drops.
	EventDisconnected
	// EventConnectionError reports a transport-level failure. These are
	// recoverable and never surfaced as a crash to consumers.
	EventConnectionError
)

// Event is delivered to Bus subscribers to describe what happened.
type Event struct {
	Kind    EventKind
	Message Message    // set for EventNewMessage and EventMessageSent
	Error   *CoreError // set for EventMessageError and EventConnectionError
}
