package proto

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/edusphere/chatsync/internal/core"
)

// Envelope is the frame exchanged over the realtime channel in both
// directions: an event name plus a JSON payload.
type Envelope struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data,omitempty"`
}

const (
	// client -> server
	EventRegister    = "register"
	EventSendMessage = "send_message"

	// server -> client
	EventNewMessage   = "new_message"
	EventMessageSent  = "message_sent"
	EventMessageError = "message_error"
)

// RegisterData binds the connection to a user id so the server can route
// messages to it. It must be re-sent after every reconnect; the server holds
// no routing state across disconnects.
type RegisterData struct {
	UserID int64 `json:"user_id"`
}

// SendMessageData is a client-originated message over the socket path.
type SendMessageData struct {
	SenderID   int64  `json:"sender_id"`
	ReceiverID int64  `json:"receiver_id"`
	Content    string `json:"content"`
}

// ErrorData carries a server-side send rejection.
type ErrorData struct {
	Error string `json:"error"`
}

// BackendMessage is the backend's message representation, shared by the REST
// endpoints and the socket events.
type BackendMessage struct {
	ID         int64     `json:"id"`
	SenderID   int64     `json:"sender_id"`
	ReceiverID int64     `json:"receiver_id"`
	Content    string    `json:"content"`
	CreatedAt  time.Time `json:"created_at"`
	IsRead     bool      `json:"is_read"`
}

// Conversation is one row of the backend's conversation list.
type Conversation struct {
	OtherUserID     int64     `json:"other_user_id"`
	LastMessage     string    `json:"last_message"`
	LastMessageTime time.Time `json:"last_message_time"`
	UnreadCount     int       `json:"unread_count"`
}

// MarkReadResponse is the body of the mark-read endpoint.
type MarkReadResponse struct {
	Message string `json:"message"`
	Count   int    `json:"count"`
}

var errMalformedMessage = errors.New("malformed message payload")

// Validate checks the fields a message cannot be reconciled without.
func (bm BackendMessage) Validate() error {
	if bm.ID == 0 || bm.SenderID == 0 || bm.ReceiverID == 0 {
		return errMalformedMessage
	}
	return nil
}

// ToMessage converts to the domain model.
func (bm BackendMessage) ToMessage() core.Message {
	return core.Message{
		ID:         bm.ID,
		SenderID:   bm.SenderID,
		ReceiverID: bm.ReceiverID,
		Content:    bm.Content,
		CreatedAt:  bm.CreatedAt,
		IsRead:     bm.IsRead,
	}
}

// FromMessage converts a domain message back to the wire shape.
func FromMessage(m core.Message) BackendMessage {
	return BackendMessage{
		ID:         m.ID,
		SenderID:   m.SenderID,
		ReceiverID: m.ReceiverID,
		Content:    m.Content,
		CreatedAt:  m.CreatedAt,
		IsRead:     m.IsRead,
	}
}

// ToSummary converts a conversation row to the domain model.
func (c Conversation) ToSummary() core.ConversationSummary {
	return core.ConversationSummary{
		CounterpartID:   c.OtherUserID,
		LastMessage:     c.LastMessage,
		LastMessageTime: c.LastMessageTime,
		UnreadCount:     c.UnreadCount,
	}
}

// DecodeMessage parses and validates a message payload from a socket event.
func DecodeMessage(data json.RawMessage) (core.Message, error) {
	var bm BackendMessage
	if err := json.Unmarshal(data, &bm); err != nil {
		return core.Message{}, err
	}
	if err := bm.Validate(); err != nil {
		return core.Message{}, err
	}
	return bm.ToMessage(), nil
}
