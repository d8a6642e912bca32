package core

import "time"

// Message is the domain model for a direct message between two users.
// Identity is the server-assigned ID; two records with the same ID are the
// same message regardless of which channel delivered them. A message is never
// mutated after creation.
type Message struct {
	ID         int64
	SenderID   int64
	ReceiverID int64
	Content    string
	CreatedAt  time.Time
	IsRead     bool
}

// Key returns the conversation key this message belongs to.
func (m Message) Key() ConversationKey {
	return NewConversationKey(m.SenderID, m.ReceiverID)
}

// Counterpart returns the other participant of the message relative to
// userID, and whether userID participates at all.
func (m Message) Counterpart(userID int64) (int64, bool) {
	switch userID {
	case m.SenderID:
		return m.ReceiverID, true
	case m.ReceiverID:
		return m.SenderID, true
	}
	return 0, false
}

// Before reports whether m sorts before other in display order, which is
// ascending by (CreatedAt, ID). The ID tiebreak keeps order deterministic for
// messages created within the backend's timestamp resolution.
func (m Message) Before(other Message) bool {
	if m.CreatedAt.Equal(other.CreatedAt) {
		return m.ID < other.ID
	}
	return m.CreatedAt.Before(other.CreatedAt)
}

// ConversationKey identifies one direct-message thread as the unordered pair
// of its participants. Lo is always the smaller user id.
type ConversationKey struct {
	Lo int64
	Hi int64
}

// NewConversationKey builds a key from two user ids in either order.
func NewConversationKey(a, b int64) ConversationKey {
	if a > b {
		a, b = b, a
	}
	return ConversationKey{Lo: a, Hi: b}
}

// Matches reports whether the message belongs to this conversation.
func (k ConversationKey) Matches(m Message) bool {
	return k == NewConversationKey(m.SenderID, m.ReceiverID)
}

// ConversationSummary is one row of the inbox: the latest message exchanged
// with a counterpart plus the local user's unread count.
type ConversationSummary struct {
	CounterpartID   int64
	LastMessage     string
	LastMessageTime time.Time
	UnreadCount     int
}
