package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// Aggregator maintains the inbox's per-counterpart summary map for one local
// user. Live events upsert a counterpart's row only when strictly newer than
// what is displayed, so an out-of-order or duplicate event never regresses a
// preview. Unread counts only grow on new incoming messages and are reset,
// never decremented, by an explicit mark-as-read.
type Aggregator struct {
	mu  sync.Mutex
	log *zerolog.Logger

	userID    int64
	summaries map[int64]ConversationSummary
	onChange  func()
}

// NewAggregator constructs an empty inbox for the given local user.
func NewAggregator(userID int64, logger *zerolog.Logger) *Aggregator {
	return &Aggregator{
		log:       logger,
		userID:    userID,
		summaries: make(map[int64]ConversationSummary),
	}
}

// SetOnChange registers the refresh signal, fired once per visible change.
func (a *Aggregator) SetOnChange(fn func()) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onChange = fn
}

// Seed upserts a fetched conversation list into the map. The same
// never-regress rule as live events applies: a row already advanced past a
// seeded entry by a live event keeps its newer state, so a slow list fetch
// cannot roll the inbox back.
func (a *Aggregator) Seed(list []ConversationSummary) {
	a.mu.Lock()

	changed := false
	for _, s := range list {
		cur, ok := a.summaries[s.CounterpartID]
		if ok && cur.LastMessageTime.After(s.LastMessageTime) {
			continue
		}
		a.summaries[s.CounterpartID] = s
		changed = true
	}

	notify := a.onChange
	a.mu.Unlock()

	if changed && notify != nil {
		notify()
	}
}

// Apply feeds one live message into the inbox. Messages not involving the
// local user are ignored. Returns true only when the inbox visibly changed.
func (a *Aggregator) Apply(m Message) bool {
	counterpart, ok := m.Counterpart(a.userID)
	if !ok {
		return false
	}

	a.mu.Lock()

	cur, exists := a.summaries[counterpart]
	if exists && !m.CreatedAt.After(cur.LastMessageTime) {
		// Duplicate or out-of-order: the displayed preview stays put.
		a.mu.Unlock()
		return false
	}

	next := ConversationSummary{
		CounterpartID:   counterpart,
		LastMessage:     m.Content,
		LastMessageTime: m.CreatedAt,
		UnreadCount:     cur.UnreadCount,
	}
	if m.ReceiverID == a.userID {
		next.UnreadCount++
	}
	a.summaries[counterpart] = next

	notify := a.onChange
	a.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// ResetUnread zeroes the unread count for one counterpart after a
// mark-as-read action.
func (a *Aggregator) ResetUnread(counterpartID int64) {
	a.mu.Lock()

	cur, ok := a.summaries[counterpartID]
	if !ok || cur.UnreadCount == 0 {
		a.mu.Unlock()
		return
	}
	cur.UnreadCount = 0
	a.summaries[counterpartID] = cur

	notify := a.onChange
	a.mu.Unlock()

	if notify != nil {
		notify()
	}
}

// Summary returns one counterpart's row, if present.
func (a *Aggregator) Summary(counterpartID int64) (ConversationSummary, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	s, ok := a.summaries[counterpartID]
	return s, ok
}

// Summaries returns the inbox rows sorted by recency, newest first.
func (a *Aggregator) Summaries() []ConversationSummary {
	a.mu.Lock()
	out := make([]ConversationSummary, 0, len(a.summaries))
	for _, s := range a.summaries {
		out = append(out, s)
	}
	a.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].LastMessageTime.Equal(out[j].LastMessageTime) {
			return out[i].CounterpartID < out[j].CounterpartID
		}
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	return out
}
