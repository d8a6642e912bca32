package core

import (
	"sort"
	"sync"

	"github.com/rs/zerolog"
)

// LoadState tracks the reconciler's progress for the open conversation.
type LoadState int

const (
	// LoadIdle means no conversation is open.
	LoadIdle LoadState = iota
	// LoadLoading means the history fetch for the open conversation has not
	// resolved yet; live events are buffered, not applied.
	LoadLoading
	// LoadReady means history is seeded and live events apply directly.
	LoadReady
)

// Reconciler merges a REST history fetch and a stream of live events into one
// deduplicated log for the currently open conversation, ordered ascending by
// (CreatedAt, ID) regardless of which channel delivered each message first.
//
// Each Open is assigned a monotonically increasing generation id. A history
// response presented with a stale generation is discarded entirely, so a user
// who switches conversations faster than responses return never has an old
// fetch overwrite a newer conversation's state.
type Reconciler struct {
	mu  sync.Mutex
	log *zerolog.Logger

	onChange func()

	key        ConversationKey
	open       bool
	state      LoadState
	generation uint64

	messages []Message
	seen     map[int64]struct{}
	buffer   []Message
}

// NewReconciler constructs an idle reconciler.
func NewReconciler(logger *zerolog.Logger) *Reconciler {
	return &Reconciler{
		log:  logger,
		seen: make(map[int64]struct{}),
	}
}

// SetOnChange registers the refresh signal. It fires exactly once per batch
// of changes (history seed, buffer drain, or single live insert) and never
// for a no-op duplicate.
func (r *Reconciler) SetOnChange(fn func()) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.onChange = fn
}

// Open starts a load for the given conversation and returns its generation
// id, which the caller must present back to SeedHistory. Opening a different
// conversation discards all state of the previous one. Re-opening the same
// conversation while its load is still unresolved (the retry path) keeps the
// arrival buffer so no live event is lost across a failed fetch.
func (r *Reconciler) Open(key ConversationKey) uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()

	retry := r.open && r.key == key && r.state == LoadLoading
	if !retry {
		r.messages = nil
		r.buffer = nil
		r.seen = make(map[int64]struct{})
	}

	r.key = key
	r.open = true
	r.state = LoadLoading
	r.generation++
	return r.generation
}

// Close discards the open conversation. A history response still in flight
// for it becomes stale and will be rejected by SeedHistory.
func (r *Reconciler) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.open = false
	r.state = LoadIdle
	r.messages = nil
	r.buffer = nil
	r.seen = make(map[int64]struct{})
}

// SeedHistory installs the fetched history for the load identified by gen,
// then drains the arrival buffer, dropping anything whose id the history
// already contains (a sender's own optimistic echo, or server rebroadcast).
// Returns ErrStaleGeneration if a newer Open superseded this load; the
// response must then be discarded without touching the log.
func (r *Reconciler) SeedHistory(gen uint64, history []Message) error {
	r.mu.Lock()

	if !r.open || gen != r.generation {
		r.mu.Unlock()
		r.log.Debug().
			Uint64("stale_gen", gen).
			Uint64("current_gen", r.generation).
			Msg("discarding stale history response")
		return ErrStaleGeneration
	}

	r.messages = r.messages[:0]
	r.seen = make(map[int64]struct{})
	for _, m := range history {
		if _, dup := r.seen[m.ID]; dup {
			continue
		}
		r.messages = append(r.messages, m)
		r.seen[m.ID] = struct{}{}
	}

	for _, m := range r.buffer {
		if _, dup := r.seen[m.ID]; dup {
			continue
		}
		r.messages = append(r.messages, m)
		r.seen[m.ID] = struct{}{}
	}
	r.buffer = nil

	r.sortLocked()
	r.state = LoadReady
	notify := r.onChange
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
	return nil
}

// Apply feeds one live message into the open conversation. Messages for
// other conversations are ignored. While the history fetch is unresolved the
// message is buffered; once ready it is inserted unless its id is already
// present. Returns true only when the log visibly changed.
func (r *Reconciler) Apply(m Message) bool {
	r.mu.Lock()

	if !r.open || !r.key.Matches(m) {
		r.mu.Unlock()
		return false
	}

	if r.state == LoadLoading {
		r.buffer = append(r.buffer, m)
		r.mu.Unlock()
		return false
	}

	if _, dup := r.seen[m.ID]; dup {
		r.mu.Unlock()
		return false
	}

	r.messages = append(r.messages, m)
	r.seen[m.ID] = struct{}{}
	r.sortLocked()
	notify := r.onChange
	r.mu.Unlock()

	if notify != nil {
		notify()
	}
	return true
}

// Messages returns a copy of the reconciled log in display order.
func (r *Reconciler) Messages() []Message {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Message, len(r.messages))
	copy(out, r.messages)
	return out
}

// State returns the current load state.
func (r *Reconciler) State() LoadState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Key returns the open conversation's key and whether one is open.
func (r *Reconciler) Key() (ConversationKey, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.key, r.open
}

func (r *Reconciler) sortLocked() {
	sort.SliceStable(r.messages, func(i, j int) bool {
		return r.messages[i].Before(r.messages[j])
	})
}
