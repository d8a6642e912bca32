package core

import (
	"testing"
	"time"
)

func TestAggregatorUpsertsOnNewerMessage(t *testing.T) {
	a := NewAggregator(1, nopLogger())

	a.Apply(msg(1, 2, 1, 100, "hello"))
	a.Apply(msg(2, 2, 1, 200, "newer"))

	rows := a.Summaries()
	if len(rows) != 1 {
		t.Fatalf("expected 1 row, got %d", len(rows))
	}
	if rows[0].LastMessage != "newer" || rows[0].UnreadCount != 2 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestAggregatorNeverRegresses(t *testing.T) {
	a := NewAggregator(1, nopLogger())

	a.Apply(msg(2, 2, 1, 200, "newest"))

	// Out-of-order and duplicate deliveries must not regress the preview or
	// bump the unread count a second time.
	if a.Apply(msg(1, 2, 1, 100, "stale")) {
		t.Fatal("older event reported as applied")
	}
	if a.Apply(msg(2, 2, 1, 200, "newest")) {
		t.Fatal("duplicate event reported as applied")
	}

	rows := a.Summaries()
	if rows[0].LastMessage != "newest" {
		t.Fatalf("preview regressed to %q", rows[0].LastMessage)
	}
	if rows[0].UnreadCount != 1 {
		t.Fatalf("unread count = %d, want 1", rows[0].UnreadCount)
	}
}

func TestAggregatorOutgoingDoesNotCountUnread(t *testing.T) {
	a := NewAggregator(1, nopLogger())

	a.Apply(msg(1, 1, 2, 100, "sent by me"))

	rows := a.Summaries()
	if rows[0].CounterpartID != 2 || rows[0].UnreadCount != 0 {
		t.Fatalf("unexpected row: %+v", rows[0])
	}
}

func TestAggregatorResetUnread(t *testing.T) {
	a := NewAggregator(1, nopLogger())

	a.Apply(msg(1, 2, 1, 100, "one"))
	a.Apply(msg(2, 2, 1, 200, "two"))
	a.ResetUnread(2)

	rows := a.Summaries()
	if rows[0].UnreadCount != 0 {
		t.Fatalf("unread count after reset = %d", rows[0].UnreadCount)
	}

	// A reset is not a decrement: the next incoming message counts again.
	a.Apply(msg(3, 2, 1, 300, "three"))
	if got := a.Summaries()[0].UnreadCount; got != 1 {
		t.Fatalf("unread count after new message = %d, want 1", got)
	}
}

func TestAggregatorSeedDoesNotRollBackLiveRows(t *testing.T) {
	a := NewAggregator(1, nopLogger())

	// A live event lands before the slower list fetch resolves.
	a.Apply(msg(5, 2, 1, 500, "live"))

	a.Seed([]ConversationSummary{
		{CounterpartID: 2, LastMessage: "from fetch", LastMessageTime: time.Unix(300, 0).UTC(), UnreadCount: 4},
		{CounterpartID: 3, LastMessage: "other", LastMessageTime: time.Unix(100, 0).UTC(), UnreadCount: 1},
	})

	rows := a.Summaries()
	if len(rows) != 2 {
		t.Fatalf("expected 2 rows, got %d", len(rows))
	}
	if rows[0].CounterpartID != 2 || rows[0].LastMessage != "live" {
		t.Fatalf("seed rolled back the live row: %+v", rows[0])
	}
	if rows[1].CounterpartID != 3 || rows[1].LastMessage != "other" {
		t.Fatalf("seeded row missing: %+v", rows[1])
	}
}

func TestAggregatorSortsByRecency(t *testing.T) {
	a := NewAggregator(1, nopLogger())

	a.Apply(msg(1, 2, 1, 100, "old thread"))
	a.Apply(msg(2, 3, 1, 300, "recent thread"))
	a.Apply(msg(3, 4, 1, 200, "middle thread"))

	rows := a.Summaries()
	want := []int64{3, 4, 2}
	for i, row := range rows {
		if row.CounterpartID != want[i] {
			t.Fatalf("order %v, want counterparts %v", rows, want)
		}
	}
}

func TestAggregatorIgnoresForeignMessages(t *testing.T) {
	a := NewAggregator(1, nopLogger())

	if a.Apply(msg(1, 5, 6, 100, "not mine")) {
		t.Fatal("applied a message the local user does not participate in")
	}
	if len(a.Summaries()) != 0 {
		t.Fatal("foreign message created an inbox row")
	}
}

func TestAggregatorRefreshSignals(t *testing.T) {
	a := NewAggregator(1, nopLogger())

	refreshes := 0
	a.SetOnChange(func() { refreshes++ })

	a.Apply(msg(1, 2, 1, 100, "one"))       // change
	a.Apply(msg(1, 2, 1, 100, "one"))       // duplicate, no signal
	a.ResetUnread(2)                        // change
	a.ResetUnread(2)                        // already zero, no signal
	a.Seed(nil)                             // empty, no signal
	a.Apply(msg(2, 1, 2, 50, "older sent")) // out of order, no signal

	if refreshes != 2 {
		t.Fatalf("refresh count = %d, want 2", refreshes)
	}
}
