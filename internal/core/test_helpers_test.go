package core

import (
	"testing"
	"time"
)

func msg(id, from, to, at int64, text string) Message {
	return Message{
		ID:         id,
		SenderID:   from,
		ReceiverID: to,
		Content:    text,
		CreatedAt:  time.Unix(at, 0).UTC(),
	}
}

func ids(ms []Message) []int64 {
	out := make([]int64, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func wantIDs(t *testing.T, ms []Message, want ...int64) {
	t.Helper()

	got := ids(ms)
	if len(got) != len(want) {
		t.Fatalf("log ids = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("log ids = %v, want %v", got, want)
		}
	}
}
