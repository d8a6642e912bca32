package proto

import (
	"encoding/json"
	"testing"
	"time"
)

func TestDecodeMessageRoundTrip(t *testing.T) {
	raw := json.RawMessage(`{
		"id": 42,
		"sender_id": 1,
		"receiver_id": 2,
		"content": "hello",
		"created_at": "2026-03-01T10:00:00Z",
		"is_read": false
	}`)

	m, err := DecodeMessage(raw)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if m.ID != 42 || m.SenderID != 1 || m.ReceiverID != 2 || m.Content != "hello" {
		t.Fatalf("decoded message: %+v", m)
	}
	if !m.CreatedAt.Equal(time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)) {
		t.Fatalf("created_at = %v", m.CreatedAt)
	}
}

func TestDecodeMessageRejectsMissingIdentity(t *testing.T) {
	cases := map[string]string{
		"missing id":       `{"sender_id":1,"receiver_id":2,"content":"x"}`,
		"missing sender":   `{"id":1,"receiver_id":2,"content":"x"}`,
		"missing receiver": `{"id":1,"sender_id":2,"content":"x"}`,
		"not json":         `nope`,
	}

	for name, raw := range cases {
		if _, err := DecodeMessage(json.RawMessage(raw)); err == nil {
			t.Errorf("%s: decode accepted malformed payload", name)
		}
	}
}
