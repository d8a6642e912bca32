package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *Client {
	t.Helper()

	ts := httptest.NewServer(handler)
	t.Cleanup(ts.Close)

	logger := zerolog.Nop()
	return New(ts.URL, time.Second, &logger)
}

func TestConversations(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/conversations/7" {
			t.Errorf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"other_user_id":2,"last_message":"hi","last_message_time":"2026-03-01T10:00:00Z","unread_count":3}]`))
	})

	rows, err := c.Conversations(context.Background(), 7)
	if err != nil {
		t.Fatalf("conversations: %v", err)
	}
	if len(rows) != 1 || rows[0].CounterpartID != 2 || rows[0].UnreadCount != 3 {
		t.Fatalf("rows: %+v", rows)
	}
}

func TestMessagesBetweenSkipsMalformedRows(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[
			{"id":1,"sender_id":1,"receiver_id":2,"content":"ok","created_at":"2026-03-01T10:00:00Z"},
			{"id":0,"sender_id":1,"receiver_id":2,"content":"no id","created_at":"2026-03-01T10:00:01Z"}
		]`))
	})

	msgs, err := c.MessagesBetween(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("messages: %v", err)
	}
	if len(msgs) != 1 || msgs[0].ID != 1 {
		t.Fatalf("messages: %+v", msgs)
	}
}

func TestCreateMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"id":5,"sender_id":1,"receiver_id":2,"content":"hello","created_at":"2026-03-01T10:00:00Z"}`))
	})

	msg, err := c.CreateMessage(context.Background(), 1, 2, "hello")
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if msg.ID != 5 || msg.Content != "hello" {
		t.Fatalf("message: %+v", msg)
	}
}

func TestMarkRead(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPut || r.URL.Path != "/messages/mark-read/1/2" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"message":"marked read","count":4}`))
	})

	count, err := c.MarkRead(context.Background(), 1, 2)
	if err != nil {
		t.Fatalf("mark read: %v", err)
	}
	if count != 4 {
		t.Fatalf("count = %d, want 4", count)
	}
}

func TestErrorStatusSurfaces(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	})

	if _, err := c.Conversations(context.Background(), 7); err == nil {
		t.Fatal("expected error for 500 response")
	}
}
