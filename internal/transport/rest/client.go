// Package rest is the HTTP client for the learning-platform messaging API.
package rest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/edusphere/chatsync/internal/core"
	"github.com/edusphere/chatsync/internal/proto"
)

// Client talks JSON over HTTP to the messaging backend. Every request runs
// under a bounded timeout; nothing blocks indefinitely.
type Client struct {
	baseURL string
	http    *http.Client
	log     *zerolog.Logger
}

// New builds a REST client for the given base URL.
func New(baseURL string, timeout time.Duration, logger *zerolog.Logger) *Client {
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
		log:     logger,
	}
}

// Conversations fetches the inbox list for userID.
// GET /conversations/{userId}
func (c *Client) Conversations(ctx context.Context, userID int64) ([]core.ConversationSummary, error) {
	var rows []proto.Conversation
	if err := c.get(ctx, fmt.Sprintf("/conversations/%d", userID), &rows); err != nil {
		return nil, err
	}

	out := make([]core.ConversationSummary, 0, len(rows))
	for _, r := range rows {
		out = append(out, r.ToSummary())
	}
	return out, nil
}

// MessagesBetween fetches the full history of one conversation, ascending by
// created_at.
// GET /messages/between/{idA}/{idB}
func (c *Client) MessagesBetween(ctx context.Context, idA, idB int64) ([]core.Message, error) {
	var rows []proto.BackendMessage
	if err := c.get(ctx, fmt.Sprintf("/messages/between/%d/%d", idA, idB), &rows); err != nil {
		return nil, err
	}

	out := make([]core.Message, 0, len(rows))
	for _, r := range rows {
		if err := r.Validate(); err != nil {
			c.log.Warn().Int64("id", r.ID).Msg("dropping malformed history row")
			continue
		}
		out = append(out, r.ToMessage())
	}
	return out, nil
}

// CreateMessage stores a message through the REST path and returns the
// canonical record. Used as the fallback when the socket is not connected.
// POST /messages
func (c *Client) CreateMessage(ctx context.Context, senderID, receiverID int64, content string) (core.Message, error) {
	body := proto.SendMessageData{SenderID: senderID, ReceiverID: receiverID, Content: content}

	var row proto.BackendMessage
	if err := c.post(ctx, "/messages", body, &row); err != nil {
		return core.Message{}, err
	}
	if err := row.Validate(); err != nil {
		return core.Message{}, fmt.Errorf("create message response: %w", err)
	}
	return row.ToMessage(), nil
}

// MarkRead marks every message from otherUserID to userID as read and
// returns how many were affected.
// PUT /messages/mark-read/{userId}/{otherUserId}
func (c *Client) MarkRead(ctx context.Context, userID, otherUserID int64) (int, error) {
	var resp proto.MarkReadResponse
	if err := c.do(ctx, http.MethodPut, fmt.Sprintf("/messages/mark-read/%d/%d", userID, otherUserID), nil, &resp); err != nil {
		return 0, err
	}
	return resp.Count, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	return c.do(ctx, http.MethodGet, path, nil, out)
}

func (c *Client) post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("marshal request: %w", err)
		}
		reader = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// Read a little of the body for diagnostics, then discard.
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 256))
		return fmt.Errorf("%s %s: status %d: %s", method, path, resp.StatusCode, strings.TrimSpace(string(snippet)))
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}
