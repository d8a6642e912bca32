package client

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/edusphere/chatsync/internal/core"
	"github.com/edusphere/chatsync/internal/proto"
)

var errEchoTimeout = errors.New("timed out waiting for send confirmation")

// Send delivers exactly one canonical message for one user action. The path
// is chosen once, from a single snapshot of the connection state: connected
// sends over the socket and awaits the message_sent echo; disconnected falls
// back to the REST create and inserts the returned record directly, since no
// echo arrives for that path. The two paths are never both taken for one
// attempt. On failure the user's content rides back inside SendFailure so
// the compose field can be restored.
func (c *Client) Send(ctx context.Context, otherID int64, content string) (core.Message, error) {
	payload := proto.SendMessageData{
		SenderID:   c.userID,
		ReceiverID: otherID,
		Content:    content,
	}

	pending := c.sends.add(payload)

	err := c.mgr.Send(proto.EventSendMessage, payload)
	switch {
	case errors.Is(err, core.ErrNotConnected):
		c.sends.remove(pending)
		return c.sendViaREST(ctx, otherID, content)
	case err != nil:
		c.sends.remove(pending)
		return core.Message{}, &core.SendFailure{Content: content, Err: err}
	}

	timeout := c.cfg.RequestTimeout
	if timeout == 0 {
		timeout = 15 * time.Second
	}
	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case res := <-pending.done:
		if res.err != nil {
			return core.Message{}, &core.SendFailure{Content: content, Err: res.err}
		}
		return res.msg, nil
	case <-ctx.Done():
		c.sends.remove(pending)
		return core.Message{}, &core.SendFailure{Content: content, Err: ctx.Err()}
	case <-timer.C:
		c.sends.remove(pending)
		return core.Message{}, &core.SendFailure{Content: content, Err: errEchoTimeout}
	}
}

func (c *Client) sendViaREST(ctx context.Context, otherID int64, content string) (core.Message, error) {
	msg, err := c.rest.CreateMessage(ctx, c.userID, otherID, content)
	if err != nil {
		return core.Message{}, &core.SendFailure{Content: content, Err: err}
	}

	// No socket echo follows a REST-origin send; apply the canonical record
	// here or it would never reach the log.
	c.rec.Apply(msg)
	c.agg.Apply(msg)
	c.persistMessage(ctx, msg)
	return msg, nil
}

type sendResult struct {
	msg core.Message
	err error
}

type pendingSend struct {
	payload proto.SendMessageData
	done    chan sendResult
}

// pendingSends correlates message_sent echoes and message_error events with
// in-flight socket sends, oldest first.
type pendingSends struct {
	mu   sync.Mutex
	list []*pendingSend
}

func newPendingSends() *pendingSends {
	return &pendingSends{}
}

func (p *pendingSends) add(payload proto.SendMessageData) *pendingSend {
	ps := &pendingSend{
		payload: payload,
		done:    make(chan sendResult, 1),
	}
	p.mu.Lock()
	p.list = append(p.list, ps)
	p.mu.Unlock()
	return ps
}

func (p *pendingSends) remove(ps *pendingSend) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.list {
		if cur == ps {
			p.list = append(p.list[:i:i], p.list[i+1:]...)
			return
		}
	}
}

// resolve completes the oldest pending send matching the echoed record.
func (p *pendingSends) resolve(msg core.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for i, cur := range p.list {
		if cur.payload.SenderID == msg.SenderID &&
			cur.payload.ReceiverID == msg.ReceiverID &&
			cur.payload.Content == msg.Content {
			cur.done <- sendResult{msg: msg}
			p.list = append(p.list[:i:i], p.list[i+1:]...)
			return
		}
	}
}

// fail completes the oldest pending send with an error; message_error events
// carry no message identity to match on.
func (p *pendingSends) fail(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.list) == 0 {
		return
	}
	cur := p.list[0]
	p.list = p.list[1:]
	cur.done <- sendResult{err: err}
}
