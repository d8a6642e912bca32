// Package devserver is an in-memory stand-in for the learning-platform
// messaging backend: the four REST endpoints plus the realtime socket
// protocol. It exists for local development and end-to-end tests of the sync
// core; it is not a product server.
package devserver

import (
	"context"
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/edusphere/chatsync/internal/proto"
)

// Server holds the in-memory message log and the registered socket clients.
type Server struct {
	log *zerolog.Logger

	mu       sync.Mutex
	nextID   int64
	messages []proto.BackendMessage
	clients  map[int64]*wsClient
}

type wsClient struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *wsClient) write(ctx context.Context, event string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	return wsjson.Write(ctx, c.conn, proto.Envelope{Event: event, Data: data})
}

// New constructs an empty dev backend.
func New(logger *zerolog.Logger) *Server {
	return &Server{
		log:     logger,
		clients: make(map[int64]*wsClient),
	}
}

// Router builds the gin engine with all routes mounted.
func (s *Server) Router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/health", func(c *gin.Context) { c.String(http.StatusOK, "ok") })
	r.GET("/conversations/:userId", s.conversations)
	r.GET("/messages/between/:idA/:idB", s.messagesBetween)
	r.POST("/messages", s.createMessage)
	r.PUT("/messages/mark-read/:userId/:otherUserId", s.markRead)
	r.GET("/ws", s.serveWS)

	return r
}

// Run serves the backend until context cancellation.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return <-errCh
	}
}

// GET /conversations/:userId
func (s *Server) conversations(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}

	s.mu.Lock()
	byCounterpart := make(map[int64]*proto.Conversation)
	for _, m := range s.messages {
		var counterpart int64
		switch userID {
		case m.SenderID:
			counterpart = m.ReceiverID
		case m.ReceiverID:
			counterpart = m.SenderID
		default:
			continue
		}

		row, exists := byCounterpart[counterpart]
		if !exists {
			row = &proto.Conversation{OtherUserID: counterpart}
			byCounterpart[counterpart] = row
		}
		if !m.CreatedAt.Before(row.LastMessageTime) {
			row.LastMessage = m.Content
			row.LastMessageTime = m.CreatedAt
		}
		if m.ReceiverID == userID && !m.IsRead {
			row.UnreadCount++
		}
	}
	s.mu.Unlock()

	out := make([]proto.Conversation, 0, len(byCounterpart))
	for _, row := range byCounterpart {
		out = append(out, *row)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].LastMessageTime.After(out[j].LastMessageTime)
	})
	c.JSON(http.StatusOK, out)
}

// GET /messages/between/:idA/:idB
func (s *Server) messagesBetween(c *gin.Context) {
	idA, ok := pathID(c, "idA")
	if !ok {
		return
	}
	idB, ok := pathID(c, "idB")
	if !ok {
		return
	}

	s.mu.Lock()
	out := make([]proto.BackendMessage, 0)
	for _, m := range s.messages {
		if (m.SenderID == idA && m.ReceiverID == idB) || (m.SenderID == idB && m.ReceiverID == idA) {
			out = append(out, m)
		}
	}
	s.mu.Unlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	c.JSON(http.StatusOK, out)
}

// POST /messages
//
// REST-origin messages are deliberately not echoed over the socket: the
// client inserts the returned record itself, and a socket echo would
// double-deliver it.
func (s *Server) createMessage(c *gin.Context) {
	var body proto.SendMessageData
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if body.SenderID == 0 || body.ReceiverID == 0 || body.Content == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "sender_id, receiver_id and content are required"})
		return
	}

	msg := s.store(body)
	c.JSON(http.StatusCreated, msg)
}

// PUT /messages/mark-read/:userId/:otherUserId
func (s *Server) markRead(c *gin.Context) {
	userID, ok := pathID(c, "userId")
	if !ok {
		return
	}
	otherID, ok := pathID(c, "otherUserId")
	if !ok {
		return
	}

	s.mu.Lock()
	count := 0
	for i, m := range s.messages {
		if m.SenderID == otherID && m.ReceiverID == userID && !m.IsRead {
			s.messages[i].IsRead = true
			count++
		}
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, proto.MarkReadResponse{Message: "marked read", Count: count})
}

// GET /ws
func (s *Server) serveWS(c *gin.Context) {
	conn, err := websocket.Accept(c.Writer, c.Request, &websocket.AcceptOptions{
		InsecureSkipVerify: true,
	})
	if err != nil {
		s.log.Warn().Err(err).Msg("ws accept failed")
		return
	}

	client := &wsClient{conn: conn}
	var userID int64

	defer func() {
		s.mu.Lock()
		if userID != 0 && s.clients[userID] == client {
			delete(s.clients, userID)
		}
		s.mu.Unlock()
		_ = conn.Close(websocket.StatusNormalClosure, "closing")
	}()

	ctx := c.Request.Context()
	for {
		var env proto.Envelope
		if err := wsjson.Read(ctx, conn, &env); err != nil {
			return
		}

		switch env.Event {
		case proto.EventRegister:
			var data proto.RegisterData
			if err := json.Unmarshal(env.Data, &data); err != nil || data.UserID == 0 {
				_ = client.write(ctx, proto.EventMessageError, proto.ErrorData{Error: "invalid register payload"})
				continue
			}
			s.mu.Lock()
			if userID != 0 {
				delete(s.clients, userID)
			}
			userID = data.UserID
			s.clients[userID] = client
			s.mu.Unlock()

		case proto.EventSendMessage:
			var data proto.SendMessageData
			if err := json.Unmarshal(env.Data, &data); err != nil || data.SenderID == 0 || data.ReceiverID == 0 {
				_ = client.write(ctx, proto.EventMessageError, proto.ErrorData{Error: "invalid message payload"})
				continue
			}

			msg := s.store(data)

			// Echo the canonical record to the sender, push to the receiver.
			if err := client.write(ctx, proto.EventMessageSent, msg); err != nil {
				s.log.Warn().Err(err).Msg("echo write failed")
			}
			s.mu.Lock()
			receiver := s.clients[data.ReceiverID]
			s.mu.Unlock()
			if receiver != nil && receiver != client {
				if err := receiver.write(ctx, proto.EventNewMessage, msg); err != nil {
					s.log.Warn().Err(err).Int64("to", data.ReceiverID).Msg("push write failed")
				}
			}

		default:
			s.log.Debug().Str("event", env.Event).Msg("ignoring unknown inbound event")
		}
	}
}

// Registered reports whether a socket client has registered as userID.
// Lets tests wait out the registration race before pushing messages.
func (s *Server) Registered(userID int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.clients[userID]
	return ok
}

func (s *Server) store(data proto.SendMessageData) proto.BackendMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	msg := proto.BackendMessage{
		ID:         s.nextID,
		SenderID:   data.SenderID,
		ReceiverID: data.ReceiverID,
		Content:    data.Content,
		CreatedAt:  time.Now().UTC(),
	}
	s.messages = append(s.messages, msg)
	return msg
}

func pathID(c *gin.Context, name string) (int64, bool) {
	id, err := strconv.ParseInt(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}
