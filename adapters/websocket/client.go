package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/norachat/agentic/domain"
	"github.com/norachat/agentic/usecase"
	"github.com/norachat/agentic/utils/log"
)

// Client is one chat session: a websocket connection plus the state of its
// in-flight generation, if any.
type Client struct {
	conn         *websocket.Conn
	send         chan []byte
	incomingPing chan string
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	closed       bool

	userID         int
	conversationID string
	svc            *usecase.ChatService
	store          domain.ConversationStore
	defaults       domain.GenerationConfig

	genMu        sync.Mutex
	cancelActive context.CancelFunc
}

// clientFrame is what the UI sends: a submit action carrying the message,
// optional explicit history, and optional generation parameters, or a
// bare cancel action.
type clientFrame struct {
	Type    string                   `json:"type"`
	Message string                   `json:"message,omitempty"`
	History []domain.Turn            `json:"history,omitempty"`
	Config  *domain.GenerationConfig `json:"config,omitempty"`
}

type serverFrame struct {
	Type    string        `json:"type"`
	History []domain.Turn `json:"history,omitempty"`
	Message string        `json:"message,omitempty"`
}

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 64 * 1024
)

// NewClient creates a new chat session client
func NewClient(conn *websocket.Conn, svc *usecase.ChatService, store domain.ConversationStore, defaults domain.GenerationConfig, userID int, conversationID string) *Client {
	ctx := context.TODO()
	ctx = context.WithValue(ctx, "user_id", userID)
	ctx = context.WithValue(ctx, "conversation_id", conversationID)
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:           conn,
		send:           make(chan []byte, 256),
		incomingPing:   make(chan string, 1),
		ctx:            ctx,
		cancel:         cancel,
		userID:         userID,
		conversationID: conversationID,
		svc:            svc,
		store:          store,
		defaults:       defaults,
	}
}

func (c *Client) Run() {
	c.setupHandlers()

	go c.Ping()
	go c.readPump()
	go c.writePump()
}

// setupHandlers configures all WebSocket message handlers
func (c *Client) setupHandlers() {
	c.conn.SetCloseHandler(func(code int, text string) error {
		log.WithCtx(c.ctx).Debug("WebSocket connection closed", zap.Int("code", code), zap.String("text", text))
		c.Close()
		return nil
	})

	// Handle incoming ping messages - respond with pong
	c.conn.SetPingHandler(func(appData string) error {
		c.incomingPing <- appData
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	// Handle incoming pong messages - update read deadline
	c.conn.SetPongHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
}

// Close gracefully closes the client connection
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return
	}

	c.closed = true
	if c.cancel != nil {
		c.cancel()
	}

	if c.conn != nil {
		c.conn.Close()
	}

	if c.send != nil {
		close(c.send)
	}
}

// IsClosed returns true if the client connection is closed
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Context returns the client's context
func (c *Client) Context() context.Context {
	return c.ctx
}

// ConversationID returns the conversation this session holds
func (c *Client) ConversationID() string {
	return c.conversationID
}

func (c *Client) Ping() {
	for {
		select {
		case <-c.incomingPing:
		case <-time.After(pingPeriod):
			if c.IsClosed() {
				return
			}

			c.mu.RLock()
			conn := c.conn
			c.mu.RUnlock()

			if conn == nil {
				return
			}

			if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				log.WithCtx(c.ctx).Error("Failed to send ping", zap.Error(err))
				c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// readPump handles incoming WebSocket messages
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		if c.IsClosed() {
			return
		}

		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithCtx(c.ctx).Error("WebSocket error", zap.Error(err))
			}
			return
		}

		var frame clientFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			c.sendFrame(serverFrame{Type: "error", Message: "invalid frame"})
			continue
		}

		switch frame.Type {
		case "chat":
			go c.handleChat(frame)
		case "cancel":
			c.CancelGeneration()
		default:
			c.sendFrame(serverFrame{Type: "error", Message: "unknown frame type: " + frame.Type})
		}
	}
}

// handleChat drives one conversation turn, streaming transcript snapshots
// back to the UI as they arrive.
func (c *Client) handleChat(frame clientFrame) {
	genCtx, ok := c.beginGeneration()
	if !ok {
		c.sendFrame(serverFrame{Type: "error", Message: "generation already in progress"})
		return
	}
	defer c.endGeneration()

	history := frame.History
	if history == nil && c.store != nil {
		stored, err := c.store.Load(c.ctx, c.conversationID)
		if err != nil {
			log.WithCtx(c.ctx).Error("Failed to load transcript", zap.Error(err))
		} else {
			history = stored
		}
	}

	var last []domain.Turn
	for snapshot := range c.svc.Respond(genCtx, usecase.ChatRequest{
		Message: frame.Message,
		History: history,
		Config:  c.mergeConfig(frame.Config),
	}) {
		last = snapshot
		c.sendFrame(serverFrame{Type: "update", History: snapshot})
	}

	if len(last) > 0 && c.store != nil {
		if err := c.store.Append(c.ctx, c.conversationID, last[len(last)-1]); err != nil {
			log.WithCtx(c.ctx).Error("Failed to persist turn", zap.Error(err))
		}
	}

	c.sendFrame(serverFrame{Type: "done"})
}

// beginGeneration claims the session's single generation slot. Each turn
// gets its own cancellable context, so a cancel fired during one turn can
// never leak into the next.
func (c *Client) beginGeneration() (context.Context, bool) {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.cancelActive != nil {
		return nil, false
	}
	genCtx, cancel := context.WithCancel(c.ctx)
	c.cancelActive = cancel
	return genCtx, true
}

func (c *Client) endGeneration() {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.cancelActive != nil {
		c.cancelActive()
		c.cancelActive = nil
	}
}

// CancelGeneration aborts the in-flight turn, if any. Has no effect on an
// already-completed request.
func (c *Client) CancelGeneration() {
	c.genMu.Lock()
	defer c.genMu.Unlock()
	if c.cancelActive != nil {
		log.WithCtx(c.ctx).Info("Cancelling in-flight generation")
		c.cancelActive()
	}
}

func (c *Client) mergeConfig(override *domain.GenerationConfig) domain.GenerationConfig {
	if override == nil {
		return c.defaults
	}
	cfg := *override
	if cfg.SystemMessage == "" {
		cfg.SystemMessage = c.defaults.SystemMessage
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = c.defaults.MaxTokens
	}
	if cfg.Temperature <= 0 {
		cfg.Temperature = c.defaults.Temperature
	}
	if cfg.TopP <= 0 {
		cfg.TopP = c.defaults.TopP
	}
	return cfg
}

func (c *Client) sendFrame(frame serverFrame) {
	data, err := json.Marshal(frame)
	if err != nil {
		log.WithCtx(c.ctx).Error("Failed to marshal frame", zap.Error(err))
		return
	}
	if err := c.SendMessage(data); err != nil {
		log.WithCtx(c.ctx).Debug("Failed to queue frame", zap.Error(err))
	}
}

// writePump handles outgoing WebSocket messages
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			if c.IsClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithCtx(c.ctx).Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// SendMessage sends a message to the client safely
func (c *Client) SendMessage(message []byte) error {
	if c.IsClosed() {
		return websocket.ErrCloseSent
	}

	select {
	case c.send <- message:
		return nil
	case <-c.ctx.Done():
		return c.ctx.Err()
	default:
		// Channel is full, close the connection
		c.Close()
		return websocket.ErrCloseSent
	}
}
