package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/luminanexus/chavruta/usecase"
	"github.com/luminanexus/chavruta/utils/log"
	"go.uber.org/zap"
)

// Client pairs one websocket connection with one chat session. Text frames
// carry JSON commands; binary frames carry captured audio for the
// recognizer.
type Client struct {
	conn         *websocket.Conn
	session      *usecase.Session
	send         chan []byte
	incomingPing chan string
	ctx          context.Context
	cancel       context.CancelFunc
	mu           sync.RWMutex
	closed       bool
}

// Command is an inbound instruction from the browser surface.
type Command struct {
	Type string `json:"type"`
	Text string `json:"text,omitempty"`
}

const (
	CommandSubmit      = "submit"
	CommandClear       = "clear"
	CommandListenStart = "listen_start"
	CommandListenStop  = "listen_stop"
	CommandDraft       = "draft"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 30 * time.Second
	maxMessageSize = 512 * 1024 // room for audio frames
)

// NewClient creates a new websocket client bound to a session.
func NewClient(conn *websocket.Conn, session *usecase.Session) *Client {
	ctx := context.WithValue(context.Background(), log.SessionIDKey, session.ID())
	ctx, cancel := context.WithCancel(ctx)
	return &Client{
		conn:         conn,
		session:      session,
		send:         make(chan []byte, 256),
		incomingPing: make(chan string, 1),
		ctx:          ctx,
		cancel:       cancel,
	}
}

func (c *Client) Run() {
	c.setupHandlers()

	go c.Ping()
	go c.readPump()
	go c.writePump()
}

// setupHandlers configures the websocket control-frame handlers.
func (c *Client) setupHandlers() {
	c.conn.SetCloseHandler(func(code int, text string) error {
		log.WithCtx(c.ctx).Debug("WebSocket connection closed", zap.Int("code", code), zap.String("text", text))
		c.Close()
		return nil
	})

	c.conn.SetPingHandler(func(appData string) error {
		c.incomingPing <- appData
		return c.conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
	})

	c.conn.SetPongHandler(func(appData string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
}

// Close gracefully closes the client connection. The send channel is
// deliberately left open: closing it here would race a SendMessage that
// passed its closed-check a moment earlier. writePump exits through the
// cancelled context instead, and anything still buffered is dropped with it.
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
}

// IsClosed returns true if the client connection is closed.
func (c *Client) IsClosed() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.closed
}

// Context returns the client's context.
func (c *Client) Context() context.Context {
	return c.ctx
}

func (c *Client) Ping() {
	for {
		select {
		case <-c.incomingPing:
		case <-time.After(pingPeriod):
			if c.IsClosed() {
				return
			}
			if err := c.conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(writeWait)); err != nil {
				log.WithCtx(c.ctx).Error("Failed to send ping", zap.Error(err))
				c.Close()
				return
			}
		case <-c.ctx.Done():
			return
		}
	}
}

// readPump dispatches inbound frames to the session.
func (c *Client) readPump() {
	defer c.Close()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))

	for {
		if c.IsClosed() {
			return
		}

		messageType, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.WithCtx(c.ctx).Error("WebSocket error", zap.Error(err))
			}
			return
		}

		if messageType == websocket.BinaryMessage {
			if err := c.session.FeedAudio(message); err != nil {
				log.WithCtx(c.ctx).Debug("audio frame dropped", zap.Error(err))
			}
			continue
		}

		var cmd Command
		if err := json.Unmarshal(message, &cmd); err != nil {
			log.WithCtx(c.ctx).Warn("malformed command", zap.Error(err))
			continue
		}
		c.dispatch(cmd)
	}
}

// dispatch runs one command. Submits run in their own goroutine so the read
// pump never blocks behind the network; the session's own busy guard keeps
// at most one reply in flight.
func (c *Client) dispatch(cmd Command) {
	switch cmd.Type {
	case CommandSubmit:
		go func() {
			if err := c.session.Submit(c.ctx, cmd.Text); err != nil && !errors.Is(err, usecase.ErrBusy) {
				log.WithCtx(c.ctx).Warn("submit failed", zap.Error(err))
			}
		}()
	case CommandClear:
		c.session.Clear()
	case CommandListenStart:
		if err := c.session.StartListening(c.ctx); err != nil {
			log.WithCtx(c.ctx).Debug("listening unavailable", zap.Error(err))
		}
	case CommandListenStop:
		c.session.StopListening()
	case CommandDraft:
		c.session.AppendDraft(cmd.Text)
	default:
		log.WithCtx(c.ctx).Warn("unknown command", zap.String("type", cmd.Type))
	}
}

// writePump handles outgoing websocket messages.
func (c *Client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.Close()
	}()

	for {
		select {
		case message := <-c.send:
			if c.IsClosed() {
				return
			}

			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				log.WithCtx(c.ctx).Error("Failed to write message", zap.Error(err))
				return
			}

		case <-c.ctx.Done():
			c.conn.WriteMessage(websocket.CloseMessage, []byte{})
			return
		}
	}
}

// SendMessage sends a message to the client safely.
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
		// Channel is full, close the connection.
		c.Close()
		return websocket.ErrCloseSent
	}
}
