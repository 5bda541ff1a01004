package hub

import (
	"context"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rusikfsk/unichat/internal/config"
	"github.com/rusikfsk/unichat/pkg/log"
)

// Client is one live connection of a user.
type Client struct {
	ID       string
	UserID   string
	Username string
	Hub      *Hub
	Conn     *websocket.Conn
	Send     chan []byte

	rooms  map[string]struct{} // guarded by Hub.mu
	config config.WebSocketConfig
	ctx    context.Context
	cancel context.CancelFunc
}

// NewClient creates a client. conn may be nil for in-process clients that
// are read through Send directly.
func NewClient(id, userID, username string, hub *Hub, conn *websocket.Conn, cfg config.WebSocketConfig) *Client {
	buf := cfg.SendBuffer
	if buf <= 0 {
		buf = 256
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Client{
		ID:       id,
		UserID:   userID,
		Username: username,
		Hub:      hub,
		Conn:     conn,
		Send:     make(chan []byte, buf),
		rooms:    make(map[string]struct{}),
		config:   cfg,
		ctx:      ctx,
		cancel:   cancel,
	}
}

// Context is canceled when the connection closes. Commands running on
// behalf of the connection derive from it.
func (c *Client) Context() context.Context {
	return c.ctx
}

// Close cancels in-flight commands and closes the socket, which ends ReadPump.
func (c *Client) Close() {
	c.cancel()
	if c.Conn != nil {
		c.Conn.Close()
	}
}

// ReadPump reads frames until the connection fails, passing each to handler.
// onClose runs once when the pump exits.
func (c *Client) ReadPump(handler func(*Client, []byte), onClose func(*Client)) {
	defer func() {
		c.cancel()
		onClose(c)
		c.Conn.Close()
	}()

	c.Conn.SetReadLimit(c.config.MaxMessageSize)
	c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.Conn.SetPongHandler(func(string) error {
		c.Conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
		return nil
	})

	for {
		_, message, err := c.Conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				l := log.L()
				l.Warn().Err(err).Str(log.FieldConnectionID, c.ID).Msg("websocket read error")
			}
			break
		}

		handler(c, message)
	}
}

// WritePump drains Send to the socket and keeps the connection alive with pings.
func (c *Client) WritePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.Conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.Send:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				c.Conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			w, err := c.Conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(message)

			if err := w.Close(); err != nil {
				return
			}

		case <-ticker.C:
			c.Conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.Conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
