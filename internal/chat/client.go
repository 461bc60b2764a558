package chat

import (
	"context"
	"errors"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

type ClientConfig struct {
	PingInterval   time.Duration
	PongWait       time.Duration
	WriteWait      time.Duration
	MaxMessageSize int64
}

// Client pumps frames between a websocket connection and its Session.
type Client struct {
	conn    *websocket.Conn
	session *Session
	config  ClientConfig
}

func NewClient(conn *websocket.Conn, session *Session, config ClientConfig) *Client {
	return &Client{
		conn:    conn,
		session: session,
		config:  config,
	}
}

// Serve blocks until the connection ends, then leaves the room. When the
// server starts shutting down the peer gets a going-away close frame.
func (c *Client) Serve(ctx context.Context) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writePump()
	}()

	finished := make(chan struct{})
	defer close(finished)
	go func() {
		select {
		case <-c.session.Stopping():
			c.goAway(ctx)
		case <-finished:
		}
	}()

	c.readPump(ctx)

	// Leaving closes the member's queue, which stops the write pump.
	c.session.Close(context.WithoutCancel(ctx))
	<-done
}

// WriteControl may run concurrently with the write pump.
func (c *Client) goAway(ctx context.Context) {
	msg := websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down")
	_ = c.conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(c.config.WriteWait))

	// Leaving closes the member's queue, which stops the write pump and with
	// it the connection.
	c.session.Close(context.WithoutCancel(ctx))
}

func (c *Client) readPump(ctx context.Context) {
	defer c.conn.Close()

	c.conn.SetReadLimit(c.config.MaxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(c.config.PongWait))
	})

	for {
		kind, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				zap.L().Debug("chat connection dropped", zap.String("room", c.session.Room()), zap.Error(err))
			}
			return
		}
		if kind != websocket.TextMessage {
			continue
		}

		if err = c.session.Receive(ctx, data); err != nil {
			if errors.Is(err, ErrMalformedFrame) {
				continue
			}
			zap.L().Error("chat broadcast failed", zap.String("room", c.session.Room()), zap.Error(err))
		}
	}
}

func (c *Client) writePump() {
	ticker := time.NewTicker(c.config.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	send := c.session.Member().Send()
	for {
		select {
		case data, ok := <-send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(c.config.WriteWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
