package websocket

import (
	"errors"
	"sync"
	"time"

	"messenger/internal/relay"
	"messenger/pkg/logger"

	"github.com/gorilla/websocket"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = 54 * time.Second
	maxMessageSize = 4096
)

var (
	ErrSendBufferFull = errors.New("send buffer full")
	ErrClientClosed   = errors.New("client closed")
)

// Client adapts one gorilla connection to relay.Transport. Outbound frames go
// through a bounded queue drained by WritePump, so a slow peer only ever
// fills its own queue.
type Client struct {
	hub  *relay.Hub
	conn *websocket.Conn
	peer *relay.Connection
	log  *logger.Logger

	mu     sync.Mutex
	send   chan []byte
	closed bool
}

func NewClient(hub *relay.Hub, conn *websocket.Conn, username, addr string, sendBuffer int) *Client {
	if sendBuffer <= 0 {
		sendBuffer = 256
	}
	c := &Client{
		hub:  hub,
		conn: conn,
		send: make(chan []byte, sendBuffer),
	}
	c.peer = relay.NewConnection(username, c)
	c.log = logger.With("user", username, "addr", addr, "conn", c.peer.ID())
	return c
}

// Connection returns the relay handle bound to this client.
func (c *Client) Connection() *relay.Connection {
	return c.peer
}

// Write queues payload without blocking.
func (c *Client) Write(payload []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}
	select {
	case c.send <- payload:
		return nil
	default:
		return ErrSendBufferFull
	}
}

// Close ends the send queue; WritePump then sends a close frame and exits.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.closed {
		c.closed = true
		close(c.send)
	}
	return nil
}

func (c *Client) ReadPump() {
	defer func() {
		c.hub.Unregister(c.peer)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if errors.Is(err, websocket.ErrReadLimit) {
				c.log.Warn("Message exceeded %d bytes", maxMessageSize)
			} else if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				c.log.Error("WebSocket error: %v", err)
			}
			break
		}

		if err := c.hub.Dispatch(c.peer, message); err != nil {
			if errors.Is(err, relay.ErrMalformedEvent) {
				c.log.Debug("Dropped event: %v", err)
			} else {
				c.log.Warn("Event failed: %v", err)
			}
		}
	}
}

func (c *Client) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				c.log.Debug("Write error: %v", err)
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
