package client

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait       = 10 * time.Second
	defaultPongWait = 60 * time.Second
)

var ErrUnauthorized = errors.New("token rejected by server")

// WebSocketDialer opens links to the server's /ws endpoint.
type WebSocketDialer struct {
	url      string
	dialer   *websocket.Dialer
	pongWait time.Duration
}

// NewWebSocketDialer derives the websocket URL from the server's HTTP base
// URL and the session token.
func NewWebSocketDialer(serverURL, token string) (*WebSocketDialer, error) {
	u, err := url.Parse(strings.TrimRight(serverURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parse server url: %w", err)
	}
	switch u.Scheme {
	case "http", "ws":
		u.Scheme = "ws"
	case "https", "wss":
		u.Scheme = "wss"
	default:
		return nil, fmt.Errorf("unsupported server url scheme %q", u.Scheme)
	}
	u.Path += "/ws"
	u.RawQuery = url.Values{"token": {token}}.Encode()

	return &WebSocketDialer{
		url:      u.String(),
		pongWait: defaultPongWait,
		dialer:   &websocket.Dialer{
			Proxy:            http.ProxyFromEnvironment,
			HandshakeTimeout: 10 * time.Second,
		},
	}, nil
}

func (d *WebSocketDialer) Dial(ctx context.Context) (Link, error) {
	conn, resp, err := d.dialer.DialContext(ctx, d.url, nil)
	if resp != nil && resp.Body != nil {
		resp.Body.Close()
	}
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusUnauthorized {
			return nil, ErrUnauthorized
		}
		return nil, err
	}
	return newWSLink(conn, d.pongWait), nil
}

// wsLink serializes writes; gorilla allows one concurrent writer. A link
// that hears nothing, not even a pong, for pongWait fails its next read.
type wsLink struct {
	conn     *websocket.Conn
	mu       sync.Mutex
	pongWait time.Duration
	done     chan struct{}
	once     sync.Once
}

func newWSLink(conn *websocket.Conn, pongWait time.Duration) *wsLink {
	l := &wsLink{conn: conn, pongWait: pongWait, done: make(chan struct{})}

	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})
	conn.SetPingHandler(func(appData string) error {
		conn.SetReadDeadline(time.Now().Add(pongWait))
		err := conn.WriteControl(websocket.PongMessage, []byte(appData), time.Now().Add(writeWait))
		if errors.Is(err, websocket.ErrCloseSent) {
			return nil
		}
		return err
	})

	go l.ping(pongWait * 9 / 10)
	return l
}

func (l *wsLink) ping(period time.Duration) {
	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			if err := l.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		case <-l.done:
			return
		}
	}
}

func (l *wsLink) ReadMessage() ([]byte, error) {
	_, data, err := l.conn.ReadMessage()
	if err == nil {
		l.conn.SetReadDeadline(time.Now().Add(l.pongWait))
	}
	return data, err
}

func (l *wsLink) WriteMessage(data []byte) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return l.conn.WriteMessage(websocket.TextMessage, data)
}

func (l *wsLink) Close() error {
	l.once.Do(func() { close(l.done) })
	return l.conn.Close()
}
