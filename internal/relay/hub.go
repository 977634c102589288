// Package relay is the real-time core of the messenger: the connection
// registry, the room membership table, the event router and the presence
// queries. All of them share one Hub and one mutex, because the registry and
// the rooms are always updated together.
package relay

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"messenger/internal/models"
	"messenger/pkg/logger"

	"github.com/google/uuid"
)

// Transport is the write side of a live connection. Write must not block;
// a full or closed transport returns an error.
type Transport interface {
	Write(payload []byte) error
	Close() error
}

// MessageSink receives every committed chat message. It is called from its
// own goroutine and its result never affects delivery.
type MessageSink interface {
	SaveMessage(ctx context.Context, msg models.Message) error
}

// Connection is one live client session bound to a username.
type Connection struct {
	id        string
	username  string
	transport Transport

	// guarded by Hub.mu
	rooms map[string]struct{}
}

func NewConnection(username string, transport Transport) *Connection {
	return &Connection{
		id:        uuid.NewString(),
		username:  username,
		transport: transport,
		rooms:     make(map[string]struct{}),
	}
}

func (c *Connection) ID() string       { return c.id }
func (c *Connection) Username() string { return c.username }

type Hub struct {
	mu    sync.Mutex
	conns map[*Connection]struct{}
	rooms map[string]map[*Connection]struct{}

	sink           MessageSink
	persistTimeout time.Duration
	exclusive      bool
	now            func() time.Time

	// persisting counts sink calls in flight. Add is only called under mu
	// while closed is false, so it never races Shutdown's Wait.
	persisting sync.WaitGroup
	closed     bool
}

type Option func(*Hub)

// WithSink sets the collaborator that committed messages are handed to.
func WithSink(sink MessageSink) Option {
	return func(h *Hub) { h.sink = sink }
}

func WithPersistTimeout(d time.Duration) Option {
	return func(h *Hub) {
		if d > 0 {
			h.persistTimeout = d
		}
	}
}

// WithExclusiveUsernames makes Register refuse a second live connection for
// a username that is already online.
func WithExclusiveUsernames(exclusive bool) Option {
	return func(h *Hub) { h.exclusive = exclusive }
}

func WithClock(now func() time.Time) Option {
	return func(h *Hub) { h.now = now }
}

func NewHub(opts ...Option) *Hub {
	h := &Hub{
		conns:          make(map[*Connection]struct{}),
		rooms:          make(map[string]map[*Connection]struct{}),
		persistTimeout: 5 * time.Second,
		now:            time.Now,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

const timeLayout = time.RFC3339Nano

// delivery is a payload addressed to a recipient snapshot taken under the
// lock and written after it is released.
type delivery struct {
	to      []*Connection
	payload []byte
}

func (h *Hub) flush(deliveries ...delivery) {
	for _, d := range deliveries {
		h.fanOut(d.to, d.payload)
	}
}

func (h *Hub) fanOut(targets []*Connection, payload []byte) int {
	delivered := 0
	for _, c := range targets {
		if h.Deliver(c, payload) {
			delivered++
		}
	}
	return delivered
}

func (h *Hub) encode(ev models.OutboundEvent) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", ev.Event, err)
		return nil
	}
	return data
}

func (h *Hub) timestamp() string {
	return h.now().UTC().Format(timeLayout)
}

// ConnectionCount returns the number of registered connections.
func (h *Hub) ConnectionCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.conns)
}

// Shutdown closes every registered transport, empties the hub and waits for
// in-flight persistence calls until ctx is done. Messages routed after
// Shutdown are still delivered but no longer handed to the sink.
func (h *Hub) Shutdown(ctx context.Context) error {
	h.mu.Lock()
	h.closed = true
	conns := make([]*Connection, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
		c.rooms = make(map[string]struct{})
	}
	h.conns = make(map[*Connection]struct{})
	h.rooms = make(map[string]map[*Connection]struct{})
	h.mu.Unlock()

	for _, c := range conns {
		if c.transport != nil {
			if err := c.transport.Close(); err != nil {
				logger.Debug("Error closing connection %s: %v", c.id, err)
			}
		}
	}
	logger.Info("Closed %d connections", len(conns))

	done := make(chan struct{})
	go func() {
		h.persisting.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func sortedKeys(set map[string]struct{}) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
