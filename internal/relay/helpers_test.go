package relay

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"

	"messenger/internal/models"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var errDeadTransport = errors.New("transport is dead")

type recorder struct {
	mu     sync.Mutex
	frames [][]byte
	dead   bool
	closes int
}

func (r *recorder) Write(payload []byte) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.dead || r.closes > 0 {
		return errDeadTransport
	}
	r.frames = append(r.frames, append([]byte(nil), payload...))
	return nil
}

func (r *recorder) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closes++
	return nil
}

func (r *recorder) kill() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.dead = true
}

func (r *recorder) events(t *testing.T) []models.OutboundEvent {
	t.Helper()
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]models.OutboundEvent, 0, len(r.frames))
	for _, f := range r.frames {
		var ev models.OutboundEvent
		require.NoError(t, json.Unmarshal(f, &ev))
		out = append(out, ev)
	}
	return out
}

func (r *recorder) reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.frames = nil
}

func (r *recorder) closeCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.closes
}

// connect registers a new connection for username on h.
func connect(t *testing.T, h *Hub, username string) (*Connection, *recorder) {
	t.Helper()
	rec := &recorder{}
	conn := NewConnection(username, rec)
	require.NoError(t, h.Register(conn))
	return conn, rec
}

// assertConsistent checks that room membership and each connection's room
// set mirror each other and that no empty room survives.
func assertConsistent(t *testing.T, h *Hub) {
	t.Helper()
	h.mu.Lock()
	defer h.mu.Unlock()

	for key, members := range h.rooms {
		require.NotEmpty(t, members, "room %s is empty but still present", key)
		for c := range members {
			_, registered := h.conns[c]
			require.True(t, registered, "room %s holds unregistered connection %s", key, c.id)
			_, ok := c.rooms[key]
			require.True(t, ok, "connection %s is in room %s but does not list it", c.id, key)
		}
	}
	for c := range h.conns {
		for key := range c.rooms {
			_, ok := h.rooms[key][c]
			require.True(t, ok, "connection %s lists room %s but is not a member", c.id, key)
		}
	}
}

type chanSink struct {
	messages chan models.Message
	err      error
}

func newChanSink(err error) *chanSink {
	return &chanSink{messages: make(chan models.Message, 16), err: err}
}

func (s *chanSink) SaveMessage(_ context.Context, msg models.Message) error {
	s.messages <- msg
	return s.err
}
