package client

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"messenger/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

var errLinkDropped = errors.New("link dropped")

type fakeLink struct {
	incoming chan []byte
	closed   chan struct{}
	once     sync.Once

	mu      sync.Mutex
	written []models.InboundEvent
}

func newFakeLink() *fakeLink {
	return &fakeLink{incoming: make(chan []byte, 8), closed: make(chan struct{})}
}

func (l *fakeLink) ReadMessage() ([]byte, error) {
	select {
	case data := <-l.incoming:
		return data, nil
	case <-l.closed:
		return nil, errLinkDropped
	}
}

func (l *fakeLink) WriteMessage(data []byte) error {
	select {
	case <-l.closed:
		return errLinkDropped
	default:
	}
	var ev models.InboundEvent
	if err := json.Unmarshal(data, &ev); err != nil {
		return err
	}
	l.mu.Lock()
	l.written = append(l.written, ev)
	l.mu.Unlock()
	return nil
}

func (l *fakeLink) Close() error {
	l.once.Do(func() { close(l.closed) })
	return nil
}

// drop simulates the server going away.
func (l *fakeLink) drop() { l.Close() }

func (l *fakeLink) frames() []models.InboundEvent {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]models.InboundEvent(nil), l.written...)
}

func (l *fakeLink) waitFrames(t *testing.T, n int) []models.InboundEvent {
	t.Helper()
	require.Eventually(t, func() bool { return len(l.frames()) >= n }, time.Second, 5*time.Millisecond)
	return l.frames()
}

// fakeDialer hands out queued links; with the queue empty it fails.
type fakeDialer struct {
	mu    sync.Mutex
	links []*fakeLink
	dials int
}

func (d *fakeDialer) push(links ...*fakeLink) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.links = append(d.links, links...)
}

func (d *fakeDialer) Dial(context.Context) (Link, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.dials++
	if len(d.links) == 0 {
		return nil, errors.New("connection refused")
	}
	l := d.links[0]
	d.links = d.links[1:]
	return l, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials
}

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	f       func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	if t.stopped || t.fired {
		return false
	}
	t.stopped = true
	return true
}

// manualClock records scheduled retries and fires them on demand.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

func (c *manualClock) AfterFunc(d time.Duration, f func()) Timer {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := &manualTimer{clock: c, delay: d, f: f}
	c.timers = append(c.timers, t)
	return t
}

func (c *manualClock) pending() []*manualTimer {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []*manualTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// fire runs the single pending timer.
func (c *manualClock) fire(t *testing.T) {
	t.Helper()
	p := c.pending()
	require.Len(t, p, 1, "expected exactly one pending retry")
	c.mu.Lock()
	p[0].fired = true
	c.mu.Unlock()
	p[0].f()
}

func (c *manualClock) waitPending(t *testing.T, n int) {
	t.Helper()
	require.Eventually(t, func() bool { return len(c.pending()) == n }, time.Second, 5*time.Millisecond)
}

func newTestSession(t *testing.T, links ...*fakeLink) (*Session, *fakeDialer, *manualClock) {
	t.Helper()
	existing := goleak.IgnoreCurrent()
	dialer := &fakeDialer{}
	dialer.push(links...)
	clock := &manualClock{}
	s := NewSession("alice", dialer, WithReconnectDelay(2*time.Second), WithAfterFunc(clock.AfterFunc))
	// Cleanups run last-in first-out, so the session is closed before the
	// leak check.
	t.Cleanup(func() { goleak.VerifyNone(t, existing) })
	t.Cleanup(func() { s.Close() })
	return s, dialer, clock
}

func waitState(t *testing.T, s *Session, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return s.State() == want }, time.Second, 5*time.Millisecond,
		"state is %s, want %s", s.State(), want)
}

func TestStartJoinsGlobalRoom(t *testing.T) {
	link := newFakeLink()
	s, _, clock := newTestSession(t, link)

	require.NoError(t, s.Start())
	assert.Equal(t, Connected, s.State())
	assert.Empty(t, clock.pending())

	frames := link.waitFrames(t, 1)
	assert.Equal(t, models.InboundEvent{Event: models.EventJoin, Username: "alice", Room: models.GlobalRoom}, frames[0])

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Start(), ErrAlreadyActive)
}

func TestLinkLossSchedulesExactlyOneRetry(t *testing.T) {
	first := newFakeLink()
	s, dialer, clock := newTestSession(t, first)
	require.NoError(t, s.Start())

	first.drop()
	waitState(t, s, Disconnected)
	clock.waitPending(t, 1)
	assert.Equal(t, 2*time.Second, clock.pending()[0].delay)

	// Both loops notice the drop; only one retry may be armed.
	require.ErrorIs(t, s.Send("hello"), ErrNotConnected)
	time.Sleep(20 * time.Millisecond)
	assert.Len(t, clock.pending(), 1)
	assert.Equal(t, 1, dialer.dialCount())

	second := newFakeLink()
	dialer.push(second)
	clock.fire(t)

	assert.Equal(t, Connected, s.State())
	assert.Empty(t, clock.pending())
	assert.Equal(t, 2, dialer.dialCount())
}

func TestFailedDialArmsNextRetry(t *testing.T) {
	first := newFakeLink()
	s, dialer, clock := newTestSession(t, first)
	require.NoError(t, s.Start())
	first.drop()
	clock.waitPending(t, 1)

	clock.fire(t)
	assert.Equal(t, Disconnected, s.State())
	assert.Len(t, clock.pending(), 1)

	clock.fire(t)
	assert.Len(t, clock.pending(), 1)
	assert.Equal(t, 3, dialer.dialCount())

	dialer.push(newFakeLink())
	clock.fire(t)
	assert.Equal(t, Connected, s.State())
	assert.Empty(t, clock.pending())
}

func TestFailedFirstDialStillRetries(t *testing.T) {
	s, dialer, clock := newTestSession(t)
	require.Error(t, s.Start())
	assert.Equal(t, Disconnected, s.State())
	assert.Len(t, clock.pending(), 1)

	link := newFakeLink()
	dialer.push(link)
	clock.fire(t)
	assert.Equal(t, Connected, s.State())
	assert.Equal(t, models.GlobalRoom, link.waitFrames(t, 1)[0].Room)
}

func TestReconnectReplaysLastRoomBeforeSends(t *testing.T) {
	first := newFakeLink()
	s, dialer, clock := newTestSession(t, first)
	require.NoError(t, s.Start())

	require.NoError(t, s.Join("bob"))
	first.waitFrames(t, 2)
	first.drop()
	clock.waitPending(t, 1)

	second := newFakeLink()
	dialer.push(second)
	clock.fire(t)
	require.NoError(t, s.Send("back again"))

	frames := second.waitFrames(t, 2)
	assert.Equal(t, models.InboundEvent{Event: models.EventJoin, Username: "alice", Room: "bob"}, frames[0])
	assert.Equal(t, models.InboundEvent{
		Event:     models.EventSendMessage,
		Sender:    "alice",
		Recipient: "bob",
		Content:   "back again",
	}, frames[1])
}

func TestJoinWhileDisconnectedIsReplayed(t *testing.T) {
	first := newFakeLink()
	s, dialer, clock := newTestSession(t, first)
	require.NoError(t, s.Start())
	first.drop()
	clock.waitPending(t, 1)

	require.NoError(t, s.Join("carol"))
	assert.Equal(t, "carol", s.Room())

	second := newFakeLink()
	dialer.push(second)
	clock.fire(t)
	assert.Equal(t, "carol", second.waitFrames(t, 1)[0].Room)
}

func TestJoinSwitchesRooms(t *testing.T) {
	link := newFakeLink()
	s, _, _ := newTestSession(t, link)
	require.NoError(t, s.Start())

	require.NoError(t, s.Join("alice"))
	assert.Equal(t, models.GlobalRoom, s.Room(), "joining yourself is ignored")

	require.NoError(t, s.Join("bob"))
	require.NoError(t, s.Typing())
	require.NoError(t, s.Join(""))
	require.NoError(t, s.Send("hi all"))

	frames := link.waitFrames(t, 6)
	assert.Equal(t, []models.InboundEvent{
		{Event: models.EventJoin, Username: "alice", Room: models.GlobalRoom},
		{Event: models.EventJoin, Username: "alice", Room: "bob"},
		{Event: models.EventTyping, Sender: "alice", Recipient: "bob"},
		{Event: models.EventLeave, Username: "alice", Room: "bob"},
		{Event: models.EventJoin, Username: "alice", Room: models.GlobalRoom},
		{Event: models.EventSendMessage, Sender: "alice", Content: "hi all"},
	}, frames)
}

func TestSendValidation(t *testing.T) {
	s, _, _ := newTestSession(t)
	assert.ErrorIs(t, s.Send("   "), ErrEmptyMessage)
	assert.ErrorIs(t, s.Send("hi"), ErrNotConnected)

	require.NoError(t, s.Close())
	assert.ErrorIs(t, s.Send("hi"), ErrClosed)
	assert.ErrorIs(t, s.Join("bob"), ErrClosed)
}

func TestInboundEventsAreHandedOff(t *testing.T) {
	link := newFakeLink()
	s, _, _ := newTestSession(t, link)
	require.NoError(t, s.Start())

	link.incoming <- []byte(`not json`)
	link.incoming <- []byte(`{"event":"message","sender":"","content":"anonymous"}`)
	link.incoming <- []byte(`{"event":"message","sender":"bob","content":"hey"}`)

	select {
	case ev := <-s.Events():
		assert.Equal(t, "bob", ev.Sender)
		assert.Equal(t, "hey", ev.Content)
	case <-time.After(time.Second):
		t.Fatal("no event handed off")
	}
}

func TestCloseStopsPendingRetry(t *testing.T) {
	first := newFakeLink()
	s, dialer, clock := newTestSession(t, first)
	require.NoError(t, s.Start())
	first.drop()
	clock.waitPending(t, 1)
	timer := clock.pending()[0]

	require.NoError(t, s.Close())
	assert.Equal(t, GivenUp, s.State())
	assert.True(t, timer.stopped)
	assert.Empty(t, clock.pending())
	assert.Equal(t, 1, dialer.dialCount())

	_, open := <-s.Events()
	assert.False(t, open)
	require.NoError(t, s.Close())
}

func TestCloseSendsDisconnect(t *testing.T) {
	link := newFakeLink()
	s, _, clock := newTestSession(t, link)
	require.NoError(t, s.Start())
	link.waitFrames(t, 1)

	require.NoError(t, s.Close())
	frames := link.frames()
	assert.Equal(t, models.EventDisconnect, frames[len(frames)-1].Event)
	assert.Empty(t, clock.pending())
}

func TestStatusUpdates(t *testing.T) {
	first := newFakeLink()
	s, dialer, clock := newTestSession(t, first)
	require.NoError(t, s.Start())
	first.drop()
	clock.waitPending(t, 1)
	dialer.push(newFakeLink())
	clock.fire(t)
	require.NoError(t, s.Close())

	var states []State
	for st := range s.StatusUpdates() {
		states = append(states, st.State)
	}
	assert.Equal(t, []State{Connected, Disconnected, Reconnecting, Connected, GivenUp}, states)
	assert.Equal(t, "Disconnected. Reconnecting...", Status{State: Disconnected}.String())
}
