// Package client is the terminal side of the messenger: the HTTP calls for
// accounts and presence, and a Session that keeps one websocket link alive
// across drops.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"messenger/internal/models"
	"messenger/pkg/logger"
)

var (
	ErrNotConnected  = errors.New("not connected to server")
	ErrClosed        = errors.New("session closed")
	ErrEmptyMessage  = errors.New("message is empty")
	ErrOutboxFull    = errors.New("outbox full")
	ErrAlreadyActive = errors.New("session already started")
)

type State int

const (
	Idle State = iota
	Connected
	Disconnected
	Reconnecting
	GivenUp
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Connected:
		return "connected"
	case Disconnected:
		return "disconnected"
	case Reconnecting:
		return "reconnecting"
	case GivenUp:
		return "given up"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Link is one established connection to the server. WriteMessage may be
// called concurrently with ReadMessage.
type Link interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

type Dialer interface {
	Dial(ctx context.Context) (Link, error)
}

// Timer is a pending retry. Stop reports whether it prevented the call.
type Timer interface {
	Stop() bool
}

// AfterFunc schedules f after d.
type AfterFunc func(d time.Duration, f func()) Timer

func realAfterFunc(d time.Duration, f func()) Timer {
	return time.AfterFunc(d, f)
}

// Status is a state change reported to the UI.
type Status struct {
	State State
	Err   error
}

func (s Status) String() string {
	switch s.State {
	case Connected:
		return "Connected."
	case Disconnected:
		if s.Err != nil {
			return fmt.Sprintf("Disconnected (%v). Reconnecting...", s.Err)
		}
		return "Disconnected. Reconnecting..."
	case Reconnecting:
		return "Reconnecting..."
	case GivenUp:
		return "Connection closed."
	default:
		return s.State.String()
	}
}

type Option func(*Session)

// WithReconnectDelay sets the fixed wait between a drop and the next dial.
func WithReconnectDelay(d time.Duration) Option {
	return func(s *Session) {
		if d > 0 {
			s.delay = d
		}
	}
}

// WithAfterFunc replaces time.AfterFunc for retry scheduling.
func WithAfterFunc(f AfterFunc) Option {
	return func(s *Session) { s.afterFunc = f }
}

const (
	defaultReconnectDelay = 5 * time.Second
	outboxSize            = 64
	eventBuffer           = 64
	statusBuffer          = 16
)

// Session owns the link to the server. After a drop it schedules exactly one
// retry at a time, and each new link first re-joins the last room before
// anything else is written on it.
type Session struct {
	username  string
	dialer    Dialer
	delay     time.Duration
	afterFunc AfterFunc

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	events chan models.OutboundEvent
	status chan Status

	mu      sync.Mutex
	started bool
	state   State
	room    string
	link    Link
	outbox  chan []byte
	gen     uint64
	timer   Timer
}

func NewSession(username string, dialer Dialer, opts ...Option) *Session {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Session{
		username:  username,
		dialer:    dialer,
		delay:     defaultReconnectDelay,
		afterFunc: realAfterFunc,
		ctx:       ctx,
		cancel:    cancel,
		events:    make(chan models.OutboundEvent, eventBuffer),
		status:    make(chan Status, statusBuffer),
		room:      models.GlobalRoom,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Events delivers inbound server events. It is closed by Close.
func (s *Session) Events() <-chan models.OutboundEvent { return s.events }

// StatusUpdates reports state changes. Updates are dropped when nobody reads
// them. It is closed by Close.
func (s *Session) StatusUpdates() <-chan Status { return s.status }

func (s *Session) Username() string { return s.username }

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Room returns the room messages are currently sent to.
func (s *Session) Room() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.room
}

// Start dials the server once. A failed first dial still schedules a retry;
// callers that want to give up call Close.
func (s *Session) Start() error {
	s.mu.Lock()
	if s.started || s.state != Idle {
		s.mu.Unlock()
		return ErrAlreadyActive
	}
	s.started = true
	s.mu.Unlock()

	return s.connect()
}

func (s *Session) connect() error {
	s.mu.Lock()
	room := s.room
	s.mu.Unlock()

	link, err := s.dialer.Dial(s.ctx)
	if err == nil {
		if err = link.WriteMessage(encodeEvent(s.joinEvent(room))); err != nil {
			link.Close()
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == GivenUp {
		if err == nil {
			link.Close()
		}
		return ErrClosed
	}
	if err != nil {
		s.state = Disconnected
		s.scheduleLocked()
		s.emitLocked(Status{State: Disconnected, Err: err})
		return fmt.Errorf("connect: %w", err)
	}

	if s.timer != nil {
		if s.timer.Stop() {
			s.wg.Done()
		}
		s.timer = nil
	}

	s.gen++
	s.link = link
	s.outbox = make(chan []byte, outboxSize)
	s.state = Connected
	if s.room != room {
		s.outbox <- encodeEvent(s.joinEvent(s.room))
	}

	s.wg.Add(2)
	go s.readLoop(s.gen, link)
	go s.writeLoop(s.gen, link, s.outbox)

	s.emitLocked(Status{State: Connected})
	logger.Debug("Connected as %s, joined %s", s.username, room)
	return nil
}

func (s *Session) readLoop(gen uint64, link Link) {
	defer s.wg.Done()

	for {
		data, err := link.ReadMessage()
		if err != nil {
			s.linkLost(gen, err)
			return
		}

		var ev models.OutboundEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			logger.Debug("Ignoring undecodable frame: %v", err)
			continue
		}
		if ev.Sender == "" || (ev.Content == "" && ev.Event != models.EventTyping) {
			continue
		}

		select {
		case s.events <- ev:
		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Session) writeLoop(gen uint64, link Link, outbox <-chan []byte) {
	defer s.wg.Done()

	for payload := range outbox {
		if err := link.WriteMessage(payload); err != nil {
			s.linkLost(gen, err)
			return
		}
	}
}

// linkLost tears down link generation gen and schedules a retry. Reports
// from an older generation, or a second report for the same one, are ignored.
func (s *Session) linkLost(gen uint64, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if gen != s.gen || s.state != Connected {
		return
	}
	s.dropLinkLocked()
	s.state = Disconnected
	s.scheduleLocked()
	s.emitLocked(Status{State: Disconnected, Err: err})
	logger.Debug("Link lost: %v", err)
}

func (s *Session) dropLinkLocked() {
	if s.link != nil {
		s.link.Close()
		close(s.outbox)
	}
	s.link = nil
	s.outbox = nil
}

// scheduleLocked arms the retry timer unless one is already pending.
func (s *Session) scheduleLocked() {
	if s.timer != nil || s.state == GivenUp {
		return
	}
	s.wg.Add(1)
	s.timer = s.afterFunc(s.delay, s.retry)
}

func (s *Session) retry() {
	defer s.wg.Done()

	s.mu.Lock()
	s.timer = nil
	if s.state == GivenUp || s.state == Connected {
		s.mu.Unlock()
		return
	}
	s.state = Reconnecting
	s.emitLocked(Status{State: Reconnecting})
	s.mu.Unlock()

	if err := s.connect(); err != nil {
		logger.Debug("Reconnect failed: %v", err)
	}
}

func (s *Session) emitLocked(st Status) {
	select {
	case s.status <- st:
	default:
	}
}

// Join switches the current room. An empty key or the global key returns to
// the global room; joining your own name is ignored. Leaving a private room
// sends a leave for it.
func (s *Session) Join(room string) error {
	room = strings.TrimSpace(room)
	if room == "" {
		room = models.GlobalRoom
	}
	if room == s.username {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.state == GivenUp {
		return ErrClosed
	}
	if room == s.room {
		return nil
	}

	prev := s.room
	s.room = room
	if s.state != Connected {
		return nil
	}
	if prev != models.GlobalRoom {
		if err := s.enqueueLocked(models.InboundEvent{Event: models.EventLeave, Username: s.username, Room: prev}); err != nil {
			return err
		}
	}
	return s.enqueueLocked(s.joinEvent(room))
}

// Send posts content to the current room.
func (s *Session) Send(content string) error {
	content = strings.TrimSpace(content)
	if content == "" {
		return ErrEmptyMessage
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	return s.enqueueLocked(models.InboundEvent{
		Event:     models.EventSendMessage,
		Sender:    s.username,
		Recipient: s.recipientLocked(),
		Content:   content,
	})
}

// Typing tells the current private room that the user is typing. It does
// nothing in the global room.
func (s *Session) Typing() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.usableLocked(); err != nil {
		return err
	}
	recipient := s.recipientLocked()
	if recipient == "" {
		return nil
	}
	return s.enqueueLocked(models.InboundEvent{Event: models.EventTyping, Sender: s.username, Recipient: recipient})
}

func (s *Session) usableLocked() error {
	switch s.state {
	case GivenUp:
		return ErrClosed
	case Connected:
		return nil
	default:
		return ErrNotConnected
	}
}

func (s *Session) recipientLocked() string {
	if s.room == models.GlobalRoom {
		return ""
	}
	return s.room
}

func (s *Session) enqueueLocked(ev models.InboundEvent) error {
	select {
	case s.outbox <- encodeEvent(ev):
		return nil
	default:
		return ErrOutboxFull
	}
}

func (s *Session) joinEvent(room string) models.InboundEvent {
	return models.InboundEvent{Event: models.EventJoin, Username: s.username, Room: room}
}

// Close stops any pending retry, tells the server and ends the session. It is
// safe to call more than once.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.state == GivenUp {
		s.mu.Unlock()
		return nil
	}
	s.state = GivenUp
	if s.timer != nil {
		if s.timer.Stop() {
			s.wg.Done()
		}
		s.timer = nil
	}
	link := s.link
	if link != nil {
		close(s.outbox)
	}
	s.link = nil
	s.outbox = nil
	s.gen++
	s.mu.Unlock()

	if link != nil {
		_ = link.WriteMessage(encodeEvent(models.InboundEvent{Event: models.EventDisconnect}))
		link.Close()
	}
	s.cancel()
	s.wg.Wait()

	s.mu.Lock()
	s.emitLocked(Status{State: GivenUp})
	close(s.events)
	close(s.status)
	s.mu.Unlock()
	return nil
}

func encodeEvent(ev models.InboundEvent) []byte {
	data, err := json.Marshal(ev)
	if err != nil {
		logger.Error("Error marshaling %s event: %v", ev.Event, err)
		return nil
	}
	return data
}
