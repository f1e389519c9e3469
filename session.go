// Connection sessions
//
// Every visit to $prefix/connect gets its own session with a random 8-char
// ID. A session owns one AppState, and only the session's own goroutine
// mutates it, so events are applied one at a time in the order they arrive.
//
// Features:
// - WebSockets per session: /connect/:sessionid and /connect/:sessionid/ws
// - Every keystroke in either input is forwarded as an "input" event
// - "find" and "reset" events recompute the state and broadcast it
// - Every attached client (e.g. several tabs) sees the same state
// - Plain form posts work without JavaScript
// - Sessions auto-reaped after configurable idle timeout
// - In-browser QR link to share the current session, backed by go-qrcode

package main

import (
	"context"
	"crypto/rand"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var errSessionClosed = errors.New("session closed")

// ClientMessage is sent by the browser.
type ClientMessage struct {
	Type  string `json:"type"`            // "input", "find", "reset"
	Field string `json:"field,omitempty"` // input: "player1" or "player2"
	Value string `json:"value,omitempty"` // input: raw field contents

	// find: current contents of both inputs, applied before the search
	Players map[string]string `json:"players,omitempty"`
}

// StateMessage is broadcast to every client after each applied event.
type StateMessage struct {
	Type        string   `json:"type"` // "state"
	Player1     string   `json:"player1"`
	Player2     string   `json:"player2"`
	Connections []string `json:"connections"`
	ShowResult  bool     `json:"show_result"`
	ResultHTML  string   `json:"result_html,omitempty"`
}

type Client struct {
	id   string
	conn *websocket.Conn
	send chan any
}

func newClient(conn *websocket.Conn) *Client {
	return &Client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan any, 8),
	}
}

type sessionEvent struct {
	msg  ClientMessage
	done chan AppState
}

type Session struct {
	id      string
	cfg     *Config
	metrics *Metrics

	clients map[*Client]bool
	state   AppState

	register chan *Client
	unreg    chan *Client
	events   chan sessionEvent
	quit     chan struct{}
	stopped  chan struct{}
	stopOnce sync.Once

	mu sync.RWMutex

	createdAt  time.Time
	lastActive time.Time
}

func newSession(cfg *Config, metrics *Metrics, sessionID string) *Session {
	now := time.Now()
	return &Session{
		id:         sessionID,
		cfg:        cfg,
		metrics:    metrics,
		clients:    make(map[*Client]bool),
		state:      NewAppState(),
		register:   make(chan *Client),
		unreg:      make(chan *Client),
		events:     make(chan sessionEvent),
		quit:       make(chan struct{}),
		stopped:    make(chan struct{}),
		createdAt:  now,
		lastActive: now,
	}
}

func (s *Session) run() {
	defer close(s.stopped)

	for {
		select {
		case c := <-s.register:
			s.mu.Lock()
			s.lastActive = time.Now()
			s.clients[c] = true
			s.metrics.clientConnected()
			s.sendStateLocked(c)
			s.mu.Unlock()

			logf(s.cfg, "SESSIONS: Client %s attached to %s", c.id, s.id)

		case c := <-s.unreg:
			s.mu.Lock()
			s.lastActive = time.Now()
			s.dropLocked(c)
			s.mu.Unlock()

			logf(s.cfg, "SESSIONS: Client %s left %s", c.id, s.id)

		case ev := <-s.events:
			s.mu.Lock()
			s.lastActive = time.Now()
			s.applyLocked(ev.msg)
			snapshot := s.state.Clone()
			s.broadcastStateLocked()
			s.mu.Unlock()

			if ev.done != nil {
				ev.done <- snapshot
			}

		case <-s.quit:
			s.closeAll()
			return
		}
	}
}

// applyLocked assumes s.mu is already held.
func (s *Session) applyLocked(msg ClientMessage) {
	switch msg.Type {
	case "input":
		s.state = s.state.withInput(msg.Field, msg.Value)
	case "find":
		for _, field := range []string{fieldPlayer1, fieldPlayer2} {
			if value, ok := msg.Players[field]; ok {
				s.state = s.state.withInput(field, value)
			}
		}
		s.state = s.state.FindConnection()
		logf(s.cfg, "SESSIONS: Found connections between %q and %q in %s", s.state.Player1, s.state.Player2, s.id)
	case "reset":
		s.state = s.state.Reset()
		logf(s.cfg, "SESSIONS: Reset %s", s.id)
	default:
		return
	}

	s.metrics.actionApplied(msg.Type)
}

func (s *Session) stateMessageLocked() StateMessage {
	resultHTML, err := renderResult(s.cfg, s.id, s.state)
	if err != nil {
		errorf(s.cfg, "SESSIONS: Rendering result for %s: %v", s.id, err)
	}

	state := s.state.Clone()

	return StateMessage{
		Type:        "state",
		Player1:     state.Player1,
		Player2:     state.Player2,
		Connections: state.Connections,
		ShowResult:  state.HasResults(),
		ResultHTML:  resultHTML,
	}
}

func (s *Session) sendStateLocked(c *Client) {
	select {
	case c.send <- s.stateMessageLocked():
	default:
		s.dropLocked(c)
	}
}

func (s *Session) broadcastStateLocked() {
	msg := s.stateMessageLocked()

	for client := range s.clients {
		select {
		case client.send <- msg:
		default:
			s.dropLocked(client)
		}
	}
}

// dropLocked detaches c and closes its send channel, once.
func (s *Session) dropLocked(c *Client) {
	if _, ok := s.clients[c]; !ok {
		return
	}

	delete(s.clients, c)
	close(c.send)
	s.metrics.clientDisconnected()
}

func (s *Session) closeAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	for c := range s.clients {
		s.dropLocked(c)
	}
}

// snapshot returns a copy of the current state.
func (s *Session) snapshot() AppState {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.state.Clone()
}

func (s *Session) idleSince() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.lastActive
}

func (s *Session) attach(c *Client) error {
	select {
	case s.register <- c:
		return nil
	case <-s.quit:
		return errSessionClosed
	}
}

func (s *Session) detach(c *Client) {
	select {
	case s.unreg <- c:
	case <-s.quit:
	}
}

// post queues msg without waiting for it to be applied.
func (s *Session) post(msg ClientMessage) error {
	select {
	case s.events <- sessionEvent{msg: msg}:
		return nil
	case <-s.quit:
		return errSessionClosed
	}
}

// dispatch applies msg and returns the resulting state.
func (s *Session) dispatch(ctx context.Context, msg ClientMessage) (AppState, error) {
	ev := sessionEvent{
		msg:  msg,
		done: make(chan AppState, 1),
	}

	select {
	case s.events <- ev:
	case <-s.quit:
		return AppState{}, errSessionClosed
	case <-ctx.Done():
		return AppState{}, ctx.Err()
	}

	select {
	case state := <-ev.done:
		return state, nil
	case <-ctx.Done():
		return AppState{}, ctx.Err()
	}
}

// stop ends the session goroutine and waits for it to exit.
func (s *Session) stop() {
	s.stopOnce.Do(func() {
		close(s.quit)
	})
	<-s.stopped
}

// SessionManager holds a set of sessions keyed by ID, so each
// $prefix/connect/$sessionid is its own isolated lookup.
type SessionManager struct {
	mu          sync.Mutex
	sessions    map[string]*Session
	cfg         *Config
	metrics     *Metrics
	idleTimeout time.Duration

	quit     chan struct{}
	wg       sync.WaitGroup
	stopOnce sync.Once
}

func newSessionManager(cfg *Config, metrics *Metrics, idleTimeout time.Duration) *SessionManager {
	sm := &SessionManager{
		sessions:    make(map[string]*Session),
		cfg:         cfg,
		metrics:     metrics,
		idleTimeout: idleTimeout,
		quit:        make(chan struct{}),
	}
	if idleTimeout > 0 {
		sm.wg.Add(1)
		go sm.reaperLoop()
	}
	return sm
}

func (sm *SessionManager) getSession(sessionID string) (*Session, error) {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	select {
	case <-sm.quit:
		return nil, errSessionClosed
	default:
	}

	if s, ok := sm.sessions[sessionID]; ok {
		return s, nil
	}

	s := newSession(sm.cfg, sm.metrics, sessionID)
	sm.sessions[sessionID] = s
	go s.run()

	sm.metrics.sessionOpened()
	logf(sm.cfg, "SESSIONS: Opened %s", sessionID)

	return s, nil
}

func (sm *SessionManager) count() int {
	sm.mu.Lock()
	defer sm.mu.Unlock()

	return len(sm.sessions)
}

// newSessionID generates a crypto-random session ID and ensures it doesn't
// collide with existing sessions.
func (sm *SessionManager) newSessionID() string {
	const letters = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	for {
		buf := make([]byte, 8)
		if _, err := rand.Read(buf); err != nil {
			panic("crypto/rand failure: " + err.Error())
		}
		out := make([]byte, 8)
		for i := range out {
			out[i] = letters[int(buf[i])%len(letters)]
		}
		id := string(out)

		sm.mu.Lock()
		_, exists := sm.sessions[id]
		sm.mu.Unlock()

		if !exists {
			return id
		}
	}
}

// reap removes sessions that have been idle since before cutoff.
func (sm *SessionManager) reap(cutoff time.Time) int {
	var idle []*Session

	sm.mu.Lock()
	for id, s := range sm.sessions {
		if s.idleSince().Before(cutoff) {
			delete(sm.sessions, id)
			idle = append(idle, s)
		}
	}
	sm.mu.Unlock()

	for _, s := range idle {
		s.stop()
		sm.metrics.sessionClosed()
		logf(sm.cfg, "SESSIONS: Reaped idle session %s", s.id)
	}

	return len(idle)
}

// reaperLoop periodically removes sessions that have been idle longer than idleTimeout.
func (sm *SessionManager) reaperLoop() {
	defer sm.wg.Done()

	ticker := time.NewTicker(sm.idleTimeout / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			sm.reap(time.Now().Add(-sm.idleTimeout))
		case <-sm.quit:
			return
		}
	}
}

// Close stops the reaper and every session.
func (sm *SessionManager) Close() {
	sm.stopOnce.Do(func() {
		sm.mu.Lock()
		close(sm.quit)
		sessions := sm.sessions
		sm.sessions = make(map[string]*Session)
		sm.mu.Unlock()

		for _, s := range sessions {
			s.stop()
			sm.metrics.sessionClosed()
		}

		sm.wg.Wait()
	})
}
