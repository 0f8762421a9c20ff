// Package session owns the single live connection to a chat room: its
// lifecycle across room switches and logout, and the routing of decoded
// frames to the presence tracker and the message log.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/btylerw/ChatterBox/internal/directory"
	"github.com/btylerw/ChatterBox/internal/models"
	"github.com/btylerw/ChatterBox/internal/presence"
	"github.com/btylerw/ChatterBox/internal/wire"
)

// State is the connection lifecycle state.
type State uint8

const (
	StateIdle State = iota
	StateConnecting
	StateOpen
	StateClosing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateConnecting:
		return "connecting"
	case StateOpen:
		return "open"
	case StateClosing:
		return "closing"
	}
	return "unknown"
}

var (
	// ErrSendRejected reports a send attempted while the session is not
	// open. The message is discarded, never queued.
	ErrSendRejected = errors.New("session not open, message discarded")

	// ErrNotAuthenticated reports a room selection without a signed-in
	// identity.
	ErrNotAuthenticated = errors.New("not signed in")
)

// defaultGraceDelay separates closing the old room's connection from
// opening the next one, giving the server a chance to process the leave
// before the join arrives.
const defaultGraceDelay = 250 * time.Millisecond

// Observer receives push notifications from the session. All methods
// are called outside the manager's lock.
type Observer interface {
	MessageReceived(msg DisplayMessage)
	StateChanged(state State)
}

// Manager guarantees at most one open connection per client and a
// deterministic event sequence around every room switch. Every attempt
// to connect carries an epoch number; bumping the epoch supersedes any
// in-flight dial or reader, so a stale open confirmation or a late
// frame for an abandoned room is ignored instead of racing the current
// one.
type Manager struct {
	dialer   Dialer
	auth     directory.AuthContext
	presence *presence.Tracker
	log      *MessageLog
	logger   zerolog.Logger
	grace    time.Duration
	observer Observer

	mu       sync.Mutex
	state    State
	epoch    uint64
	conn     Conn
	roomID   int64
	identity models.User
}

// Option configures a Manager.
type Option func(*Manager)

// WithGraceDelay overrides the close-to-reopen delay.
func WithGraceDelay(d time.Duration) Option {
	return func(m *Manager) { m.grace = d }
}

// WithObserver registers a push observer for messages and state.
func WithObserver(o Observer) Option {
	return func(m *Manager) { m.observer = o }
}

// NewManager creates an idle session manager.
func NewManager(dialer Dialer, auth directory.AuthContext, users directory.UserDirectory, logger zerolog.Logger, opts ...Option) *Manager {
	m := &Manager{
		dialer:   dialer,
		auth:     auth,
		presence: presence.NewTracker(users),
		log:      NewMessageLog(),
		logger:   logger.With().Str("component", "session").Logger(),
		grace:    defaultGraceDelay,
		state:    StateIdle,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Room returns the id of the room the session is bound to.
func (m *Manager) Room() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.roomID
}

// Log returns the message log for the active room.
func (m *Manager) Log() *MessageLog { return m.log }

// Presence returns the presence tracker for the active room.
func (m *Manager) Presence() *presence.Tracker { return m.presence }

// SelectRoom switches the session to the given room: tear down any
// existing connection, clear the previous room's view state, wait out
// the grace delay, then dial. A SelectRoom issued while a previous one
// is still in flight supersedes it.
func (m *Manager) SelectRoom(ctx context.Context, roomID int64) error {
	ident, ok := m.auth.Identity()
	if !ok {
		return ErrNotAuthenticated
	}

	m.mu.Lock()
	m.epoch++
	ep := m.epoch
	hadConn := m.teardownLocked()
	m.state = StateConnecting
	m.roomID = roomID
	m.identity = ident
	m.log.Clear()
	m.presence.Reset()
	m.mu.Unlock()
	m.notifyState(StateConnecting)

	if hadConn && m.grace > 0 {
		timer := time.NewTimer(m.grace)
		select {
		case <-ctx.Done():
			timer.Stop()
			m.abandonAttempt(ep)
			return ctx.Err()
		case <-timer.C:
		}
	}

	conn, err := m.dialer.DialRoom(ctx, roomID, ident.ID)

	m.mu.Lock()
	if ep != m.epoch {
		// Superseded by a newer SelectRoom or Logout while dialing.
		m.mu.Unlock()
		if err == nil {
			conn.Close()
		}
		m.logger.Debug().Int64("room", roomID).Msg("discarding superseded connection attempt")
		return nil
	}
	if err != nil {
		m.state = StateIdle
		m.mu.Unlock()
		m.notifyState(StateIdle)
		return fmt.Errorf("open room %d: %w", roomID, err)
	}

	m.conn = conn
	m.state = StateOpen

	// Announce presence before anything else can be sent on this
	// connection.
	frame, encErr := wire.Encode(wire.Connect{ActorID: ident.ID, ActorName: ident.Username})
	if encErr == nil {
		encErr = conn.WriteMessage(frame)
	}
	if encErr != nil {
		m.conn = nil
		m.state = StateIdle
		m.mu.Unlock()
		conn.Close()
		m.notifyState(StateIdle)
		return fmt.Errorf("announce presence in room %d: %w", roomID, encErr)
	}
	m.mu.Unlock()

	m.logger.Info().Int64("room", roomID).Int64("user", ident.ID).Msg("connected")
	m.notifyState(StateOpen)

	go m.readLoop(ep, conn)
	return nil
}

// SendChatMessage sends one chat frame. Rejected with ErrSendRejected
// unless the session is open; a rejected message produces no outbound
// frame and is never buffered.
func (m *Manager) SendChatMessage(content string) error {
	m.mu.Lock()
	if m.state != StateOpen || m.conn == nil {
		state := m.state
		m.mu.Unlock()
		return fmt.Errorf("%w (state %s)", ErrSendRejected, state)
	}

	frame, err := wire.Encode(wire.ChatMessage{
		ActorID:   m.identity.ID,
		ActorName: m.identity.Username,
		Content:   content,
	})
	if err != nil {
		m.mu.Unlock()
		return err
	}

	conn := m.conn
	if err := conn.WriteMessage(frame); err != nil {
		m.epoch++
		m.conn = nil
		m.state = StateIdle
		m.mu.Unlock()
		conn.Close()
		m.logger.Warn().Err(err).Msg("send failed, connection dropped")
		m.notifyState(StateIdle)
		return fmt.Errorf("send message: %w", err)
	}
	m.mu.Unlock()
	return nil
}

// Logout tears the session down unconditionally. Safe to call from any
// state; always leaves the manager idle, then invokes the auth
// context's logout hook.
func (m *Manager) Logout() {
	m.mu.Lock()
	m.epoch++
	m.teardownLocked()
	m.state = StateIdle
	m.roomID = 0
	m.identity = models.User{}
	m.log.Clear()
	m.presence.Reset()
	m.mu.Unlock()

	m.notifyState(StateIdle)
	m.auth.Logout()
}

// teardownLocked performs the Open→Closing exit sequence: best-effort
// disconnect frame, then close. Reports whether a connection existed.
func (m *Manager) teardownLocked() bool {
	if m.conn == nil {
		return false
	}
	if m.state == StateOpen {
		if frame, err := wire.Encode(wire.Disconnect{
			ActorID:   m.identity.ID,
			ActorName: m.identity.Username,
		}); err == nil {
			_ = m.conn.WriteMessage(frame)
		}
	}
	m.state = StateClosing
	_ = m.conn.Close()
	m.conn = nil
	return true
}

// abandonAttempt moves a still-current attempt back to idle after its
// context was cancelled.
func (m *Manager) abandonAttempt(ep uint64) {
	m.mu.Lock()
	if ep != m.epoch {
		m.mu.Unlock()
		return
	}
	m.state = StateIdle
	m.mu.Unlock()
	m.notifyState(StateIdle)
}

// readLoop pumps inbound frames for one connection attempt. The epoch
// check makes frames and closes from superseded connections inert.
func (m *Manager) readLoop(ep uint64, conn Conn) {
	for {
		data, err := conn.ReadMessage()
		if err != nil {
			m.mu.Lock()
			if ep != m.epoch {
				m.mu.Unlock()
				return
			}
			m.conn = nil
			m.state = StateIdle
			m.mu.Unlock()
			m.logger.Warn().Err(err).Msg("connection closed")
			m.notifyState(StateIdle)
			return
		}
		m.handleFrame(ep, data)
	}
}

// handleFrame decodes and dispatches one inbound frame. Malformed
// frames are logged and dropped; the connection stays open.
func (m *Manager) handleFrame(ep uint64, data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		m.logger.Warn().Err(err).Msg("dropping malformed frame")
		return
	}

	m.mu.Lock()
	if ep != m.epoch {
		m.mu.Unlock()
		return
	}

	var received *DisplayMessage
	switch v := env.(type) {
	case wire.ChatMessage:
		msg := DisplayMessage{
			ID:      time.Now().UnixMilli(),
			Author:  v.ActorName,
			Content: v.Content,
		}
		m.log.Append(msg)
		received = &msg
	case wire.RosterSnapshot:
		m.presence.ApplySnapshot(v.MemberIDs)
	case wire.MemberJoined:
		m.presence.ApplyJoin(v.MemberIDs)
	case wire.MemberLeft:
		m.presence.ApplyLeave(v.MemberIDs)
	case wire.Connect:
		m.presence.ApplyJoin([]int64{v.ActorID})
	case wire.Disconnect:
		m.presence.ApplyLeave([]int64{v.ActorID})
	}
	m.mu.Unlock()

	if received != nil && m.observer != nil {
		m.observer.MessageReceived(*received)
	}
}

func (m *Manager) notifyState(s State) {
	if m.observer != nil {
		m.observer.StateChanged(s)
	}
}
