package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/btylerw/ChatterBox/internal/models"
	"github.com/btylerw/ChatterBox/internal/wire"
)

type fakeConn struct {
	mu      sync.Mutex
	writes  [][]byte
	inbound chan []byte
	closed  bool
}

func newFakeConn() *fakeConn {
	return &fakeConn{inbound: make(chan []byte, 16)}
}

func (c *fakeConn) ReadMessage() ([]byte, error) {
	data, ok := <-c.inbound
	if !ok {
		return nil, io.EOF
	}
	return data, nil
}

func (c *fakeConn) WriteMessage(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return errors.New("write on closed connection")
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	c.writes = append(c.writes, cp)
	return nil
}

func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.inbound)
	}
	return nil
}

func (c *fakeConn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *fakeConn) sentEnvelopes(t *testing.T) []wire.Envelope {
	t.Helper()
	c.mu.Lock()
	defer c.mu.Unlock()
	envs := make([]wire.Envelope, 0, len(c.writes))
	for _, data := range c.writes {
		env, err := wire.Decode(data)
		if err != nil {
			t.Fatalf("manager sent malformed frame: %v", err)
		}
		envs = append(envs, env)
	}
	return envs
}

type dialRecord struct {
	conn         *fakeConn
	roomID       int64
	priorsClosed bool
}

type fakeDialer struct {
	mu    sync.Mutex
	dials []dialRecord
	gate  chan struct{} // when set, each dial waits for one receive
	err   error
}

func (d *fakeDialer) DialRoom(ctx context.Context, roomID, userID int64) (Conn, error) {
	if d.gate != nil {
		select {
		case <-d.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil {
		return nil, d.err
	}
	priorsClosed := true
	for _, rec := range d.dials {
		if !rec.conn.isClosed() {
			priorsClosed = false
		}
	}
	conn := newFakeConn()
	d.dials = append(d.dials, dialRecord{conn: conn, roomID: roomID, priorsClosed: priorsClosed})
	return conn, nil
}

func (d *fakeDialer) dialCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.dials)
}

func (d *fakeDialer) dial(i int) dialRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.dials[i]
}

type stubAuth struct {
	mu       sync.Mutex
	user     models.User
	signedIn bool
	logouts  int
}

func (a *stubAuth) Identity() (models.User, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.user, a.signedIn
}

func (a *stubAuth) Logout() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.signedIn = false
	a.logouts++
}

type stubUsers struct{}

func (stubUsers) ResolveUsers(_ context.Context, ids []int64) ([]models.User, error) {
	users := make([]models.User, len(ids))
	for i, id := range ids {
		users[i] = models.User{ID: id, Username: "user"}
	}
	return users, nil
}

func newTestManager(t *testing.T, d Dialer, opts ...Option) (*Manager, *stubAuth) {
	t.Helper()
	auth := &stubAuth{user: models.User{ID: 1, Username: "alice"}, signedIn: true}
	opts = append([]Option{WithGraceDelay(time.Millisecond)}, opts...)
	m := NewManager(d, auth, stubUsers{}, zerolog.Nop(), opts...)
	return m, auth
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

func TestSelectRoomAnnouncesConnectFirst(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)

	if err := m.SelectRoom(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	if m.State() != StateOpen {
		t.Fatalf("expected open, got %s", m.State())
	}

	envs := d.dial(0).conn.sentEnvelopes(t)
	if len(envs) != 1 {
		t.Fatalf("expected 1 frame, got %d", len(envs))
	}
	conn, ok := envs[0].(wire.Connect)
	if !ok {
		t.Fatalf("first frame must be connect, got %T", envs[0])
	}
	if conn.ActorID != 1 || conn.ActorName != "alice" {
		t.Fatalf("unexpected connect: %+v", conn)
	}
}

func TestSendRejectedUnlessOpen(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)

	if err := m.SendChatMessage("hi"); !errors.Is(err, ErrSendRejected) {
		t.Fatalf("expected ErrSendRejected while idle, got %v", err)
	}
	if d.dialCount() != 0 {
		t.Fatal("rejected send must not touch the transport")
	}
}

func TestSendRejectedWhileConnecting(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{})}
	m, _ := newTestManager(t, d)

	done := make(chan error, 1)
	go func() { done <- m.SelectRoom(context.Background(), 7) }()
	waitFor(t, func() bool { return m.State() == StateConnecting })

	if err := m.SendChatMessage("hi"); !errors.Is(err, ErrSendRejected) {
		t.Fatalf("expected ErrSendRejected while connecting, got %v", err)
	}

	d.gate <- struct{}{}
	if err := <-done; err != nil {
		t.Fatal(err)
	}
	if got := d.dial(0).conn.sentEnvelopes(t); len(got) != 1 {
		t.Fatalf("rejected send must produce no frame, got %d frames", len(got))
	}
}

func TestSendWhileOpenProducesOneFrame(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)
	if err := m.SelectRoom(context.Background(), 7); err != nil {
		t.Fatal(err)
	}

	if err := m.SendChatMessage("hi"); err != nil {
		t.Fatal(err)
	}

	envs := d.dial(0).conn.sentEnvelopes(t)
	if len(envs) != 2 {
		t.Fatalf("expected connect + chat frame, got %d", len(envs))
	}
	msg, ok := envs[1].(wire.ChatMessage)
	if !ok {
		t.Fatalf("expected chat_message, got %T", envs[1])
	}
	if msg.Content != "hi" || msg.ActorName != "alice" {
		t.Fatalf("unexpected frame: %+v", msg)
	}
}

func TestRoomSwitchClosesBeforeOpening(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)
	if err := m.SelectRoom(context.Background(), 7); err != nil {
		t.Fatal(err)
	}

	first := d.dial(0).conn
	first.inbound <- mustEncode(t, wire.ChatMessage{ActorID: 1, ActorName: "alice", Content: "hello"})
	waitFor(t, func() bool { return len(m.Log().All()) == 1 })

	if err := m.SelectRoom(context.Background(), 9); err != nil {
		t.Fatal(err)
	}

	envs := first.sentEnvelopes(t)
	last, ok := envs[len(envs)-1].(wire.Disconnect)
	if !ok {
		t.Fatalf("old room must get a disconnect, got %T", envs[len(envs)-1])
	}
	if last.ActorID != 1 {
		t.Fatalf("unexpected disconnect: %+v", last)
	}
	if !first.isClosed() {
		t.Fatal("old connection must be closed")
	}
	if !d.dial(1).priorsClosed {
		t.Fatal("new dial happened while the old connection was still live")
	}
	if d.dial(1).roomID != 9 {
		t.Fatalf("expected dial to room 9, got %d", d.dial(1).roomID)
	}
	if got := m.Log().All(); len(got) != 0 {
		t.Fatalf("log must reset on switch, got %v", got)
	}
	if m.Room() != 9 {
		t.Fatalf("expected room 9, got %d", m.Room())
	}
}

func TestSupersededAttemptIsDiscarded(t *testing.T) {
	d := &fakeDialer{gate: make(chan struct{}, 2)}
	m, _ := newTestManager(t, d)

	done := make(chan error, 1)
	go func() { done <- m.SelectRoom(context.Background(), 7) }()
	waitFor(t, func() bool { return m.State() == StateConnecting })

	// Logout supersedes the in-flight attempt before its dial lands.
	m.Logout()
	d.gate <- struct{}{}

	if err := <-done; err != nil {
		t.Fatalf("superseded attempt must not error, got %v", err)
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle, got %s", m.State())
	}
	waitFor(t, func() bool { return d.dial(0).conn.isClosed() })
	if envs := d.dial(0).conn.sentEnvelopes(t); len(envs) != 0 {
		t.Fatalf("stale connection must never be announced on, got %d frames", len(envs))
	}
}

func TestInboundDispatch(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)
	if err := m.SelectRoom(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	conn := d.dial(0).conn

	conn.inbound <- mustEncode(t, wire.RosterSnapshot{MemberIDs: []int64{1, 2, 3}})
	conn.inbound <- mustEncode(t, wire.MemberLeft{MemberIDs: []int64{2}})
	waitFor(t, func() bool {
		return len(m.Presence().Current(context.Background())) == 2
	})

	conn.inbound <- mustEncode(t, wire.MemberJoined{MemberIDs: []int64{2}})
	waitFor(t, func() bool {
		return len(m.Presence().Current(context.Background())) == 3
	})

	conn.inbound <- mustEncode(t, wire.ChatMessage{ActorID: 2, ActorName: "bob", Content: "hey"})
	waitFor(t, func() bool { return len(m.Log().All()) == 1 })
	got := m.Log().All()[0]
	if got.Author != "bob" || got.Content != "hey" {
		t.Fatalf("unexpected message: %+v", got)
	}
}

func TestRelayedConnectCountsAsJoin(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)
	if err := m.SelectRoom(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	conn := d.dial(0).conn

	conn.inbound <- mustEncode(t, wire.Connect{ActorID: 5, ActorName: "eve"})
	waitFor(t, func() bool {
		return len(m.Presence().Current(context.Background())) == 1
	})
	conn.inbound <- mustEncode(t, wire.Disconnect{ActorID: 5, ActorName: "eve"})
	waitFor(t, func() bool {
		return len(m.Presence().Current(context.Background())) == 0
	})
}

func TestMalformedFrameLeavesConnectionOpen(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)
	if err := m.SelectRoom(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	conn := d.dial(0).conn

	conn.inbound <- []byte(`{"type":"bogus"}`)
	conn.inbound <- []byte(`not json at all`)
	conn.inbound <- mustEncode(t, wire.ChatMessage{ActorID: 2, ActorName: "bob", Content: "still here"})

	waitFor(t, func() bool { return len(m.Log().All()) == 1 })
	if m.State() != StateOpen {
		t.Fatalf("protocol errors must not close the session, state %s", m.State())
	}
}

func TestServerCloseMovesToIdle(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)
	if err := m.SelectRoom(context.Background(), 7); err != nil {
		t.Fatal(err)
	}

	d.dial(0).conn.Close()
	waitFor(t, func() bool { return m.State() == StateIdle })

	// No automatic reconnect.
	time.Sleep(20 * time.Millisecond)
	if d.dialCount() != 1 {
		t.Fatalf("expected no reconnect attempt, got %d dials", d.dialCount())
	}
}

func TestDialFailure(t *testing.T) {
	d := &fakeDialer{err: errors.New("refused")}
	m, _ := newTestManager(t, d)

	if err := m.SelectRoom(context.Background(), 7); err == nil {
		t.Fatal("expected dial error")
	}
	if m.State() != StateIdle {
		t.Fatalf("expected idle after dial failure, got %s", m.State())
	}
}

func TestLogoutIsSafeFromAnyState(t *testing.T) {
	d := &fakeDialer{}
	m, auth := newTestManager(t, d)

	m.Logout() // idle: must not panic
	if auth.logouts != 1 {
		t.Fatalf("expected logout hook call, got %d", auth.logouts)
	}

	auth.mu.Lock()
	auth.signedIn = true
	auth.mu.Unlock()

	if err := m.SelectRoom(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	m.Logout()
	if m.State() != StateIdle {
		t.Fatalf("expected idle after logout, got %s", m.State())
	}
	if !d.dial(0).conn.isClosed() {
		t.Fatal("logout must close the connection")
	}
	envs := d.dial(0).conn.sentEnvelopes(t)
	if _, ok := envs[len(envs)-1].(wire.Disconnect); !ok {
		t.Fatalf("logout from open should announce disconnect, got %T", envs[len(envs)-1])
	}

	if err := m.SelectRoom(context.Background(), 7); !errors.Is(err, ErrNotAuthenticated) {
		t.Fatalf("expected ErrNotAuthenticated after logout, got %v", err)
	}
}

func TestSwitchScenarioDiscardsRoomState(t *testing.T) {
	d := &fakeDialer{}
	m, _ := newTestManager(t, d)
	if err := m.SelectRoom(context.Background(), 7); err != nil {
		t.Fatal(err)
	}
	conn := d.dial(0).conn

	conn.inbound <- mustEncode(t, wire.RosterSnapshot{MemberIDs: []int64{1}})
	conn.inbound <- mustEncode(t, wire.MemberJoined{MemberIDs: []int64{2}})
	conn.inbound <- mustEncode(t, wire.ChatMessage{ActorID: 1, ActorName: "alice", Content: "hello"})
	waitFor(t, func() bool { return len(m.Log().All()) == 1 })

	if err := m.SelectRoom(context.Background(), 9); err != nil {
		t.Fatal(err)
	}
	if got := m.Log().All(); len(got) != 0 {
		t.Fatalf("expected empty log in room 9, got %v", got)
	}
	if got := m.Presence().Current(context.Background()); len(got) != 0 {
		t.Fatalf("expected empty presence in room 9, got %v", got)
	}
}

func mustEncode(t *testing.T, env wire.Envelope) []byte {
	t.Helper()
	data, err := wire.Encode(env)
	if err != nil {
		t.Fatal(err)
	}
	return data
}
