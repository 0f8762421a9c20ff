package hub

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"

	"github.com/btylerw/ChatterBox/internal/store"
	"github.com/btylerw/ChatterBox/internal/wire"
)

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	h := New(store.NewMemoryBroker(), zerolog.Nop())

	upgrader := websocket.Upgrader{CheckOrigin: func(*http.Request) bool { return true }}
	r := chi.NewRouter()
	r.Get("/ws/{chatID}", func(w http.ResponseWriter, req *http.Request) {
		chatID, _ := strconv.ParseInt(chi.URLParam(req, "chatID"), 10, 64)
		userID, _ := strconv.ParseInt(req.URL.Query().Get("user_id"), 10, 64)
		sock, err := upgrader.Upgrade(w, req, nil)
		if err != nil {
			return
		}
		h.Serve(req.Context(), sock, chatID, userID)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return h, srv
}

func dial(t *testing.T, srv *httptest.Server, chatID, userID int64) *websocket.Conn {
	t.Helper()
	u := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(
		u+"/ws/"+strconv.FormatInt(chatID, 10)+"?user_id="+strconv.FormatInt(userID, 10), nil)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readEnvelope(t *testing.T, conn *websocket.Conn) wire.Envelope {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read frame: %v", err)
	}
	env, err := wire.Decode(data)
	if err != nil {
		t.Fatalf("server relayed malformed frame: %v", err)
	}
	return env
}

func TestJoinSendsRosterThenJoin(t *testing.T) {
	_, srv := newHubServer(t)

	a := dial(t, srv, 7, 1)

	roster, ok := readEnvelope(t, a).(wire.RosterSnapshot)
	if !ok {
		t.Fatal("first frame must be the roster")
	}
	if len(roster.MemberIDs) != 0 {
		t.Fatalf("first joiner should see an empty roster, got %v", roster.MemberIDs)
	}

	joined, ok := readEnvelope(t, a).(wire.MemberJoined)
	if !ok || len(joined.MemberIDs) != 1 || joined.MemberIDs[0] != 1 {
		t.Fatalf("expected own join broadcast, got %#v", joined)
	}
}

func TestSecondJoinerSeesExistingMembers(t *testing.T) {
	_, srv := newHubServer(t)

	a := dial(t, srv, 7, 1)
	readEnvelope(t, a) // roster
	readEnvelope(t, a) // own join

	b := dial(t, srv, 7, 2)
	roster, ok := readEnvelope(t, b).(wire.RosterSnapshot)
	if !ok || len(roster.MemberIDs) != 1 || roster.MemberIDs[0] != 1 {
		t.Fatalf("expected roster [1], got %#v", roster)
	}

	joined, ok := readEnvelope(t, a).(wire.MemberJoined)
	if !ok || len(joined.MemberIDs) != 1 || joined.MemberIDs[0] != 2 {
		t.Fatalf("expected join broadcast for user 2, got %#v", joined)
	}
}

func TestChatMessageRelayedToEveryone(t *testing.T) {
	_, srv := newHubServer(t)

	a := dial(t, srv, 7, 1)
	readEnvelope(t, a)
	readEnvelope(t, a)
	b := dial(t, srv, 7, 2)
	readEnvelope(t, b)
	readEnvelope(t, a) // b's join
	readEnvelope(t, b) // b's own join

	frame, _ := wire.Encode(wire.ChatMessage{ActorID: 1, ActorName: "alice", Content: "hello"})
	if err := a.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatal(err)
	}

	for _, conn := range []*websocket.Conn{a, b} {
		msg, ok := readEnvelope(t, conn).(wire.ChatMessage)
		if !ok {
			t.Fatal("expected relayed chat message")
		}
		if msg.ActorName != "alice" || msg.Content != "hello" {
			t.Fatalf("unexpected relay: %+v", msg)
		}
	}
}

func TestLeaveBroadcast(t *testing.T) {
	_, srv := newHubServer(t)

	a := dial(t, srv, 7, 1)
	readEnvelope(t, a)
	readEnvelope(t, a)
	b := dial(t, srv, 7, 2)
	readEnvelope(t, b)
	readEnvelope(t, a)
	readEnvelope(t, b)

	b.Close()

	left, ok := readEnvelope(t, a).(wire.MemberLeft)
	if !ok || len(left.MemberIDs) != 1 || left.MemberIDs[0] != 2 {
		t.Fatalf("expected leave broadcast for user 2, got %#v", left)
	}
}

func TestMalformedAndServerOnlyFramesDropped(t *testing.T) {
	_, srv := newHubServer(t)

	a := dial(t, srv, 7, 1)
	readEnvelope(t, a)
	readEnvelope(t, a)

	// Neither garbage nor a forged roster may reach the channel or
	// close the connection.
	a.WriteMessage(websocket.TextMessage, []byte(`{"type":"bogus"}`))
	forged, _ := wire.Encode(wire.RosterSnapshot{MemberIDs: []int64{99}})
	a.WriteMessage(websocket.TextMessage, forged)

	frame, _ := wire.Encode(wire.ChatMessage{ActorID: 1, ActorName: "alice", Content: "still alive"})
	a.WriteMessage(websocket.TextMessage, frame)

	msg, ok := readEnvelope(t, a).(wire.ChatMessage)
	if !ok || msg.Content != "still alive" {
		t.Fatalf("expected the chat message next, got %#v", msg)
	}
}

// failingBroker rejects every subscription.
type failingBroker struct{}

func (failingBroker) Publish(context.Context, int64, []byte) error { return nil }
func (failingBroker) Subscribe(int64) (store.Subscription, error) {
	return nil, errors.New("broker unavailable")
}
func (failingBroker) Close() error { return nil }

// stubSocket satisfies Socket without a network peer.
type stubSocket struct {
	mu     sync.Mutex
	closed bool
}

func (s *stubSocket) ReadMessage() (int, []byte, error) { return 0, nil, errors.New("closed") }
func (s *stubSocket) WriteMessage(int, []byte) error    { return nil }
func (s *stubSocket) SetReadLimit(int64)                {}
func (s *stubSocket) SetReadDeadline(time.Time) error   { return nil }
func (s *stubSocket) SetWriteDeadline(time.Time) error  { return nil }
func (s *stubSocket) SetPongHandler(func(string) error) {}

func (s *stubSocket) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func (s *stubSocket) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestServeClosesSocketWhenJoinFails(t *testing.T) {
	h := New(failingBroker{}, zerolog.Nop())
	sock := &stubSocket{}

	if err := h.Serve(context.Background(), sock, 7, 1); err == nil {
		t.Fatal("expected subscribe error to surface")
	}
	if !sock.isClosed() {
		t.Fatal("socket must be closed when the join fails")
	}
}

func TestRoomsAreIsolated(t *testing.T) {
	_, srv := newHubServer(t)

	a := dial(t, srv, 7, 1)
	readEnvelope(t, a)
	readEnvelope(t, a)
	b := dial(t, srv, 9, 2)
	readEnvelope(t, b)
	readEnvelope(t, b)

	frame, _ := wire.Encode(wire.ChatMessage{ActorID: 2, ActorName: "bob", Content: "room 9 only"})
	b.WriteMessage(websocket.TextMessage, frame)
	readEnvelope(t, b) // own relay

	a.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
	if _, _, err := a.ReadMessage(); err == nil {
		t.Fatal("room 7 must not see room 9 traffic")
	}
}
