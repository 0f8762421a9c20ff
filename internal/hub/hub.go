// Package hub manages the server side of chat channels: per-chat
// connection registries, roster announcements and frame relay. Fan-out
// between server instances goes through a store.Broker so a frame
// published on one instance reaches clients connected to any other.
package hub

import (
	"context"
	"sync"

	"github.com/rs/zerolog"

	"github.com/btylerw/ChatterBox/internal/metrics"
	"github.com/btylerw/ChatterBox/internal/store"
	"github.com/btylerw/ChatterBox/internal/wire"
)

// Hub tracks which connections are attached to which chat.
type Hub struct {
	broker store.Broker
	logger zerolog.Logger

	mu    sync.Mutex
	rooms map[int64]*room
}

// room is the local registry for one chat: connections on this instance
// plus the broker subscription feeding them.
type room struct {
	conns map[*connection]struct{}
	sub   store.Subscription
}

// New creates a hub backed by the given broker.
func New(broker store.Broker, logger zerolog.Logger) *Hub {
	return &Hub{
		broker: broker,
		logger: logger.With().Str("component", "hub").Logger(),
		rooms:  make(map[int64]*room),
	}
}

// Serve runs one client connection until it drops: announce the current
// roster to the joiner, broadcast the join, relay frames, broadcast the
// leave. Blocks for the life of the connection.
func (h *Hub) Serve(ctx context.Context, sock Socket, chatID, userID int64) error {
	c := newConnection(sock, userID, h.logger)

	roster, err := h.join(chatID, c)
	if err != nil {
		// No pump owns the socket yet, so it must be closed here.
		sock.Close()
		return err
	}
	metrics.ChannelConnections.Inc()

	defer func() {
		h.leave(ctx, chatID, c)
		metrics.ChannelConnections.Dec()
	}()

	go c.writePump()

	// The joiner learns who was already here; everyone else learns
	// about the joiner. The roster deliberately excludes the joiner,
	// matching what clients expect to union their own id into.
	frame, err := wire.Encode(wire.RosterSnapshot{MemberIDs: roster})
	if err != nil {
		return err
	}
	c.enqueue(frame)

	if err := h.broadcast(ctx, chatID, wire.MemberJoined{MemberIDs: []int64{userID}}); err != nil {
		h.logger.Error().Err(err).Int64("chat", chatID).Msg("join broadcast failed")
	}

	h.logger.Info().Str("conn", c.id).Int64("chat", chatID).Int64("user", userID).Msg("client connected")

	c.readPump(func(data []byte) { h.handleFrame(ctx, chatID, c, data) })
	return nil
}

// join registers the connection and returns the ids already present
// locally, subscribing the room to the broker if it is the first one.
func (h *Hub) join(chatID int64, c *connection) ([]int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	r, ok := h.rooms[chatID]
	if !ok {
		sub, err := h.broker.Subscribe(chatID)
		if err != nil {
			return nil, err
		}
		r = &room{conns: make(map[*connection]struct{}), sub: sub}
		h.rooms[chatID] = r
		go h.fanout(chatID, sub)
	}

	roster := make([]int64, 0, len(r.conns))
	for conn := range r.conns {
		roster = append(roster, conn.userID)
	}
	r.conns[c] = struct{}{}
	return roster, nil
}

// leave removes the connection, tears the room down when it empties,
// and broadcasts the departure.
func (h *Hub) leave(ctx context.Context, chatID int64, c *connection) {
	h.mu.Lock()
	r, ok := h.rooms[chatID]
	if ok {
		if _, present := r.conns[c]; present {
			delete(r.conns, c)
			c.shutdown()
		}
		if len(r.conns) == 0 {
			r.sub.Close()
			delete(h.rooms, chatID)
		}
	}
	h.mu.Unlock()

	if err := h.broadcast(ctx, chatID, wire.MemberLeft{MemberIDs: []int64{c.userID}}); err != nil {
		h.logger.Error().Err(err).Int64("chat", chatID).Msg("leave broadcast failed")
	}
	h.logger.Info().Str("conn", c.id).Int64("chat", chatID).Int64("user", c.userID).Msg("client disconnected")
}

// fanout delivers broker payloads to every local connection of a chat.
// Exits when the room's subscription closes.
func (h *Hub) fanout(chatID int64, sub store.Subscription) {
	for payload := range sub.C() {
		h.mu.Lock()
		r, ok := h.rooms[chatID]
		if !ok {
			h.mu.Unlock()
			continue
		}
		for conn := range r.conns {
			conn.enqueue(payload)
		}
		h.mu.Unlock()
	}
}

// handleFrame validates and relays one inbound client frame.
func (h *Hub) handleFrame(ctx context.Context, chatID int64, c *connection, data []byte) {
	env, err := wire.Decode(data)
	if err != nil {
		metrics.ProtocolErrors.Inc()
		h.logger.Warn().Err(err).Str("conn", c.id).Msg("dropping malformed frame")
		return
	}

	switch env.(type) {
	case wire.ChatMessage, wire.Connect, wire.Disconnect:
		// Sender-authored events are relayed verbatim to the whole
		// chat, the sender included.
		metrics.FramesRelayed.WithLabelValues(frameType(env)).Inc()
		if err := h.broker.Publish(ctx, chatID, data); err != nil {
			h.logger.Error().Err(err).Int64("chat", chatID).Msg("relay failed")
		}
	default:
		// Roster and join/leave events are server-authoritative.
		metrics.ProtocolErrors.Inc()
		h.logger.Warn().Str("conn", c.id).Str("type", frameType(env)).Msg("dropping client frame of server-only type")
	}
}

// broadcast publishes a server-authored envelope to a chat.
func (h *Hub) broadcast(ctx context.Context, chatID int64, env wire.Envelope) error {
	data, err := wire.Encode(env)
	if err != nil {
		return err
	}
	metrics.FramesRelayed.WithLabelValues(frameType(env)).Inc()
	return h.broker.Publish(ctx, chatID, data)
}

func frameType(env wire.Envelope) string {
	switch env.(type) {
	case wire.Connect:
		return wire.TypeConnect
	case wire.Disconnect:
		return wire.TypeDisconnect
	case wire.ChatMessage:
		return wire.TypeChatMessage
	case wire.RosterSnapshot:
		return wire.TypeRosterSnapshot
	case wire.MemberJoined:
		return wire.TypeMemberJoined
	case wire.MemberLeft:
		return wire.TypeMemberLeft
	}
	return "unknown"
}
