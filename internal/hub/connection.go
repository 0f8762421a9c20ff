package hub

import (
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 8192
)

// Socket is the subset of *websocket.Conn the hub needs.
type Socket interface {
	ReadMessage() (int, []byte, error)
	WriteMessage(messageType int, data []byte) error
	SetReadLimit(limit int64)
	SetReadDeadline(t time.Time) error
	SetWriteDeadline(t time.Time) error
	SetPongHandler(h func(string) error)
	Close() error
}

// connection is one WebSocket participant in one chat. Reads and writes
// run on separate goroutines so a slow reader cannot block fan-out.
type connection struct {
	id     string
	userID int64
	sock   Socket
	send   chan []byte
	logger zerolog.Logger
	once   sync.Once
}

func newConnection(sock Socket, userID int64, logger zerolog.Logger) *connection {
	return &connection{
		id:     uuid.NewString(),
		userID: userID,
		sock:   sock,
		send:   make(chan []byte, 64),
		logger: logger,
	}
}

// enqueue buffers a payload for async delivery, dropping when the
// buffer is full.
func (c *connection) enqueue(payload []byte) {
	select {
	case c.send <- payload:
	default:
		c.logger.Warn().Str("conn", c.id).Msg("dropping frame for slow connection")
	}
}

// shutdown closes the send channel, letting the write pump drain and
// send a close frame.
func (c *connection) shutdown() {
	c.once.Do(func() { close(c.send) })
}

// readPump feeds inbound frames to the handler until the connection
// drops.
func (c *connection) readPump(handle func(data []byte)) {
	defer c.sock.Close()

	c.sock.SetReadLimit(maxMessageSize)
	_ = c.sock.SetReadDeadline(time.Now().Add(pongWait))
	c.sock.SetPongHandler(func(string) error {
		return c.sock.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, data, err := c.sock.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.logger.Warn().Err(err).Str("conn", c.id).Msg("read error")
			}
			return
		}
		handle(data)
	}
}

// writePump drains the send channel to the socket, keeping the
// connection alive with pings.
func (c *connection) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.sock.Close()
	}()

	for {
		select {
		case payload, ok := <-c.send:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.sock.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.sock.WriteMessage(websocket.TextMessage, payload); err != nil {
				c.logger.Warn().Err(err).Str("conn", c.id).Msg("write error")
				return
			}
		case <-ticker.C:
			_ = c.sock.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.sock.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
