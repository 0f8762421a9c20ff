package session

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gorilla/websocket"
)

// Conn is a live channel connection. ReadMessage blocks until the next
// frame or a transport error.
type Conn interface {
	ReadMessage() ([]byte, error)
	WriteMessage(data []byte) error
	Close() error
}

// Dialer opens a connection to a room's channel addressed by
// (room id, user id).
type Dialer interface {
	DialRoom(ctx context.Context, roomID, userID int64) (Conn, error)
}

// WebsocketDialer dials the server's /ws endpoint over gorilla.
type WebsocketDialer struct {
	BaseURL          string
	HandshakeTimeout time.Duration
}

// NewWebsocketDialer creates a dialer for a ws:// or wss:// base URL.
func NewWebsocketDialer(baseURL string) *WebsocketDialer {
	return &WebsocketDialer{
		BaseURL:          strings.TrimRight(baseURL, "/"),
		HandshakeTimeout: 10 * time.Second,
	}
}

// DialRoom opens the channel for one room.
func (d *WebsocketDialer) DialRoom(ctx context.Context, roomID, userID int64) (Conn, error) {
	u := fmt.Sprintf("%s/ws/%d?user_id=%d", d.BaseURL, roomID, userID)

	dialer := websocket.Dialer{HandshakeTimeout: d.HandshakeTimeout}
	conn, _, err := dialer.DialContext(ctx, u, nil)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", u, err)
	}
	return &wsConn{conn: conn}, nil
}

// wsConn adapts a gorilla connection to the Conn interface.
type wsConn struct {
	conn *websocket.Conn
}

func (c *wsConn) ReadMessage() ([]byte, error) {
	_, data, err := c.conn.ReadMessage()
	return data, err
}

func (c *wsConn) WriteMessage(data []byte) error {
	_ = c.conn.SetWriteDeadline(time.Now().Add(10 * time.Second))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

func (c *wsConn) Close() error {
	_ = c.conn.WriteControl(
		websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second),
	)
	return c.conn.Close()
}
