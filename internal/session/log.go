package session

import "sync"

// DisplayMessage is one rendered chat line. The ID is assigned locally
// from the wall clock when the frame arrives; messages are immutable
// after creation and discarded on room switch.
type DisplayMessage struct {
	ID      int64  `json:"id"`
	Author  string `json:"author"`
	Content string `json:"content"`
}

// MessageLog is the append-only message sequence for the active room.
type MessageLog struct {
	mu   sync.Mutex
	msgs []DisplayMessage
}

// NewMessageLog creates an empty log.
func NewMessageLog() *MessageLog {
	return &MessageLog{}
}

// Append adds a message to the end of the log.
func (l *MessageLog) Append(msg DisplayMessage) {
	l.mu.Lock()
	l.msgs = append(l.msgs, msg)
	l.mu.Unlock()
}

// Clear discards the log. Called exactly once per room switch, when the
// old room's connection begins teardown, so history never mixes rooms.
func (l *MessageLog) Clear() {
	l.mu.Lock()
	l.msgs = nil
	l.mu.Unlock()
}

// All returns the messages in arrival order.
func (l *MessageLog) All() []DisplayMessage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]DisplayMessage, len(l.msgs))
	copy(out, l.msgs)
	return out
}
