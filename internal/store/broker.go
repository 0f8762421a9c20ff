package store

import (
	"context"
	"sync"
)

// Broker fans chat channel traffic out to every server instance
// subscribed to a chat. RedisStore implements it for multi-instance
// deployments; MemoryBroker keeps everything in-process for
// development and tests.
type Broker interface {
	Publish(ctx context.Context, chatID int64, payload []byte) error
	Subscribe(chatID int64) (Subscription, error)
	Close() error
}

// Subscription is one chat's inbound payload stream. C is closed when
// the subscription is closed.
type Subscription interface {
	C() <-chan []byte
	Close() error
}

// MemoryBroker is a single-process Broker.
type MemoryBroker struct {
	mu   sync.Mutex
	subs map[int64][]*memorySub
}

// NewMemoryBroker creates an empty in-process broker.
func NewMemoryBroker() *MemoryBroker {
	return &MemoryBroker{subs: make(map[int64][]*memorySub)}
}

// Publish delivers the payload to every subscriber of the chat. Slow
// subscribers have payloads dropped rather than blocking the publisher.
func (b *MemoryBroker) Publish(_ context.Context, chatID int64, payload []byte) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs[chatID] {
		select {
		case sub.ch <- payload:
		default:
		}
	}
	return nil
}

// Subscribe opens a payload stream for one chat.
func (b *MemoryBroker) Subscribe(chatID int64) (Subscription, error) {
	sub := &memorySub{
		broker: b,
		chatID: chatID,
		ch:     make(chan []byte, 64),
	}
	b.mu.Lock()
	b.subs[chatID] = append(b.subs[chatID], sub)
	b.mu.Unlock()
	return sub, nil
}

// Close drops all subscriptions.
func (b *MemoryBroker) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for chatID, subs := range b.subs {
		for _, sub := range subs {
			sub.once.Do(func() { close(sub.ch) })
		}
		delete(b.subs, chatID)
	}
	return nil
}

type memorySub struct {
	broker *MemoryBroker
	chatID int64
	ch     chan []byte
	once   sync.Once
}

func (s *memorySub) C() <-chan []byte { return s.ch }

func (s *memorySub) Close() error {
	s.once.Do(func() {
		b := s.broker
		b.mu.Lock()
		subs := b.subs[s.chatID]
		for i, sub := range subs {
			if sub == s {
				b.subs[s.chatID] = append(subs[:i], subs[i+1:]...)
				break
			}
		}
		if len(b.subs[s.chatID]) == 0 {
			delete(b.subs, s.chatID)
		}
		b.mu.Unlock()
		close(s.ch)
	})
	return nil
}
