package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
)

// RedisStore carries chat channel traffic over Redis pub/sub so every
// server instance sees every frame, wherever its sender is connected.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore creates a new Redis store.
func NewRedisStore(ctx context.Context, redisURL string) (*RedisStore, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opts)

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, err
	}

	return &RedisStore{client: client}, nil
}

// Close closes the Redis connection.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

// Ping checks the Redis connection.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// chatChannel returns the pub/sub channel name for a chat.
func chatChannel(chatID int64) string {
	return fmt.Sprintf("chat:%d", chatID)
}

// Publish sends a frame to a chat's channel.
func (s *RedisStore) Publish(ctx context.Context, chatID int64, payload []byte) error {
	return s.client.Publish(ctx, chatChannel(chatID), payload).Err()
}

// Subscribe opens a payload stream for one chat.
func (s *RedisStore) Subscribe(chatID int64) (Subscription, error) {
	pubsub := s.client.Subscribe(context.Background(), chatChannel(chatID))

	// Force the subscription to be established before traffic flows.
	if _, err := pubsub.Receive(context.Background()); err != nil {
		pubsub.Close()
		return nil, err
	}

	sub := &redisSub{pubsub: pubsub, out: make(chan []byte, 64)}
	go sub.pump()
	return sub, nil
}

type redisSub struct {
	pubsub *redis.PubSub
	out    chan []byte
	once   sync.Once
}

func (s *redisSub) pump() {
	for msg := range s.pubsub.Channel() {
		s.out <- []byte(msg.Payload)
	}
	close(s.out)
}

func (s *redisSub) C() <-chan []byte { return s.out }

func (s *redisSub) Close() error {
	var err error
	s.once.Do(func() { err = s.pubsub.Close() })
	return err
}
