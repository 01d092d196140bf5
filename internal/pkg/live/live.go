// Package live fans per-user updates out over Redis pub/sub so that every
// API instance can stream them to its connected clients.
package live

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2/log"
	"github.com/redis/go-redis/v9"
)

const channelPrefix = "live:user:"

// Channel returns the pub/sub channel of a user.
func Channel(userID string) string {
	return channelPrefix + userID
}

// Update is one message pushed to a user's live feed.
type Update struct {
	Kind    string          `json:"kind"`
	Payload json.RawMessage `json:"payload"`
	SentAt  time.Time       `json:"sent_at"`
}

// NewUpdate encodes payload into an Update of the given kind.
func NewUpdate(kind string, payload interface{}) (Update, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Update{}, fmt.Errorf("encode live payload: %w", err)
	}
	return Update{Kind: kind, Payload: raw, SentAt: time.Now().UTC()}, nil
}

// Hub publishes and subscribes to user channels.
type Hub struct {
	client *redis.Client
}

func NewHub(client *redis.Client) *Hub {
	return &Hub{client: client}
}

// Push publishes u to userID's channel. It succeeds with no subscribers.
func (h *Hub) Push(ctx context.Context, userID string, u Update) error {
	data, err := json.Marshal(u)
	if err != nil {
		return err
	}
	return h.client.Publish(ctx, Channel(userID), data).Err()
}

// Subscription is an open live feed of one user.
type Subscription struct {
	pubsub    *redis.PubSub
	updates   chan Update
	done      chan struct{}
	closeOnce sync.Once
}

// Updates delivers decoded updates until the subscription is closed.
func (s *Subscription) Updates() <-chan Update {
	return s.updates
}

// Close stops the subscription and closes Updates.
func (s *Subscription) Close() error {
	var err error
	s.closeOnce.Do(func() {
		close(s.done)
		err = s.pubsub.Close()
	})
	return err
}

// Subscribe opens userID's feed. The subscription is confirmed before it is
// returned, so updates pushed afterwards are not lost.
func (h *Hub) Subscribe(ctx context.Context, userID string) (*Subscription, error) {
	pubsub := h.client.Subscribe(ctx, Channel(userID))
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("subscribe %s: %w", Channel(userID), err)
	}

	sub := &Subscription{pubsub: pubsub, updates: make(chan Update, 16), done: make(chan struct{})}
	go func() {
		defer close(sub.updates)
		for msg := range pubsub.Channel() {
			var u Update
			if err := json.Unmarshal([]byte(msg.Payload), &u); err != nil {
				log.Warnf("[Live] Dropping malformed update on %s: %v", msg.Channel, err)
				continue
			}
			select {
			case sub.updates <- u:
			case <-sub.done:
				return
			}
		}
	}()
	return sub, nil
}
