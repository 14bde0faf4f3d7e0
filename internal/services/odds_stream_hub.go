package services

import (
	"context"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// OddsStreamHub multiplexes the odds pub/sub channel to many SSE clients without
// opening a Redis subscription per HTTP request.
type OddsStreamHub struct {
	redis       *redis.Client
	channelName string

	mu          sync.RWMutex
	subscribers map[chan []byte]struct{}
	ready       chan struct{}
	readyOnce   sync.Once
}

// NewOddsStreamHub starts a hub that runs until ctx is done.
func NewOddsStreamHub(ctx context.Context, rdb *redis.Client, channel string) *OddsStreamHub {
	hub := &OddsStreamHub{
		redis:       rdb,
		channelName: channel,
		subscribers: make(map[chan []byte]struct{}),
		ready:       make(chan struct{}),
	}

	go hub.run(ctx)

	return hub
}

// Ready is closed once the first Redis subscription is confirmed.
func (h *OddsStreamHub) Ready() <-chan struct{} {
	return h.ready
}

func (h *OddsStreamHub) run(ctx context.Context) {
	for ctx.Err() == nil {
		pubsub := h.redis.Subscribe(ctx, h.channelName)
		if _, err := pubsub.Receive(ctx); err == nil {
			h.readyOnce.Do(func() { close(h.ready) })
			ch := pubsub.Channel(redis.WithChannelSize(4096))
			h.pump(ctx, ch)
		}
		_ = pubsub.Close()

		// Avoid tight loop if Redis connection drops
		select {
		case <-ctx.Done():
		case <-time.After(time.Second):
		}
	}
}

func (h *OddsStreamHub) pump(ctx context.Context, ch <-chan *redis.Message) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			h.broadcast([]byte(msg.Payload))
		}
	}
}

func (h *OddsStreamHub) broadcast(payload []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for sub := range h.subscribers {
		select {
		case sub <- payload:
		default:
			// Subscriber is too slow; drop its oldest message to keep the hub responsive
			select {
			case <-sub:
			default:
			}
			select {
			case sub <- payload:
			default:
			}
		}
	}
}

// Subscribe registers a new listener and returns a channel plus cleanup function.
func (h *OddsStreamHub) Subscribe() (<-chan []byte, func()) {
	ch := make(chan []byte, 256)

	h.mu.Lock()
	h.subscribers[ch] = struct{}{}
	h.mu.Unlock()

	unsubscribe := func() {
		h.mu.Lock()
		if _, ok := h.subscribers[ch]; ok {
			delete(h.subscribers, ch)
			close(ch)
		}
		h.mu.Unlock()
	}

	return ch, unsubscribe
}

// Subscribers returns the number of connected listeners.
func (h *OddsStreamHub) Subscribers() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subscribers)
}
