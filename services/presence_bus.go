package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"strings"
	"time"

	"couple-sync-system/models"

	goredis "github.com/redis/go-redis/v9"
)

// presenceMessage is the envelope broadcast on the presence channel. The
// channel is append/broadcast-only and never used for correctness-critical
// decisions — it carries presence heartbeats and session-completed pings.
type presenceMessage struct {
	Kind    string                `json:"kind"` // "presence" | "session_completed"
	State   *models.PresenceState `json:"state,omitempty"`
	Session *models.GameSession   `json:"session,omitempty"`
}

// PresenceBus is the ephemeral pub/sub transport between instances.
type PresenceBus interface {
	Publish(ctx context.Context, msg presenceMessage) error
	StartForwarder(ctx context.Context, onMsg func(m presenceMessage)) error
	Close() error
}

type redisPresenceBus struct {
	rdb     *goredis.Client
	channel string
}

// NewRedisPresenceBus connects to REDIS_ADDR and subscribes all instances to
// one shared channel; messages carry the couple id.
func NewRedisPresenceBus() (PresenceBus, error) {
	addr := strings.TrimSpace(os.Getenv("REDIS_ADDR"))
	if addr == "" {
		return nil, fmt.Errorf("missing REDIS_ADDR")
	}
	ch := strings.TrimSpace(os.Getenv("PRESENCE_CHANNEL"))
	if ch == "" {
		ch = "presence"
	}

	rdb := goredis.NewClient(&goredis.Options{
		Addr:        addr,
		DialTimeout: 5 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}

	return &redisPresenceBus{rdb: rdb, channel: ch}, nil
}

func (b *redisPresenceBus) Publish(ctx context.Context, msg presenceMessage) error {
	raw, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	return b.rdb.Publish(ctx, b.channel, raw).Err()
}

func (b *redisPresenceBus) StartForwarder(ctx context.Context, onMsg func(m presenceMessage)) error {
	sub := b.rdb.Subscribe(ctx, b.channel)

	// ensures subscription actually started
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return fmt.Errorf("redis subscribe: %w", err)
	}

	go func() {
		ch := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				_ = sub.Close()
				return
			case m, ok := <-ch:
				if !ok || m == nil {
					_ = sub.Close()
					return
				}
				var msg presenceMessage
				if err := json.Unmarshal([]byte(m.Payload), &msg); err != nil {
					log.Printf("⚠️  Bad presence payload: %v", err)
					continue
				}
				onMsg(msg)
			}
		}
	}()

	return nil
}

func (b *redisPresenceBus) Close() error {
	return b.rdb.Close()
}
