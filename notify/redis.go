// Package notify publishes lifecycle changes to Redis subscribers and
// mails event creators about review outcomes.
package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/phillip/campus-events-go/lifecycle"
)

// Message is the JSON document published for every persisted transition.
type Message struct {
	Type   string           `json:"type"`
	Change lifecycle.Change `json:"change"`
	SentAt time.Time        `json:"sent_at"`
}

// RedisNotifier publishes lifecycle changes on a pub/sub channel.
type RedisNotifier struct {
	client  *redis.Client
	channel string
	logger  zerolog.Logger
}

// NewRedisNotifier parses url (redis://...) and verifies the connection.
func NewRedisNotifier(ctx context.Context, url, channel string, logger zerolog.Logger) (*RedisNotifier, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	logger.Info().Str("addr", opts.Addr).Str("channel", channel).Msg("connected to Redis")
	return NewRedisNotifierFromClient(client, channel, logger), nil
}

func NewRedisNotifierFromClient(client *redis.Client, channel string, logger zerolog.Logger) *RedisNotifier {
	return &RedisNotifier{client: client, channel: channel, logger: logger}
}

func (n *RedisNotifier) Notify(ctx context.Context, change lifecycle.Change) error {
	payload, err := json.Marshal(Message{
		Type:   "event." + change.Transition.String(),
		Change: change,
		SentAt: time.Now().UTC(),
	})
	if err != nil {
		return fmt.Errorf("marshal lifecycle message: %w", err)
	}
	if err := n.client.Publish(ctx, n.channel, payload).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", n.channel, err)
	}
	n.logger.Debug().Str("channel", n.channel).Str("event_id", change.EventID.Hex()).Msg("published lifecycle change")
	return nil
}

func (n *RedisNotifier) Close() error {
	return n.client.Close()
}

// Multi fans a change out to several notifiers and joins their errors.
type Multi []lifecycle.Notifier

func (m Multi) Notify(ctx context.Context, change lifecycle.Change) error {
	var errs []error
	for _, n := range m {
		if n == nil {
			continue
		}
		if err := n.Notify(ctx, change); err != nil {
			errs = append(errs, err)
		}
	}
	return joinErrors(errs)
}
