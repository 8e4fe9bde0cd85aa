package redis

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/mmitache88/polymarket-bots/internal/domain"
)

// streamMaxLen caps each durable stream with approximate trimming.
const streamMaxLen = 10_000

// EventBus implements pub/sub and durable streams on Redis. Publish/Subscribe
// carry live bot events (fills, rejections, kill switch); streams keep the
// decision history for replay.
type EventBus struct {
	client *Client
	logger *slog.Logger
}

var _ domain.EventBus = (*EventBus)(nil)

// NewEventBus creates an event bus on top of an established client.
func NewEventBus(client *Client, logger *slog.Logger) *EventBus {
	return &EventBus{
		client: client,
		logger: logger.With(slog.String("component", "event_bus")),
	}
}

// Publish sends payload to all current subscribers of channel. Delivery is
// fire-and-forget.
func (b *EventBus) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := b.client.rdb.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis: publish %s: %w", channel, err)
	}
	return nil
}

// Subscribe returns a channel of payloads published to channel. Glob
// patterns (e.g. "events.*") use PSUBSCRIBE. The returned channel closes
// when ctx is cancelled.
func (b *EventBus) Subscribe(ctx context.Context, channel string) (<-chan []byte, error) {
	var pubsub *redis.PubSub
	if strings.ContainsAny(channel, "*?[") {
		pubsub = b.client.rdb.PSubscribe(ctx, channel)
	} else {
		pubsub = b.client.rdb.Subscribe(ctx, channel)
	}

	// Wait for the subscription confirmation so callers do not miss
	// messages published right after Subscribe returns.
	if _, err := pubsub.Receive(ctx); err != nil {
		pubsub.Close()
		return nil, fmt.Errorf("redis: subscribe %s: %w", channel, err)
	}

	out := make(chan []byte, 128)
	go func() {
		defer close(out)
		defer pubsub.Close()

		msgs := pubsub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				default:
					b.logger.Warn("subscriber lagging, dropping message",
						slog.String("channel", channel))
				}
			}
		}
	}()
	return out, nil
}

// StreamAppend appends payload to a capped stream.
func (b *EventBus) StreamAppend(ctx context.Context, stream string, payload []byte) error {
	err := b.client.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: streamMaxLen,
		Approx: true,
		Values: map[string]any{"payload": payload},
	}).Err()
	if err != nil {
		return fmt.Errorf("redis: stream append %s: %w", stream, err)
	}
	return nil
}

// StreamRead returns up to count entries after lastID. Use "0" to read from
// the beginning. An empty result means no new entries.
func (b *EventBus) StreamRead(ctx context.Context, stream string, lastID string, count int) ([]domain.StreamMessage, error) {
	if lastID == "" {
		lastID = "0"
	}

	res, err := b.client.rdb.XRead(ctx, &redis.XReadArgs{
		Streams: []string{stream, lastID},
		Count:   int64(count),
		Block:   -1,
	}).Result()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("redis: stream read %s: %w", stream, err)
	}

	var out []domain.StreamMessage
	for _, s := range res {
		for _, msg := range s.Messages {
			payload, _ := msg.Values["payload"].(string)
			out = append(out, domain.StreamMessage{
				ID:      msg.ID,
				Payload: []byte(payload),
			})
		}
	}
	return out, nil
}
