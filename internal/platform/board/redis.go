package board

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

const (
	channelPrefix  = "board:"
	snapshotPrefix = "board:snapshot:"
	snapshotTTL    = 24 * time.Hour
)

// RedisPublisher publishes board events through Redis so every server
// instance sees them, and caches the latest snapshot per structure.
type RedisPublisher struct {
	client *redis.Client
	logger zerolog.Logger
}

func NewRedisPublisher(client *redis.Client, logger zerolog.Logger) *RedisPublisher {
	return &RedisPublisher{client: client, logger: logger}
}

// Publish sends the event to the structure's channel. Snapshot events also
// refresh the cached snapshot key.
func (p *RedisPublisher) Publish(ctx context.Context, event Event) error {
	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshaling board event: %w", err)
	}

	if event.Type == EventSnapshot {
		if err := p.client.Set(ctx, snapshotPrefix+event.StructureID, data, snapshotTTL).Err(); err != nil {
			return fmt.Errorf("caching board snapshot: %w", err)
		}
	}

	if err := p.client.Publish(ctx, channelPrefix+event.StructureID, data).Err(); err != nil {
		return fmt.Errorf("publishing board event: %w", err)
	}
	return nil
}

// Snapshot returns the cached snapshot for a structure, or nil when none has
// been published yet.
func (p *RedisPublisher) Snapshot(ctx context.Context, structureID string) (*Event, error) {
	data, err := p.client.Get(ctx, snapshotPrefix+structureID).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("reading board snapshot: %w", err)
	}

	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, fmt.Errorf("decoding board snapshot: %w", err)
	}
	return &event, nil
}

// Relay subscribes to every board channel and rebroadcasts incoming events to
// the local hub. It blocks until the context is cancelled.
func (p *RedisPublisher) Relay(ctx context.Context, hub *Hub) error {
	sub := p.client.PSubscribe(ctx, channelPrefix+"*")
	defer sub.Close()

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var event Event
			if err := json.Unmarshal([]byte(msg.Payload), &event); err != nil {
				p.logger.Warn().Err(err).Str("channel", msg.Channel).Msg("board: dropping malformed event")
				continue
			}
			hub.Broadcast(event)
		}
	}
}
