// Package redisbus relays broadcast-group publishes between server instances over Redis pub/sub.
package redisbus

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/eventure-server/internal/core"
)

const (
	channelPrefix  = "eventure:broadcast:"
	publishTimeout = 2 * time.Second
)

// envelope is the Redis wire form of one publish.
type envelope struct {
	Origin  string          `json:"origin"`
	Group   string          `json:"group"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
}

// Bus publishes to Redis and relays every received publish into the local hub.
// Local viewers are reached only through the relay, so all instances observe
// the same per-channel order.
type Bus struct {
	client *redis.Client
	local  core.Publisher
	nodeID string
	ready  chan struct{}
	log    *zerolog.Logger
}

// New connects to Redis and verifies the connection.
func New(ctx context.Context, redisURL string, local core.Publisher, logger *zerolog.Logger) (*Bus, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("connect to redis: %w", err)
	}

	return NewWithClient(client, local, logger), nil
}

// NewWithClient creates a bus from an existing Redis client.
func NewWithClient(client *redis.Client, local core.Publisher, logger *zerolog.Logger) *Bus {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	return &Bus{
		client: client,
		local:  local,
		nodeID: uuid.NewString(),
		ready:  make(chan struct{}),
		log:    logger,
	}
}

// Ready is closed once the relay subscription is active.
func (b *Bus) Ready() <-chan struct{} {
	return b.ready
}

// Publish sends the payload to every instance subscribed to the group's channel.
func (b *Bus) Publish(group, eventName string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	data, err := json.Marshal(envelope{Origin: b.nodeID, Group: group, Event: eventName, Payload: raw})
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
	defer cancel()
	if err := b.client.Publish(ctx, channelPrefix+group, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Run subscribes to all broadcast channels and relays into the local hub until ctx is done.
func (b *Bus) Run(ctx context.Context) error {
	ps := b.client.PSubscribe(ctx, channelPrefix+"*")
	defer ps.Close()

	if _, err := ps.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}
	close(b.ready)
	b.log.Info().Str("node_id", b.nodeID).Msg("redis broadcast relay subscribed")

	ch := ps.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			b.relay(msg)
		}
	}
}

func (b *Bus) relay(msg *redis.Message) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		b.log.Warn().Err(err).Str("channel", msg.Channel).Msg("discarding malformed broadcast")
		return
	}
	if env.Group == "" {
		env.Group = strings.TrimPrefix(msg.Channel, channelPrefix)
	}
	if err := b.local.Publish(env.Group, env.Event, env.Payload); err != nil {
		b.log.Debug().Err(err).Str("group", env.Group).Str("origin", env.Origin).Msg("local relay dropped event")
	}
}

// Close closes the Redis connection.
func (b *Bus) Close() error {
	return b.client.Close()
}

var _ core.Publisher = (*Bus)(nil)
