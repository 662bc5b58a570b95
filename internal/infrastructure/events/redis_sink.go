package events

import (
	"context"
	"encoding/json"
	"fmt"

	"keyguard.backend/internal/domain/entities"
	"keyguard.backend/pkg/redis"
)

// DefaultChannel is the pub/sub channel events are published on.
const DefaultChannel = "keyguard:events"

var publishMessage = redis.Publish

// RedisSink publishes events as JSON on a Redis pub/sub channel.
type RedisSink struct {
	channel string
}

func NewRedisSink(channel string) *RedisSink {
	if channel == "" {
		channel = DefaultChannel
	}
	return &RedisSink{channel: channel}
}

func (s *RedisSink) Channel() string {
	return s.channel
}

func (s *RedisSink) Publish(ctx context.Context, event entities.Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("encode event: %w", err)
	}
	if _, err := publishMessage(ctx, s.channel, payload); err != nil {
		return fmt.Errorf("publish %s: %w", event.Type, err)
	}
	return nil
}
