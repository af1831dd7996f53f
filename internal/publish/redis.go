package publish

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// RedisSink publishes envelopes on a Redis pub/sub channel.
type RedisSink struct {
	client  *redis.Client
	channel string
}

// NewRedisSink connects to url and verifies the connection.
func NewRedisSink(ctx context.Context, url, channel string) (*RedisSink, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return &RedisSink{client: client, channel: channel}, nil
}

func (s *RedisSink) Name() string { return "redis" }

func (s *RedisSink) Publish(ctx context.Context, e Envelope) error {
	payload, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("encode envelope: %w", err)
	}
	return s.client.Publish(ctx, s.channel, payload).Err()
}

func (s *RedisSink) Close() error { return s.client.Close() }
