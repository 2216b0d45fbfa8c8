package redisstats

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/dkeye/Presence/internal/app/stats"
	"github.com/redis/go-redis/v9"
)

// Sink mirrors every stats snapshot into Redis: the latest one under Key
// and each one as a message on Channel.
type Sink struct {
	client  *redis.Client
	Channel string
	Key     string
	TTL     time.Duration
}

// New connects to redisURL (redis://host:port/db) and verifies it with PING.
func New(ctx context.Context, redisURL, channel, key string, ttl time.Duration) (*Sink, error) {
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return NewWithClient(client, channel, key, ttl), nil
}

func NewWithClient(client *redis.Client, channel, key string, ttl time.Duration) *Sink {
	return &Sink{client: client, Channel: channel, Key: key, TTL: ttl}
}

// snapshotMessage is the payload written to Redis.
type snapshotMessage struct {
	Rooms      stats.Snapshot `json:"rooms"`
	TotalUsers int            `json:"totalUsers"`
	At         time.Time      `json:"at"`
}

func (s *Sink) Publish(ctx context.Context, snap stats.Snapshot) error {
	data, err := json.Marshal(snapshotMessage{Rooms: snap, TotalUsers: snap.Total(), At: time.Now().UTC()})
	if err != nil {
		return fmt.Errorf("marshal snapshot: %w", err)
	}
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, s.Key, data, s.TTL)
	pipe.Publish(ctx, s.Channel, data)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("publish snapshot: %w", err)
	}
	return nil
}

func (s *Sink) Close() error {
	return s.client.Close()
}
