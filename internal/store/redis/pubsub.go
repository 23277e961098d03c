package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/gosuda/pulse/internal/domain"
)

// PubSub carries dashboard snapshots: the latest one per scope is cached
// under a key and every new one is published on the scope's channel.
type PubSub struct {
	client *redis.Client
}

func New(ctx context.Context, addr, password string, db int) (*PubSub, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis.New: ping: %w", err)
	}

	return &PubSub{client: client}, nil
}

func (ps *PubSub) Close() error {
	if err := ps.client.Close(); err != nil {
		return fmt.Errorf("redis.PubSub.Close: %w", err)
	}
	return nil
}

func (ps *PubSub) Ping(ctx context.Context) error {
	if err := ps.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Ping: %w", err)
	}
	return nil
}

func (ps *PubSub) Publish(ctx context.Context, channel string, payload []byte) error {
	if err := ps.client.Publish(ctx, channel, payload).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.Publish: %w", err)
	}
	return nil
}

func (ps *PubSub) Subscribe(ctx context.Context, channel string) (<-chan []byte, func(), error) {
	sub := ps.client.Subscribe(ctx, channel)

	// Wait for subscription confirmation.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, nil, fmt.Errorf("redis.PubSub.Subscribe: receive confirmation: %w", err)
	}

	out := make(chan []byte, 64)
	redisCh := sub.Channel()

	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-redisCh:
				if !ok {
					return
				}
				select {
				case out <- []byte(msg.Payload):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	cleanup := func() {
		_ = sub.Close()
	}

	return out, cleanup, nil
}

// SaveSnapshot stores payload under key for ttl.
func (ps *PubSub) SaveSnapshot(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if err := ps.client.Set(ctx, key, payload, ttl).Err(); err != nil {
		return fmt.Errorf("redis.PubSub.SaveSnapshot: %w", err)
	}
	return nil
}

// LoadSnapshot returns the payload stored under key, or domain.ErrNotFound
// when it is missing or expired.
func (ps *PubSub) LoadSnapshot(ctx context.Context, key string) ([]byte, error) {
	payload, err := ps.client.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis.PubSub.LoadSnapshot: %w", domain.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("redis.PubSub.LoadSnapshot: %w", err)
	}
	return payload, nil
}

// DashboardChannel returns the channel carrying snapshots for a project, or
// for the cross-project dashboard when projectID is 0.
func DashboardChannel(projectID int64) string {
	return "dashboard:" + scope(projectID)
}

// SnapshotKey returns the key caching the latest snapshot for a project, or
// for the cross-project dashboard when projectID is 0.
func SnapshotKey(projectID int64) string {
	return "pulse:snapshot:" + scope(projectID)
}

func scope(projectID int64) string {
	if projectID == 0 {
		return "all"
	}
	return "project:" + strconv.FormatInt(projectID, 10)
}
