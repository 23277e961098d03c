package redis

import (
	"context"
	"fmt"
	"time"
)

// Snapshots caches and fans out serialized dashboard snapshots by scope.
// projectID 0 is the cross-project scope.
type Snapshots struct {
	ps  *PubSub
	ttl time.Duration
}

func NewSnapshots(ps *PubSub, ttl time.Duration) *Snapshots {
	return &Snapshots{ps: ps, ttl: ttl}
}

// Store caches payload as the latest snapshot of the scope and publishes it
// to the scope's subscribers.
func (s *Snapshots) Store(ctx context.Context, projectID int64, payload []byte) error {
	if err := s.ps.SaveSnapshot(ctx, SnapshotKey(projectID), payload, s.ttl); err != nil {
		return fmt.Errorf("redis.Snapshots.Store: %w", err)
	}
	if err := s.ps.Publish(ctx, DashboardChannel(projectID), payload); err != nil {
		return fmt.Errorf("redis.Snapshots.Store: %w", err)
	}
	return nil
}

// Latest returns the cached snapshot of the scope, or domain.ErrNotFound.
func (s *Snapshots) Latest(ctx context.Context, projectID int64) ([]byte, error) {
	payload, err := s.ps.LoadSnapshot(ctx, SnapshotKey(projectID))
	if err != nil {
		return nil, fmt.Errorf("redis.Snapshots.Latest: %w", err)
	}
	return payload, nil
}

// Watch subscribes to snapshots published for the scope.
func (s *Snapshots) Watch(ctx context.Context, projectID int64) (<-chan []byte, func(), error) {
	ch, cleanup, err := s.ps.Subscribe(ctx, DashboardChannel(projectID))
	if err != nil {
		return nil, nil, fmt.Errorf("redis.Snapshots.Watch: %w", err)
	}
	return ch, cleanup, nil
}
