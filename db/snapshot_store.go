package db

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/doodlemind/doodle.ai/internal/session"
)

// snapshotKeyPrefix versions the key namespace so a future snapshot shape
// change can start clean instead of decoding stale layouts.
const snapshotKeyPrefix = "doodle:v3:snapshot:"

// SnapshotStore keeps one JSON session snapshot per user in Redis. It
// implements session.Store.
type SnapshotStore struct {
	client *redis.Client
}

func NewSnapshotStore(client *redis.Client) *SnapshotStore {
	return &SnapshotStore{client: client}
}

func snapshotKey(userID string) string {
	return snapshotKeyPrefix + userID
}

// LoadSnapshot returns (nil, nil) when the user has no snapshot yet.
func (s *SnapshotStore) LoadSnapshot(ctx context.Context, userID string) (*session.Snapshot, error) {
	raw, err := s.client.Get(ctx, snapshotKey(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load snapshot for %s: %w", userID, err)
	}

	var snapshot session.Snapshot
	if err := json.Unmarshal(raw, &snapshot); err != nil {
		return nil, fmt.Errorf("decode snapshot for %s: %w", userID, err)
	}
	return &snapshot, nil
}

// SaveSnapshot overwrites the user's snapshot. Snapshots never expire; the
// whole point is surviving long absences.
func (s *SnapshotStore) SaveSnapshot(ctx context.Context, userID string, snapshot session.Snapshot) error {
	raw, err := json.Marshal(snapshot)
	if err != nil {
		return fmt.Errorf("encode snapshot for %s: %w", userID, err)
	}
	if err := s.client.Set(ctx, snapshotKey(userID), raw, 0).Err(); err != nil {
		return fmt.Errorf("save snapshot for %s: %w", userID, err)
	}
	return nil
}
