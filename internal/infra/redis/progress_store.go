package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"exam-practice-service/internal/domain"
	"github.com/redis/go-redis/v9"
)

// ProgressStore keeps in-progress exam snapshots in Redis.
// Snapshots are stored as: SET exam:session:{userID}:{category} <json state> EX ttl
// The TTL bounds how long an abandoned attempt stays resumable.
type ProgressStore struct {
	client *redis.Client
	ttl    time.Duration
}

func NewProgressStore(client *redis.Client, ttl time.Duration) *ProgressStore {
	return &ProgressStore{client: client, ttl: ttl}
}

func (s *ProgressStore) GetSession(ctx context.Context, userID string, category domain.Category) (domain.SessionState, error) {
	raw, err := s.client.Get(ctx, s.key(userID, category)).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.SessionState{}, domain.ErrSessionNotFound
	}
	if err != nil {
		return domain.SessionState{}, fmt.Errorf("get session: %w", err)
	}
	var state domain.SessionState
	if err := json.Unmarshal(raw, &state); err != nil {
		return domain.SessionState{}, fmt.Errorf("decode session: %w", err)
	}
	return state, nil
}

// UpsertSession writes the snapshot unless Redis already holds the same or a
// newer version. A concurrent writer aborting the transaction counts as stale.
func (s *ProgressStore) UpsertSession(ctx context.Context, state domain.SessionState) error {
	key := s.key(state.UserID, state.CategoryID)
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("encode session: %w", err)
	}

	err = s.client.Watch(ctx, func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		switch {
		case errors.Is(err, redis.Nil):
		case err != nil:
			return err
		default:
			var stored domain.SessionState
			if json.Unmarshal(raw, &stored) == nil && stored.Version >= state.Version {
				return domain.ErrStaleSession
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, s.ttl)
			return nil
		})
		return err
	}, key)
	if errors.Is(err, redis.TxFailedErr) {
		return domain.ErrStaleSession
	}
	if err != nil && !errors.Is(err, domain.ErrStaleSession) {
		return fmt.Errorf("upsert session: %w", err)
	}
	return err
}

func (s *ProgressStore) DeleteSession(ctx context.Context, userID string, category domain.Category) error {
	if err := s.client.Del(ctx, s.key(userID, category)).Err(); err != nil {
		return fmt.Errorf("delete session: %w", err)
	}
	return nil
}

func (s *ProgressStore) key(userID string, category domain.Category) string {
	return "exam:session:" + userID + ":" + string(category)
}
