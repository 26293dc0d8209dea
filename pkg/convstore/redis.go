// Copyright 2026 Forge Works
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package convstore

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

const (
	redisTurnKeyPrefix = "forge:conv:"
	redisSessionsKey   = "forge:conv:sessions"
)

// RedisStore keeps each session as a list of JSON-encoded turns plus a
// sorted set of session ids scored by last activity. Entries expire after
// the configured TTL, refreshed on every write.
type RedisStore struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisStore connects to the given redis:// URL.
func NewRedisStore(url string, ttl time.Duration) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("invalid redis url: %w", err)
	}
	client := redis.NewClient(opts)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &RedisStore{client: client, ttl: ttl}, nil
}

func (s *RedisStore) turnKey(sessionID string) string {
	return redisTurnKeyPrefix + sessionID
}

func (s *RedisStore) CreateSession(ctx context.Context) (string, error) {
	return uuid.NewString(), nil
}

func (s *RedisStore) PersistMessage(ctx context.Context, turn Turn) error {
	if turn.SessionID == "" {
		return fmt.Errorf("session id is required")
	}
	if turn.CreatedAt.IsZero() {
		turn.CreatedAt = time.Now().UTC()
	}
	payload, err := json.Marshal(turn)
	if err != nil {
		return fmt.Errorf("failed to encode turn: %w", err)
	}

	key := s.turnKey(turn.SessionID)
	pipe := s.client.TxPipeline()
	pipe.RPush(ctx, key, payload)
	pipe.Expire(ctx, key, s.ttl)
	pipe.ZAdd(ctx, redisSessionsKey, redis.Z{
		Score:  float64(turn.CreatedAt.UnixMilli()),
		Member: turn.SessionID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}
	return nil
}

func (s *RedisStore) GetHistory(ctx context.Context, sessionID string) ([]Turn, error) {
	raw, err := s.client.LRange(ctx, s.turnKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load history: %w", err)
	}
	turns := make([]Turn, 0, len(raw))
	for _, item := range raw {
		var t Turn
		if err := json.Unmarshal([]byte(item), &t); err != nil {
			return nil, fmt.Errorf("failed to decode turn: %w", err)
		}
		turns = append(turns, t)
	}
	return turns, nil
}

func (s *RedisStore) IncompleteSessions(ctx context.Context) ([]IncompleteSession, error) {
	members, err := s.client.ZRevRangeWithScores(ctx, redisSessionsKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}

	sessions := []IncompleteSession{}
	for _, m := range members {
		sessionID, _ := m.Member.(string)
		turns, err := s.GetHistory(ctx, sessionID)
		if err != nil {
			return nil, err
		}
		if len(turns) == 0 {
			// The list expired; drop the stale index entry.
			s.client.ZRem(ctx, redisSessionsKey, sessionID)
			continue
		}
		if latestSystemIsComplete(turns) {
			continue
		}
		sessions = append(sessions, IncompleteSession{
			SessionID:   sessionID,
			Stage:       turns[len(turns)-1].Stage,
			LastUpdated: time.UnixMilli(int64(m.Score)).UTC(),
		})
	}
	return sessions, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// latestSystemIsComplete reports whether the most recent system-role turn
// carries the completion sentinel.
func latestSystemIsComplete(turns []Turn) bool {
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Role == RoleSystem {
			return turns[i].Content == CompleteSentinel
		}
	}
	return false
}
