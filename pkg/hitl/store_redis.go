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

package hitl

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const redisPauseKeyPrefix = "forge:hitl:"

// RedisStore keeps pause state in Redis with native expiry. GETDEL makes
// Take atomic across instances.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore connects to the given redis:// URL.
func NewRedisStore(url string) (*RedisStore, error) {
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
	return &RedisStore{client: client}, nil
}

func (s *RedisStore) Put(ctx context.Context, token string, state []byte, expiresAt time.Time) error {
	ttl := time.Until(expiresAt)
	if ttl <= 0 {
		return fmt.Errorf("pause state already expired")
	}
	if err := s.client.Set(ctx, redisPauseKeyPrefix+token, state, ttl).Err(); err != nil {
		return fmt.Errorf("failed to persist pause state: %w", err)
	}
	return nil
}

func (s *RedisStore) Take(ctx context.Context, token string) ([]byte, error) {
	state, err := s.client.GetDel(ctx, redisPauseKeyPrefix+token).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrPauseNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to consume resume token: %w", err)
	}
	return state, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}
