// Copyright (c) 2026 John Earle
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

package authstate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix namespaces authorization state keys in Redis.
const keyPrefix = "mailfold:authstate:"

// RedisStore is the distributed Store implementation, needed the moment
// the service runs as more than one process. Expiry is enforced by the
// key TTL and one-time use by the atomic GETDEL.
type RedisStore struct {
	rdb *redis.Client
}

// NewRedisStore creates a Redis-backed state store.
func NewRedisStore(rdb *redis.Client) *RedisStore {
	return &RedisStore{rdb: rdb}
}

// Put stores an entry with the remaining time to its expiry as TTL.
func (s *RedisStore) Put(ctx context.Context, state string, entry Entry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshal state entry: %w", err)
	}

	ttl := time.Until(entry.ExpiresAt)
	if ttl <= 0 {
		ttl = TTL
	}

	if err := s.rdb.Set(ctx, keyPrefix+state, data, ttl).Err(); err != nil {
		return fmt.Errorf("store state entry: %w", err)
	}
	return nil
}

// Consume atomically retrieves and deletes an entry via GETDEL.
func (s *RedisStore) Consume(ctx context.Context, state string) (*Entry, error) {
	data, err := s.rdb.GetDel(ctx, keyPrefix+state).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("consume state entry: %w", err)
	}

	var entry Entry
	if err := json.Unmarshal([]byte(data), &entry); err != nil {
		return nil, fmt.Errorf("decode state entry: %w", err)
	}

	if time.Now().After(entry.ExpiresAt) {
		return nil, ErrNotFound
	}
	return &entry, nil
}

// Close is a no-op; the Redis client is owned by the caller.
func (s *RedisStore) Close() error { return nil }
