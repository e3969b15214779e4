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

// Package dedup remembers which inbound Message-IDs have been fully processed,
// using Redis keys with a TTL.
package dedup

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

const (
	// DefaultTTL is how long we remember a processed message.
	DefaultTTL = 7 * 24 * time.Hour

	// keyPrefix namespaces dedup keys in Redis.
	keyPrefix = "hrintake:processed:"
)

// Filter tracks which message IDs have already been processed.
type Filter struct {
	rdb redis.Cmdable
	ttl time.Duration
}

// NewFilter creates a dedup filter backed by Redis. A non-positive ttl
// selects DefaultTTL.
func NewFilter(rdb redis.Cmdable, ttl time.Duration) *Filter {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Filter{rdb: rdb, ttl: ttl}
}

func key(messageID string) string {
	return keyPrefix + strings.ToLower(strings.TrimSpace(messageID))
}

// Seen reports whether messageID was marked processed within the TTL.
func (f *Filter) Seen(ctx context.Context, messageID string) (bool, error) {
	n, err := f.rdb.Exists(ctx, key(messageID)).Result()
	if err != nil {
		return false, fmt.Errorf("dedup EXISTS: %w", err)
	}
	return n > 0, nil
}

// Mark records messageID as processed.
func (f *Filter) Mark(ctx context.Context, messageID string) error {
	if err := f.rdb.Set(ctx, key(messageID), time.Now().UTC().Unix(), f.ttl).Err(); err != nil {
		return fmt.Errorf("dedup SET: %w", err)
	}
	return nil
}
