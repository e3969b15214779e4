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

package dedup

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

func testClient(t *testing.T) *redis.Client {
	t.Helper()
	url := os.Getenv("REDIS_TEST_URL")
	if url == "" {
		t.Skip("REDIS_TEST_URL not set")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("parse REDIS_TEST_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	t.Cleanup(func() { _ = rdb.Close() })
	return rdb
}

// TestKey verifies message IDs are normalised before keying.
func TestKey(t *testing.T) {
	if got := key("  <ABC@Example.com> "); got != "hrintake:processed:<abc@example.com>" {
		t.Errorf("key = %q", got)
	}
}

// TestFilter_SeenMark verifies a marked id is reported as seen.
func TestFilter_SeenMark(t *testing.T) {
	f := NewFilter(testClient(t), time.Minute)
	ctx := context.Background()
	id := uuid.NewString() + "@test"

	seen, err := f.Seen(ctx, id)
	if err != nil || seen {
		t.Fatalf("Seen before Mark = %v, %v", seen, err)
	}
	if err := f.Mark(ctx, id); err != nil {
		t.Fatalf("Mark: %v", err)
	}
	if seen, err = f.Seen(ctx, id); err != nil || !seen {
		t.Fatalf("Seen after Mark = %v, %v", seen, err)
	}
}
