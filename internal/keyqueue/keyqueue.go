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

// Package keyqueue serializes work per key in the order tickets are taken.
//
// Acquire is called synchronously in arrival order; the returned Ticket's
// Wait blocks until every earlier ticket for the same key is released.
// Different keys never block each other.
package keyqueue

import (
	"context"
	"sync"
)

// Queue hands out tickets per key.
type Queue struct {
	mu    sync.Mutex
	tails map[string]chan struct{}
}

// New creates an empty Queue.
func New() *Queue {
	return &Queue{tails: make(map[string]chan struct{})}
}

// Ticket is one position in a key's line.
type Ticket struct {
	q    *Queue
	key  string
	prev chan struct{}
	done chan struct{}
	once sync.Once
}

// Acquire takes the next ticket for key.
func (q *Queue) Acquire(key string) *Ticket {
	q.mu.Lock()
	defer q.mu.Unlock()
	t := &Ticket{q: q, key: key, prev: q.tails[key], done: make(chan struct{})}
	q.tails[key] = t.done
	return t
}

// Wait blocks until all earlier tickets for the key are released or ctx ends.
func (t *Ticket) Wait(ctx context.Context) error {
	if t.prev == nil {
		return nil
	}
	select {
	case <-t.prev:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Release lets the next ticket for the key proceed. If an earlier ticket is
// still held, the hand-off is deferred until it is released, so order is
// kept even when Wait was abandoned. Release is idempotent.
func (t *Ticket) Release() {
	t.once.Do(func() {
		if t.prev != nil {
			select {
			case <-t.prev:
			default:
				go func() {
					<-t.prev
					t.finish()
				}()
				return
			}
		}
		t.finish()
	})
}

func (t *Ticket) finish() {
	t.q.mu.Lock()
	defer t.q.mu.Unlock()
	close(t.done)
	if t.q.tails[t.key] == t.done {
		delete(t.q.tails, t.key)
	}
}

// Len returns the number of keys with outstanding tickets.
func (q *Queue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.tails)
}
