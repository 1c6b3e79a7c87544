// Copyright 2024 The OSS Rebuild Authors
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

// Package dispatch is the builder dispatch: a bounded queue of pending
// build-requests, a worker pool draining it, and the candidate-selection
// logic that picks which remote builder a request goes to.
package dispatch

import (
	"context"
	"sync/atomic"
)

// BlockQueue bounds the number of build-requests in flight (pending plus
// actively building). Put blocks once active+pending reaches maxsize;
// this is the intended backpressure response to overload.
type BlockQueue[T any] struct {
	maxsize int
	items   chan T
	slots   chan struct{} // one token per pending or active task
	active  atomic.Int64
}

// NewBlockQueue constructs a BlockQueue with room for maxsize combined
// active+pending tasks.
func NewBlockQueue[T any](maxsize int) *BlockQueue[T] {
	return &BlockQueue[T]{maxsize: maxsize, items: make(chan T, maxsize), slots: make(chan struct{}, maxsize)}
}

// Put enqueues item, blocking while the queue is at capacity.
func (q *BlockQueue[T]) Put(ctx context.Context, item T) error {
	select {
	case q.slots <- struct{}{}:
	case <-ctx.Done():
		return ctx.Err()
	}
	q.items <- item
	return nil
}

// Take dequeues the next item and marks it active. Call TaskDone once
// that item's work completes.
func (q *BlockQueue[T]) Take(ctx context.Context) (T, error) {
	var zero T
	select {
	case item := <-q.items:
		q.active.Add(1)
		return item, nil
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

// TaskDone marks one active task complete.
func (q *BlockQueue[T]) TaskDone() {
	q.active.Add(-1)
	<-q.slots
}

// Load is the fraction of capacity currently occupied by active and
// pending tasks, exposed as the builder's load metric.
func (q *BlockQueue[T]) Load() float64 {
	return float64(int(q.active.Load())+len(q.items)) / float64(q.maxsize)
}
