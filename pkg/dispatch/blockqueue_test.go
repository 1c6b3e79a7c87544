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

package dispatch

import (
	"context"
	"testing"
	"time"
)

func TestBlockQueuePutTakeTaskDone(t *testing.T) {
	q := NewBlockQueue[int](2)
	ctx := context.Background()

	if err := q.Put(ctx, 1); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if got := q.Load(); got != 0.5 {
		t.Errorf("Load() = %v, want 0.5", got)
	}

	v, err := q.Take(ctx)
	if err != nil {
		t.Fatalf("Take: %v", err)
	}
	if v != 1 {
		t.Errorf("Take() = %d, want 1", v)
	}
	if got := q.Load(); got != 0.5 {
		t.Errorf("Load() after Take = %v, want 0.5 (still active)", got)
	}

	q.TaskDone()
	if got := q.Load(); got != 0 {
		t.Errorf("Load() after TaskDone = %v, want 0", got)
	}
}

func TestBlockQueuePutBlocksUntilCapacity(t *testing.T) {
	q := NewBlockQueue[int](1)
	ctx := context.Background()
	if err := q.Put(ctx, 1); err != nil {
		t.Fatalf("Put: %v", err)
	}

	ctx2, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	if err := q.Put(ctx2, 2); err == nil {
		t.Error("Put() on a full queue did not block until ctx cancellation")
	}
}

func TestBlockQueueTakeRespectsContext(t *testing.T) {
	q := NewBlockQueue[int](1)
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if _, err := q.Take(ctx); err == nil {
		t.Error("Take() on an empty queue did not respect context cancellation")
	}
}
