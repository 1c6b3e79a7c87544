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
	"log"

	"github.com/google/uuid"

	"github.com/buildfarm/buildfarm/pkg/changes"
)

// Task is one build-request waiting for a dispatch worker, tagged with an
// id so its progress through the pool can be correlated in logs.
type Task struct {
	ID       string
	Manifest *changes.Manifest
	Codename string
	Arch     string
}

// Pool is the bounded build-request queue of §5: a BlockQueue of pending
// Tasks drained by a fixed-size worker pool, each worker calling
// Dispatcher.Dispatch. Enqueue never blocks the caller (the packager's
// ingest consumer) past the goroutine spawn; backpressure is applied
// inside that spawned goroutine's Put instead.
type Pool struct {
	queue      *BlockQueue[Task]
	dispatcher *Dispatcher
}

// NewPool constructs a Pool with room for size combined active+pending
// tasks, matching config's build_queue_size.
func NewPool(dispatcher *Dispatcher, size int) *Pool {
	return &Pool{queue: NewBlockQueue[Task](size), dispatcher: dispatcher}
}

// Enqueue hands m off to the pool for dispatch to a remote builder for
// codename/arch, without blocking the caller beyond the goroutine spawn.
// If ctx is cancelled before room is available, onFailure is invoked with
// ctx.Err().
func (p *Pool) Enqueue(ctx context.Context, m *changes.Manifest, codename, arch string, onFailure func(Task, error)) {
	task := Task{ID: uuid.NewString(), Manifest: m, Codename: codename, Arch: arch}
	go func() {
		if err := p.queue.Put(ctx, task); err != nil {
			log.Printf("[pkg/dispatch] enqueueing %s %s/%s: %v", task.ID, codename, arch, err)
			if onFailure != nil {
				onFailure(task, err)
			}
		}
	}()
}

// Load is the fraction of the pool's capacity currently occupied,
// reported in the node's own status response.
func (p *Pool) Load() float64 {
	return p.queue.Load()
}

// Run is one worker: it takes tasks until ctx is cancelled, dispatching
// each and invoking onFailure if the dispatch itself is exhausted. Spawn
// build_queue_size copies of Run to form the pool.
func (p *Pool) Run(ctx context.Context, onFailure func(Task, error)) {
	for {
		task, err := p.queue.Take(ctx)
		if err != nil {
			return
		}
		if err := p.dispatcher.Dispatch(ctx, task.Manifest, task.Codename, task.Arch); err != nil {
			log.Printf("[pkg/dispatch] task %s %s/%s: %v", task.ID, task.Codename, task.Arch, err)
			if onFailure != nil {
				onFailure(task, err)
			}
		}
		p.queue.TaskDone()
	}
}
