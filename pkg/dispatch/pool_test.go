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
	"sync"
	"testing"
	"time"

	"github.com/buildfarm/buildfarm/pkg/changes"
)

func TestPoolEnqueueRunInvokesFailureHookWhenExhausted(t *testing.T) {
	// No candidates configured: every dispatch is exhausted immediately.
	d := &Dispatcher{Status: &StatusFetcher{}}
	p := NewPool(d, 2)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	var failed []Task
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		p.Run(ctx, func(task Task, err error) {
			mu.Lock()
			failed = append(failed, task)
			mu.Unlock()
		})
	}()

	req := &changes.Manifest{Source: "hello", Version: "1.0-1", Architecture: "amd64"}
	p.Enqueue(ctx, req, "bookworm", "amd64", nil)

	deadline := time.After(2 * time.Second)
	for {
		mu.Lock()
		n := len(failed)
		mu.Unlock()
		if n == 1 {
			break
		}
		select {
		case <-deadline:
			t.Fatal("onFailure was not invoked for an exhausted dispatch")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	wg.Wait()

	if failed[0].ID == "" {
		t.Error("Task.ID was left empty, want a generated uuid")
	}
	if failed[0].Codename != "bookworm" || failed[0].Arch != "amd64" {
		t.Errorf("Task = %+v, want Codename=bookworm Arch=amd64", failed[0])
	}
}

func TestPoolLoadTracksQueueOccupancy(t *testing.T) {
	d := &Dispatcher{Status: &StatusFetcher{}}
	p := NewPool(d, 4)
	if got := p.Load(); got != 0 {
		t.Errorf("Load() = %v, want 0 on an empty pool", got)
	}
}
