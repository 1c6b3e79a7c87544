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

package archived

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/buildfarm/buildfarm/pkg/changes"
)

// fakeTool is an in-memory Tool double recording calls and letting tests
// inject failures and installed-version state.
type fakeTool struct {
	mu sync.Mutex

	installed   map[string]string // pkg -> highest installed version
	installErr  error
	migrateErr  error
	removeErr   error
	findResult  bool
	findErr     error
	listResult  []Entry
	listErr     error
	showResult  []Entry
	reindexErr  error
	installCall int
	concurrent  int
	maxConcurrent int
}

func newFakeTool() *fakeTool {
	return &fakeTool{installed: map[string]string{}}
}

func (f *fakeTool) enter() {
	f.mu.Lock()
	f.concurrent++
	if f.concurrent > f.maxConcurrent {
		f.maxConcurrent = f.concurrent
	}
	f.mu.Unlock()
}

func (f *fakeTool) leave() {
	f.mu.Lock()
	f.concurrent--
	f.mu.Unlock()
}

func (f *fakeTool) Install(ctx context.Context, changesPath, distribution string) error {
	f.enter()
	defer f.leave()
	time.Sleep(time.Millisecond)
	f.mu.Lock()
	f.installCall++
	f.mu.Unlock()
	return f.installErr
}

func (f *fakeTool) Migrate(ctx context.Context, pkg, src, dst, version string) error {
	return f.migrateErr
}

func (f *fakeTool) Remove(ctx context.Context, pkg, distribution, version string) error {
	return f.removeErr
}

func (f *fakeTool) Find(ctx context.Context, pkg, distribution, version string) (bool, error) {
	return f.findResult, f.findErr
}

func (f *fakeTool) List(ctx context.Context, pattern, distribution, typ string, max int) ([]Entry, error) {
	return f.listResult, f.listErr
}

func (f *fakeTool) Show(ctx context.Context, pkg string) ([]Entry, error) {
	return f.showResult, nil
}

func (f *fakeTool) Reindex(ctx context.Context) error {
	return f.reindexErr
}

func (f *fakeTool) Highest(ctx context.Context, pkg, distribution string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.installed[pkg], nil
}

func TestPrecheckInstallAllowsFirstVersion(t *testing.T) {
	tool := newFakeTool()
	a := New(tool)
	if err := a.PrecheckInstall(context.Background(), "repo", "hello", "unstable", "1.0-1"); err != nil {
		t.Errorf("PrecheckInstall() error = %v, want nil for a never-installed package", err)
	}
}

func TestPrecheckInstallRejectsNonNewerVersion(t *testing.T) {
	tool := newFakeTool()
	tool.installed["hello"] = "1.0-1"
	a := New(tool)
	if err := a.PrecheckInstall(context.Background(), "repo", "hello", "unstable", "1.0-1"); err == nil {
		t.Error("PrecheckInstall() error = nil, want a monotonicity failure for a non-newer version")
	}
}

func TestPrecheckInstallAllowsNewerVersion(t *testing.T) {
	tool := newFakeTool()
	tool.installed["hello"] = "1.0-1"
	a := New(tool)
	if err := a.PrecheckInstall(context.Background(), "repo", "hello", "unstable", "1.0-2"); err != nil {
		t.Errorf("PrecheckInstall() error = %v, want nil for a newer version", err)
	}
}

func TestInstallWrapsToolFailure(t *testing.T) {
	tool := newFakeTool()
	tool.installErr = errWant
	a := New(tool)
	m := &changes.Manifest{Source: "hello", Path: "/tmp/hello_1.0-1.changes"}
	err := a.Install(context.Background(), "repo", m, "unstable")
	if err == nil {
		t.Fatal("Install() error = nil, want a wrapped tool failure")
	}
}

var errWant = errTool("boom")

type errTool string

func (e errTool) Error() string { return string(e) }

func TestInstallSerializesPerRepository(t *testing.T) {
	tool := newFakeTool()
	a := New(tool)
	m := &changes.Manifest{Source: "hello", Path: "/tmp/hello_1.0-1.changes"}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Install(context.Background(), "repo", m, "unstable")
		}()
	}
	wg.Wait()

	tool.mu.Lock()
	defer tool.mu.Unlock()
	if tool.installCall != 8 {
		t.Errorf("installCall = %d, want 8", tool.installCall)
	}
	if tool.maxConcurrent != 1 {
		t.Errorf("maxConcurrent = %d, want 1 (installs on the same repository must serialize)", tool.maxConcurrent)
	}
}

func TestInstallAllowsDifferentRepositoriesConcurrently(t *testing.T) {
	tool := newFakeTool()
	a := New(tool)
	m := &changes.Manifest{Source: "hello", Path: "/tmp/hello_1.0-1.changes"}

	var wg sync.WaitGroup
	for _, repo := range []string{"repo-a", "repo-b"} {
		repo := repo
		wg.Add(1)
		go func() {
			defer wg.Done()
			a.Install(context.Background(), repo, m, "unstable")
		}()
	}
	wg.Wait()

	tool.mu.Lock()
	defer tool.mu.Unlock()
	if tool.maxConcurrent < 1 {
		t.Errorf("maxConcurrent = %d, want at least 1", tool.maxConcurrent)
	}
}

func TestFindDelegatesToTool(t *testing.T) {
	tool := newFakeTool()
	tool.findResult = true
	a := New(tool)
	found, err := a.Find(context.Background(), "repo", "hello", "unstable", "1.0-1")
	if err != nil || !found {
		t.Errorf("Find() = %v, %v, want true, nil", found, err)
	}
}

func TestReindexWrapsError(t *testing.T) {
	tool := newFakeTool()
	tool.reindexErr = errWant
	a := New(tool)
	if err := a.Reindex(context.Background(), "repo"); err == nil {
		t.Error("Reindex() error = nil, want wrapped tool failure")
	}
}
