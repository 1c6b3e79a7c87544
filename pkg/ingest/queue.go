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

// Package ingest is the bounded FIFO standing between the FTP server and
// the packager/builder: every .changes manifest, whether freshly
// uploaded or recovered from a startup rescan, passes through here before
// classification.
package ingest

import (
	"context"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"github.com/buildfarm/buildfarm/pkg/changes"
)

// Item is one manifest handed to a consumer, along with its classified
// kind (computed once, here, rather than re-derived downstream). A
// Shutdown item carries no manifest; it tells the main loop to stop.
type Item struct {
	Path     string
	Kind     changes.Kind
	Shutdown bool
}

// ShutdownItem is enqueued by the supervisor to unblock and stop the main
// loop without tearing down the channel out from under a concurrent Put.
var ShutdownItem = Item{Shutdown: true}

// Queue is a bounded FIFO of pending manifests.
type Queue struct {
	ch chan Item
}

// New constructs a Queue with the given capacity; Put blocks once the
// queue is full, which is the intended overload response.
func New(capacity int) *Queue {
	return &Queue{ch: make(chan Item, capacity)}
}

// Put enqueues item, blocking if the queue is full. Returns ctx.Err() if
// ctx is cancelled first.
func (q *Queue) Put(ctx context.Context, item Item) error {
	select {
	case q.ch <- item:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Get dequeues the next item, blocking until one is available or ctx is
// cancelled.
func (q *Queue) Get(ctx context.Context) (Item, error) {
	select {
	case item := <-q.ch:
		return item, nil
	case <-ctx.Done():
		return Item{}, ctx.Err()
	}
}

// Rescan walks spoolDir for pre-existing .changes manifests (e.g. after a
// coordinator restart) and returns them ordered uploads-before-build-
// results, so an orphan build-result is never processed before the
// package it belongs to has been re-registered.
func Rescan(spoolDir string) ([]Item, error) {
	var items []Item
	err := filepath.WalkDir(spoolDir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() || !strings.HasSuffix(path, ".changes") {
			return nil
		}
		items = append(items, Item{Path: path, Kind: changes.Classify(path)})
		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "rescanning %s", spoolDir)
	}
	sort.SliceStable(items, func(i, j int) bool {
		return rank(items[i].Kind) < rank(items[j].Kind)
	})
	return items, nil
}

func rank(k changes.Kind) int {
	if k == changes.BuildResult {
		return 1
	}
	return 0
}

// CleanCruft removes any file or directory under spoolDir that is not
// referenced by any .changes manifest present there. The supervisor calls
// it once on startup, after the rescan; it is not called when an FTP
// session closes.
func CleanCruft(spoolDir string, items []Item) error {
	referenced := map[string]bool{}
	for _, item := range items {
		referenced[item.Path] = true
		m, err := changes.Parse(item.Path)
		if err != nil {
			continue
		}
		dir := filepath.Dir(item.Path)
		for _, f := range m.Files {
			referenced[filepath.Join(dir, f.Name)] = true
		}
		referenced[changes.TarPath(dir)] = true
		referenced[item.Path+".upload"] = true
	}

	entries, err := os.ReadDir(spoolDir)
	if err != nil {
		return errors.Wrapf(err, "reading %s", spoolDir)
	}
	for _, e := range entries {
		path := filepath.Join(spoolDir, e.Name())
		if referenced[path] {
			continue
		}
		if err := os.RemoveAll(path); err != nil {
			return errors.Wrapf(err, "removing cruft %s", path)
		}
	}
	return nil
}
