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

package daemon

import (
	"bytes"
	"encoding/gob"
	"os"
	"sync"
	"time"

	"github.com/pkg/errors"
)

// HistoryPackage is one completed package retained for observability
// across a restart.
type HistoryPackage struct {
	Pid          string
	Repository   string
	Distribution string
	Status       string
	Started      time.Time
	Finished     time.Time
}

// HistoryBuild is one completed per-architecture build result retained
// for observability across a restart.
type HistoryBuild struct {
	Source       string
	Version      string
	Architecture string
	Sbuildretval int
	SbuildStatus string
	Finished     time.Time
}

// historyData is the gob-encoded payload; it excludes the mutex and
// capacity bookkeeping of History so those never round-trip through a
// stale persisted blob.
type historyData struct {
	Packages []HistoryPackage
	Builds   []HistoryBuild
}

// History is the supervisor's bounded last-N packages and last-N builds
// checkpoint (§4.8: "a bounded history of last-N packages and last-N
// builds is persisted"). It is not an event log or a persistent queue —
// just enough state for an operator to see what happened across a
// restart.
type History struct {
	mu    sync.Mutex
	limit int
	data  historyData
}

func newHistory(limit int) *History {
	if limit <= 0 {
		limit = 100
	}
	return &History{limit: limit}
}

// loadHistory reads a gob-encoded History from path, or returns an empty
// one if path doesn't exist yet (first start).
func loadHistory(path string, limit int) (*History, error) {
	h := newHistory(limit)
	if path == "" {
		return h, nil
	}
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return h, nil
		}
		return nil, errors.Wrapf(err, "opening history %s", path)
	}
	defer f.Close()
	if err := gob.NewDecoder(f).Decode(&h.data); err != nil {
		return nil, errors.Wrapf(err, "decoding history %s", path)
	}
	return h, nil
}

// save gob-encodes the history to path. A no-op if path is empty.
func (h *History) save(path string) error {
	if path == "" {
		return nil
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(h.data); err != nil {
		return errors.Wrap(err, "encoding history")
	}
	return errors.Wrapf(os.WriteFile(path, buf.Bytes(), 0o600), "writing history %s", path)
}

func (h *History) recordPackage(p HistoryPackage) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data.Packages = append(h.data.Packages, p)
	if over := len(h.data.Packages) - h.limit; over > 0 {
		h.data.Packages = h.data.Packages[over:]
	}
}

func (h *History) recordBuild(b HistoryBuild) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.data.Builds = append(h.data.Builds, b)
	if over := len(h.data.Builds) - h.limit; over > 0 {
		h.data.Builds = h.data.Builds[over:]
	}
}

// Snapshot returns copies of the retained packages and builds, newest
// last.
func (h *History) Snapshot() ([]HistoryPackage, []HistoryBuild) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]HistoryPackage(nil), h.data.Packages...), append([]HistoryBuild(nil), h.data.Builds...)
}
