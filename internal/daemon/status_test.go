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
	"encoding/json"
	"net/http/httptest"
	"sort"
	"testing"

	"github.com/buildfarm/buildfarm/pkg/config"
	"github.com/buildfarm/buildfarm/pkg/dispatch"
)

func testDaemon(t *testing.T) *Daemon {
	t.Helper()
	cfg := &config.Snapshot{
		Repositories: []config.Repository{
			{
				Identity: "myrepo",
				Distributions: []config.Distribution{
					{Codename: "bookworm", Architectures: []config.ArchitectureOption{{Arch: "amd64"}, {Arch: "arm64"}}},
				},
			},
		},
		RemoteBuilders: []config.RemoteBuilder{
			{Name: "b1", HTTPEndpoint: "http://builder1.internal"},
		},
	}
	return &Daemon{
		Config:       cfg,
		Signer:       newTestEntity(t),
		DispatchPool: dispatch.NewPool(&dispatch.Dispatcher{}, 4),
	}
}

func TestDaemonChroots(t *testing.T) {
	d := testDaemon(t)
	chroots := d.chroots()
	arches := chroots["bookworm"]
	sort.Strings(arches)
	if len(arches) != 2 || arches[0] != "amd64" || arches[1] != "arm64" {
		t.Errorf("chroots()[\"bookworm\"] = %v, want [amd64 arm64]", arches)
	}
}

func TestDaemonRemoteEndpoints(t *testing.T) {
	d := testDaemon(t)
	got := d.remoteEndpoints()
	if len(got) != 1 || got[0] != "http://builder1.internal" {
		t.Errorf("remoteEndpoints() = %v, want [http://builder1.internal]", got)
	}
}

func TestStatusHandlerStatus(t *testing.T) {
	d := testDaemon(t)
	req := httptest.NewRequest("GET", "/?command=status", nil)
	rec := httptest.NewRecorder()
	d.StatusHandler()(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	var got dispatch.Status
	if err := json.NewDecoder(rec.Body).Decode(&got); err != nil {
		t.Fatalf("decoding response: %v", err)
	}
	if got.Running {
		t.Error("Running = true, want false before the daemon has started")
	}
	if len(got.Remotes) != 1 || got.Remotes[0] != "http://builder1.internal" {
		t.Errorf("Remotes = %v, want [http://builder1.internal]", got.Remotes)
	}
}

func TestStatusHandlerGetkey(t *testing.T) {
	d := testDaemon(t)
	req := httptest.NewRequest("GET", "/?command=getkey", nil)
	rec := httptest.NewRecorder()
	d.StatusHandler()(rec, req)

	if rec.Code != 200 {
		t.Fatalf("status code = %d, want 200", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); ct != "application/pgp-keys" {
		t.Errorf("Content-Type = %q, want application/pgp-keys", ct)
	}
	if rec.Body.Len() == 0 {
		t.Error("getkey response body is empty")
	}
}

func TestStatusHandlerUnknownCommand(t *testing.T) {
	d := testDaemon(t)
	req := httptest.NewRequest("GET", "/?command=bogus", nil)
	rec := httptest.NewRecorder()
	d.StatusHandler()(rec, req)

	if rec.Code != 400 {
		t.Errorf("status code = %d, want 400 for an unknown command", rec.Code)
	}
}
