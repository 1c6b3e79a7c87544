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
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buildfarm/buildfarm/pkg/changes"
)

func TestStatusHasChroot(t *testing.T) {
	s := Status{Chroots: map[string][]string{"bookworm": {"amd64", "arm64"}}}
	if !s.hasChroot("bookworm", "amd64") {
		t.Error("hasChroot(bookworm, amd64) = false, want true")
	}
	if s.hasChroot("bookworm", "riscv64") {
		t.Error("hasChroot(bookworm, riscv64) = true, want false")
	}
	if s.hasChroot("bullseye", "amd64") {
		t.Error("hasChroot(bullseye, amd64) = true, want false")
	}
}

func TestStatusFetcherFetchSendsCommandStatus(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		if r.URL.Query().Get("command") != "status" {
			http.Error(w, "unknown command", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(Status{Running: true, Load: 0.5})
	}))
	defer srv.Close()

	f := &StatusFetcher{Client: http.DefaultClient}
	s, err := f.Fetch(context.Background(), Candidate{Name: "peer", HTTPEndpoint: srv.URL})
	if err != nil {
		t.Fatalf("Fetch() error = %v, query = %q", err, gotQuery)
	}
	if !s.Running || s.Load != 0.5 {
		t.Errorf("Fetch() = %+v, want Running=true Load=0.5", s)
	}
	if gotQuery != "command=status" {
		t.Errorf("request query = %q, want command=status", gotQuery)
	}
}

func TestStatusFetcherFetchNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	}))
	defer srv.Close()

	f := &StatusFetcher{Client: http.DefaultClient}
	if _, err := f.Fetch(context.Background(), Candidate{Name: "peer", HTTPEndpoint: srv.URL}); err == nil {
		t.Error("Fetch() error = nil, want error for a non-200 response")
	}
}

func TestSynthesizeFailure(t *testing.T) {
	req := &changes.Manifest{Source: "hello", Version: "1.0-1", Architecture: "amd64", Kind: changes.BuildRequest}
	result := SynthesizeFailure(req)
	if result.Kind != changes.BuildResult {
		t.Errorf("Kind = %v, want BuildResult", result.Kind)
	}
	if result.Sbuildretval == 0 {
		t.Error("Sbuildretval = 0, want nonzero")
	}
	if result.SbuildStatus != "upload-failed" {
		t.Errorf("SbuildStatus = %q, want upload-failed", result.SbuildStatus)
	}
	if result.Source != req.Source || result.Architecture != req.Architecture {
		t.Error("SynthesizeFailure did not preserve source/architecture")
	}
}
