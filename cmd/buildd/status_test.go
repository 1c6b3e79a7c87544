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

package main

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/buildfarm/buildfarm/pkg/dispatch"
)

func TestFetchStatus(t *testing.T) {
	want := dispatch.Status{
		Running: true,
		Load:    0.5,
		Chroots: map[string][]string{"bookworm": {"amd64"}},
		Remotes: []string{"http://builder1.internal"},
	}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(want)
	}))
	defer srv.Close()

	httpAddr = srv.URL
	got, err := fetchStatus()
	if err != nil {
		t.Fatalf("fetchStatus() error = %v", err)
	}
	if got.Running != want.Running || got.Load != want.Load {
		t.Errorf("fetchStatus() = %+v, want %+v", got, want)
	}
}

func TestFetchStatusNonOK(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	httpAddr = srv.URL
	if _, err := fetchStatus(); err == nil {
		t.Error("fetchStatus() error = nil, want error for a non-200 response")
	}
}
