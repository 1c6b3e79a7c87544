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
	"os"
	"path/filepath"
	"testing"
)

func TestReadPidFileRoundTrip(t *testing.T) {
	pidFile = filepath.Join(t.TempDir(), "buildd.pid")
	if err := writePidFile(); err != nil {
		t.Fatalf("writePidFile() error = %v", err)
	}
	got, err := readPidFile()
	if err != nil {
		t.Fatalf("readPidFile() error = %v", err)
	}
	if got != os.Getpid() {
		t.Errorf("readPidFile() = %d, want %d", got, os.Getpid())
	}
}

func TestReadPidFileMissing(t *testing.T) {
	pidFile = filepath.Join(t.TempDir(), "absent.pid")
	if _, err := readPidFile(); err == nil {
		t.Error("readPidFile() error = nil, want error when no pid file exists")
	}
}

func TestReadPidFileGarbage(t *testing.T) {
	pidFile = filepath.Join(t.TempDir(), "buildd.pid")
	if err := os.WriteFile(pidFile, []byte("not-a-pid"), 0o644); err != nil {
		t.Fatalf("writing garbage pid file: %v", err)
	}
	if _, err := readPidFile(); err == nil {
		t.Error("readPidFile() error = nil, want error for non-numeric pid file contents")
	}
}
