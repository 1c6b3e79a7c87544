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

package changes

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/go-git/go-billy/v5/memfs"
)

func TestTarUntarRoundTrip(t *testing.T) {
	dir := t.TempDir()
	manifestPath := filepath.Join(dir, "hello_1.0-1_amd64.changes")
	if err := os.WriteFile(manifestPath, []byte("Source: hello\n"), 0o644); err != nil {
		t.Fatalf("writing manifest: %v", err)
	}
	debPath := filepath.Join(dir, "hello_1.0-1_amd64.deb")
	if err := os.WriteFile(debPath, []byte("binary contents"), 0o644); err != nil {
		t.Fatalf("writing deb: %v", err)
	}

	m := &Manifest{
		Path:  manifestPath,
		Files: []FileEntry{{Name: "hello_1.0-1_amd64.deb"}},
	}
	tarPath := filepath.Join(dir, "files.tar")
	if err := Tar(m, tarPath, nil, nil); err != nil {
		t.Fatalf("Tar() error = %v", err)
	}

	destDir := filepath.Join(dir, "extracted")
	fs := memfs.New()
	m2 := &Manifest{Path: filepath.Join(dir, "hello_1.0-1_amd64.changes")}
	if err := Untar(m2, destDir, fs); err != nil {
		t.Fatalf("Untar() error = %v", err)
	}

	f, err := fs.Open(filepath.Join(destDir, "hello_1.0-1_amd64.deb"))
	if err != nil {
		t.Fatalf("opening extracted deb: %v", err)
	}
	defer f.Close()
	got, err := io.ReadAll(f)
	if err != nil {
		t.Fatalf("reading extracted deb: %v", err)
	}
	if string(got) != "binary contents" {
		t.Errorf("extracted deb contents = %q, want %q", got, "binary contents")
	}
}

func TestUntarNoSidecar(t *testing.T) {
	dir := t.TempDir()
	m := &Manifest{Path: filepath.Join(dir, "hello_1.0-1_amd64.changes")}
	if err := Untar(m, filepath.Join(dir, "extracted"), memfs.New()); err != nil {
		t.Errorf("Untar() with no sidecar tar error = %v, want nil", err)
	}
}
