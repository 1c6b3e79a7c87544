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
	"os"
	"path/filepath"
	"testing"
)

const sampleChanges = `Source: hello
Version: 1.0-1
Distribution: bookworm-myrepo-unstable
Architecture: amd64
Files:
 d41d8cd98f00b204e9800998ecf8427e 1024 devel optional hello_1.0-1_amd64.deb
 d41d8cd98f00b204e9800998ecf8427e 512 devel optional hello_1.0.orig.tar.gz
Changes:
 hello (1.0-1) unstable; urgency=low
 .
 * MINI_BUILDD_OPTION: ignore-lintian=true
`

func writeSample(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("writing sample manifest: %v", err)
	}
	return path
}

func TestParse(t *testing.T) {
	path := writeSample(t, "hello_1.0-1_amd64.changes", sampleChanges)
	m, err := Parse(path)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if m.Source != "hello" || m.Version != "1.0-1" || m.Distribution != "bookworm-myrepo-unstable" {
		t.Errorf("Parse() = %+v", m)
	}
	if len(m.Files) != 2 {
		t.Fatalf("len(Files) = %d, want 2", len(m.Files))
	}
	if m.Files[0].Name != "hello_1.0-1_amd64.deb" || m.Files[0].Size != 1024 {
		t.Errorf("Files[0] = %+v", m.Files[0])
	}
	if m.Kind != Upload {
		t.Errorf("Kind = %v, want Upload", m.Kind)
	}
	if m.SpoolID == "" {
		t.Error("SpoolID is empty")
	}
}

func TestParseMissingMandatoryField(t *testing.T) {
	path := writeSample(t, "bad.changes", "Architecture: amd64\n")
	if _, err := Parse(path); err == nil {
		t.Error("Parse() error = nil, want error for missing Source/Version/Distribution")
	}
}

func TestParseMalformedFilesLine(t *testing.T) {
	body := "Source: hello\nVersion: 1.0-1\nDistribution: bookworm-myrepo-unstable\nFiles:\n oops\n"
	path := writeSample(t, "bad-files.changes", body)
	if _, err := Parse(path); err == nil {
		t.Error("Parse() error = nil, want error for malformed Files line")
	}
}
