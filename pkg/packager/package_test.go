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

package packager

import (
	"testing"

	"github.com/buildfarm/buildfarm/pkg/changes"
)

func TestPackageDecided(t *testing.T) {
	pkg := newPackage("hello_1.0-1", "myrepo", "bookworm-myrepo-unstable", "unstable")
	pkg.Requests["amd64"] = &changes.Manifest{}
	pkg.Requests["arm64"] = &changes.Manifest{}
	if pkg.decided() {
		t.Error("decided() = true before any result has come in")
	}
	pkg.Success["amd64"] = &changes.Manifest{}
	if pkg.decided() {
		t.Error("decided() = true with one architecture still outstanding")
	}
	pkg.FailedArch["arm64"] = &changes.Manifest{}
	if !pkg.decided() {
		t.Error("decided() = false once every requested architecture has reported")
	}
}

func TestNewPackageInitializesMaps(t *testing.T) {
	pkg := newPackage("p", "repo", "dist", "suite")
	if pkg.Status != Checking {
		t.Errorf("Status = %v, want Checking", pkg.Status)
	}
	if pkg.Requests == nil || pkg.Success == nil || pkg.FailedArch == nil || pkg.PortReport == nil {
		t.Error("newPackage() left a nil map")
	}
}
