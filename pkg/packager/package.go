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

// Package packager runs the per-upload state machine: parse and
// authorize an upload, fan it out into per-architecture build-requests,
// collect build-results as they correlate back in, and decide whether to
// install.
package packager

import (
	"sync"
	"time"

	"github.com/buildfarm/buildfarm/pkg/changes"
)

// Status is a Package's position in its state machine.
type Status string

const (
	Checking   Status = "CHECKING"
	Building   Status = "BUILDING"
	Installing Status = "INSTALLING"
	Installed  Status = "INSTALLED"
	Rejected   Status = "REJECTED"
	Failed     Status = "FAILED"
)

// Package is one in-flight upload, owned exclusively by the Processor.
type Package struct {
	mu sync.Mutex

	Pid          string // source_version
	Started      time.Time
	Finished     time.Time
	Status       Status
	Repository   string
	Distribution string
	Suite        string

	Requests   map[string]*changes.Manifest // arch -> build-request
	Success    map[string]*changes.Manifest
	FailedArch map[string]*changes.Manifest
	PortReport map[string]string
}

func newPackage(pid, repo, dist, suite string) *Package {
	return &Package{
		Pid:          pid,
		Started:      time.Now(),
		Status:       Checking,
		Repository:   repo,
		Distribution: dist,
		Suite:        suite,
		Requests:     map[string]*changes.Manifest{},
		Success:      map[string]*changes.Manifest{},
		FailedArch:   map[string]*changes.Manifest{},
		PortReport:   map[string]string{},
	}
}

// decided reports whether every requested architecture has reported in.
func (p *Package) decided() bool {
	return len(p.Success)+len(p.FailedArch) == len(p.Requests)
}
