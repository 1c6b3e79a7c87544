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

// Package builder is the worker side of builder dispatch: it executes
// chroot-backed builds and ships signed build-results back to the
// originator.
package builder

import (
	"context"
	"io"
)

// BuildRequest is the set of inputs ChrootExecutor needs to run one
// sbuild invocation.
type BuildRequest struct {
	Chroot           string // e.g. "mini-buildd-bookworm-amd64"
	Distribution     string
	Architecture     string
	WorkDir          string // spool directory; also HOME for the child process
	SbuildConfigPath string
	BuildDepResolver string
	RunLintian       bool
	Env              []string
}

// BuildOutcome is what the chroot build produced.
type BuildOutcome struct {
	ExitCode int
	Log      io.ReadCloser // caller must Close
}

// ChrootExecutor runs one chroot-backed build. A concrete implementation
// shells out to sbuild(1) against the named schroot/chroot; this
// interface exists so the worker's orchestration logic (log parsing,
// result construction, retry sweep) can be tested without a real chroot.
type ChrootExecutor interface {
	Build(ctx context.Context, req BuildRequest) (BuildOutcome, error)
}
