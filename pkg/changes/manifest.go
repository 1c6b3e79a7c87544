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

// Package changes implements the artifact codec: parsing, classifying,
// signing, verifying, and packing the .changes manifest family (uploads,
// build-requests, build-results) that moves between the ingest queue, the
// packager, and the builder worker pool.
package changes

// Kind tags the three roles a .changes manifest can play once classified.
type Kind int

const (
	// Upload is a developer-submitted source upload.
	Upload Kind = iota
	// BuildRequest is a coordinator-to-builder dispatch of one architecture's build.
	BuildRequest
	// BuildResult is a builder-to-coordinator signed build outcome.
	BuildResult
)

func (k Kind) String() string {
	switch k {
	case Upload:
		return "upload"
	case BuildRequest:
		return "buildrequest"
	case BuildResult:
		return "buildresult"
	default:
		return "unknown"
	}
}

// marker is the filename infix identifying BuildRequest/BuildResult manifests.
func (k Kind) marker() string {
	switch k {
	case BuildRequest:
		return "_mini-buildd-buildrequest"
	case BuildResult:
		return "_mini-buildd-buildresult"
	default:
		return ""
	}
}

// FileEntry is one line of a manifest's Files: field.
type FileEntry struct {
	MD5  string
	Size int64
	Name string
}

// Manifest is the in-memory representation of a parsed .changes file plus
// the bookkeeping the core attaches to it as it moves through the pipeline.
type Manifest struct {
	// Path is the filesystem location this manifest was parsed from, or
	// where it will be written by Sign. Empty for manifests constructed
	// purely in memory and not yet persisted.
	Path string

	Source       string
	Version      string
	Distribution string
	Architecture string
	Files        []FileEntry
	Changes      string

	// Build-request fields.
	UploadResultTo        string
	BaseDistribution      string
	BuildDepResolver      string
	AptAllowUnauthenticated bool
	ArchAll               bool
	RunLintian            bool
	DebBuildOptions       string

	// Build-result fields.
	Sbuildretval  int
	SbuildStatus  string
	SbuildLintian string
	BuiltBy       string

	// Kind is the classification of this manifest (§3.1 supplement: cached
	// rather than recomputed on every access).
	Kind Kind
	// BuilderURL records which remote builder a build-request was
	// ultimately dispatched to (§3.1 supplement, used by dispatch
	// observability).
	BuilderURL string

	// SpoolID is the content hash (SHA1) computed by Parse.
	SpoolID string
}

// Clone returns a deep-enough copy of m suitable for mutating into a
// derived manifest (e.g. a build-request derived from an upload) without
// aliasing the Files slice.
func (m *Manifest) Clone() *Manifest {
	cp := *m
	cp.Files = append([]FileEntry(nil), m.Files...)
	return &cp
}
