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

// Package config loads the read-only configuration snapshot the rest of
// the core treats as ground truth: repositories, suites, architecture
// options, and remote builders.
package config

import (
	"os"
	"time"

	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// LintianMode is a distribution's lintian enforcement policy.
type LintianMode string

const (
	LintianDisabled        LintianMode = "disabled"
	LintianRunOnly         LintianMode = "run-only"
	LintianFailOnError     LintianMode = "fail-on-error"
	LintianFailOnWarning   LintianMode = "fail-on-warning"
)

// ArchitectureOption is one architecture a distribution builds for.
type ArchitectureOption struct {
	Arch               string `yaml:"arch"`
	BuildArchitectureAll bool `yaml:"build_architecture_all"`
}

// Suite is a configuration record for one suite within a repository's
// layout (e.g. unstable, experimental).
type Suite struct {
	Name                  string `yaml:"name"`
	Uploadable            bool   `yaml:"uploadable"`
	Experimental          bool   `yaml:"experimental"`
	MigratesTo            string `yaml:"migrates_to,omitempty"`
	BuildKeyringPackage   bool   `yaml:"build_keyring_package"`
	Rollback              int    `yaml:"rollback"`
	MandatoryVersionTemplate string `yaml:"mandatory_version"`
}

// Distribution is one buildable codename within a repository.
type Distribution struct {
	Codename      string               `yaml:"codename"`
	Suite         string               `yaml:"suite"`
	Architectures []ArchitectureOption `yaml:"architectures"`
	Lintian       LintianMode          `yaml:"lintian"`
	// NumericBaseVersion is this codename's release number (e.g. "12" for
	// bookworm), substituted for a suite's mandatory_version template's
	// "{nbv}" placeholder.
	NumericBaseVersion string `yaml:"numeric_base_version"`

	// BuildDepResolver is the sbuild build-dependency resolver strategy
	// (e.g. "apt", "aspcud") passed to every build-request for this
	// codename.
	BuildDepResolver string `yaml:"build_dep_resolver"`
	// AptAllowUnauthenticated permits a build chroot to install unsigned
	// packages.
	AptAllowUnauthenticated bool `yaml:"apt_allow_unauthenticated"`
	// DebBuildOptions is passed through to dpkg-buildpackage inside the
	// chroot (e.g. "nocheck parallel=4").
	DebBuildOptions string `yaml:"deb_build_options"`
}

// Repository is the read-only configuration snapshot for one repository.
type Repository struct {
	Identity                   string         `yaml:"identity"`
	UploaderKeyFiles           []string       `yaml:"uploader_key_files"`
	AllowUnauthenticatedUploads bool          `yaml:"allow_unauthenticated_uploads"`
	Distributions              []Distribution `yaml:"distributions"`
	Suites                     []Suite        `yaml:"suites"`
}

// RemoteBuilder is a peer builder this daemon can dispatch build-requests
// to.
type RemoteBuilder struct {
	Name        string `yaml:"name"`
	HTTPEndpoint string `yaml:"http_endpoint"`
	FTPEndpoint  string `yaml:"ftp_endpoint"`
	PublicKeyFile string `yaml:"public_key_file"`
}

// Snapshot is the full configuration the daemon loads at startup and
// reloads on SIGHUP-equivalent request.
type Snapshot struct {
	Repositories   []Repository    `yaml:"repositories"`
	RemoteBuilders []RemoteBuilder `yaml:"remote_builders"`
	BuildQueueSize int             `yaml:"build_queue_size"`
	SpoolDir       string          `yaml:"spool_dir"`
	IncomingDir    string          `yaml:"incoming_dir"`

	// ArchiveBaseDir is the reprepro -b basedir shared by every
	// repository; each repository's distinct distribution identifiers
	// (codename-repoid-suite) keep them from colliding within it.
	ArchiveBaseDir string `yaml:"archive_base_dir"`
	// ReprepoBin overrides the reprepro binary path; empty means
	// "reprepro" on PATH.
	ReprepoBin string `yaml:"reprepro_bin"`

	// FTPAddr is this node's own incoming FTP listen address.
	FTPAddr string `yaml:"ftp_addr"`
	// HTTPAddr is this node's own status/getkey HTTP listen address.
	HTTPAddr string `yaml:"http_addr"`
	// SigningKeyFile is this node's own OpenPGP private key, used to
	// sign build-requests, auto-ports, and (on a builder node)
	// build-results.
	SigningKeyFile string `yaml:"signing_key_file"`

	// PublicLogDir, if set, receives a published copy of every build log.
	PublicLogDir string `yaml:"public_log_dir"`
	// LogRetention bounds how long a published build log is kept
	// (default 5 days if zero).
	LogRetention time.Duration `yaml:"log_retention"`

	// HistoryPath is where the supervisor's bounded package/build
	// history is gob-persisted across restarts.
	HistoryPath string `yaml:"history_path"`
	// HistoryLimit bounds how many of the most recent packages and
	// builds that history keeps (default 100 if zero).
	HistoryLimit int `yaml:"history_limit"`
}

// Load reads and parses a Snapshot from path.
func Load(path string) (*Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening config %s", path)
	}
	defer f.Close()
	var snap Snapshot
	if err := yaml.NewDecoder(f).Decode(&snap); err != nil {
		return nil, errors.Wrapf(err, "decoding config %s", path)
	}
	return &snap, nil
}

// Repository looks up a repository by identity.
func (s *Snapshot) Repository(identity string) (*Repository, bool) {
	for i := range s.Repositories {
		if s.Repositories[i].Identity == identity {
			return &s.Repositories[i], true
		}
	}
	return nil, false
}

// Suite looks up a suite by name within a repository.
func (r *Repository) Suite(name string) (*Suite, bool) {
	for i := range r.Suites {
		if r.Suites[i].Name == name {
			return &r.Suites[i], true
		}
	}
	return nil, false
}
