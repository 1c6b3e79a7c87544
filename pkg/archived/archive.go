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

// Package archived wraps the underlying Debian archive tool (reprepro-
// style) with the operation set the packager and supervisor need,
// serializing every call on a given repository identity so concurrent
// installs into the same archive never interleave.
package archived

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/buildfarm/buildfarm/internal/syncx"
	"github.com/buildfarm/buildfarm/pkg/changes"
	"github.com/buildfarm/buildfarm/pkg/distro"
)

// ErrArchiveInstallFailed wraps any failure of the underlying archive tool
// during Install.
var ErrArchiveInstallFailed = errors.New("archive install failed")

// Entry is one row of a List/Show result.
type Entry struct {
	Package         string
	Type            string // "source" or "binary"
	Arch            string
	Version         string
	Source          string
	SourceVersion   string
	Distribution    string
	Component       string
}

// Tool is the underlying archive command this adapter drives (grounded on
// the external `reprepro`-equivalent contract of §4.6; a concrete
// implementation shells out to it).
type Tool interface {
	Install(ctx context.Context, changesPath, distribution string) error
	Migrate(ctx context.Context, pkg, src, dst, version string) error
	Remove(ctx context.Context, pkg, distribution, version string) error
	Find(ctx context.Context, pkg, distribution, version string) (bool, error)
	List(ctx context.Context, pattern, distribution, typ string, max int) ([]Entry, error)
	Show(ctx context.Context, pkg string) ([]Entry, error)
	Reindex(ctx context.Context) error
	// Highest returns the highest installed version of pkg in
	// distribution, or "" if none is installed.
	Highest(ctx context.Context, pkg, distribution string) (string, error)
}

// Adapter serializes Tool calls per repository identity.
type Adapter struct {
	tool  Tool
	locks syncx.Map[string, *sync.Mutex]
}

// New constructs an Adapter driving tool.
func New(tool Tool) *Adapter {
	return &Adapter{tool: tool}
}

func (a *Adapter) lockFor(repoIdentity string) *sync.Mutex {
	mu, _ := a.locks.LoadOrStore(repoIdentity, &sync.Mutex{})
	return mu
}

// PrecheckInstall enforces the archive's monotonicity rule: candidate
// must sort strictly after whatever is already installed for pkg in
// distribution.
func (a *Adapter) PrecheckInstall(ctx context.Context, repoIdentity, pkg, distribution, candidateVersion string) error {
	mu := a.lockFor(repoIdentity)
	mu.Lock()
	defer mu.Unlock()
	installed, err := a.tool.Highest(ctx, pkg, distribution)
	if err != nil {
		return errors.Wrapf(err, "checking installed version of %s in %s", pkg, distribution)
	}
	return distro.CheckMonotonic(candidateVersion, installed)
}

// Install installs m's files into distribution, serialized per repository.
func (a *Adapter) Install(ctx context.Context, repoIdentity string, m *changes.Manifest, distribution string) error {
	mu := a.lockFor(repoIdentity)
	mu.Lock()
	defer mu.Unlock()
	if err := a.tool.Install(ctx, m.Path, distribution); err != nil {
		return errors.Wrapf(ErrArchiveInstallFailed, "%s into %s: %v", m.Source, distribution, err)
	}
	return nil
}

// Migrate copy-sources pkg from src to dst, optionally restricted to
// version.
func (a *Adapter) Migrate(ctx context.Context, repoIdentity, pkg, src, dst, version string) error {
	mu := a.lockFor(repoIdentity)
	mu.Lock()
	defer mu.Unlock()
	return errors.Wrapf(a.tool.Migrate(ctx, pkg, src, dst, version), "migrating %s %s->%s", pkg, src, dst)
}

// Remove removes pkg (source and all binaries) from distribution.
func (a *Adapter) Remove(ctx context.Context, repoIdentity, pkg, distribution, version string) error {
	mu := a.lockFor(repoIdentity)
	mu.Lock()
	defer mu.Unlock()
	return errors.Wrapf(a.tool.Remove(ctx, pkg, distribution, version), "removing %s from %s", pkg, distribution)
}

// Find reports whether pkg@version is present in distribution.
func (a *Adapter) Find(ctx context.Context, repoIdentity, pkg, distribution, version string) (bool, error) {
	mu := a.lockFor(repoIdentity)
	mu.Lock()
	defer mu.Unlock()
	return a.tool.Find(ctx, pkg, distribution, version)
}

// List glob-matches pattern within distribution.
func (a *Adapter) List(ctx context.Context, repoIdentity, pattern, distribution, typ string, max int) ([]Entry, error) {
	mu := a.lockFor(repoIdentity)
	mu.Lock()
	defer mu.Unlock()
	return a.tool.List(ctx, pattern, distribution, typ, max)
}

// Show returns every appearance of pkg as a source package.
func (a *Adapter) Show(ctx context.Context, repoIdentity, pkg string) ([]Entry, error) {
	mu := a.lockFor(repoIdentity)
	mu.Lock()
	defer mu.Unlock()
	return a.tool.Show(ctx, pkg)
}

// Reindex drops and rebuilds the archive's dists/ indices.
func (a *Adapter) Reindex(ctx context.Context, repoIdentity string) error {
	mu := a.lockFor(repoIdentity)
	mu.Lock()
	defer mu.Unlock()
	return errors.Wrap(a.tool.Reindex(ctx), "reindexing")
}
