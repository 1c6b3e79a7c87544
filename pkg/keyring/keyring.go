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

// Package keyring is the crypto gate: it owns the Uploaders and Remotes
// keyrings and exposes the only two ways the rest of the core verifies an
// OpenPGP cleartext signature.
package keyring

import (
	"sync/atomic"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"

	"github.com/buildfarm/buildfarm/pkg/changes"
)

// Source supplies the current set of trusted keys for a repository. It is
// called only when the keyring is rebuilt, never on the verification hot
// path.
type Source interface {
	// UploaderKeys returns the configured uploader keys for repoIdentity
	// plus the daemon's own key (needed to trust internally generated
	// ports and rebuilds).
	UploaderKeys(repoIdentity string) (openpgp.EntityList, error)
	// RemoteKeys returns the public keys of every configured remote
	// builder, trusted for build-result manifests.
	RemoteKeys() (openpgp.EntityList, error)
}

// Gate holds the lazily-rebuilt Uploaders and Remotes keyrings. A Gate is
// safe for concurrent use.
type Gate struct {
	src Source

	uploaders   atomic.Pointer[map[string]openpgp.EntityList]
	remotes     atomic.Pointer[openpgp.EntityList]
	needsUpdate atomic.Bool
}

// New constructs a Gate backed by src. The keyrings are built on first use,
// not at construction, so configuration loading and keyring assembly never
// block startup.
func New(src Source) *Gate {
	g := &Gate{src: src}
	g.needsUpdate.Store(true)
	return g
}

// Invalidate marks the keyrings stale; the next Verify* call rebuilds them
// off to the side and atomically swaps the pointer in, so in-flight
// verifications against the old keyring are never disturbed.
func (g *Gate) Invalidate() {
	g.needsUpdate.Store(true)
}

func (g *Gate) refresh() error {
	if !g.needsUpdate.Load() {
		return nil
	}
	remotes, err := g.src.RemoteKeys()
	if err != nil {
		return errors.Wrap(err, "loading remote keys")
	}
	g.remotes.Store(&remotes)
	g.uploaders.Store(nil)
	g.needsUpdate.Store(false)
	return nil
}

func (g *Gate) uploaderKeyring(repoIdentity string) (openpgp.EntityList, error) {
	if m := g.uploaders.Load(); m != nil {
		if ring, ok := (*m)[repoIdentity]; ok && !g.needsUpdate.Load() {
			return ring, nil
		}
	}
	ring, err := g.src.UploaderKeys(repoIdentity)
	if err != nil {
		return nil, errors.Wrapf(err, "loading uploader keys for %s", repoIdentity)
	}
	next := map[string]openpgp.EntityList{}
	if m := g.uploaders.Load(); m != nil {
		for k, v := range *m {
			next[k] = v
		}
	}
	next[repoIdentity] = ring
	g.uploaders.Store(&next)
	return ring, nil
}

// VerifyUpload verifies a manifest against the uploader keyring for
// repoIdentity, returning changes.ErrSignatureRejected on mismatch.
func (g *Gate) VerifyUpload(path, repoIdentity string) (*changes.Manifest, error) {
	ring, err := g.uploaderKeyring(repoIdentity)
	if err != nil {
		return nil, err
	}
	return changes.Verify(path, ring)
}

// Remotes returns the current remotes keyring, refreshing it first if it
// has been invalidated. Exposed so the builder worker can verify
// incoming build-requests without going through a file path, matching
// its Remotes func() (openpgp.EntityList, error) dependency shape.
func (g *Gate) Remotes() (openpgp.EntityList, error) {
	if err := g.refresh(); err != nil {
		return nil, err
	}
	ring := g.remotes.Load()
	if ring == nil {
		return nil, errors.New("remotes keyring not initialized")
	}
	return *ring, nil
}

// VerifyRemote verifies a manifest (a build-result) against the remotes
// keyring, returning changes.ErrSignatureRejected on mismatch.
func (g *Gate) VerifyRemote(path string) (*changes.Manifest, error) {
	if err := g.refresh(); err != nil {
		return nil, err
	}
	ring := g.remotes.Load()
	if ring == nil {
		return nil, errors.New("remotes keyring not initialized")
	}
	return changes.Verify(path, *ring)
}
