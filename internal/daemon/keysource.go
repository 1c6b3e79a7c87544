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

package daemon

import (
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"

	"github.com/buildfarm/buildfarm/pkg/config"
)

// fileKeySource reads the uploader and remote-builder keyrings named in
// the configuration snapshot straight off disk. It is the production
// keyring.Source; the daemon's own key is always implicitly trusted in
// both rings, since internally generated ports, rebuilds, and
// build-requests are signed with it.
type fileKeySource struct {
	cfg  *config.Snapshot
	self *openpgp.Entity
}

// UploaderKeys implements keyring.Source.
func (s *fileKeySource) UploaderKeys(repoIdentity string) (openpgp.EntityList, error) {
	repo, ok := s.cfg.Repository(repoIdentity)
	if !ok {
		return nil, errors.Errorf("unknown repository %s", repoIdentity)
	}
	ring := openpgp.EntityList{s.self}
	for _, path := range repo.UploaderKeyFiles {
		keys, err := readArmoredKeyRing(path)
		if err != nil {
			return nil, errors.Wrapf(err, "reading uploader key %s", path)
		}
		ring = append(ring, keys...)
	}
	return ring, nil
}

// RemoteKeys implements keyring.Source.
func (s *fileKeySource) RemoteKeys() (openpgp.EntityList, error) {
	ring := openpgp.EntityList{s.self}
	for _, rb := range s.cfg.RemoteBuilders {
		if rb.PublicKeyFile == "" {
			continue
		}
		keys, err := readArmoredKeyRing(rb.PublicKeyFile)
		if err != nil {
			return nil, errors.Wrapf(err, "reading remote key for %s", rb.Name)
		}
		ring = append(ring, keys...)
	}
	return ring, nil
}

func readArmoredKeyRing(path string) (openpgp.EntityList, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return openpgp.ReadArmoredKeyRing(f)
}

// loadSigner reads this node's own private signing key, the first entity
// found in the armored key file at path.
func loadSigner(path string) (*openpgp.Entity, error) {
	keys, err := readArmoredKeyRing(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading signing key %s", path)
	}
	if len(keys) == 0 {
		return nil, errors.Errorf("%s: no keys found", path)
	}
	return keys[0], nil
}
