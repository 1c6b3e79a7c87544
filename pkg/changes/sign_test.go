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
	"path/filepath"
	"testing"

	"golang.org/x/crypto/openpgp"
)

func testEntity(t *testing.T) *openpgp.Entity {
	t.Helper()
	e, err := openpgp.NewEntity("buildd test", "", "buildd@example.org", nil)
	if err != nil {
		t.Fatalf("generating test key: %v", err)
	}
	return e
}

func TestSignVerifyRoundTrip(t *testing.T) {
	signer := testEntity(t)
	m := &Manifest{
		Path:         filepath.Join(t.TempDir(), "hello_1.0-1_amd64.changes"),
		Source:       "hello",
		Version:      "1.0-1",
		Distribution: "bookworm-myrepo-unstable",
		Architecture: "amd64",
	}
	if err := Sign(m, signer); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}

	keyring := openpgp.EntityList{signer}
	got, err := Verify(m.Path, keyring)
	if err != nil {
		t.Fatalf("Verify() error = %v", err)
	}
	if got.Source != m.Source || got.Version != m.Version {
		t.Errorf("Verify() round-tripped = %+v, want Source/Version to match %+v", got, m)
	}
}

func TestVerifyRejectsUnknownSigner(t *testing.T) {
	m := &Manifest{
		Path:         filepath.Join(t.TempDir(), "hello_1.0-1_amd64.changes"),
		Source:       "hello",
		Version:      "1.0-1",
		Distribution: "bookworm-myrepo-unstable",
	}
	if err := Sign(m, testEntity(t)); err != nil {
		t.Fatalf("Sign() error = %v", err)
	}
	otherKeyring := openpgp.EntityList{testEntity(t)}
	if _, err := Verify(m.Path, otherKeyring); err == nil {
		t.Error("Verify() error = nil, want ErrSignatureRejected for unrelated keyring")
	}
}
