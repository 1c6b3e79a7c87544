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
	"bytes"
	"os"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/clearsign"
)

// ErrSignatureRejected is returned by Verify when a manifest's cleartext
// signature does not check out against the supplied keyring.
var ErrSignatureRejected = errors.New("signature rejected")

// Verify checks the cleartext signature on the manifest at path against
// keyring and returns the parsed manifest on success.
func Verify(path string, keyring openpgp.EntityList) (*Manifest, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", path)
	}
	block, _ := clearsign.Decode(raw)
	if block == nil {
		return nil, errors.Wrapf(ErrSignatureRejected, "%s: not a cleartext signature", path)
	}
	if _, err := openpgp.CheckDetachedSignature(keyring, bytes.NewReader(block.Bytes), block.ArmoredSignature.Body, nil); err != nil {
		return nil, errors.Wrapf(ErrSignatureRejected, "%s: %v", path, err)
	}
	return Parse(path)
}
