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
	"fmt"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"github.com/buildfarm/buildfarm/pkg/ftpx"
)

// ErrUploadFailed wraps any failure to push a manifest's files to the
// destination FTP endpoint.
var ErrUploadFailed = errors.New("upload failed")

// sentinelPath returns the idempotency marker written next to a manifest
// once its FTP upload has completed.
func sentinelPath(m *Manifest) string {
	return m.Path + ".upload"
}

// Upload pushes the manifest and every file it lists to /incoming on
// ftpEndpoint via anonymous FTP. On success it writes a sentinel file
// recording the destination; if that sentinel already exists, Upload is a
// no-op (the manifest was already delivered there).
func Upload(m *Manifest, ftpEndpoint string) error {
	sentinel := sentinelPath(m)
	if existing, err := os.ReadFile(sentinel); err == nil {
		if string(existing) == ftpEndpoint {
			return nil
		}
	}

	client, err := ftpx.Dial(ftpEndpoint)
	if err != nil {
		return errors.Wrapf(ErrUploadFailed, "dialing %s: %v", ftpEndpoint, err)
	}
	defer client.Close()

	dir := filepath.Dir(m.Path)
	put := func(localPath, remoteName string) error {
		f, err := os.Open(localPath)
		if err != nil {
			return err
		}
		defer f.Close()
		return client.Store(fmt.Sprintf("/incoming/%s", remoteName), f)
	}

	for _, f := range m.Files {
		if err := put(filepath.Join(dir, f.Name), f.Name); err != nil {
			return errors.Wrapf(ErrUploadFailed, "uploading %s to %s: %v", f.Name, ftpEndpoint, err)
		}
	}
	if err := put(m.Path, filepath.Base(m.Path)); err != nil {
		return errors.Wrapf(ErrUploadFailed, "uploading manifest to %s: %v", ftpEndpoint, err)
	}

	if err := os.WriteFile(sentinel, []byte(ftpEndpoint), 0o644); err != nil {
		return errors.Wrapf(err, "writing upload sentinel for %s", m.Path)
	}
	return nil
}
