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
	"fmt"
	"os"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/crypto/openpgp/clearsign"
)

const (
	signMaxAttempts = 5
	signRetryDelay  = time.Second
)

// render produces the RFC822 body of a manifest in writeback form. It does
// not attempt full round-trip fidelity with Parse's source encoding; it
// emits a canonical re-serialization sufficient for signing and re-parsing.
func render(m *Manifest) []byte {
	var b bytes.Buffer
	fmt.Fprintf(&b, "Source: %s\n", m.Source)
	fmt.Fprintf(&b, "Version: %s\n", m.Version)
	fmt.Fprintf(&b, "Distribution: %s\n", m.Distribution)
	fmt.Fprintf(&b, "Architecture: %s\n", m.Architecture)
	if len(m.Files) > 0 {
		fmt.Fprintf(&b, "Files:\n")
		for _, f := range m.Files {
			fmt.Fprintf(&b, " %s %d - - %s\n", f.MD5, f.Size, f.Name)
		}
	}
	if m.UploadResultTo != "" {
		fmt.Fprintf(&b, "Upload-Result-To: %s\n", m.UploadResultTo)
	}
	if m.BaseDistribution != "" {
		fmt.Fprintf(&b, "Base-Distribution: %s\n", m.BaseDistribution)
	}
	if m.BuildDepResolver != "" {
		fmt.Fprintf(&b, "Build-Dep-Resolver: %s\n", m.BuildDepResolver)
	}
	if m.AptAllowUnauthenticated {
		fmt.Fprintf(&b, "Apt-Allow-Unauthenticated: yes\n")
	}
	if m.ArchAll {
		fmt.Fprintf(&b, "Arch-All: yes\n")
	}
	if m.RunLintian {
		fmt.Fprintf(&b, "Run-Lintian: yes\n")
	}
	if m.DebBuildOptions != "" {
		fmt.Fprintf(&b, "Deb-Build-Options: %s\n", m.DebBuildOptions)
	}
	if m.Kind == BuildResult {
		fmt.Fprintf(&b, "Sbuildretval: %d\n", m.Sbuildretval)
		fmt.Fprintf(&b, "Sbuild-Status: %s\n", m.SbuildStatus)
		fmt.Fprintf(&b, "Sbuild-Lintian: %s\n", m.SbuildLintian)
		fmt.Fprintf(&b, "Built-By: %s\n", m.BuiltBy)
	}
	if m.Changes != "" {
		fmt.Fprintf(&b, "Changes:\n%s\n", m.Changes)
	}
	return b.Bytes()
}

// Sign writes m to its Path, appends a trailing newline, and replaces the
// body with an armored cleartext signature produced by signer. Transient
// signer failures are retried up to 5 times with a 1 second pause.
func Sign(m *Manifest, signer *openpgp.Entity) error {
	body := render(m)
	body = append(body, '\n')

	var lastErr error
	for attempt := 0; attempt < signMaxAttempts; attempt++ {
		if attempt > 0 {
			time.Sleep(signRetryDelay)
		}
		var buf bytes.Buffer
		w, err := clearsign.Encode(&buf, signer.PrivateKey, nil)
		if err != nil {
			lastErr = err
			continue
		}
		if _, err := w.Write(body); err != nil {
			w.Close()
			lastErr = err
			continue
		}
		if err := w.Close(); err != nil {
			lastErr = err
			continue
		}
		if err := os.WriteFile(m.Path, buf.Bytes(), 0o644); err != nil {
			lastErr = err
			continue
		}
		return nil
	}
	return errors.Wrapf(lastErr, "signing %s after %d attempts", m.Path, signMaxAttempts)
}
