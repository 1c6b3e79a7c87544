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
	"crypto/sha1"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"pault.ag/go/debian/control"
)

// ErrMalformedManifest is returned by Parse when a manifest is missing a
// mandatory field or its Files: lines don't scan.
var ErrMalformedManifest = errors.New("malformed manifest")

// rawManifest mirrors the RFC822 stanza of a .changes file. Field names
// map to control headers by inserting a hyphen at each capital letter
// boundary; fields where that doesn't hold carry an explicit tag.
type rawManifest struct {
	control.Paragraph

	Source       string
	Version      string
	Distribution string
	Architecture string
	Files        []string `delim:"\n" strip:" \t\n\r" multiline:"true"`
	Changes      string

	UploadResultTo          string `control:"Upload-Result-To"`
	BaseDistribution        string `control:"Base-Distribution"`
	BuildDepResolver        string `control:"Build-Dep-Resolver"`
	AptAllowUnauthenticated string `control:"Apt-Allow-Unauthenticated"`
	ArchAll                 string `control:"Arch-All"`
	RunLintian              string `control:"Run-Lintian"`
	DebBuildOptions         string `control:"Deb-Build-Options"`

	Sbuildretval  string
	SbuildStatus  string `control:"Sbuild-Status"`
	SbuildLintian string `control:"Sbuild-Lintian"`
	BuiltBy       string `control:"Built-By"`
}

// Parse reads the RFC822-style manifest at path, populating Files from the
// Files: field and recording the file's content hash as its spool-id.
func Parse(path string) (*Manifest, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "opening manifest %s", path)
	}
	defer f.Close()

	h := sha1.New()
	dec, err := control.NewDecoder(io.TeeReader(f, h), nil)
	if err != nil {
		return nil, errors.Wrap(ErrMalformedManifest, err.Error())
	}
	var raw rawManifest
	if err := dec.Decode(&raw); err != nil {
		return nil, errors.Wrapf(ErrMalformedManifest, "decoding %s: %v", path, err)
	}
	if raw.Source == "" || raw.Version == "" || raw.Distribution == "" {
		return nil, errors.Wrapf(ErrMalformedManifest, "%s missing mandatory field", path)
	}

	files, err := parseFiles(raw.Files)
	if err != nil {
		return nil, errors.Wrapf(ErrMalformedManifest, "%s: %v", path, err)
	}

	m := &Manifest{
		Path:                    path,
		Source:                  raw.Source,
		Version:                 raw.Version,
		Distribution:            raw.Distribution,
		Architecture:            raw.Architecture,
		Files:                   files,
		Changes:                 raw.Changes,
		UploadResultTo:          raw.UploadResultTo,
		BaseDistribution:        raw.BaseDistribution,
		BuildDepResolver:        raw.BuildDepResolver,
		AptAllowUnauthenticated: raw.AptAllowUnauthenticated == "yes",
		ArchAll:                 raw.ArchAll != "",
		RunLintian:              raw.RunLintian != "",
		DebBuildOptions:         raw.DebBuildOptions,
		SbuildStatus:            raw.SbuildStatus,
		SbuildLintian:           raw.SbuildLintian,
		BuiltBy:                 raw.BuiltBy,
		SpoolID:                 fmt.Sprintf("%x", h.Sum(nil)),
	}
	if raw.Sbuildretval != "" {
		v, err := strconv.Atoi(raw.Sbuildretval)
		if err != nil {
			return nil, errors.Wrapf(ErrMalformedManifest, "%s: bad Sbuildretval %q", path, raw.Sbuildretval)
		}
		m.Sbuildretval = v
	}
	m.Kind = Classify(path)
	return m, nil
}

// parseFiles scans the five-token lines of a Files: field: md5, size,
// section, priority, name.
func parseFiles(lines []string) ([]FileEntry, error) {
	var out []FileEntry
	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 5 {
			return nil, errors.Errorf("malformed Files line %q", line)
		}
		size, err := strconv.ParseInt(fields[1], 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "parsing size in Files line %q", line)
		}
		out = append(out, FileEntry{
			MD5:  fields[0],
			Size: size,
			Name: fields[len(fields)-1],
		})
	}
	return out, nil
}
