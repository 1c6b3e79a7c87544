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

// Package distro parses distribution identifiers and implements the three
// version-string operations (internal rebuild, internal port, external
// port) the packager uses when it fans a package out across suites.
package distro

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrInvalidDistribution is returned by Parse for a string that doesn't
// match the codename-repoid-suite[-rollbackN] grammar.
var ErrInvalidDistribution = errors.New("invalid distribution identifier")

var distroPattern = regexp.MustCompile(`^(\w+)-(\w+)-(\w+)(?:-rollback(\d+))?$`)

// Distribution is a parsed codename-repoid-suite[-rollbackN] identifier.
type Distribution struct {
	Codename   string
	Repository string
	Suite      string
	Rollback   bool
	RollbackNo int
}

// Parse splits s into its components, rejecting anything that doesn't
// match the distribution grammar.
func Parse(s string) (Distribution, error) {
	m := distroPattern.FindStringSubmatch(s)
	if m == nil {
		return Distribution{}, errors.Wrapf(ErrInvalidDistribution, "%q", s)
	}
	d := Distribution{Codename: m[1], Repository: m[2], Suite: m[3]}
	if m[4] != "" {
		n, err := strconv.Atoi(m[4])
		if err != nil {
			return Distribution{}, errors.Wrapf(ErrInvalidDistribution, "%q: bad rollback number", s)
		}
		d.Rollback = true
		d.RollbackNo = n
	}
	return d, nil
}

// Unparse reconstructs the identifier string, the inverse of Parse.
func (d Distribution) Unparse() string {
	s := fmt.Sprintf("%s-%s-%s", d.Codename, d.Repository, d.Suite)
	if d.Rollback {
		s += fmt.Sprintf("-rollback%d", d.RollbackNo)
	}
	return s
}

const rebuildStampLayout = "20060102150405"

var rebuildSuffix = regexp.MustCompile(`\+rebuilt\d{14}$`)

// GenInternalRebuild appends a "+rebuiltYYYYMMDDhhmmss" suffix to v using
// now, replacing any existing rebuild suffix so repeated rebuilds don't
// accumulate stamps.
func GenInternalRebuild(v string, now func() string) string {
	base := rebuildSuffix.ReplaceAllString(v, "")
	return base + "+rebuilt" + now()
}

var revisionSuffix = regexp.MustCompile(`\+(\d+)$`)

// GenInternalPort rewrites v by matching the rightmost occurrence of
// fromMandatory within it and substituting toDefault, preserving a
// trailing "+N" revision from the matched tail if present.
func GenInternalPort(v string, fromMandatory *regexp.Regexp, toDefault string) (string, error) {
	locs := fromMandatory.FindAllStringIndex(v, -1)
	if len(locs) == 0 {
		return "", errors.Errorf("version %q does not contain mandatory pattern %q", v, fromMandatory.String())
	}
	last := locs[len(locs)-1]
	matched := v[last[0]:last[1]]
	replacement := toDefault
	if rm := revisionSuffix.FindStringSubmatch(matched); rm != nil {
		replacement = revisionSuffix.ReplaceAllString(toDefault, "") + "+" + rm[1]
	}
	return v[:last[0]] + replacement + v[last[1]:], nil
}

// GenExternalPort appends targetDefault verbatim to v.
func GenExternalPort(v, targetDefault string) string {
	return v + targetDefault
}

// MandatoryVersionRegex compiles a suite's mandatory_version template
// (e.g. "~{rid}{nbv}+[1-9]") into a regexp, substituting the repository
// id and the target codename's numeric base version into the template's
// "{rid}" and "{nbv}" placeholders.
func MandatoryVersionRegex(template, repoID, codenameVersion string) (*regexp.Regexp, error) {
	expanded := strings.NewReplacer("{rid}", repoID, "{nbv}", codenameVersion).Replace(template)
	re, err := regexp.Compile(expanded)
	if err != nil {
		return nil, errors.Wrapf(err, "compiling mandatory_version template %q", template)
	}
	return re, nil
}

// StripEpoch removes a leading "N:" epoch prefix from a Debian version
// string, if present.
func StripEpoch(v string) string {
	if i := strings.IndexByte(v, ':'); i >= 0 {
		if _, err := strconv.Atoi(v[:i]); err == nil {
			return v[i+1:]
		}
	}
	return v
}
