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

package distro

import (
	"sort"

	"github.com/pkg/errors"
	"pault.ag/go/debian/version"
)

// ErrArchivePrecheckFailed is returned by CheckMonotonic (via the archive
// adapter's monotonicity precheck) when a candidate version is not newer
// than what is already installed.
var ErrArchivePrecheckFailed = errors.New("archive precheck failed")

// Newer reports whether candidate sorts strictly after installed under
// Debian version ordering.
func Newer(candidate, installed string) (bool, error) {
	c, err := version.Parse(candidate)
	if err != nil {
		return false, errors.Wrapf(err, "parsing candidate version %q", candidate)
	}
	i, err := version.Parse(installed)
	if err != nil {
		return false, errors.Wrapf(err, "parsing installed version %q", installed)
	}
	pair := version.Slice{i, c}
	sort.Sort(pair)
	return pair[1] == c && pair[0] == i && !(pair[0] == pair[1]), nil
}

// CheckMonotonic enforces the archive's install precheck: candidate must
// sort strictly after installed.
func CheckMonotonic(candidate, installed string) error {
	if installed == "" {
		return nil
	}
	newer, err := Newer(candidate, installed)
	if err != nil {
		return err
	}
	if !newer {
		return errors.Wrapf(ErrArchivePrecheckFailed, "%s is not newer than installed %s", candidate, installed)
	}
	return nil
}
