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
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ErrUnknownUploadOption is returned by ParseUploadOptions for a bullet
// naming an option this core doesn't recognize.
var ErrUnknownUploadOption = errors.New("unknown upload option")

// ErrDuplicateUploadOption is returned when the same (option, arch) pair
// appears more than once in a manifest's Changes text.
var ErrDuplicateUploadOption = errors.New("duplicate upload option")

var (
	optionBullet = regexp.MustCompile(`(?m)^\*\s*MINI_BUILDD_OPTION:\s*([\w-]+)(?:\[(\w+)\])?(?:=(\S+))?\s*$`)
	legacyAuto   = regexp.MustCompile(`(?m)^\*\s*AUTO_BACKPORTS:?\s*(\S+)\s*$`)
	legacyIgn    = regexp.MustCompile(`(?m)^\*\s*BACKPORT_MODE:?\s*(\S+)?\s*$`)
	// changelogHeader matches a "package (version) distribution;" line
	// opening a changelog block.
	changelogHeader = regexp.MustCompile(`(?m)^\s*[a-z0-9][a-z0-9.+-]+ \([^()\s]+\)[^;\n]*;`)
)

// UploadOption is one parsed MINI_BUILDD_OPTION bullet, optionally scoped
// to a single architecture.
type UploadOption struct {
	Key   string
	Arch  string // empty means "all architectures"
	Value string
}

var knownOptionKeys = map[string]bool{
	"ignore-lintian":        true,
	"run-lintian":           true,
	"internal-apt-priority": true,
	"auto-ports":            true,
}

// ParseUploadOptions scans the top changelog block of a manifest's Changes
// text for MINI_BUILDD_OPTION bullets (plus the two legacy magic-comment
// forms) and returns the set of recognized options.
func ParseUploadOptions(changesText string) ([]UploadOption, error) {
	if hdrs := changelogHeader.FindAllStringIndex(changesText, 2); len(hdrs) == 2 {
		changesText = changesText[:hdrs[1][0]]
	}
	var opts []UploadOption
	seen := map[string]bool{}

	for _, m := range optionBullet.FindAllStringSubmatch(changesText, -1) {
		key, arch, value := m[1], m[2], m[3]
		if !knownOptionKeys[key] {
			return nil, errors.Wrapf(ErrUnknownUploadOption, "%q", key)
		}
		dedupeKey := key + "[" + arch + "]"
		if seen[dedupeKey] {
			return nil, errors.Wrapf(ErrDuplicateUploadOption, "%q", dedupeKey)
		}
		seen[dedupeKey] = true
		opts = append(opts, UploadOption{Key: key, Arch: arch, Value: value})
	}
	for _, m := range legacyAuto.FindAllStringSubmatch(changesText, -1) {
		opts = append(opts, UploadOption{Key: "auto-ports", Value: m[1]})
	}
	for range legacyIgn.FindAllStringSubmatch(changesText, -1) {
		opts = append(opts, UploadOption{Key: "ignore-lintian", Value: "true"})
	}
	return opts, nil
}

// Bool reports the boolean value of a "true"/"false"/bare option; a bare
// key with no "=value" (e.g. a legacy magic comment) is treated as true.
func (o UploadOption) Bool() bool {
	if o.Value == "" {
		return true
	}
	b, err := strconv.ParseBool(o.Value)
	return err == nil && b
}

// Distributions splits a CSV-valued option (auto-ports) into its listed
// distribution identifiers.
func (o UploadOption) Distributions() []string {
	if o.Value == "" {
		return nil
	}
	parts := strings.Split(o.Value, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
