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

package builder

import (
	"bufio"
	"io"
	"regexp"
)

var statusLine = regexp.MustCompile(`^(Status|Lintian): (\S+)$`)

// ParseBuildLog scans a build log for "Status: x" / "Lintian: x" lines,
// returning the last value seen for each (sbuild repeats some lines
// across retries within one invocation; the final one wins).
func ParseBuildLog(r io.Reader) (status, lintian string) {
	s := bufio.NewScanner(r)
	for s.Scan() {
		m := statusLine.FindStringSubmatch(s.Text())
		if m == nil {
			continue
		}
		switch m[1] {
		case "Status":
			status = m[2]
		case "Lintian":
			lintian = m[2]
		}
	}
	return status, lintian
}
