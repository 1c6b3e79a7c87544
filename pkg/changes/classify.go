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

import "strings"

// Classify determines the Kind of a .changes manifest from its filename
// alone, without reading the file. Build-request and build-result manifests
// carry a fixed infix after the version; anything else lacking that infix
// is an upload.
func Classify(filename string) Kind {
	if strings.Contains(filename, BuildRequest.marker()) {
		return BuildRequest
	}
	if strings.Contains(filename, BuildResult.marker()) {
		return BuildResult
	}
	return Upload
}
