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

import "path/filepath"

// SpoolDir returns the per-manifest working directory under base, keyed by
// kind and spool-id so repeated deliveries of the same content collide
// rather than silently duplicate.
func SpoolDir(m *Manifest, base string) string {
	return filepath.Join(base, m.Kind.String()+"-"+m.SpoolID)
}
