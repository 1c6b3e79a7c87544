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
	"strings"
	"testing"
)

func TestRenderSbuildConfigAuthenticated(t *testing.T) {
	out, err := RenderSbuildConfig(SbuildConfigArgs{
		AptAllowUnauthenticated: false,
		BuildDepResolver:        "apt",
	})
	if err != nil {
		t.Fatalf("RenderSbuildConfig() error = %v", err)
	}
	if !strings.Contains(out, "$apt_allow_unauthenticated = 0;") {
		t.Errorf("RenderSbuildConfig() = %q, want apt_allow_unauthenticated = 0", out)
	}
	if !strings.Contains(out, "$build_dep_resolver = 'apt';") {
		t.Errorf("RenderSbuildConfig() = %q, want build_dep_resolver = apt", out)
	}
}

func TestRenderSbuildConfigUnauthenticatedAndExtra(t *testing.T) {
	out, err := RenderSbuildConfig(SbuildConfigArgs{
		AptAllowUnauthenticated: true,
		BuildDepResolver:        "aspcud",
		ExtraFragment:           "$some_extra_option = 1;",
	})
	if err != nil {
		t.Fatalf("RenderSbuildConfig() error = %v", err)
	}
	if !strings.Contains(out, "$apt_allow_unauthenticated = 1;") {
		t.Errorf("RenderSbuildConfig() = %q, want apt_allow_unauthenticated = 1", out)
	}
	if !strings.Contains(out, "$some_extra_option = 1;") {
		t.Errorf("RenderSbuildConfig() = %q, want the extra fragment appended", out)
	}
}
