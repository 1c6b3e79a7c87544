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
	"bytes"
	"text/template"

	"github.com/pkg/errors"
)

var sbuildConfigTpl = template.Must(
	template.New("sbuild config").Parse(`
{{- if .AptAllowUnauthenticated }}
$apt_allow_unauthenticated = 1;
{{- else }}
$apt_allow_unauthenticated = 0;
{{- end }}
$build_dep_resolver = '{{.BuildDepResolver}}';
{{.ExtraFragment}}
`))

// SbuildConfigArgs parameterizes the sbuild config snippet rendered for
// one build-request.
type SbuildConfigArgs struct {
	AptAllowUnauthenticated bool
	BuildDepResolver        string
	// ExtraFragment is a user-supplied snippet appended verbatim, e.g.
	// from a repository's own sbuild config override.
	ExtraFragment string
}

// RenderSbuildConfig produces the sbuild config snippet for args.
func RenderSbuildConfig(args SbuildConfigArgs) (string, error) {
	var buf bytes.Buffer
	if err := sbuildConfigTpl.Execute(&buf, args); err != nil {
		return "", errors.Wrap(err, "rendering sbuild config")
	}
	return buf.String(), nil
}
