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

package archived

import (
	"bufio"
	"bytes"
	"context"
	"os/exec"
	"strings"

	"github.com/pkg/errors"

	"github.com/buildfarm/buildfarm/pkg/distro"
)

// Reprepro drives the repository's `reprepro` binary, one invocation per
// Tool method, the same os/exec.CommandContext shape the builder package
// uses for sbuild.
type Reprepro struct {
	// Bin is the reprepro binary path; defaults to "reprepro" on PATH.
	Bin string
	// BaseDir is passed as reprepro's -b flag (the repository root
	// containing conf/, db/, pool/, dists/).
	BaseDir string
}

func (r *Reprepro) bin() string {
	if r.Bin != "" {
		return r.Bin
	}
	return "reprepro"
}

func (r *Reprepro) run(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-b", r.BaseDir}, args...)
	cmd := exec.CommandContext(ctx, r.bin(), full...)
	var out bytes.Buffer
	cmd.Stdout = &out
	cmd.Stderr = &out
	if err := cmd.Run(); err != nil {
		return out.String(), errors.Wrapf(err, "reprepro %s: %s", strings.Join(args, " "), out.String())
	}
	return out.String(), nil
}

// Install implements Tool.
func (r *Reprepro) Install(ctx context.Context, changesPath, distribution string) error {
	_, err := r.run(ctx, "include", distribution, changesPath)
	return err
}

// Migrate implements Tool.
func (r *Reprepro) Migrate(ctx context.Context, pkg, src, dst, version string) error {
	args := []string{"copysrc", dst, src, pkg}
	if version != "" {
		args = append(args, version)
	}
	_, err := r.run(ctx, args...)
	return err
}

// Remove implements Tool.
func (r *Reprepro) Remove(ctx context.Context, pkg, distribution, version string) error {
	if version != "" {
		_, err := r.run(ctx, "removesrc", distribution, pkg, version)
		return err
	}
	_, err := r.run(ctx, "removesrc", distribution, pkg)
	return err
}

// Find implements Tool.
func (r *Reprepro) Find(ctx context.Context, pkg, distribution, version string) (bool, error) {
	out, err := r.run(ctx, "listfilter", distribution, "Package (=="+pkg+"), $Version (=="+version+")")
	if err != nil {
		return false, err
	}
	return strings.TrimSpace(out) != "", nil
}

// List implements Tool.
func (r *Reprepro) List(ctx context.Context, pattern, distribution, typ string, max int) ([]Entry, error) {
	out, err := r.run(ctx, "listmatched", distribution, pattern)
	if err != nil {
		return nil, err
	}
	entries := parseRepreproList(out, distribution)
	if typ != "" {
		filtered := entries[:0]
		for _, e := range entries {
			if e.Type == typ {
				filtered = append(filtered, e)
			}
		}
		entries = filtered
	}
	if max > 0 && len(entries) > max {
		entries = entries[:max]
	}
	return entries, nil
}

// Show implements Tool.
func (r *Reprepro) Show(ctx context.Context, pkg string) ([]Entry, error) {
	out, err := r.run(ctx, "ls", pkg)
	if err != nil {
		return nil, err
	}
	return parseRepreproList(out, ""), nil
}

// Reindex implements Tool.
func (r *Reprepro) Reindex(ctx context.Context) error {
	_, err := r.run(ctx, "export")
	return err
}

// Highest implements Tool.
func (r *Reprepro) Highest(ctx context.Context, pkg, distribution string) (string, error) {
	entries, err := r.Show(ctx, pkg)
	if err != nil {
		return "", err
	}
	highest := ""
	for _, e := range entries {
		if e.Distribution != distribution {
			continue
		}
		if highest == "" {
			highest = e.Version
			continue
		}
		if newer, err := distro.Newer(e.Version, highest); err == nil && newer {
			highest = e.Version
		}
	}
	return highest, nil
}

// parseRepreproList parses reprepro's "distribution|component|arch: package version"
// list output, one entry per line.
func parseRepreproList(out, fallbackDistribution string) []Entry {
	var entries []Entry
	s := bufio.NewScanner(strings.NewReader(out))
	for s.Scan() {
		line := s.Text()
		head, rest, ok := strings.Cut(line, ": ")
		if !ok {
			continue
		}
		parts := strings.Split(head, "|")
		e := Entry{Distribution: fallbackDistribution}
		if len(parts) == 3 {
			e.Distribution, e.Component, e.Arch = parts[0], parts[1], parts[2]
		}
		fields := strings.Fields(rest)
		if len(fields) < 2 {
			continue
		}
		e.Package, e.Version = fields[0], fields[1]
		e.Type = "binary"
		if e.Arch == "source" {
			e.Type = "source"
			e.Source, e.SourceVersion = e.Package, e.Version
		}
		entries = append(entries, e)
	}
	return entries
}
