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
	"archive/tar"
	"io"
	"os"
	"path/filepath"

	billy "github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"
)

// TarPath returns the sidecar tar path for a manifest's spool directory.
func TarPath(spoolDir string) string {
	return filepath.Join(spoolDir, "files.tar")
}

// Tar packs the manifest file, every file it lists, and any addFiles into an
// uncompressed tar at outputPath. Entries whose base name matches an
// excludeGlobs pattern are skipped.
func Tar(m *Manifest, outputPath string, addFiles []string, excludeGlobs []string) error {
	out, err := os.Create(outputPath)
	if err != nil {
		return errors.Wrap(err, "creating tar output")
	}
	defer out.Close()
	tw := tar.NewWriter(out)
	defer tw.Close()
	excluded := func(name string) bool {
		for _, g := range excludeGlobs {
			if ok, _ := filepath.Match(g, name); ok {
				return true
			}
		}
		return false
	}
	add := func(path string) error {
		name := filepath.Base(path)
		if excluded(name) {
			return nil
		}
		return addFileToTar(tw, path, name)
	}
	if err := add(m.Path); err != nil {
		return errors.Wrapf(err, "adding manifest %s", m.Path)
	}
	dir := filepath.Dir(m.Path)
	for _, f := range m.Files {
		if err := add(filepath.Join(dir, f.Name)); err != nil {
			return errors.Wrapf(err, "adding file %s", f.Name)
		}
	}
	for _, f := range addFiles {
		if err := add(f); err != nil {
			return errors.Wrapf(err, "adding extra file %s", f)
		}
	}
	return nil
}

func addFileToTar(tw *tar.Writer, path, name string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = name
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}

// Untar extracts the sidecar tar alongside the manifest into fs, rooted at
// dir. It is a no-op if no sidecar tar exists alongside the manifest.
func Untar(m *Manifest, dir string, fs billy.Filesystem) error {
	tarPath := TarPath(filepath.Dir(m.Path))
	in, err := os.Open(tarPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	} else if err != nil {
		return errors.Wrap(err, "opening sidecar tar")
	}
	defer in.Close()
	tr := tar.NewReader(in)
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return nil
		} else if err != nil {
			return errors.Wrap(err, "reading tar entry")
		}
		path := filepath.Join(dir, hdr.Name)
		if err := fs.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return errors.Wrapf(err, "creating parent dir for %s", path)
		}
		out, err := fs.Create(path)
		if err != nil {
			return errors.Wrapf(err, "creating %s", path)
		}
		if _, err := io.Copy(out, tr); err != nil {
			out.Close()
			return errors.Wrapf(err, "writing %s", path)
		}
		out.Close()
	}
}
