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
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	billy "github.com/go-git/go-billy/v5"
	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"

	"github.com/buildfarm/buildfarm/internal/ratex"
	"github.com/buildfarm/buildfarm/pkg/changes"
)

// ErrBuildFailed marks a build-result whose underlying sbuild invocation
// returned nonzero; it is informational only, the build-result manifest
// still gets signed and uploaded (a failed build is not a pipeline
// error).
var ErrBuildFailed = errors.New("build failed")

// pendingUpload is a build-result manifest whose FTP upload has not yet
// succeeded; the worker's sweep retries it (never re-running the build).
type pendingUpload struct {
	manifest *changes.Manifest
	endpoint string
}

// Worker executes chroot-backed builds received via its own ingest and
// ships signed build-results back to their originator.
type Worker struct {
	Executor  ChrootExecutor
	Remotes   func() (openpgp.EntityList, error)
	Signer    *openpgp.Entity
	FS        billy.Filesystem
	SpoolBase string

	// PublicLogDir, if set, receives a hardlink of every build log,
	// expired after LogRetention.
	PublicLogDir string
	LogRetention time.Duration

	keyBootstrap sync.Once
	keyBootstrapErr error

	mu      sync.Mutex
	pending []pendingUpload
}

// Execute runs the full worker-side contract for the build-request at
// reqPath: verify, untar, render config, build, parse log, sign and
// upload the result. A build failure is not returned as an error from
// Execute (the result is still produced and shipped); only pipeline
// errors (bad signature, untar failure, sign failure) are returned.
func (w *Worker) Execute(ctx context.Context, reqPath string) error {
	if err := w.ensureKey(); err != nil {
		return errors.Wrap(err, "bootstrapping sbuild key")
	}

	remotes, err := w.Remotes()
	if err != nil {
		return errors.Wrap(err, "loading remotes keyring")
	}
	req, err := changes.Verify(reqPath, remotes)
	if err != nil {
		return err // changes.ErrSignatureRejected: drop silently upstream
	}

	spoolDir := changes.SpoolDir(req, w.SpoolBase)
	if err := changes.Untar(req, spoolDir, w.FS); err != nil {
		return errors.Wrapf(err, "untarring request into %s", spoolDir)
	}

	cfg, err := RenderSbuildConfig(SbuildConfigArgs{
		AptAllowUnauthenticated: req.AptAllowUnauthenticated,
		BuildDepResolver:        req.BuildDepResolver,
	})
	if err != nil {
		return err
	}
	cfgPath := filepath.Join(spoolDir, "sbuild.conf")
	if err := os.WriteFile(cfgPath, []byte(cfg), 0o644); err != nil {
		return errors.Wrapf(err, "writing %s", cfgPath)
	}

	chroot := fmt.Sprintf("mini-buildd-%s-%s", req.BaseDistribution, req.Architecture)
	outcome, err := w.Executor.Build(ctx, BuildRequest{
		Chroot:           chroot,
		Distribution:     req.Distribution,
		Architecture:     req.Architecture,
		WorkDir:          spoolDir,
		SbuildConfigPath: cfgPath,
		BuildDepResolver: req.BuildDepResolver,
		RunLintian:       req.RunLintian,
	})
	if err != nil {
		return errors.Wrap(err, "invoking chroot executor")
	}
	defer outcome.Log.Close()

	status, lintian := ParseBuildLog(outcome.Log)

	result := &changes.Manifest{
		Path:          filepath.Join(spoolDir, resultFilename(req)),
		Kind:          changes.BuildResult,
		Source:        req.Source,
		Version:       req.Version,
		Distribution:  req.Distribution,
		Architecture:  req.Architecture,
		Sbuildretval:  outcome.ExitCode,
		SbuildStatus:  status,
		SbuildLintian: lintian,
	}
	if w.PublicLogDir != "" {
		if err := w.publishLog(req.SpoolID, filepath.Join(spoolDir, "build.log")); err != nil {
			return errors.Wrap(err, "publishing build log")
		}
	}

	if err := changes.Sign(result, w.Signer); err != nil {
		return errors.Wrap(err, "signing build result")
	}
	if err := changes.Upload(result, req.UploadResultTo); err != nil {
		w.mu.Lock()
		w.pending = append(w.pending, pendingUpload{manifest: result, endpoint: req.UploadResultTo})
		w.mu.Unlock()
	}
	return nil
}

func resultFilename(req *changes.Manifest) string {
	return fmt.Sprintf("%s_%s_mini-buildd-buildresult_%s.changes", req.Source, req.Version, req.Architecture)
}

// ensureKey guarantees the one-time sbuild signing key has been
// generated before any build runs.
func (w *Worker) ensureKey() error {
	w.keyBootstrap.Do(func() {
		w.keyBootstrapErr = exec.Command("sbuild-update", "--keygen").Run()
	})
	return w.keyBootstrapErr
}

// RunUploadSweep retries pending build-result uploads until ctx is
// cancelled. The retry period backs off exponentially while uploads
// keep failing (an unreachable originator shouldn't be hammered) and
// relaxes back toward interval once they start succeeding again. Each
// pass also expires stale published logs (ExpireOldLogs). It never
// re-runs a build.
func (w *Worker) RunUploadSweep(ctx context.Context, interval time.Duration) {
	limiter := ratex.NewBackoffLimiter(interval)
	for {
		if err := limiter.Wait(ctx); err != nil {
			return
		}
		if err := w.ExpireOldLogs(); err != nil {
			log.Printf("[pkg/builder] expiring published logs: %v", err)
		}
		if w.retryPending() {
			limiter.Success()
		} else {
			limiter.Backoff()
		}
	}
}

// retryPending attempts every pending upload once, re-queuing only the
// ones that still fail. It reports whether every pending upload has
// now drained.
func (w *Worker) retryPending() bool {
	w.mu.Lock()
	items := w.pending
	w.pending = nil
	w.mu.Unlock()

	var stillPending []pendingUpload
	for _, item := range items {
		if err := changes.Upload(item.manifest, item.endpoint); err != nil {
			stillPending = append(stillPending, item)
		}
	}
	if len(stillPending) > 0 {
		w.mu.Lock()
		w.pending = append(w.pending, stillPending...)
		w.mu.Unlock()
		return false
	}
	return true
}

// publishLog hardlinks the build log at logPath into PublicLogDir, keyed
// by spoolID, for LogRetention (default 5 days if unset). Falls back to
// a copy where hardlinks aren't supported.
func (w *Worker) publishLog(spoolID, logPath string) error {
	dest := filepath.Join(w.PublicLogDir, spoolID+".log")
	if err := os.Link(logPath, dest); err != nil {
		data, rerr := os.ReadFile(logPath)
		if rerr != nil {
			return rerr
		}
		return os.WriteFile(dest, data, 0o644)
	}
	return nil
}

func logRetention(d time.Duration) time.Duration {
	if d <= 0 {
		return 5 * 24 * time.Hour
	}
	return d
}

// ExpireOldLogs removes published logs under PublicLogDir older than
// LogRetention (or the 5-day default).
func (w *Worker) ExpireOldLogs() error {
	if w.PublicLogDir == "" {
		return nil
	}
	cutoff := time.Now().Add(-logRetention(w.LogRetention))
	entries, err := os.ReadDir(w.PublicLogDir)
	if err != nil {
		return errors.Wrapf(err, "reading %s", w.PublicLogDir)
	}
	for _, e := range entries {
		info, err := e.Info()
		if err != nil {
			continue
		}
		if info.ModTime().Before(cutoff) {
			if err := os.Remove(filepath.Join(w.PublicLogDir, e.Name())); err != nil {
				return err
			}
		}
	}
	return nil
}
