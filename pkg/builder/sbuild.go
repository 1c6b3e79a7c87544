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
	"os"
	"os/exec"
	"path/filepath"

	"github.com/pkg/errors"
)

// SbuildExecutor runs sbuild(1) directly against a named schroot. It is
// the production ChrootExecutor; tests substitute a fake implementing
// the same interface.
type SbuildExecutor struct{}

// Build invokes sbuild with the chroot, dep-resolver, and lintian options
// derived from req, capturing combined stdout/stderr to a log file under
// req.WorkDir.
func (SbuildExecutor) Build(ctx context.Context, req BuildRequest) (BuildOutcome, error) {
	logPath := filepath.Join(req.WorkDir, "build.log")
	logFile, err := os.Create(logPath)
	if err != nil {
		return BuildOutcome{}, errors.Wrapf(err, "creating build log %s", logPath)
	}

	args := []string{
		"--chroot", req.Chroot,
		"--dist", req.Distribution,
		"--arch", req.Architecture,
		"--build-dep-resolver", req.BuildDepResolver,
	}
	if !req.RunLintian {
		args = append(args, "--no-run-lintian")
	}

	cmd := exec.CommandContext(ctx, "sbuild", args...)
	cmd.Dir = req.WorkDir
	cmd.Env = append(append([]string{"HOME=" + req.WorkDir}, req.Env...), os.Environ()...)
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	runErr := cmd.Run()
	if err := logFile.Close(); err != nil {
		return BuildOutcome{}, errors.Wrapf(err, "closing build log %s", logPath)
	}

	logFile, err = os.Open(logPath)
	if err != nil {
		return BuildOutcome{}, errors.Wrapf(err, "reopening build log %s", logPath)
	}

	exitCode := 0
	if runErr != nil {
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			exitCode = exitErr.ExitCode()
		} else {
			logFile.Close()
			return BuildOutcome{}, errors.Wrap(runErr, "running sbuild")
		}
	}
	return BuildOutcome{ExitCode: exitCode, Log: logFile}, nil
}
