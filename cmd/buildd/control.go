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

package main

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"syscall"

	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Signal the running coordinator to shut down",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalRunning(syscall.SIGTERM)
	},
}

var restartCmd = &cobra.Command{
	Use:   "restart",
	Short: "Signal the running coordinator to reload its configuration",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return signalRunning(syscall.SIGHUP)
	},
}

// signalRunning reads the pid file written by start and delivers sig to
// that process, the conventional Unix control channel for a foreground
// daemon with no separate administrative RPC surface.
func signalRunning(sig syscall.Signal) error {
	pid, err := readPidFile()
	if err != nil {
		return err
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return errors.Wrapf(err, "finding process %d", pid)
	}
	if err := proc.Signal(sig); err != nil {
		return errors.Wrapf(err, "signaling process %d", pid)
	}
	return nil
}

func readPidFile() (int, error) {
	data, err := os.ReadFile(pidFile)
	if err != nil {
		return 0, errors.Wrapf(err, "reading pid file %s (is the coordinator running?)", pidFile)
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil {
		return 0, fmt.Errorf("pid file %s contains garbage: %w", pidFile, err)
	}
	return pid, nil
}
