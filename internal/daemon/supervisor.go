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

package daemon

import (
	"context"
	"sync"

	"github.com/pkg/errors"

	"github.com/buildfarm/buildfarm/pkg/config"
	"github.com/buildfarm/buildfarm/pkg/ingest"
)

// ErrAlreadyRunning is returned by Start when the supervisor is already
// up.
var ErrAlreadyRunning = errors.New("daemon already running")

// ErrNotRunning is returned by Stop/Restart when the supervisor is down.
var ErrNotRunning = errors.New("daemon not running")

// Supervisor is the start/stop/restart lifecycle of §4.8, guarded by a
// mutex so concurrent Start/Stop calls (e.g. from the CLI and from a
// signal handler) never race.
type Supervisor struct {
	ConfigPath string

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	done    chan struct{}
	daemon  *Daemon
}

// NewSupervisor constructs a Supervisor that loads its configuration
// from configPath on every Start/Restart.
func NewSupervisor(configPath string) *Supervisor {
	return &Supervisor{ConfigPath: configPath}
}

// Start loads the configuration snapshot, builds the keyrings, archive
// adapter, dispatch pool, and ingest queue, spawns the builder worker
// pool and ingest watcher, and unblocks the main loop.
func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}

	cfg, err := config.Load(s.ConfigPath)
	if err != nil {
		return err
	}
	d, err := New(cfg)
	if err != nil {
		return err
	}

	hist, err := loadHistory(cfg.HistoryPath, cfg.HistoryLimit)
	if err != nil {
		return errors.Wrap(err, "loading history checkpoint")
	}
	d.history = hist

	rescanned, err := ingest.Rescan(cfg.SpoolDir)
	if err != nil {
		return errors.Wrap(err, "rescanning spool")
	}
	if err := ingest.CleanCruft(cfg.SpoolDir, rescanned); err != nil {
		return errors.Wrap(err, "cleaning spool cruft")
	}

	runCtx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.cancel = cancel
	s.done = done
	s.daemon = d
	s.running = true

	go func() {
		defer close(done)
		d.run(runCtx, rescanned)
	}()

	return nil
}

// Stop enqueues a shutdown sentinel onto the ingest queue, waits for the
// main loop and every worker it spawned to drain, and persists the
// bounded package/build history to disk before returning.
func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return ErrNotRunning
	}

	s.cancel()
	// Unblock a main loop parked on Get: Put uses a fresh background
	// context since runCtx is already cancelled.
	_ = s.daemon.Ingest.Put(context.Background(), ingest.ShutdownItem)
	<-s.done

	if err := s.daemon.history.save(s.daemon.Config.HistoryPath); err != nil {
		s.running = false
		return errors.Wrap(err, "persisting history checkpoint")
	}
	s.running = false
	return nil
}

// Restart stops and restarts the daemon against a freshly reloaded
// configuration snapshot.
func (s *Supervisor) Restart(ctx context.Context) error {
	if err := s.Stop(); err != nil {
		return err
	}
	return s.Start(ctx)
}

// Daemon returns the currently running Daemon, or nil if the supervisor
// is stopped. Used by the status HTTP handler and the CLI's status
// subcommand.
func (s *Supervisor) Daemon() *Daemon {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	return s.daemon
}
