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

// Package daemon is the supervisor (§4.8): it owns the one explicit
// context struct threaded into every other package's constructor, and
// the start/stop/restart lifecycle around it. Nothing here is a
// package-level global; two Supervisors can run side by side in the
// same test binary without interfering.
package daemon

import (
	"context"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/crypto/openpgp"

	"github.com/buildfarm/buildfarm/pkg/archived"
	"github.com/buildfarm/buildfarm/pkg/builder"
	"github.com/buildfarm/buildfarm/pkg/changes"
	"github.com/buildfarm/buildfarm/pkg/config"
	"github.com/buildfarm/buildfarm/pkg/dispatch"
	"github.com/buildfarm/buildfarm/pkg/ftpx"
	"github.com/buildfarm/buildfarm/pkg/ingest"
	"github.com/buildfarm/buildfarm/pkg/keyring"
	"github.com/buildfarm/buildfarm/pkg/packager"
)

// Daemon is the wired-together core for one configuration snapshot: the
// keyring gate, archive adapter, dispatch pool, packager, builder
// worker, and ingest queue all live here, built once at Start and torn
// down at Stop. It is passed explicitly; it is never a package global.
type Daemon struct {
	Config *config.Snapshot
	Signer *openpgp.Entity

	Keyring      *keyring.Gate
	Archive      *archived.Adapter
	DispatchPool *dispatch.Pool
	Processor    *packager.Processor
	Worker       *builder.Worker
	Ingest       *ingest.Queue

	ftpServer *ftpx.Server
	received  chan string

	history *History

	isRunning atomic.Bool
}

func (d *Daemon) running() bool { return d.isRunning.Load() }

// New wires a Daemon from a loaded configuration snapshot. It performs
// no I/O beyond reading the signing key and configured key files; the
// spool is not touched until run.
func New(cfg *config.Snapshot) (*Daemon, error) {
	signer, err := loadSigner(cfg.SigningKeyFile)
	if err != nil {
		return nil, err
	}

	gate := keyring.New(&fileKeySource{cfg: cfg, self: signer})

	tool := &archived.Reprepro{Bin: cfg.ReprepoBin, BaseDir: cfg.ArchiveBaseDir}
	archive := archived.New(tool)

	var candidates []dispatch.Candidate
	for _, rb := range cfg.RemoteBuilders {
		candidates = append(candidates, dispatch.Candidate{
			Name:         rb.Name,
			HTTPEndpoint: rb.HTTPEndpoint,
			FTPEndpoint:  rb.FTPEndpoint,
		})
	}
	dispatcher := &dispatch.Dispatcher{
		Candidates: candidates,
		Status:     &dispatch.StatusFetcher{Client: http.DefaultClient},
	}
	pool := dispatch.NewPool(dispatcher, max1(cfg.BuildQueueSize))

	received := make(chan string, 64)

	d := &Daemon{
		Config:       cfg,
		Signer:       signer,
		Keyring:      gate,
		Archive:      archive,
		DispatchPool: pool,
		Ingest:       ingest.New(max1(cfg.BuildQueueSize) * 4),
		received:     received,
	}

	d.Processor = &packager.Processor{
		Config:   cfg,
		Keyring:  gate,
		Archive:  archive,
		Dispatch: pool,
		Notifier: &packager.LogNotifier{},
		Signer:   signer,
		RequeueResult: func(m *changes.Manifest) error {
			return d.requeueLocal(m)
		},
		RequeueUpload: func(m *changes.Manifest) error {
			return d.requeueLocal(m)
		},
		OnDecided: d.onDecided,
	}

	d.Worker = &builder.Worker{
		Executor:     builder.SbuildExecutor{},
		Remotes:      gate.Remotes,
		Signer:       signer,
		SpoolBase:    cfg.SpoolDir,
		PublicLogDir: cfg.PublicLogDir,
		LogRetention: cfg.LogRetention,
	}

	d.ftpServer = &ftpx.Server{
		Addr:        cfg.FTPAddr,
		IncomingDir: cfg.IncomingDir,
		Received:    received,
	}

	return d, nil
}

func max1(n int) int {
	if n <= 0 {
		return 1
	}
	return n
}

// requeueLocal feeds m, already signed and written to its own fresh
// spool path by the packager (synthesized dispatch-failure results and
// auto-port uploads both finalize Path and sign before calling this),
// back through this daemon's own ingest, as if it had just arrived over
// FTP from a peer.
func (d *Daemon) requeueLocal(m *changes.Manifest) error {
	return d.Ingest.Put(context.Background(), ingest.Item{Path: m.Path, Kind: m.Kind})
}

func (d *Daemon) onDecided(pkg *packager.Package) {
	d.history.recordPackage(HistoryPackage{
		Pid:          pkg.Pid,
		Repository:   pkg.Repository,
		Distribution: pkg.Distribution,
		Status:       string(pkg.Status),
		Started:      pkg.Started,
		Finished:     pkg.Finished,
	})
}

// run is the daemon's half of the supervisor lifecycle: it starts every
// long-lived worker role from §5 and blocks in the main ingest loop
// until ctx is cancelled or a shutdown sentinel is consumed.
func (d *Daemon) run(ctx context.Context, rescanned []ingest.Item) {
	d.isRunning.Store(true)
	defer d.isRunning.Store(false)

	var wg sync.WaitGroup

	for i := 0; i < max1(d.Config.BuildQueueSize); i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d.DispatchPool.Run(ctx, d.Processor.DispatchFailed)
		}()
	}

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.Worker.RunUploadSweep(ctx, 30*time.Second)
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := d.ftpServer.ListenAndServe(ctx); err != nil {
			log.Printf("[internal/daemon] ftp server: %v", err)
		}
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		d.consumeReceived(ctx)
	}()

	go func() {
		for _, item := range rescanned {
			if err := d.Ingest.Put(ctx, item); err != nil {
				return
			}
		}
	}()

	d.mainLoop(ctx)
	wg.Wait()
}

func (d *Daemon) consumeReceived(ctx context.Context) {
	for {
		select {
		case path, ok := <-d.received:
			if !ok {
				return
			}
			item := ingest.Item{Path: path, Kind: changes.Classify(path)}
			if err := d.Ingest.Put(ctx, item); err != nil {
				return
			}
		case <-ctx.Done():
			return
		}
	}
}

// mainLoop is the single ingest consumer of §5 item 1: every manifest
// for a given package is serialized through here, so the per-package
// state machine never races with itself.
func (d *Daemon) mainLoop(ctx context.Context) {
	for {
		item, err := d.Ingest.Get(ctx)
		if err != nil {
			return
		}
		if item.Shutdown {
			return
		}
		d.handle(ctx, item)
	}
}

func (d *Daemon) handle(ctx context.Context, item ingest.Item) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("[internal/daemon] recovered from panic handling %s: %v", item.Path, r)
		}
	}()
	switch item.Kind {
	case changes.Upload:
		m, err := changes.Parse(item.Path)
		if err != nil {
			d.quarantine(item.Path, err)
			return
		}
		if err := d.Processor.HandleUpload(ctx, m); err != nil {
			log.Printf("[internal/daemon] upload %s: %v", item.Path, err)
		}
	case changes.BuildResult:
		// A build-result crosses a trust boundary (it may have arrived
		// from any peer claiming to be a builder); verify against the
		// remotes keyring before it ever reaches the packager.
		m, err := d.Keyring.VerifyRemote(item.Path)
		if err != nil {
			log.Printf("[internal/daemon] dropping unverified build-result %s: %v", item.Path, err)
			return
		}
		if err := d.Processor.CorrelateResult(ctx, m); err != nil {
			log.Printf("[internal/daemon] build-result %s: %v", item.Path, err)
		}
		d.history.recordBuild(HistoryBuild{
			Source:       m.Source,
			Version:      m.Version,
			Architecture: m.Architecture,
			Sbuildretval: m.Sbuildretval,
			SbuildStatus: m.SbuildStatus,
			Finished:     time.Now(),
		})
	case changes.BuildRequest:
		// The worker does its own remotes-keyring verification before
		// trusting the request (grounded on its own Execute contract).
		if err := d.Worker.Execute(ctx, item.Path); err != nil {
			log.Printf("[internal/daemon] build-request %s: %v", item.Path, err)
		}
	}
}

// quarantine implements the ErrMalformedManifest policy of §7: move the
// offending file aside rather than leave it to be re-parsed forever on
// every restart's rescan.
func (d *Daemon) quarantine(path string, cause error) {
	log.Printf("[internal/daemon] quarantining malformed manifest %s: %v", path, cause)
	dir := filepath.Join(d.Config.SpoolDir, "quarantine")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("[internal/daemon] creating quarantine dir: %v", err)
		return
	}
	dest := filepath.Join(dir, filepath.Base(path))
	if err := os.Rename(path, dest); err != nil {
		log.Printf("[internal/daemon] moving %s to quarantine: %v", path, err)
	}
}
