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

package packager

import (
	"context"
	"crypto/sha1"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"golang.org/x/crypto/openpgp"
	"golang.org/x/sync/errgroup"

	"github.com/buildfarm/buildfarm/pkg/archived"
	"github.com/buildfarm/buildfarm/pkg/changes"
	"github.com/buildfarm/buildfarm/pkg/config"
	"github.com/buildfarm/buildfarm/pkg/distro"
	"github.com/buildfarm/buildfarm/pkg/dispatch"
	"github.com/buildfarm/buildfarm/pkg/keyring"
)

// ErrNotUploadable is returned when an upload targets a rollback
// distribution or a non-uploadable suite.
var ErrNotUploadable = errors.New("distribution is not uploadable")

// Notifier sends the end-of-package summary notification.
type Notifier interface {
	Notify(subject, body string) error
}

var lintianOrder = map[config.LintianMode]int{
	config.LintianDisabled:      0,
	config.LintianRunOnly:       1,
	config.LintianFailOnError:   2,
	config.LintianFailOnWarning: 3,
}

// Processor runs the per-upload state machine described in §4.4.
type Processor struct {
	Config   *config.Snapshot
	Keyring  *keyring.Gate
	Archive  *archived.Adapter
	Dispatch *dispatch.Pool
	Notifier Notifier
	// Signer signs outgoing build-requests and auto-port uploads with the
	// daemon's own key.
	Signer *openpgp.Entity
	// RequeueResult feeds a synthesized or correlated build-result back
	// through the originator's own ingest (used for dispatch failures).
	RequeueResult func(*changes.Manifest) error
	// RequeueUpload feeds a freshly signed upload (an auto-port) back
	// through this daemon's own ingest, as if it had arrived over FTP.
	RequeueUpload func(*changes.Manifest) error
	// OnDecided is called once a package reaches INSTALLED or FAILED,
	// after notification. Used by the supervisor to append to its
	// bounded package history.
	OnDecided func(*Package)

	mu       sync.Mutex
	packages map[string]*Package
}

func (p *Processor) register(pkg *Package) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.packages == nil {
		p.packages = map[string]*Package{}
	}
	p.packages[pkg.Pid] = pkg
}

func (p *Processor) lookup(pid string) (*Package, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	pkg, ok := p.packages[pid]
	return pkg, ok
}

func pid(m *changes.Manifest) string {
	return fmt.Sprintf("%s_%s", m.Source, m.Version)
}

// HandleUpload runs steps 1-5 for a freshly ingested upload manifest.
func (p *Processor) HandleUpload(ctx context.Context, m *changes.Manifest) error {
	// Step 1: parse distribution.
	d, err := distro.Parse(m.Distribution)
	if err != nil {
		return err
	}
	if d.Rollback {
		return errors.Wrapf(ErrNotUploadable, "%s: rollback distributions are not uploadable", m.Distribution)
	}
	repo, ok := p.Config.Repository(d.Repository)
	if !ok {
		return errors.Wrapf(ErrNotUploadable, "unknown repository %s", d.Repository)
	}
	suite, ok := repo.Suite(d.Suite)
	if !ok || !suite.Uploadable {
		return errors.Wrapf(ErrNotUploadable, "%s: suite %s is not uploadable", m.Distribution, d.Suite)
	}

	// Step 2: authorize.
	if !repo.AllowUnauthenticatedUploads {
		if _, err := p.Keyring.VerifyUpload(m.Path, repo.Identity); err != nil {
			return err
		}
	}

	// Step 3: archive precheck.
	if err := p.Archive.PrecheckInstall(ctx, repo.Identity, m.Source, m.Distribution, m.Version); err != nil {
		return err
	}

	pkg := newPackage(pid(m), repo.Identity, m.Distribution, d.Suite)
	pkg.Status = Building
	p.register(pkg)

	dist := findDistribution(repo, d.Codename)
	if dist == nil {
		return errors.Wrapf(ErrNotUploadable, "%s: no matching distribution config for codename %s", m.Distribution, d.Codename)
	}

	opts, err := changes.ParseUploadOptions(m.Changes)
	if err != nil {
		return err
	}

	// Step 4: fan out, bounded by the (small, config-derived) arch count.
	var eg errgroup.Group
	var mu sync.Mutex
	for _, arch := range dist.Architectures {
		arch := arch
		eg.Go(func() error {
			req, err := buildRequest(m, arch, dist, p.Config.FTPAddr, opts)
			if err != nil {
				return err
			}
			if err := changes.Tar(req, changes.TarPath(changes.SpoolDir(req, p.Config.SpoolDir)), nil, nil); err != nil {
				return err
			}
			if err := changes.Sign(req, p.Signer); err != nil {
				return errors.Wrap(err, "signing build-request")
			}
			mu.Lock()
			pkg.Requests[arch.Arch] = req
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return errors.Wrap(err, "constructing build-requests")
	}

	// Step 5: enqueue each request onto the bounded dispatch pool; a
	// dispatch-enqueue goroutine per request keeps this consumer from
	// ever blocking on a full build queue (§5).
	for arch, req := range pkg.Requests {
		p.Dispatch.Enqueue(ctx, req, dist.Codename, arch, p.DispatchFailed)
	}
	return nil
}

// DispatchFailed is the dispatch pool's failure hook: it synthesizes a
// build-result for the unreachable architecture and requeues it through
// this daemon's own ingest, so the package's state machine still
// completes instead of hanging forever on a missing architecture. It is
// exported so the supervisor can also use it as every dispatch worker's
// failure callback.
func (p *Processor) DispatchFailed(task dispatch.Task, err error) {
	log.Printf("dispatch failed for %s/%s: %v", task.Manifest.Source, task.Arch, err)
	failure := dispatch.SynthesizeFailure(task.Manifest)
	// A fresh spool-id and path: the original build-request's file must
	// not be overwritten by Sign.
	failure.SpoolID = fmt.Sprintf("%x", sha1.Sum([]byte(failure.Source+"_"+failure.Version+"_"+failure.Architecture+"_synthesized")))
	dir := changes.SpoolDir(failure, p.Config.SpoolDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Printf("creating spool dir for synthesized failure %s/%s: %v", task.Manifest.Source, task.Arch, err)
		return
	}
	failure.Path = filepath.Join(dir, fmt.Sprintf("%s_%s_mini-buildd-buildresult_%s.changes", failure.Source, failure.Version, failure.Architecture))
	if err := changes.Sign(failure, p.Signer); err != nil {
		log.Printf("signing synthesized failure for %s/%s: %v", task.Manifest.Source, task.Arch, err)
		return
	}
	if p.RequeueResult != nil {
		if err := p.RequeueResult(failure); err != nil {
			log.Printf("requeueing synthesized failure for %s/%s: %v", task.Manifest.Source, task.Arch, err)
		}
	}
}

func findDistribution(repo *config.Repository, codename string) *config.Distribution {
	for i := range repo.Distributions {
		if repo.Distributions[i].Codename == codename {
			return &repo.Distributions[i]
		}
	}
	return nil
}

// buildRequest copies m into a build-request manifest for one architecture,
// adding the fields step 4 of the upload state machine specifies:
// Upload-Result-To (this node's own FTP endpoint, so the builder can ship
// the result back), Base-Distribution, Arch-All, Build-Dep-Resolver,
// Apt-Allow-Unauthenticated, Run-Lintian (unless overridden by upload
// options), and Deb-Build-Options, all sourced from dist's configuration.
func buildRequest(m *changes.Manifest, arch config.ArchitectureOption, dist *config.Distribution, uploadResultTo string, opts []changes.UploadOption) (*changes.Manifest, error) {
	req := m.Clone()
	req.Kind = changes.BuildRequest
	req.Architecture = arch.Arch
	req.ArchAll = arch.BuildArchitectureAll
	req.RunLintian = dist.Lintian != config.LintianDisabled
	req.UploadResultTo = uploadResultTo
	req.BaseDistribution = dist.Codename
	req.BuildDepResolver = dist.BuildDepResolver
	req.AptAllowUnauthenticated = dist.AptAllowUnauthenticated
	req.DebBuildOptions = dist.DebBuildOptions
	for _, o := range opts {
		if o.Key == "run-lintian" && (o.Arch == "" || o.Arch == arch.Arch) {
			req.RunLintian = o.Bool()
		}
	}
	return req, nil
}

// CorrelateResult is step 6: merge an incoming build-result into the
// package it belongs to, then run step 7 (decide) if every architecture
// has now reported.
func (p *Processor) CorrelateResult(ctx context.Context, result *changes.Manifest) error {
	key := fmt.Sprintf("%s_%s", result.Source, result.Version)
	pkg, ok := p.lookup(key)
	if !ok {
		return errors.Errorf("build-result for unknown package %s", key)
	}

	pkg.mu.Lock()
	defer pkg.mu.Unlock()

	arch := result.Architecture
	if _, done := pkg.Success[arch]; done {
		log.Printf("duplicate build-result for %s/%s dropped", key, arch)
		return nil
	}
	if _, done := pkg.FailedArch[arch]; done {
		log.Printf("duplicate build-result for %s/%s dropped", key, arch)
		return nil
	}

	req, known := pkg.Requests[arch]
	if !known {
		return errors.Errorf("build-result for %s/%s does not correlate to any request", key, arch)
	}

	if p.accepted(req, result) {
		pkg.Success[arch] = result
	} else {
		pkg.FailedArch[arch] = result
	}

	if !pkg.decided() {
		return nil
	}
	return p.decide(ctx, pkg)
}

// accepted implements the lintian-acceptance rule of step 6.
func (p *Processor) accepted(req, result *changes.Manifest) bool {
	if result.Sbuildretval != 0 {
		return false
	}
	if result.SbuildStatus == "skipped" {
		return true
	}
	if result.SbuildLintian == "pass" {
		return true
	}
	d, err := distro.Parse(req.Distribution)
	if err != nil {
		return false
	}
	repo, _ := p.Config.Repository(d.Repository)
	if suite, ok := findSuiteByName(repo, d.Suite); ok && suite.Experimental {
		return true
	}
	dist := findDistributionForManifest(repo, req)
	if dist != nil && lintianOrder[dist.Lintian] < lintianOrder[config.LintianFailOnError] {
		return true
	}

	opts, _ := changes.ParseUploadOptions(req.Changes)
	for _, o := range opts {
		if o.Key == "ignore-lintian" && (o.Arch == "" || o.Arch == req.Architecture) && o.Bool() {
			return true
		}
	}
	return false
}

func findSuiteByName(repo *config.Repository, name string) (*config.Suite, bool) {
	if repo == nil {
		return nil, false
	}
	return repo.Suite(name)
}

func findDistributionForManifest(repo *config.Repository, m *changes.Manifest) *config.Distribution {
	if repo == nil {
		return nil
	}
	d, err := distro.Parse(m.Distribution)
	if err != nil {
		return nil
	}
	return findDistribution(repo, d.Codename)
}

// decide is step 7: install if every architecture succeeded, else mark
// the package FAILED.
func (p *Processor) decide(ctx context.Context, pkg *Package) error {
	pkg.Status = Installing
	if len(pkg.FailedArch) == 0 {
		var changesManifest *changes.Manifest
		for _, m := range pkg.Success {
			changesManifest = m
			break
		}
		if changesManifest != nil {
			if err := p.Archive.Install(ctx, pkg.Repository, changesManifest, pkg.Distribution); err != nil {
				pkg.Status = Failed
				pkg.Finished = time.Now()
				return err
			}
		}
		pkg.Status = Installed
	} else {
		pkg.Status = Failed
	}
	pkg.Finished = time.Now()

	if pkg.Status == Installed {
		p.autoPorts(ctx, pkg)
	}
	// A notification sender spawned per finished package (§5): notify
	// takes pkg.mu itself, so this is safe to fire off while the caller
	// still holds it.
	go p.notify(pkg)
	if p.OnDecided != nil {
		p.OnDecided(pkg)
	}
	return nil
}

// autoPorts is step 8: for every "auto-ports" target distribution named in
// the original upload, compute the internal-port version and requeue a
// freshly signed upload for it. Each target's outcome is recorded
// immediately in PortReport; the port itself is followed up like any
// other upload once it reaches the ingest.
func (p *Processor) autoPorts(ctx context.Context, pkg *Package) {
	var basis *changes.Manifest
	for _, m := range pkg.Success {
		basis = m
		break
	}
	if basis == nil {
		return
	}
	opts, err := changes.ParseUploadOptions(basis.Changes)
	if err != nil {
		return
	}
	for _, o := range opts {
		if o.Key != "auto-ports" {
			continue
		}
		for _, target := range o.Distributions() {
			if err := p.requestPort(ctx, pkg, basis, target); err != nil {
				pkg.PortReport[target] = fmt.Sprintf("failed: %v", err)
				log.Printf("auto-port %s -> %s failed: %v", pkg.Pid, target, err)
				continue
			}
			pkg.PortReport[target] = "Requested"
		}
	}
}

// requestPort builds, signs, and requeues the internal-port upload for
// one target distribution, grounded on the internal-port version rule of
// §4.7 (rightmost mandatory-pattern match, substituted with the target
// suite's default version).
func (p *Processor) requestPort(ctx context.Context, pkg *Package, basis *changes.Manifest, target string) error {
	targetDist, err := distro.Parse(target)
	if err != nil {
		return err
	}
	sourceDist, err := distro.Parse(pkg.Distribution)
	if err != nil {
		return err
	}
	sourceRepo, ok := p.Config.Repository(sourceDist.Repository)
	if !ok {
		return errors.Errorf("unknown source repository %s", sourceDist.Repository)
	}
	targetRepo, ok := p.Config.Repository(targetDist.Repository)
	if !ok {
		return errors.Errorf("unknown target repository %s", targetDist.Repository)
	}
	sourceSuite, ok := sourceRepo.Suite(sourceDist.Suite)
	if !ok {
		return errors.Errorf("unknown source suite %s", sourceDist.Suite)
	}
	targetSuite, ok := targetRepo.Suite(targetDist.Suite)
	if !ok {
		return errors.Errorf("unknown target suite %s", targetDist.Suite)
	}
	sourceDistCfg := findDistribution(sourceRepo, sourceDist.Codename)
	if sourceDistCfg == nil {
		return errors.Errorf("no distribution config for codename %s", sourceDist.Codename)
	}
	targetDistCfg := findDistribution(targetRepo, targetDist.Codename)
	if targetDistCfg == nil {
		return errors.Errorf("no distribution config for codename %s", targetDist.Codename)
	}

	fromPattern, err := distro.MandatoryVersionRegex(sourceSuite.MandatoryVersionTemplate, sourceRepo.Identity, sourceDistCfg.NumericBaseVersion)
	if err != nil {
		return err
	}
	toDefault := strings.NewReplacer("{rid}", targetRepo.Identity, "{nbv}", targetDistCfg.NumericBaseVersion).Replace(targetSuite.MandatoryVersionTemplate)
	portedVersion, err := distro.GenInternalPort(basis.Version, fromPattern, toDefault)
	if err != nil {
		return err
	}

	ported := basis.Clone()
	ported.Kind = changes.Upload
	ported.Version = portedVersion
	ported.Distribution = target
	// A fresh spool-id and path: Sign would otherwise overwrite the
	// basis manifest's own file, since Clone carries its Path forward.
	ported.SpoolID = fmt.Sprintf("%x", sha1.Sum([]byte(ported.Source+"_"+ported.Version+"_"+ported.Distribution)))
	dir := changes.SpoolDir(ported, p.Config.SpoolDir)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return errors.Wrap(err, "creating auto-port spool dir")
	}
	ported.Path = filepath.Join(dir, fmt.Sprintf("%s_%s_source.changes", ported.Source, ported.Version))
	if err := changes.Sign(ported, p.Signer); err != nil {
		return errors.Wrap(err, "signing auto-port upload")
	}
	if p.RequeueUpload == nil {
		return errors.New("no RequeueUpload handler configured")
	}
	return p.RequeueUpload(ported)
}

// notify is step 9: report the package's final outcome. It is spawned as
// its own goroutine per finished package (§5), so it takes pkg.mu itself
// rather than assuming the caller still holds it.
func (p *Processor) notify(pkg *Package) {
	if p.Notifier == nil {
		return
	}
	pkg.mu.Lock()
	subject := fmt.Sprintf("%s: %s", pkg.Pid, pkg.Status)
	var body strings.Builder
	fmt.Fprintf(&body, "package:      %s\n", pkg.Pid)
	fmt.Fprintf(&body, "distribution: %s\n", pkg.Distribution)
	fmt.Fprintf(&body, "status:       %s\n", pkg.Status)
	fmt.Fprintf(&body, "started:      %s\n", pkg.Started.Format(time.RFC3339))
	fmt.Fprintf(&body, "finished:     %s\n", pkg.Finished.Format(time.RFC3339))
	for arch := range pkg.Requests {
		outcome := "no result"
		if _, ok := pkg.Success[arch]; ok {
			outcome = "success"
		} else if _, ok := pkg.FailedArch[arch]; ok {
			outcome = "failed"
		}
		fmt.Fprintf(&body, "  %s: %s\n", arch, outcome)
	}
	for target, result := range pkg.PortReport {
		fmt.Fprintf(&body, "auto-port %s: %s\n", target, result)
	}
	pkg.mu.Unlock()
	if err := p.Notifier.Notify(subject, body.String()); err != nil {
		log.Printf("notifying for %s: %v", pkg.Pid, err)
	}
}
