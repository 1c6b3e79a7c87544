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

package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/pkg/errors"

	"github.com/buildfarm/buildfarm/internal/httpx"
	"github.com/buildfarm/buildfarm/pkg/changes"
)

// ErrDispatchExhausted is returned when no remote builder accepts a
// build-request.
var ErrDispatchExhausted = errors.New("no builder accepted the request")

// Status is a remote builder's self-reported state.
type Status struct {
	Running bool                `json:"running"`
	Load    float64             `json:"load"`
	Chroots map[string][]string `json:"chroots"` // codename -> arches
	// Remotes lists the HTTP endpoints this node currently dispatches
	// to, so a peer can confirm it appears in our own remotes list
	// before trusting dispatch in the other direction.
	Remotes []string `json:"remotes"`
}

func (s Status) hasChroot(codename, arch string) bool {
	for _, a := range s.Chroots[codename] {
		if a == arch {
			return true
		}
	}
	return false
}

// Candidate is one builder dispatch may send a request to.
type Candidate struct {
	Name        string
	HTTPEndpoint string
	FTPEndpoint  string
}

// StatusFetcher refreshes a Candidate's Status over its HTTP endpoint.
type StatusFetcher struct {
	Client httpx.BasicClient
}

// Fetch requests ?command=status from a candidate's HTTP endpoint with a
// 10s timeout.
func (f *StatusFetcher) Fetch(ctx context.Context, c Candidate) (Status, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.HTTPEndpoint+"/?command=status", nil)
	if err != nil {
		return Status{}, err
	}
	resp, err := f.Client.Do(req)
	if err != nil {
		return Status{}, errors.Wrapf(err, "fetching status from %s", c.Name)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return Status{}, errors.Errorf("status %d from %s", resp.StatusCode, c.Name)
	}
	var s Status
	if err := json.NewDecoder(resp.Body).Decode(&s); err != nil {
		return Status{}, errors.Wrapf(err, "decoding status from %s", c.Name)
	}
	return s, nil
}

// Dispatcher selects a builder for each build-request and pushes it via
// FTP, falling back through candidates in ascending load order.
type Dispatcher struct {
	Candidates []Candidate
	Status     *StatusFetcher
}

// Dispatch sends m (a build-request for the given codename/arch) to the
// least-loaded eligible candidate. On success it records the chosen
// builder's HTTP endpoint on m.BuilderURL.
func (d *Dispatcher) Dispatch(ctx context.Context, m *changes.Manifest, codename, arch string) error {
	type scored struct {
		c Candidate
		s Status
	}
	var eligible []scored
	for _, c := range d.Candidates {
		s, err := d.Status.Fetch(ctx, c)
		if err != nil {
			continue
		}
		if s.Running && s.hasChroot(codename, arch) {
			eligible = append(eligible, scored{c, s})
		}
	}
	sort.Slice(eligible, func(i, j int) bool { return eligible[i].s.Load < eligible[j].s.Load })

	var lastErr error
	for _, e := range eligible {
		if err := pushTo(e.c.FTPEndpoint, m); err != nil {
			lastErr = err
			continue
		}
		m.BuilderURL = e.c.HTTPEndpoint
		return nil
	}
	return errors.Wrapf(ErrDispatchExhausted, "%s/%s: %v", codename, arch, lastErr)
}

func pushTo(endpoint string, m *changes.Manifest) error {
	return errors.Wrap(changes.Upload(m, endpoint), "ftp push")
}

// SynthesizeFailure builds a build-result manifest recording a dispatch
// failure (retval=100, status=upload-failed) for req, to be fed back
// through the originator's own ingest so the package's state machine
// still completes.
func SynthesizeFailure(req *changes.Manifest) *changes.Manifest {
	result := req.Clone()
	result.Kind = changes.BuildResult
	result.Sbuildretval = 100
	result.SbuildStatus = "upload-failed"
	result.Changes = fmt.Sprintf("dispatch exhausted for %s %s %s", req.Source, req.Version, req.Architecture)
	return result
}
