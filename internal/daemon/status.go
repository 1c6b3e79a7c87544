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
	"bytes"
	"encoding/json"
	"net/http"

	"golang.org/x/crypto/openpgp/armor"

	"github.com/buildfarm/buildfarm/pkg/dispatch"
)

// chroots reports the (codename -> arches) map this node declares itself
// able to build, derived from the configured distributions. Actual
// chroot provisioning is an external collaborator (§1); this is the
// declared capability the status endpoint advertises.
func (d *Daemon) chroots() map[string][]string {
	out := map[string][]string{}
	for _, repo := range d.Config.Repositories {
		for _, dist := range repo.Distributions {
			arches := out[dist.Codename]
			for _, a := range dist.Architectures {
				arches = append(arches, a.Arch)
			}
			out[dist.Codename] = arches
		}
	}
	return out
}

func (d *Daemon) remoteEndpoints() []string {
	var out []string
	for _, rb := range d.Config.RemoteBuilders {
		out = append(out, rb.HTTPEndpoint)
	}
	return out
}

// StatusHandler serves the two unauthenticated GET endpoints of §6:
// ?command=status returning this node's running/load/chroots/remotes,
// and ?command=getkey returning its ASCII-armored public key.
func (d *Daemon) StatusHandler() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Query().Get("command") {
		case "status":
			status := dispatch.Status{
				Running: d.running(),
				Load:    d.DispatchPool.Load(),
				Chroots: d.chroots(),
				Remotes: d.remoteEndpoints(),
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(status)
		case "getkey":
			var buf bytes.Buffer
			aw, err := armor.Encode(&buf, "PGP PUBLIC KEY BLOCK", nil)
			if err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if err := d.Signer.Serialize(aw); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			if err := aw.Close(); err != nil {
				http.Error(w, err.Error(), http.StatusInternalServerError)
				return
			}
			w.Header().Set("Content-Type", "application/pgp-keys")
			w.Write(buf.Bytes())
		default:
			http.Error(w, "unknown command", http.StatusBadRequest)
		}
	}
}
