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
	"encoding/json"
	"fmt"
	"net/http"
	"sort"

	"github.com/fatih/color"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/buildfarm/buildfarm/pkg/dispatch"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Report the running coordinator's load and declared chroots",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := fetchStatus()
		if err != nil {
			return err
		}
		printStatus(st)
		return nil
	},
}

func fetchStatus() (dispatch.Status, error) {
	resp, err := http.Get(httpAddr + "/?command=status")
	if err != nil {
		return dispatch.Status{}, errors.Wrap(err, "requesting status")
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return dispatch.Status{}, errors.Errorf("status request returned %d", resp.StatusCode)
	}
	var st dispatch.Status
	if err := json.NewDecoder(resp.Body).Decode(&st); err != nil {
		return dispatch.Status{}, errors.Wrap(err, "decoding status response")
	}
	return st, nil
}

func printStatus(st dispatch.Status) {
	running := color.New(color.FgRed, color.Bold).SprintFunc()
	if st.Running {
		running = color.New(color.FgGreen, color.Bold).SprintFunc()
	}
	fmt.Printf("running: %s\n", running(st.Running))
	fmt.Printf("load:    %.2f\n", st.Load)

	codenames := make([]string, 0, len(st.Chroots))
	for codename := range st.Chroots {
		codenames = append(codenames, codename)
	}
	sort.Strings(codenames)
	fmt.Println("chroots:")
	for _, codename := range codenames {
		arches := append([]string(nil), st.Chroots[codename]...)
		sort.Strings(arches)
		fmt.Printf("  %s: %s\n", color.CyanString(codename), arches)
	}

	fmt.Println("remotes:")
	for _, r := range st.Remotes {
		fmt.Printf("  %s\n", r)
	}
}
