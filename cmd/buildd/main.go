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

// Command buildd runs the build-farm coordinator: the supervisor,
// ingest, dispatch, and archive install pipeline described by the core
// packages, plus the control commands an operator uses to manage it.
package main

import (
	"log"

	"github.com/spf13/cobra"
)

var (
	configPath string
	pidFile    string
	httpAddr   string
)

var rootCmd = &cobra.Command{
	Use:   "buildd",
	Short: "A small build-farm coordinator",
}

func main() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "/etc/buildd/buildd.yaml", "path to the coordinator's configuration snapshot")
	rootCmd.PersistentFlags().StringVar(&pidFile, "pid-file", "/var/run/buildd.pid", "path recording the running coordinator's pid")

	statusCmd.Flags().StringVar(&httpAddr, "http-addr", "http://localhost:8080", "coordinator status/getkey HTTP endpoint")

	rootCmd.AddCommand(startCmd)
	rootCmd.AddCommand(stopCmd)
	rootCmd.AddCommand(restartCmd)
	rootCmd.AddCommand(statusCmd)

	if err := rootCmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
