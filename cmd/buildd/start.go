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
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/buildfarm/buildfarm/internal/daemon"
	"github.com/buildfarm/buildfarm/pkg/config"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Run the coordinator in the foreground",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runForeground(cmd.Context())
	},
}

// runForeground starts the supervisor, serves the status/getkey HTTP
// endpoints alongside it, and blocks until SIGINT/SIGTERM stop the
// process or SIGHUP triggers a config reload (Supervisor.Restart)
// without exiting.
func runForeground(ctx context.Context) error {
	if err := writePidFile(); err != nil {
		return err
	}
	defer os.Remove(pidFile)

	sup := daemon.NewSupervisor(configPath)
	if err := sup.Start(ctx); err != nil {
		return fmt.Errorf("starting coordinator: %w", err)
	}
	log.Printf("buildd started, config=%s pid=%d", configPath, os.Getpid())

	httpServer := serveStatus(sup)
	defer httpServer.Close()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	for sig := range sigChan {
		if sig == syscall.SIGHUP {
			log.Printf("received SIGHUP, reloading configuration")
			if err := sup.Restart(ctx); err != nil {
				log.Printf("reload failed: %v", err)
			}
			continue
		}
		log.Printf("received %v, shutting down", sig)
		break
	}
	return sup.Stop()
}

func serveStatus(sup *daemon.Supervisor) *http.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		d := sup.Daemon()
		if d == nil {
			http.Error(w, "coordinator not running", http.StatusServiceUnavailable)
			return
		}
		d.StatusHandler()(w, r)
	})
	cfg, err := config.Load(configPath)
	addr := ":8080"
	if err == nil && cfg.HTTPAddr != "" {
		addr = cfg.HTTPAddr
	}
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("status server: %v", err)
		}
	}()
	return srv
}

func writePidFile() error {
	return os.WriteFile(pidFile, []byte(strconv.Itoa(os.Getpid())), 0o644)
}
