/*
 * Copyright 2025 Fieldline Systems.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// tapsyncd is the scan terminal daemon. It accepts token taps over the
// local control API, delivers them to the orchestrator while it is
// reachable, queues them on local storage while it is not, and drains
// the backlog in the background once connectivity returns.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"

	"github.com/fieldline/tapsync/pkg/config"
	"github.com/fieldline/tapsync/pkg/control"
	"github.com/fieldline/tapsync/pkg/delivery"
	"github.com/fieldline/tapsync/pkg/identity"
	"github.com/fieldline/tapsync/pkg/lifecycle"
	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/monitor"
	"github.com/fieldline/tapsync/pkg/orchestrator"
	"github.com/fieldline/tapsync/pkg/queue"
	"github.com/fieldline/tapsync/pkg/scanner"
	"github.com/fieldline/tapsync/pkg/stats"
	"github.com/fieldline/tapsync/pkg/storage"
	"github.com/fieldline/tapsync/pkg/syncer"
	"github.com/fieldline/tapsync/pkg/tokendb"
	"github.com/fieldline/tapsync/pkg/version"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/tapsync/tapsync.json", "Path to terminal config file")
	flag.Parse()

	ctx := context.Background()

	var cfg models.TerminalConfig
	if err := config.NewConfig(nil).LoadAndValidate(ctx, *configPath, &cfg); err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = &logger.Config{
			Level:  "info",
			Output: "stdout",
		}
	}

	termLog, err := lifecycle.CreateComponentLogger("tapsyncd", logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	termLog.Info().
		Str("version", version.String()).
		Str("config", *configPath).
		Msg("tapsyncd starting")

	dev, err := storage.NewDevice(cfg.Queue.Dir, termLog)
	if err != nil {
		return fmt.Errorf("failed to open terminal storage: %w", err)
	}

	rec := stats.NewRecorder(termLog)

	q, err := queue.New(ctx, dev, cfg.Queue, rec, termLog)
	if err != nil {
		return fmt.Errorf("failed to open scan queue: %w", err)
	}

	deviceID, err := identity.NewProvisioner(dev, termLog).Provision(ctx, cfg.Orchestrator.DeviceID)
	if err != nil {
		return fmt.Errorf("failed to provision device identity: %w", err)
	}

	cfg.Orchestrator.DeviceID = deviceID

	client, err := orchestrator.NewClient(cfg.Orchestrator, nil, termLog)
	if err != nil {
		return fmt.Errorf("failed to build orchestrator client: %w", err)
	}

	watcher := monitor.NewInterfaceWatcher(cfg.Monitor.LinkInterface, nil, termLog)

	mon, err := monitor.New(cfg.Monitor, client, watcher, rec, nil, termLog)
	if err != nil {
		return fmt.Errorf("failed to build connection monitor: %w", err)
	}

	drain, err := syncer.New(cfg.Sync, mon, q, client, rec, nil, termLog)
	if err != nil {
		return fmt.Errorf("failed to build background sync: %w", err)
	}

	deliver := delivery.New(mon, client, q, rec, termLog)

	taps, err := scanner.New(cfg.Scanner, deviceID, cfg.Orchestrator.TeamID, deliver, nil, rec, termLog)
	if err != nil {
		return fmt.Errorf("failed to build scan handler: %w", err)
	}

	ctlOpts := []control.Option{
		control.WithState(mon),
		control.WithQueue(q),
		control.WithStats(rec),
		control.WithBreaker(client),
		control.WithSyncer(drain),
		control.WithScanner(taps),
		control.WithHostGauges(control.NewSystemGauges(dev.Root())),
	}

	// Stop order is the reverse of this list, so the control server
	// goes down first and the connection monitor last.
	services := []lifecycle.NamedService{
		{Name: "monitor", Service: mon},
		{Name: "scanner", Service: taps},
		{Name: "sync", Service: drain},
	}

	if cfg.Tokens.Enabled {
		tokens, terr := tokendb.New(ctx, dev, client, cfg.Tokens, termLog)
		if terr != nil {
			return fmt.Errorf("failed to open token cache: %w", terr)
		}

		ctlOpts = append(ctlOpts, control.WithTokens(tokens))
		services = append(services, lifecycle.NamedService{Name: "tokens", Service: tokens})
	}

	services = append(services, lifecycle.NamedService{
		Name:    "control",
		Service: control.NewServer(cfg.ListenAddr, cfg.APIKey, termLog, ctlOpts...),
	})

	return lifecycle.Run(ctx, &lifecycle.DaemonOptions{
		ServiceName: "tapsyncd",
		Services:    services,
		Logger:      termLog,
	})
}
