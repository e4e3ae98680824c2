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

// Package lifecycle runs a set of long-lived services as one daemon:
// start them together, block until a signal or a service failure, stop
// them in reverse order with a bounded shutdown window.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/fieldline/tapsync/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

var errShutdown = errors.New("error during shutdown")

// Service is a long-lived component. Start blocks until the service
// exits; Stop asks it to wind down and return from Start.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// NamedService pairs a Service with the name used in lifecycle logs.
type NamedService struct {
	Name    string
	Service Service
}

// DaemonOptions configures Run.
type DaemonOptions struct {
	ServiceName     string
	Services        []NamedService
	ShutdownTimeout time.Duration
	Logger          logger.Logger
}

// Run starts every service, blocks until the context is canceled, a
// SIGINT/SIGTERM arrives, or a service's Start returns an error, then
// stops all services in reverse registration order. A context canceled
// by signal is a clean exit, not an error.
func Run(ctx context.Context, opts *DaemonOptions) error {
	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	shutdownTimeout := opts.ShutdownTimeout
	if shutdownTimeout == 0 {
		shutdownTimeout = defaultShutdownTimeout
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(opts.Services))

	for _, ns := range opts.Services {
		ns := ns

		log.Info().Str("service", ns.Name).Msg("Starting service")

		go func() {
			if err := ns.Service.Start(runCtx); err != nil &&
				!errors.Is(err, context.Canceled) {
				errCh <- fmt.Errorf("%s: %w", ns.Name, err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Str("daemon", opts.ServiceName).Msg("Context canceled, shutting down")
	case sig := <-sigCh:
		log.Info().Str("daemon", opts.ServiceName).Str("signal", sig.String()).Msg("Signal received, shutting down")
	case err := <-errCh:
		log.Error().Err(err).Msg("Service failed, shutting down")

		runErr = err
	}

	cancel()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer stopCancel()

	for i := len(opts.Services) - 1; i >= 0; i-- {
		ns := opts.Services[i]

		if err := ns.Service.Stop(stopCtx); err != nil {
			log.Error().Err(err).Str("service", ns.Name).Msg("Error stopping service")

			if runErr == nil {
				runErr = fmt.Errorf("%w: %s: %w", errShutdown, ns.Name, err)
			}
		} else {
			log.Info().Str("service", ns.Name).Msg("Service stopped")
		}
	}

	return runErr
}
