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

package monitor

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldline/tapsync/pkg/logger"
)

// linkSampleInterval is how often the watcher re-reads interface
// flags. Sampling is one cheap syscall; the monitor only sees edges.
const linkSampleInterval = time.Second

// InterfaceWatcher derives link state from the kernel's interface
// flags. With an interface name configured it tracks that interface
// alone; otherwise any non-loopback interface that is up and running
// counts as associated.
type InterfaceWatcher struct {
	iface  string
	clock  Clock
	logger logger.Logger

	up        atomic.Bool
	events    chan LinkEvent
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewInterfaceWatcher creates a watcher for the named interface, or
// for any physical interface when name is empty.
func NewInterfaceWatcher(iface string, clock Clock, log logger.Logger) *InterfaceWatcher {
	if clock == nil {
		clock = SystemClock()
	}

	return &InterfaceWatcher{
		iface:  iface,
		clock:  clock,
		logger: log,
		events: make(chan LinkEvent, 4),
		done:   make(chan struct{}),
	}
}

// Start samples once synchronously, so Up is valid immediately, then
// begins watching for edges.
func (w *InterfaceWatcher) Start(ctx context.Context) error {
	up, err := w.sample()
	if err != nil {
		return fmt.Errorf("failed to read network interfaces: %w", err)
	}

	w.up.Store(up)

	w.logger.Info().
		Str("interface", w.ifaceLabel()).
		Bool("up", up).
		Msg("Link watcher started")

	w.wg.Add(1)

	go w.loop(ctx)

	return nil
}

// Stop halts sampling. Events already queued remain readable.
func (w *InterfaceWatcher) Stop() {
	w.closeOnce.Do(func() { close(w.done) })
	w.wg.Wait()
}

// Up returns the last sampled link state without blocking.
func (w *InterfaceWatcher) Up() bool {
	return w.up.Load()
}

// Events returns the edge channel consumed by the monitor.
func (w *InterfaceWatcher) Events() <-chan LinkEvent {
	return w.events
}

func (w *InterfaceWatcher) loop(ctx context.Context) {
	defer w.wg.Done()

	ticker := w.clock.Ticker(linkSampleInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-w.done:
			return
		case <-ticker.Chan():
			up, err := w.sample()
			if err != nil {
				w.logger.Warn().Err(err).Msg("Failed to sample network interfaces")

				continue
			}

			if up == w.up.Load() {
				continue
			}

			w.up.Store(up)

			w.logger.Info().
				Str("interface", w.ifaceLabel()).
				Bool("up", up).
				Msg("Link state changed")

			select {
			case w.events <- LinkEvent{Up: up, Iface: w.iface}:
			default:
				// The monitor consumes promptly; never block the sampler.
			}
		}
	}
}

// sample reports whether a qualifying interface is up and running.
func (w *InterfaceWatcher) sample() (bool, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return false, err
	}

	for i := range ifaces {
		ifc := &ifaces[i]

		if w.iface != "" {
			if ifc.Name != w.iface {
				continue
			}
		} else if ifc.Flags&net.FlagLoopback != 0 {
			continue
		}

		if ifc.Flags&net.FlagUp != 0 && ifc.Flags&net.FlagRunning != 0 {
			return true, nil
		}
	}

	return false, nil
}

func (w *InterfaceWatcher) ifaceLabel() string {
	if w.iface == "" {
		return "any"
	}

	return w.iface
}
