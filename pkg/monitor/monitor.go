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

// Package monitor tracks how much of the path to the orchestrator is
// usable: none (disconnected), the local network only (network up),
// or the orchestrator itself (reachable). Link loss arrives as an
// event and downgrades immediately; upgrades go strictly one step at
// a time, so the state never jumps from disconnected to reachable
// without passing through network up.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/stats"
)

var (
	errProberRequired  = errors.New("health prober is required")
	errWatcherRequired = errors.New("link watcher is required")
)

// Monitor owns the connection state. Only its run loop mutates the
// state; everyone else reads it through GetState, which is a single
// atomic load and can never observe a torn value.
type Monitor struct {
	prober  HealthProber
	watcher LinkWatcher
	rec     stats.Recorder
	clock   Clock
	logger  logger.Logger

	healthInterval time.Duration
	healthTimeout  time.Duration
	reconnectEvery time.Duration

	state atomic.Int32

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a monitor. A nil clock falls back to the system clock; a
// nil recorder discards probe stats.
func New(cfg models.MonitorConfig, prober HealthProber, watcher LinkWatcher, rec stats.Recorder, clock Clock, log logger.Logger) (*Monitor, error) {
	if prober == nil {
		return nil, errProberRequired
	}

	if watcher == nil {
		return nil, errWatcherRequired
	}

	if clock == nil {
		clock = SystemClock()
	}

	if rec == nil {
		rec = &stats.NoOpRecorder{}
	}

	m := &Monitor{
		prober:         prober,
		watcher:        watcher,
		rec:            rec,
		clock:          clock,
		logger:         log,
		healthInterval: time.Duration(cfg.HealthInterval),
		healthTimeout:  time.Duration(cfg.HealthTimeout),
		reconnectEvery: time.Duration(cfg.ReconnectInterval),
		done:           make(chan struct{}),
	}

	if m.healthInterval <= 0 {
		m.healthInterval = models.DefaultHealthInterval
	}

	if m.healthTimeout <= 0 {
		m.healthTimeout = models.DefaultHealthTimeout
	}

	if m.reconnectEvery <= 0 {
		m.reconnectEvery = models.DefaultReconnectInterval
	}

	return m, nil
}

// GetState returns the last known connection state without blocking.
func (m *Monitor) GetState() models.ConnectionState {
	return models.ConnectionState(m.state.Load())
}

// Reachable reports whether the orchestrator answered the most recent
// health probe.
func (m *Monitor) Reachable() bool {
	return m.GetState() == models.StateReachable
}

// Start implements the lifecycle.Service interface. It runs the state
// machine until Stop or context cancellation.
func (m *Monitor) Start(ctx context.Context) error {
	if err := m.watcher.Start(ctx); err != nil {
		return fmt.Errorf("failed to start link watcher: %w", err)
	}

	m.wg.Add(1)
	defer m.wg.Done()

	m.logger.Info().
		Dur("health_interval", m.healthInterval).
		Dur("reconnect_interval", m.reconnectEvery).
		Msg("Starting connection monitor")

	// Establish the starting state from the live link, then probe once
	// so a healthy boot reaches the orchestrator without waiting out a
	// full interval.
	if m.watcher.Up() {
		m.setState(models.StateNetworkUp, "link present at startup")
		m.probe(ctx)
	}

	interval := m.tickInterval()
	ticker := m.clock.Ticker(interval)

	defer func() { ticker.Stop() }()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-m.done:
			return nil
		case ev := <-m.watcher.Events():
			m.handleLinkEvent(ev)
		case <-ticker.Chan():
			m.tick(ctx)
		}

		// The cadence depends on the state: reconnect attempts while
		// disconnected, health probes while the link is up.
		if next := m.tickInterval(); next != interval {
			ticker.Stop()
			ticker = m.clock.Ticker(next)
			interval = next

			m.logger.Debug().Dur("interval", next).Msg("Monitor cadence changed")
		}
	}
}

// Stop implements the lifecycle.Service interface.
func (m *Monitor) Stop(_ context.Context) error {
	m.closeOnce.Do(func() { close(m.done) })
	m.wg.Wait()
	m.watcher.Stop()

	return nil
}

func (m *Monitor) tickInterval() time.Duration {
	if m.GetState() == models.StateDisconnected {
		return m.reconnectEvery
	}

	return m.healthInterval
}

// handleLinkEvent reacts to an edge from the watcher. A down edge
// forces disconnected from any state; an up edge only ever advances to
// network up, leaving reachability to the next probe.
func (m *Monitor) handleLinkEvent(ev LinkEvent) {
	if !ev.Up {
		m.setState(models.StateDisconnected, "link lost")

		return
	}

	if m.GetState() == models.StateDisconnected {
		m.setState(models.StateNetworkUp, "link associated")
	}
}

func (m *Monitor) tick(ctx context.Context) {
	switch m.GetState() {
	case models.StateDisconnected:
		// Retry toward network up: trust a fresh sample in case the
		// up edge was missed.
		if m.watcher.Up() {
			m.setState(models.StateNetworkUp, "link recovered on retry")
		}
	case models.StateNetworkUp, models.StateReachable:
		m.probe(ctx)
	}
}

func (m *Monitor) probe(ctx context.Context) {
	probeCtx, cancel := context.WithTimeout(ctx, m.healthTimeout)
	defer cancel()

	start := m.clock.Now()
	err := m.prober.CheckHealth(probeCtx)
	elapsed := m.clock.Now().Sub(start)

	m.rec.RecordHealthCheck(err == nil, elapsed)

	if err != nil {
		if m.GetState() == models.StateReachable {
			m.setState(models.StateNetworkUp, "health probe failed")
		}

		m.logger.Debug().Err(err).Dur("elapsed", elapsed).Msg("Health probe failed")

		return
	}

	if m.GetState() == models.StateNetworkUp {
		m.setState(models.StateReachable, "health probe succeeded")
	}
}

func (m *Monitor) setState(next models.ConnectionState, reason string) {
	prev := models.ConnectionState(m.state.Swap(int32(next)))
	if prev == next {
		return
	}

	m.logger.Info().
		Str("from", prev.String()).
		Str("to", next.String()).
		Str("reason", reason).
		Msg("Connection state changed")
}
