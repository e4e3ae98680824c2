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

// Package syncer drains the durable queue toward the orchestrator in
// the background. Each cycle uploads queue prefixes in batches, oldest
// first, and removes a batch only after the orchestrator acknowledges
// it. A failed upload leaves the queue untouched, so at-least-once
// delivery holds across crashes and the orchestrator deduplicates the
// occasional resend.
package syncer

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/monitor"
	"github.com/fieldline/tapsync/pkg/stats"
)

var errSyncerCollaborators = errors.New("syncer requires state, queue and client")

// Syncer is the background drain task. It implements lifecycle.Service.
type Syncer struct {
	state  StateReader
	queue  BatchSource
	client BatchSubmitter
	rec    stats.Recorder
	clock  monitor.Clock
	logger logger.Logger

	pollInterval time.Duration
	drainSpacing time.Duration
	batchSize    int

	kick      chan struct{}
	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Syncer. Zero-valued cadence fields fall back to the
// fleet defaults; the batch size is capped at the orchestrator maximum.
func New(cfg models.SyncConfig, state StateReader, queue BatchSource, client BatchSubmitter, rec stats.Recorder, clock monitor.Clock, log logger.Logger) (*Syncer, error) {
	if state == nil || queue == nil || client == nil {
		return nil, errSyncerCollaborators
	}

	if clock == nil {
		clock = monitor.SystemClock()
	}

	if rec == nil {
		rec = &stats.NoOpRecorder{}
	}

	s := &Syncer{
		state:        state,
		queue:        queue,
		client:       client,
		rec:          rec,
		clock:        clock,
		logger:       log,
		pollInterval: time.Duration(cfg.PollInterval),
		drainSpacing: time.Duration(cfg.DrainSpacing),
		batchSize:    cfg.BatchSize,
		kick:         make(chan struct{}, 1),
		done:         make(chan struct{}),
	}

	if s.pollInterval <= 0 {
		s.pollInterval = models.DefaultSyncInterval
	}

	if s.drainSpacing <= 0 {
		s.drainSpacing = models.DefaultDrainSpacing
	}

	if s.batchSize <= 0 || s.batchSize > models.MaxBatchSize {
		s.batchSize = models.MaxBatchSize
	}

	return s, nil
}

// SyncNow schedules an immediate drain cycle, bypassing the poll
// cadence. It never blocks; a request arriving while a cycle is
// already pending coalesces with it.
func (s *Syncer) SyncNow() {
	select {
	case s.kick <- struct{}{}:
	default:
	}
}

// Start runs the drain loop until Stop is called or the context ends.
func (s *Syncer) Start(ctx context.Context) error {
	s.logger.Info().
		Dur("poll_interval", s.pollInterval).
		Int("batch_size", s.batchSize).
		Int("backlog", s.queue.Count()).
		Msg("Starting background sync")

	s.wg.Add(1)
	defer s.wg.Done()

	// Drain whatever accumulated while the daemon was down.
	s.runCycle(ctx)

	ticker := s.clock.Ticker(s.pollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-s.kick:
			s.runCycle(ctx)
		case <-ticker.Chan():
			s.runCycle(ctx)
		}
	}
}

// Stop winds down the drain loop and waits for an in-flight cycle.
func (s *Syncer) Stop(_ context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.wg.Wait()

	return nil
}

// runCycle drains the queue batch by batch until it is empty, the
// orchestrator stops acknowledging, or reachability is lost. Successive
// uploads are spaced out so a deep backlog does not monopolize the
// uplink.
func (s *Syncer) runCycle(ctx context.Context) {
	for {
		if !s.state.Reachable() || s.queue.Count() == 0 {
			return
		}

		if !s.drainBatch(ctx) {
			return
		}

		if s.queue.Count() == 0 {
			return
		}

		if !s.pause(ctx) {
			return
		}
	}
}

// drainBatch uploads one queue prefix. It reports whether the cycle
// should continue with the next batch.
func (s *Syncer) drainBatch(ctx context.Context) bool {
	batch, err := s.queue.PeekBatch(ctx, s.batchSize)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Queue read failed, retrying next cycle")
		return false
	}

	if len(batch) == 0 {
		return false
	}

	start := s.clock.Now()

	if err := s.client.SubmitBatch(ctx, batch); err != nil {
		// The batch stays queued in order; the next cycle retries it.
		s.rec.RecordBatchFailure(err, s.clock.Now().Sub(start))
		return false
	}

	if err := s.queue.Commit(ctx, len(batch)); err != nil {
		// The orchestrator acknowledged entries we could not remove.
		// They will be resent next cycle and deduplicated server-side.
		s.logger.Error().
			Err(err).
			Int("entries", len(batch)).
			Msg("Commit failed after acknowledged batch")

		return false
	}

	s.rec.RecordBatchSent(len(batch), s.clock.Now().Sub(start))

	return true
}

func (s *Syncer) pause(ctx context.Context) bool {
	t := s.clock.Ticker(s.drainSpacing)
	defer t.Stop()

	select {
	case <-ctx.Done():
		return false
	case <-s.done:
		return false
	case <-t.Chan():
		return true
	}
}
