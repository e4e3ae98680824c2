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

// Package stats collects the daemon's error and throughput counters.
// Every failure path increments a counter here; nothing is silently
// lost. Counters are atomics so recording never contends with the
// storage lock.
package stats

import (
	"sync/atomic"
	"time"

	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
)

// Recorder collects scan-path and sync-path counters.
type Recorder interface {
	RecordDelivered()
	RecordConflict()
	RecordQueued()
	RecordDropped(reason string)
	RecordRateLimited()
	RecordBatchSent(entries int, duration time.Duration)
	RecordBatchFailure(err error, duration time.Duration)
	RecordEviction()
	RecordCorruptLines(count int)
	RecordLockTimeout(caller string)
	RecordHealthCheck(ok bool, duration time.Duration)

	// Snapshot returns a copy of all counters for the status surface.
	Snapshot() models.SyncStats
}

// NoOpRecorder discards all records; used in tests.
type NoOpRecorder struct{}

func (*NoOpRecorder) RecordDelivered()                        {}
func (*NoOpRecorder) RecordConflict()                         {}
func (*NoOpRecorder) RecordQueued()                           {}
func (*NoOpRecorder) RecordDropped(string)                    {}
func (*NoOpRecorder) RecordRateLimited()                      {}
func (*NoOpRecorder) RecordBatchSent(int, time.Duration)      {}
func (*NoOpRecorder) RecordBatchFailure(error, time.Duration) {}
func (*NoOpRecorder) RecordEviction()                         {}
func (*NoOpRecorder) RecordCorruptLines(int)                  {}
func (*NoOpRecorder) RecordLockTimeout(string)                {}
func (*NoOpRecorder) RecordHealthCheck(bool, time.Duration)   {}
func (*NoOpRecorder) Snapshot() models.SyncStats              { return models.SyncStats{} }

// TerminalRecorder is the production Recorder: lock-free counters plus
// warn-level logs on the paths an operator needs to see.
type TerminalRecorder struct {
	logger logger.Logger

	delivered   atomic.Uint64
	conflicts   atomic.Uint64
	queued      atomic.Uint64
	dropped     atomic.Uint64
	rateLimited atomic.Uint64

	batchesSent   atomic.Uint64
	batchesFailed atomic.Uint64
	committed     atomic.Uint64

	evicted        atomic.Uint64
	corruptSkipped atomic.Uint64
	lockTimeouts   atomic.Uint64

	healthOK   atomic.Uint64
	healthFail atomic.Uint64

	lastDeliveredNs atomic.Int64
	lastDrainNs     atomic.Int64
}

// NewRecorder creates a TerminalRecorder.
func NewRecorder(log logger.Logger) *TerminalRecorder {
	return &TerminalRecorder{logger: log}
}

func (r *TerminalRecorder) RecordDelivered() {
	r.delivered.Add(1)
	r.lastDeliveredNs.Store(time.Now().UnixNano())
}

func (r *TerminalRecorder) RecordConflict() {
	r.conflicts.Add(1)
	r.delivered.Add(1)
	r.lastDeliveredNs.Store(time.Now().UnixNano())
}

func (r *TerminalRecorder) RecordQueued() {
	r.queued.Add(1)
}

func (r *TerminalRecorder) RecordDropped(reason string) {
	r.dropped.Add(1)

	r.logger.Warn().
		Str("reason", reason).
		Uint64("total_dropped", r.dropped.Load()).
		Msg("Scan dropped")
}

func (r *TerminalRecorder) RecordRateLimited() {
	r.rateLimited.Add(1)
}

func (r *TerminalRecorder) RecordBatchSent(entries int, duration time.Duration) {
	r.batchesSent.Add(1)
	r.committed.Add(uint64(entries))
	r.lastDrainNs.Store(time.Now().UnixNano())

	r.logger.Info().
		Int("entries", entries).
		Dur("duration", duration).
		Msg("Batch upload acknowledged")
}

func (r *TerminalRecorder) RecordBatchFailure(err error, duration time.Duration) {
	r.batchesFailed.Add(1)

	r.logger.Warn().
		Err(err).
		Dur("duration", duration).
		Msg("Batch upload failed, entries retained")
}

func (r *TerminalRecorder) RecordEviction() {
	r.evicted.Add(1)
}

func (r *TerminalRecorder) RecordCorruptLines(count int) {
	if count <= 0 {
		return
	}

	r.corruptSkipped.Add(uint64(count))

	r.logger.Warn().
		Int("skipped", count).
		Msg("Skipped corrupt queue lines")
}

func (r *TerminalRecorder) RecordLockTimeout(caller string) {
	r.lockTimeouts.Add(1)

	r.logger.Warn().
		Str("caller", caller).
		Msg("Storage lock timeout")
}

func (r *TerminalRecorder) RecordHealthCheck(ok bool, duration time.Duration) {
	if ok {
		r.healthOK.Add(1)
	} else {
		r.healthFail.Add(1)
	}

	r.logger.Debug().
		Bool("ok", ok).
		Dur("duration", duration).
		Msg("Health probe completed")
}

func (r *TerminalRecorder) Snapshot() models.SyncStats {
	s := models.SyncStats{
		ScansDelivered:   r.delivered.Load(),
		ScansQueued:      r.queued.Load(),
		ScansDropped:     r.dropped.Load(),
		ScansRateLimited: r.rateLimited.Load(),
		Conflicts:        r.conflicts.Load(),
		BatchesSent:      r.batchesSent.Load(),
		BatchesFailed:    r.batchesFailed.Load(),
		EntriesCommitted: r.committed.Load(),
		EntriesEvicted:   r.evicted.Load(),
		CorruptSkipped:   r.corruptSkipped.Load(),
		LockTimeouts:     r.lockTimeouts.Load(),
		HealthSuccesses:  r.healthOK.Load(),
		HealthFailures:   r.healthFail.Load(),
	}

	if ns := r.lastDeliveredNs.Load(); ns != 0 {
		s.LastDeliveredAt = time.Unix(0, ns)
	}

	if ns := r.lastDrainNs.Load(); ns != 0 {
		s.LastDrainAt = time.Unix(0, ns)
	}

	return s
}
