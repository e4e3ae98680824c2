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

// Package delivery decides, per scan, between direct submission and
// the durable queue. The decision never surfaces an error to the scan
// path: a failed send degrades to queuing, and a failed queue append
// degrades to a counted drop. The worst outcome of a tap is a counter
// and a log line, not a crash.
package delivery

import (
	"context"
	"errors"
	"net/http"

	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/stats"
	"github.com/fieldline/tapsync/pkg/storage"
)

// Outcome is the terminal result of a delivery attempt.
type Outcome int

const (
	// Delivered means the orchestrator acknowledged the scan, either
	// with a 2xx or with a 409 duplicate-in-flight conflict, which the
	// fleet treats as acknowledged.
	Delivered Outcome = iota
	// Queued means the scan is persisted for the background sync task.
	Queued
	// Dropped means the scan could not be sent or persisted. It is
	// counted and logged, never raised.
	Dropped
)

// String returns the outcome label used in logs and the control API.
func (o Outcome) String() string {
	switch o {
	case Delivered:
		return "delivered"
	case Queued:
		return "queued"
	case Dropped:
		return "dropped"
	default:
		return "unknown"
	}
}

// StateReader is the monitor surface consulted before a direct send.
type StateReader interface {
	GetState() models.ConnectionState
}

// ScanSubmitter is the orchestrator surface for single scans.
type ScanSubmitter interface {
	SubmitScan(ctx context.Context, scan models.ScanRequest) (int, error)
}

// Appender is the queue surface used on the deferred path.
type Appender interface {
	Append(ctx context.Context, scan models.ScanRequest) error
}

// Delivery routes scans between the direct path and the queue.
type Delivery struct {
	state  StateReader
	client ScanSubmitter
	queue  Appender
	rec    stats.Recorder
	logger logger.Logger
}

// New creates a Delivery. A nil recorder discards counters.
func New(state StateReader, client ScanSubmitter, queue Appender, rec stats.Recorder, log logger.Logger) *Delivery {
	if rec == nil {
		rec = &stats.NoOpRecorder{}
	}

	return &Delivery{
		state:  state,
		client: client,
		queue:  queue,
		rec:    rec,
		logger: log,
	}
}

// Deliver attempts one direct send when the orchestrator is reachable
// and otherwise persists the scan. It never blocks past the client's
// submission timeout plus the queue's bounded lock wait, and it never
// returns an error: every failure mode maps onto an Outcome.
func (d *Delivery) Deliver(ctx context.Context, scan models.ScanRequest) Outcome {
	if d.state.GetState() == models.StateReachable {
		status, err := d.client.SubmitScan(ctx, scan)

		switch {
		case err == nil && status == http.StatusConflict:
			// The orchestrator is already processing this token; the
			// scan arrived, only its scheduling was rejected.
			d.rec.RecordConflict()
			d.logger.Info().
				Str("token_id", scan.TokenID).
				Msg("Scan acknowledged as duplicate in flight")

			return Delivered

		case err == nil && status >= http.StatusOK && status < http.StatusMultipleChoices:
			d.rec.RecordDelivered()
			d.logger.Debug().
				Str("token_id", scan.TokenID).
				Msg("Scan delivered directly")

			return Delivered

		case err != nil:
			d.logger.Debug().
				Err(err).
				Str("token_id", scan.TokenID).
				Msg("Direct send failed, queueing")

		default:
			d.logger.Debug().
				Int("status", status).
				Str("token_id", scan.TokenID).
				Msg("Orchestrator rejected scan, queueing")
		}
	}

	return d.queueScan(ctx, scan)
}

func (d *Delivery) queueScan(ctx context.Context, scan models.ScanRequest) Outcome {
	if err := d.queue.Append(ctx, scan); err != nil {
		d.rec.RecordDropped(dropReason(err))
		d.logger.Error().
			Err(err).
			Str("token_id", scan.TokenID).
			Msg("Scan dropped, queue append failed")

		return Dropped
	}

	d.rec.RecordQueued()
	d.logger.Debug().
		Str("token_id", scan.TokenID).
		Msg("Scan queued for background sync")

	return Queued
}

func dropReason(err error) string {
	if errors.Is(err, storage.ErrLockTimeout) {
		return "lock_timeout"
	}

	return "storage_error"
}
