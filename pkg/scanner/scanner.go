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

// Package scanner is the foreground scan path. Token reads arrive via
// Submit, pass a rate gate that ignores accidental double-taps, and are
// stamped with read time and terminal identity before delivery decides
// between the direct send and the queue. Submit never blocks: a reader
// driver can call it from an interrupt-ish context without stalling on
// the network or the storage lock.
package scanner

import (
	"context"
	"errors"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"github.com/fieldline/tapsync/pkg/delivery"
	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/stats"
)

var (
	// ErrRateLimited reports a scan arriving inside the minimum gap
	// after the previous one, typically a double-tap.
	ErrRateLimited = errors.New("scan rate limit exceeded")

	// ErrBufferFull reports that the handler is backed up and the scan
	// was not enqueued.
	ErrBufferFull = errors.New("scan buffer full")

	errDelivererRequired = errors.New("scanner requires a deliverer")
)

// Deliverer routes a stamped scan to the orchestrator or the queue.
type Deliverer interface {
	Deliver(ctx context.Context, scan models.ScanRequest) delivery.Outcome
}

// Feedback receives the outcome of each processed scan, typically to
// drive the terminal's LED and buzzer. Implementations must return
// quickly; the handler calls them inline between scans.
type Feedback interface {
	ScanResult(scan models.ScanRequest, outcome delivery.Outcome)
}

type noOpFeedback struct{}

func (noOpFeedback) ScanResult(models.ScanRequest, delivery.Outcome) {}

// Handler consumes token reads and turns them into deliveries. It
// implements lifecycle.Service.
type Handler struct {
	deliverer Deliverer
	feedback  Feedback
	rec       stats.Recorder
	logger    logger.Logger

	deviceID string
	teamID   string

	limiter *rate.Limiter
	events  chan models.ScanEvent

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Handler bound to the terminal's identity. A nil
// feedback is allowed; outcomes are then only logged and counted.
func New(cfg models.ScannerConfig, deviceID, teamID string, d Deliverer, fb Feedback, rec stats.Recorder, log logger.Logger) (*Handler, error) {
	if d == nil {
		return nil, errDelivererRequired
	}

	if !models.ValidDeviceID(deviceID) {
		return nil, models.ErrInvalidDeviceID
	}

	if teamID != "" && !models.ValidTeamID(teamID) {
		return nil, models.ErrInvalidTeamID
	}

	if fb == nil {
		fb = noOpFeedback{}
	}

	if rec == nil {
		rec = &stats.NoOpRecorder{}
	}

	buffer := cfg.Buffer
	if buffer <= 0 {
		buffer = 32
	}

	minGap := time.Duration(cfg.MinScanGap)
	if minGap <= 0 {
		minGap = 500 * time.Millisecond
	}

	return &Handler{
		deliverer: d,
		feedback:  fb,
		rec:       rec,
		logger:    log,
		deviceID:  deviceID,
		teamID:    teamID,
		limiter:   rate.NewLimiter(rate.Every(minGap), 1),
		events:    make(chan models.ScanEvent, buffer),
		done:      make(chan struct{}),
	}, nil
}

// DeviceID returns the identity stamped onto every scan.
func (h *Handler) DeviceID() string {
	return h.deviceID
}

// Submit accepts one token read. It applies the rate gate and the
// identifier check at arrival time and enqueues the event for the
// processing loop, stamping the read time if the reader did not. It
// never blocks.
func (h *Handler) Submit(ev models.ScanEvent) error {
	if !h.limiter.Allow() {
		h.rec.RecordRateLimited()
		h.logger.Debug().
			Str("token_id", ev.TokenID).
			Msg("Scan ignored by rate gate")

		return ErrRateLimited
	}

	if !models.ValidTokenID(ev.TokenID) {
		h.rec.RecordDropped("invalid_token")
		h.logger.Warn().
			Str("token_id", ev.TokenID).
			Msg("Scan rejected, malformed token id")

		return models.ErrInvalidTokenID
	}

	if ev.ReadAt.IsZero() {
		ev.ReadAt = time.Now()
	}

	select {
	case h.events <- ev:
		return nil
	default:
		h.rec.RecordDropped("buffer_full")
		h.logger.Warn().
			Str("token_id", ev.TokenID).
			Msg("Scan dropped, handler backed up")

		return ErrBufferFull
	}
}

// Start processes submitted scans until Stop is called or the context
// ends.
func (h *Handler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("device_id", h.deviceID).
		Int("buffer", cap(h.events)).
		Msg("Starting scan handler")

	h.wg.Add(1)
	defer h.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-h.done:
			return nil
		case ev := <-h.events:
			h.handle(ctx, ev)
		}
	}
}

// Stop winds down the processing loop. Events still buffered are
// abandoned; the reader hardware debounces better than a late beep.
func (h *Handler) Stop(_ context.Context) error {
	h.closeOnce.Do(func() {
		close(h.done)
	})

	h.wg.Wait()

	return nil
}

func (h *Handler) handle(ctx context.Context, ev models.ScanEvent) {
	scan := models.ScanRequest{
		TokenID:   ev.TokenID,
		TeamID:    h.teamID,
		DeviceID:  h.deviceID,
		Timestamp: models.FormatScanTime(ev.ReadAt),
	}

	outcome := h.deliverer.Deliver(ctx, scan)

	h.feedback.ScanResult(scan, outcome)

	h.logger.Info().
		Str("token_id", scan.TokenID).
		Stringer("outcome", outcome).
		Msg("Scan processed")
}
