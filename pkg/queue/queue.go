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

// Package queue persists scans that could not be delivered while the
// orchestrator was unreachable. The backing store is a bounded
// append-only JSONL file on the shared storage medium: appends go to
// the tail, the sync task consumes from the head, and a removed prefix
// is committed by rewriting the remainder through a temp file and an
// atomic rename. Readers tolerate torn or corrupt lines by skipping
// them, so one bad write never strands the entries behind it.
package queue

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/stats"
	"github.com/fieldline/tapsync/pkg/storage"
)

const (
	queueFileName = "queue.jsonl"
	tempFileName  = "queue.jsonl.tmp"
)

// Queue is the durable scan backlog. All file access happens inside a
// storage.Device critical section; the entry count is cached in an
// atomic so depth checks never touch the medium.
type Queue struct {
	dev    *storage.Device
	rec    stats.Recorder
	logger logger.Logger

	path     string
	tmpPath  string
	capacity int
	fgWait   time.Duration // scan-path callers
	bgWait   time.Duration // sync task and control surface
	maxBytes int64

	count atomic.Int64
}

// New opens the queue file under the device root and recovers the
// persisted backlog. A file larger than the configured limit is
// treated as wholesale corruption and deleted rather than parsed.
func New(ctx context.Context, dev *storage.Device, cfg models.QueueConfig, rec stats.Recorder, log logger.Logger) (*Queue, error) {
	if cfg.Capacity <= 0 || cfg.LockTimeout <= 0 || cfg.BackgroundLockTimeout <= 0 || cfg.MaxFileBytes <= 0 {
		return nil, errQueueConfigIncomplete
	}

	q := &Queue{
		dev:      dev,
		rec:      rec,
		logger:   log,
		path:     dev.Path(queueFileName),
		tmpPath:  dev.Path(tempFileName),
		capacity: cfg.Capacity,
		fgWait:   time.Duration(cfg.LockTimeout),
		bgWait:   time.Duration(cfg.BackgroundLockTimeout),
		maxBytes: cfg.MaxFileBytes,
	}

	release, err := q.acquire(ctx, "queueRecover", q.bgWait)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := q.recoverLocked(); err != nil {
		return nil, err
	}

	return q, nil
}

// Count returns the cached number of valid queued entries.
func (q *Queue) Count() int {
	return int(q.count.Load())
}

// Capacity returns the configured entry bound.
func (q *Queue) Capacity() int {
	return q.capacity
}

// Append persists one scan at the tail of the queue. When the queue is
// already at capacity the oldest entry is evicted first, inside the
// same critical section, so the bound holds even across concurrent
// callers. An error means the scan was NOT persisted.
func (q *Queue) Append(ctx context.Context, scan models.ScanRequest) error {
	line, err := json.Marshal(scan)
	if err != nil {
		return fmt.Errorf("failed to encode queue entry: %w", err)
	}

	release, err := q.acquire(ctx, "queueAppend", q.fgWait)
	if err != nil {
		return err
	}
	defer release()

	if q.count.Load() >= int64(q.capacity) {
		if err := q.evictOldestLocked(); err != nil {
			return err
		}
	}

	if err := q.appendLineLocked(line); err != nil {
		return err
	}

	q.count.Add(1)

	q.logger.Debug().
		Str("token_id", scan.TokenID).
		Int64("depth", q.count.Load()).
		Msg("Scan queued")

	return nil
}

// PeekBatch returns up to n of the oldest queued entries without
// removing them. Corrupt lines are skipped and counted.
func (q *Queue) PeekBatch(ctx context.Context, n int) ([]models.ScanRequest, error) {
	if n <= 0 {
		return nil, nil
	}

	release, err := q.acquire(ctx, "queuePeek", q.bgWait)
	if err != nil {
		return nil, err
	}
	defer release()

	entries, skipped, err := q.readEntriesLocked(n)
	if err != nil {
		return nil, err
	}

	q.rec.RecordCorruptLines(skipped)

	return entries, nil
}

// Commit removes exactly the n oldest entries, the same prefix a prior
// PeekBatch(n) returned. The remainder is written to a temp file and
// renamed over the queue, so a failure at any point leaves the
// original file untouched and the entries still queued.
func (q *Queue) Commit(ctx context.Context, n int) error {
	if n <= 0 {
		return nil
	}

	release, err := q.acquire(ctx, "queueCommit", q.bgWait)
	if err != nil {
		return err
	}
	defer release()

	entries, skipped, err := q.readEntriesLocked(0)
	if err != nil {
		return err
	}

	q.rec.RecordCorruptLines(skipped)

	if n > len(entries) {
		return fmt.Errorf("%w: have %d, asked to remove %d", ErrCommitBeyondQueue, len(entries), n)
	}

	rest := entries[n:]

	if err := q.writeEntriesLocked(rest); err != nil {
		return err
	}

	q.count.Store(int64(len(rest)))

	q.logger.Debug().
		Int("removed", n).
		Int("remaining", len(rest)).
		Msg("Queue prefix committed")

	return nil
}

// acquire takes the device lock and records a stat when the bounded
// wait is exceeded.
func (q *Queue) acquire(ctx context.Context, caller string, wait time.Duration) (func(), error) {
	release, err := q.dev.Acquire(ctx, caller, wait)
	if err != nil {
		if errors.Is(err, storage.ErrLockTimeout) {
			q.rec.RecordLockTimeout(caller)
		}

		return nil, err
	}

	return release, nil
}

// recoverLocked rebuilds the cached count from the file at startup and
// clears out anything a crashed run may have left behind.
func (q *Queue) recoverLocked() error {
	// A leftover temp file means a commit was interrupted before the
	// rename; the queue file is still the source of truth.
	_ = os.Remove(q.tmpPath)

	fi, err := os.Stat(q.path)
	if errors.Is(err, os.ErrNotExist) {
		q.count.Store(0)
		q.logger.Debug().Msg("No persisted queue, starting empty")

		return nil
	}

	if err != nil {
		return fmt.Errorf("failed to stat queue file: %w", err)
	}

	if fi.Size() > q.maxBytes {
		if err := os.Remove(q.path); err != nil {
			return fmt.Errorf("failed to remove oversize queue file: %w", err)
		}

		q.count.Store(0)

		q.logger.Error().
			Int64("size_bytes", fi.Size()).
			Int64("limit_bytes", q.maxBytes).
			Msg("Queue file exceeds size limit, resetting to empty")

		return nil
	}

	entries, skipped, err := q.readEntriesLocked(0)
	if err != nil {
		return err
	}

	q.rec.RecordCorruptLines(skipped)
	q.count.Store(int64(len(entries)))

	q.logger.Info().
		Int("entries", len(entries)).
		Int("skipped", skipped).
		Int64("size_bytes", fi.Size()).
		Msg("Recovered persisted queue")

	return nil
}

// evictOldestLocked drops the head entry to make room for a new append.
func (q *Queue) evictOldestLocked() error {
	entries, skipped, err := q.readEntriesLocked(0)
	if err != nil {
		return err
	}

	q.rec.RecordCorruptLines(skipped)

	if len(entries) == 0 {
		// Count drifted from the file (all lines corrupt); realign.
		if err := q.writeEntriesLocked(nil); err != nil {
			return err
		}

		q.count.Store(0)

		return nil
	}

	dropped := entries[0]

	if err := q.writeEntriesLocked(entries[1:]); err != nil {
		return err
	}

	q.count.Store(int64(len(entries) - 1))
	q.rec.RecordEviction()

	q.logger.Warn().
		Str("token_id", dropped.TokenID).
		Str("timestamp", dropped.Timestamp).
		Int("capacity", q.capacity).
		Msg("Queue at capacity, evicted oldest scan")

	return nil
}

func (q *Queue) appendLineLocked(line []byte) error {
	f, err := os.OpenFile(q.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open queue file: %w", err)
	}

	if _, err := f.Write(append(line, '\n')); err != nil {
		_ = f.Close()

		return fmt.Errorf("failed to append queue entry: %w", err)
	}

	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close queue file: %w", err)
	}

	return nil
}

// readEntriesLocked parses the file head-first, returning up to limit
// valid entries (limit <= 0 reads all) and the number of corrupt lines
// encountered before stopping.
func (q *Queue) readEntriesLocked(limit int) ([]models.ScanRequest, int, error) {
	f, err := os.Open(q.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, 0, nil
	}

	if err != nil {
		return nil, 0, fmt.Errorf("failed to open queue file: %w", err)
	}
	defer f.Close()

	var (
		entries []models.ScanRequest
		skipped int
	)

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}

		var entry models.ScanRequest
		if err := json.Unmarshal(raw, &entry); err != nil {
			skipped++

			continue
		}

		entries = append(entries, entry)

		if limit > 0 && len(entries) >= limit {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, skipped, fmt.Errorf("failed to read queue file: %w", err)
	}

	return entries, skipped, nil
}

// writeEntriesLocked replaces the queue file with the given entries via
// temp file and atomic rename.
func (q *Queue) writeEntriesLocked(entries []models.ScanRequest) error {
	f, err := os.OpenFile(q.tmpPath, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("failed to open queue temp file: %w", err)
	}

	w := bufio.NewWriter(f)

	for _, entry := range entries {
		line, err := json.Marshal(entry)
		if err != nil {
			_ = f.Close()
			_ = os.Remove(q.tmpPath)

			return fmt.Errorf("failed to encode queue entry: %w", err)
		}

		line = append(line, '\n')
		if _, err := w.Write(line); err != nil {
			_ = f.Close()
			_ = os.Remove(q.tmpPath)

			return fmt.Errorf("failed to write queue temp file: %w", err)
		}
	}

	if err := w.Flush(); err != nil {
		_ = f.Close()
		_ = os.Remove(q.tmpPath)

		return fmt.Errorf("failed to flush queue temp file: %w", err)
	}

	if err := f.Sync(); err != nil {
		_ = f.Close()
		_ = os.Remove(q.tmpPath)

		return fmt.Errorf("failed to sync queue temp file: %w", err)
	}

	if err := f.Close(); err != nil {
		_ = os.Remove(q.tmpPath)

		return fmt.Errorf("failed to close queue temp file: %w", err)
	}

	if err := os.Rename(q.tmpPath, q.path); err != nil {
		_ = os.Remove(q.tmpPath)

		return fmt.Errorf("failed to replace queue file: %w", err)
	}

	return nil
}
