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

package syncer

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/tapsync/pkg/delivery"
	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/monitor"
	"github.com/fieldline/tapsync/pkg/orchestrator"
	"github.com/fieldline/tapsync/pkg/queue"
	"github.com/fieldline/tapsync/pkg/stats"
	"github.com/fieldline/tapsync/pkg/storage"
)

var errOrchestratorDown = errors.New("orchestrator unavailable")

type fakeState struct {
	up atomic.Bool
}

func (f *fakeState) Reachable() bool { return f.up.Load() }

// GetState lets the same fake stand in for the monitor on the delivery
// side in the end-to-end test.
func (f *fakeState) GetState() models.ConnectionState {
	if f.up.Load() {
		return models.StateReachable
	}

	return models.StateDisconnected
}

type fakeQueue struct {
	mu        sync.Mutex
	entries   []models.ScanRequest
	commitErr error
}

func (f *fakeQueue) PeekBatch(_ context.Context, n int) ([]models.ScanRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if n > len(f.entries) {
		n = len(f.entries)
	}

	return append([]models.ScanRequest(nil), f.entries[:n]...), nil
}

func (f *fakeQueue) Commit(_ context.Context, n int) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.commitErr != nil {
		return f.commitErr
	}

	f.entries = f.entries[n:]

	return nil
}

func (f *fakeQueue) Count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.entries)
}

type fakeSubmitter struct {
	mu      sync.Mutex
	batches [][]models.ScanRequest
	err     error
}

func (f *fakeSubmitter) SubmitBatch(_ context.Context, scans []models.ScanRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.err != nil {
		return f.err
	}

	f.batches = append(f.batches, append([]models.ScanRequest(nil), scans...))

	return nil
}

func (f *fakeSubmitter) setErr(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

func (f *fakeSubmitter) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()

	return len(f.batches)
}

func (f *fakeSubmitter) sizes() []int {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]int, 0, len(f.batches))
	for _, b := range f.batches {
		out = append(out, len(b))
	}

	return out
}

func (f *fakeSubmitter) all() [][]models.ScanRequest {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([][]models.ScanRequest, len(f.batches))
	copy(out, f.batches)

	return out
}

// fakeClock hands every ticker a view over one shared channel so a
// test tick reaches whichever select the loop is blocked in, the poll
// ticker and the drain-spacing pause alike.
type fakeClock struct {
	ch chan time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{ch: make(chan time.Time)}
}

func (f *fakeClock) Now() time.Time { return time.Now() }

func (f *fakeClock) Ticker(_ time.Duration) monitor.Ticker {
	return &fakeTicker{ch: f.ch}
}

// tick blocks until the loop consumes it.
func (f *fakeClock) tick() { f.ch <- time.Now() }

type fakeTicker struct {
	ch chan time.Time
}

func (f *fakeTicker) Chan() <-chan time.Time { return f.ch }
func (f *fakeTicker) Stop()                  {}

func makeScans(n int) []models.ScanRequest {
	base := time.Date(2025, 10, 19, 14, 30, 0, 0, time.UTC)

	scans := make([]models.ScanRequest, n)
	for i := range scans {
		scans[i] = models.ScanRequest{
			TokenID:   fmt.Sprintf("token_%03d", i),
			TeamID:    "001",
			DeviceID:  "SCANNER_AABBCCDDEEFF",
			Timestamp: models.FormatScanTime(base.Add(time.Duration(i) * time.Second)),
		}
	}

	return scans
}

func newTestSyncer(t *testing.T, state *fakeState, q BatchSource, sub BatchSubmitter, clock monitor.Clock) (*Syncer, *stats.TerminalRecorder) {
	t.Helper()

	log := logger.NewTestLogger()
	rec := stats.NewRecorder(log)

	s, err := New(models.SyncConfig{BatchSize: models.MaxBatchSize}, state, q, sub, rec, clock, log)
	require.NoError(t, err)

	return s, rec
}

func startSyncer(t *testing.T, s *Syncer) {
	t.Helper()

	errCh := make(chan error, 1)

	go func() {
		errCh <- s.Start(context.Background())
	}()

	t.Cleanup(func() {
		require.NoError(t, s.Stop(context.Background()))
		require.NoError(t, <-errCh)
	})
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()

	require.Eventually(t, cond, time.Second, 2*time.Millisecond, msg)
}

func TestNewRequiresCollaborators(t *testing.T) {
	t.Parallel()

	log := logger.NewTestLogger()

	_, err := New(models.SyncConfig{}, nil, &fakeQueue{}, &fakeSubmitter{}, nil, nil, log)
	assert.ErrorIs(t, err, errSyncerCollaborators)

	_, err = New(models.SyncConfig{}, &fakeState{}, nil, &fakeSubmitter{}, nil, nil, log)
	assert.ErrorIs(t, err, errSyncerCollaborators)

	_, err = New(models.SyncConfig{}, &fakeState{}, &fakeQueue{}, nil, nil, nil, log)
	assert.ErrorIs(t, err, errSyncerCollaborators)
}

func TestCycleSkipsWhileUnreachable(t *testing.T) {
	t.Parallel()

	state := &fakeState{}
	q := &fakeQueue{entries: makeScans(5)}
	sub := &fakeSubmitter{}
	clock := newFakeClock()

	s, _ := newTestSyncer(t, state, q, sub, clock)
	startSyncer(t, s)

	clock.tick()
	time.Sleep(20 * time.Millisecond)

	assert.Zero(t, sub.count(), "no upload attempt below Reachable")
	assert.Equal(t, 5, q.Count())
}

func TestSyncNowDrainsWithoutWaitingForPoll(t *testing.T) {
	t.Parallel()

	state := &fakeState{}
	q := &fakeQueue{entries: makeScans(3)}
	sub := &fakeSubmitter{}

	s, rec := newTestSyncer(t, state, q, sub, newFakeClock())
	startSyncer(t, s)

	// The boot cycle saw an unreachable orchestrator and went idle.
	state.up.Store(true)
	s.SyncNow()

	waitFor(t, func() bool { return q.Count() == 0 }, "queue should drain on demand")

	require.Equal(t, 1, sub.count())
	assert.Equal(t, []int{3}, sub.sizes())

	snap := rec.Snapshot()
	assert.Equal(t, uint64(1), snap.BatchesSent)
	assert.Equal(t, uint64(3), snap.EntriesCommitted)
}

func TestDeepBacklogDrainsInSpacedBatches(t *testing.T) {
	t.Parallel()

	state := &fakeState{}
	state.up.Store(true)

	scans := makeScans(23)
	q := &fakeQueue{entries: scans}
	sub := &fakeSubmitter{}
	clock := newFakeClock()

	s, rec := newTestSyncer(t, state, q, sub, clock)
	startSyncer(t, s)

	// Boot cycle uploads the first full batch, then parks in the
	// drain-spacing pause.
	waitFor(t, func() bool { return q.Count() == 13 }, "first batch should commit")

	clock.tick()
	waitFor(t, func() bool { return q.Count() == 3 }, "second batch should commit")

	clock.tick()
	waitFor(t, func() bool { return q.Count() == 0 }, "remainder should commit")

	require.Equal(t, []int{10, 10, 3}, sub.sizes())

	// Entries crossed in queue order, oldest first.
	var got []string

	for _, batch := range sub.all() {
		for _, scan := range batch {
			got = append(got, scan.TokenID)
		}
	}

	want := make([]string, len(scans))
	for i, scan := range scans {
		want[i] = scan.TokenID
	}

	assert.Equal(t, want, got)
	assert.Equal(t, uint64(23), rec.Snapshot().EntriesCommitted)
}

func TestFailedBatchLeavesQueueUntouched(t *testing.T) {
	t.Parallel()

	state := &fakeState{}
	state.up.Store(true)

	q := &fakeQueue{entries: makeScans(4)}
	sub := &fakeSubmitter{}
	sub.setErr(errOrchestratorDown)
	clock := newFakeClock()

	s, rec := newTestSyncer(t, state, q, sub, clock)
	startSyncer(t, s)

	waitFor(t, func() bool { return rec.Snapshot().BatchesFailed == 1 }, "boot cycle should record the failure")
	assert.Equal(t, 4, q.Count(), "failed batch stays queued")

	// The next cycle retries the same prefix.
	sub.setErr(nil)
	clock.tick()

	waitFor(t, func() bool { return q.Count() == 0 }, "retry should drain")
	assert.Equal(t, []int{4}, sub.sizes())
	assert.Equal(t, "token_000", sub.all()[0][0].TokenID)
}

func TestCommitFailureStopsTheCycle(t *testing.T) {
	t.Parallel()

	state := &fakeState{}
	state.up.Store(true)

	q := &fakeQueue{entries: makeScans(15), commitErr: errors.New("lock timeout")}
	sub := &fakeSubmitter{}

	s, rec := newTestSyncer(t, state, q, sub, newFakeClock())
	startSyncer(t, s)

	waitFor(t, func() bool { return sub.count() == 1 }, "first batch should upload")
	time.Sleep(20 * time.Millisecond)

	assert.Equal(t, 1, sub.count(), "cycle must not advance past a failed commit")
	assert.Equal(t, 15, q.Count())
	assert.Zero(t, rec.Snapshot().BatchesSent)
}

func TestStopIsIdempotent(t *testing.T) {
	t.Parallel()

	s, _ := newTestSyncer(t, &fakeState{}, &fakeQueue{}, &fakeSubmitter{}, newFakeClock())
	startSyncer(t, s)

	require.NoError(t, s.Stop(context.Background()))
	require.NoError(t, s.Stop(context.Background()))
}

// TestDrainAgainstOrchestrator runs the real queue and the real HTTP
// client under the syncer: scans accumulated on disk while offline
// cross the wire in order once the orchestrator is reachable.
func TestDrainAgainstOrchestrator(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		batches [][]string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/api/scan/batch", r.URL.Path)

		var payload struct {
			Transactions []models.ScanRequest `json:"transactions"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		require.LessOrEqual(t, len(payload.Transactions), models.MaxBatchSize)

		ids := make([]string, 0, len(payload.Transactions))
		for _, scan := range payload.Transactions {
			ids = append(ids, scan.TokenID)
		}

		mu.Lock()
		batches = append(batches, ids)
		mu.Unlock()

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	log := logger.NewTestLogger()
	rec := stats.NewRecorder(log)

	dev, err := storage.NewDevice(t.TempDir(), log)
	require.NoError(t, err)

	q, err := queue.New(context.Background(), dev, models.QueueConfig{
		Capacity:              100,
		LockTimeout:           models.Duration(250 * time.Millisecond),
		BackgroundLockTimeout: models.Duration(500 * time.Millisecond),
		MaxFileBytes:          100_000,
	}, rec, log)
	require.NoError(t, err)

	for _, scan := range makeScans(12) {
		require.NoError(t, q.Append(context.Background(), scan))
	}

	client, err := orchestrator.NewClient(models.OrchestratorConfig{
		BaseURL:      server.URL,
		DeviceID:     "SCANNER_AABBCCDDEEFF",
		APITimeout:   models.Duration(2 * time.Second),
		BatchTimeout: models.Duration(2 * time.Second),
	}, nil, log)
	require.NoError(t, err)

	state := &fakeState{}
	state.up.Store(true)
	clock := newFakeClock()

	s, err := New(models.SyncConfig{BatchSize: models.MaxBatchSize}, state, q, client, rec, clock, log)
	require.NoError(t, err)

	startSyncer(t, s)

	waitFor(t, func() bool { return q.Count() == 2 }, "first wire batch should commit")

	clock.tick()
	waitFor(t, func() bool { return q.Count() == 0 }, "second wire batch should commit")

	mu.Lock()
	defer mu.Unlock()

	require.Len(t, batches, 2)
	assert.Len(t, batches[0], 10)
	assert.Equal(t, "token_000", batches[0][0])
	assert.Equal(t, "token_009", batches[0][9])
	assert.Equal(t, []string{"token_010", "token_011"}, batches[1])
}

// TestOfflineBurstThenRecovery walks the terminal's defining day: taps
// arrive while the uplink is down, connectivity returns, the backlog
// drains, and the next tap goes straight through.
func TestOfflineBurstThenRecovery(t *testing.T) {
	t.Parallel()

	var (
		mu      sync.Mutex
		singles []string
		batches [][]string
	)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		switch r.URL.Path {
		case "/api/scan":
			var scan models.ScanRequest
			require.NoError(t, json.NewDecoder(r.Body).Decode(&scan))

			mu.Lock()
			singles = append(singles, scan.TokenID)
			mu.Unlock()
		case "/api/scan/batch":
			var payload struct {
				Transactions []models.ScanRequest `json:"transactions"`
			}
			require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))

			ids := make([]string, 0, len(payload.Transactions))
			for _, scan := range payload.Transactions {
				ids = append(ids, scan.TokenID)
			}

			mu.Lock()
			batches = append(batches, ids)
			mu.Unlock()
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}

		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	log := logger.NewTestLogger()
	rec := stats.NewRecorder(log)

	dev, err := storage.NewDevice(t.TempDir(), log)
	require.NoError(t, err)

	q, err := queue.New(context.Background(), dev, models.QueueConfig{
		Capacity:              100,
		LockTimeout:           models.Duration(250 * time.Millisecond),
		BackgroundLockTimeout: models.Duration(500 * time.Millisecond),
		MaxFileBytes:          100_000,
	}, rec, log)
	require.NoError(t, err)

	client, err := orchestrator.NewClient(models.OrchestratorConfig{
		BaseURL:      server.URL,
		DeviceID:     "SCANNER_AABBCCDDEEFF",
		APITimeout:   models.Duration(2 * time.Second),
		BatchTimeout: models.Duration(2 * time.Second),
	}, nil, log)
	require.NoError(t, err)

	state := &fakeState{}
	dlv := delivery.New(state, client, q, rec, log)

	// Five taps land while the uplink is down; every one is queued and
	// none reaches the wire.
	scans := makeScans(6)
	for _, scan := range scans[:5] {
		assert.Equal(t, delivery.Queued, dlv.Deliver(context.Background(), scan))
	}

	require.Equal(t, 5, q.Count())

	mu.Lock()
	require.Empty(t, singles)
	require.Empty(t, batches)
	mu.Unlock()

	// Connectivity returns; the syncer's boot cycle drains the backlog
	// as one ordered batch.
	state.up.Store(true)

	s, err := New(models.SyncConfig{BatchSize: models.MaxBatchSize}, state, q, client, rec, newFakeClock(), log)
	require.NoError(t, err)

	startSyncer(t, s)

	waitFor(t, func() bool { return q.Count() == 0 }, "backlog should drain after recovery")

	mu.Lock()
	require.Len(t, batches, 1)
	assert.Equal(t, []string{"token_000", "token_001", "token_002", "token_003", "token_004"}, batches[0])
	mu.Unlock()

	// The next tap goes straight through, nothing re-queued.
	assert.Equal(t, delivery.Delivered, dlv.Deliver(context.Background(), scans[5]))
	assert.Equal(t, 0, q.Count())

	mu.Lock()
	assert.Equal(t, []string{"token_005"}, singles)
	mu.Unlock()

	snap := rec.Snapshot()
	assert.Equal(t, uint64(5), snap.ScansQueued)
	assert.Equal(t, uint64(1), snap.ScansDelivered)
	assert.Equal(t, uint64(1), snap.BatchesSent)
	assert.Equal(t, uint64(5), snap.EntriesCommitted)
}
