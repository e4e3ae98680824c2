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

package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/orchestrator"
	"github.com/fieldline/tapsync/pkg/scanner"
)

type fakeState struct {
	state models.ConnectionState
}

func (f *fakeState) GetState() models.ConnectionState { return f.state }

type fakeQueue struct {
	entries []models.ScanRequest
	err     error
}

func (f *fakeQueue) PeekBatch(_ context.Context, n int) ([]models.ScanRequest, error) {
	if f.err != nil {
		return nil, f.err
	}

	if n > len(f.entries) {
		n = len(f.entries)
	}

	return f.entries[:n], nil
}

func (f *fakeQueue) Count() int    { return len(f.entries) }
func (f *fakeQueue) Capacity() int { return 100 }

type fakeStats struct {
	snap models.SyncStats
}

func (f *fakeStats) Snapshot() models.SyncStats { return f.snap }

type fakeBreaker struct {
	status orchestrator.BreakerStatus
}

func (f *fakeBreaker) BreakerStatus() orchestrator.BreakerStatus { return f.status }

type fakeTokens struct {
	tokens map[string]models.TokenMetadata
	at     time.Time
}

func (f *fakeTokens) Snapshot() map[string]models.TokenMetadata { return f.tokens }
func (f *fakeTokens) Count() int                                { return len(f.tokens) }
func (f *fakeTokens) LastSyncAt() time.Time                     { return f.at }

type fakeKicker struct {
	kicks int
}

func (f *fakeKicker) SyncNow() { f.kicks++ }

type fakeSink struct {
	events []models.ScanEvent
	err    error
}

func (f *fakeSink) Submit(ev models.ScanEvent) error {
	if f.err != nil {
		return f.err
	}

	f.events = append(f.events, ev)

	return nil
}

func (f *fakeSink) DeviceID() string { return "SCANNER_AABBCCDDEEFF" }

func serve(s *Server, r *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	s.handler.ServeHTTP(w, r)

	return w
}

func authedGet(path string) *http.Request {
	r := httptest.NewRequest(http.MethodGet, path, nil)
	r.Header.Set("X-API-Key", "sekrit")

	return r
}

func authedPost(path, body string) *http.Request {
	r := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	r.Header.Set("X-API-Key", "sekrit")

	return r
}

func fullServer() (*Server, *fakeKicker, *fakeSink) {
	kicker := &fakeKicker{}
	sink := &fakeSink{}

	s := NewServer("127.0.0.1:0", "sekrit", logger.NewTestLogger(),
		WithState(&fakeState{state: models.StateReachable}),
		WithQueue(&fakeQueue{entries: []models.ScanRequest{
			{TokenID: "token_000", DeviceID: "SCANNER_AABBCCDDEEFF", Timestamp: "2025-10-19T14:30:00.000Z"},
			{TokenID: "token_001", DeviceID: "SCANNER_AABBCCDDEEFF", Timestamp: "2025-10-19T14:30:01.000Z"},
			{TokenID: "token_002", DeviceID: "SCANNER_AABBCCDDEEFF", Timestamp: "2025-10-19T14:30:02.000Z"},
		}}),
		WithStats(&fakeStats{snap: models.SyncStats{ScansDelivered: 7, ScansQueued: 3}}),
		WithBreaker(&fakeBreaker{status: orchestrator.BreakerStatus{Name: "orchestrator", State: "closed"}}),
		WithTokens(&fakeTokens{tokens: map[string]models.TokenMetadata{"kaa001": {Image: "kaa001.jpg"}}}),
		WithSyncer(kicker),
		WithScanner(sink),
	)

	return s, kicker, sink
}

func TestHealthNeedsNoKey(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	w := serve(s, httptest.NewRequest(http.MethodGet, "/health", nil))

	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status": "ok"}`, w.Body.String())
}

func TestAPIKeyIsEnforced(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	bad := httptest.NewRequest(http.MethodGet, "/api/v1/status", nil)
	bad.Header.Set("X-API-Key", "wrong")
	assert.Equal(t, http.StatusUnauthorized, serve(s, bad).Code)

	assert.Equal(t, http.StatusOK, serve(s, authedGet("/api/v1/status")).Code)

	viaQuery := httptest.NewRequest(http.MethodGet, "/api/v1/status?api_key=sekrit", nil)
	assert.Equal(t, http.StatusOK, serve(s, viaQuery).Code)
}

func TestEmptyKeyDisablesAuth(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", "", logger.NewTestLogger())

	w := serve(s, httptest.NewRequest(http.MethodGet, "/api/v1/status", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestPreflightBypassesAuth(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	// No API key on the preflight; browsers never send one.
	w := serve(s, httptest.NewRequest(http.MethodOptions, "/api/v1/scan", nil))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Contains(t, w.Header().Get("Access-Control-Allow-Headers"), "X-API-Key")
}

func TestResponsesCarryCORSHeaders(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	w := serve(s, authedGet("/api/v1/status"))

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}

func TestStatusReportsAllSections(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	w := serve(s, authedGet("/api/v1/status"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "ok", resp.Status)
	assert.Equal(t, "dev", resp.Version)
	assert.Equal(t, "reachable", resp.ConnectionState)
	assert.Equal(t, "SCANNER_AABBCCDDEEFF", resp.DeviceID)

	require.NotNil(t, resp.Queue)
	assert.Equal(t, 3, resp.Queue.Count)
	assert.Equal(t, 100, resp.Queue.Capacity)

	require.NotNil(t, resp.Breaker)
	assert.Equal(t, "closed", resp.Breaker.State)

	require.NotNil(t, resp.Stats)
	assert.Equal(t, uint64(7), resp.Stats.ScansDelivered)

	require.NotNil(t, resp.Tokens)
	assert.Equal(t, 1, resp.Tokens.Count)
}

func TestStatusDegradesWithoutCollaborators(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", "sekrit", logger.NewTestLogger())

	w := serve(s, authedGet("/api/v1/status"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, "unknown", resp.ConnectionState)
	assert.Nil(t, resp.Queue)
	assert.Nil(t, resp.Breaker)
	assert.Nil(t, resp.Tokens)
}

func TestQueueEndpointHonorsLimit(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	w := serve(s, authedGet("/api/v1/queue?limit=2"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp QueueResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 3, resp.Count)
	require.Len(t, resp.Entries, 2)
	assert.Equal(t, "token_000", resp.Entries[0].TokenID)
}

func TestQueueEndpointRejectsBadLimit(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	assert.Equal(t, http.StatusBadRequest, serve(s, authedGet("/api/v1/queue?limit=banana")).Code)
	assert.Equal(t, http.StatusBadRequest, serve(s, authedGet("/api/v1/queue?limit=-1")).Code)
}

func TestQueueEndpointWithoutQueue(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", "sekrit", logger.NewTestLogger())

	assert.Equal(t, http.StatusServiceUnavailable, serve(s, authedGet("/api/v1/queue")).Code)
}

func TestTokensEndpoint(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	w := serve(s, authedGet("/api/v1/tokens"))
	require.Equal(t, http.StatusOK, w.Code)

	var resp TokensResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	assert.Equal(t, 1, resp.Count)
	assert.Contains(t, resp.Tokens, "kaa001")
}

func TestTokensEndpointWhenDisabled(t *testing.T) {
	t.Parallel()

	s := NewServer("127.0.0.1:0", "sekrit", logger.NewTestLogger())

	assert.Equal(t, http.StatusServiceUnavailable, serve(s, authedGet("/api/v1/tokens")).Code)
}

func TestSyncEndpointSchedulesDrain(t *testing.T) {
	t.Parallel()

	s, kicker, _ := fullServer()

	w := serve(s, authedPost("/api/v1/sync", ""))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, 1, kicker.kicks)
}

func TestScanEndpointAcceptsSimulatedScan(t *testing.T) {
	t.Parallel()

	s, _, sink := fullServer()

	w := serve(s, authedPost("/api/v1/scan", `{"tokenId": "kaa001"}`))

	require.Equal(t, http.StatusAccepted, w.Code)
	require.Len(t, sink.events, 1)
	assert.Equal(t, "kaa001", sink.events[0].TokenID)
	assert.False(t, sink.events[0].ReadAt.IsZero())
}

func TestScanEndpointMapsSubmitErrors(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "rate limited", err: scanner.ErrRateLimited, want: http.StatusTooManyRequests},
		{name: "buffer full", err: scanner.ErrBufferFull, want: http.StatusServiceUnavailable},
		{name: "bad token", err: models.ErrInvalidTokenID, want: http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			sink := &fakeSink{err: tc.err}
			s := NewServer("127.0.0.1:0", "sekrit", logger.NewTestLogger(), WithScanner(sink))

			w := serve(s, authedPost("/api/v1/scan", `{"tokenId": "kaa001"}`))
			assert.Equal(t, tc.want, w.Code)
		})
	}
}

func TestScanEndpointRejectsBadBody(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	assert.Equal(t, http.StatusBadRequest, serve(s, authedPost("/api/v1/scan", "{not json")).Code)
}

func TestMethodsAreEnforced(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, authedPost("/api/v1/status", "")).Code)
	assert.Equal(t, http.StatusMethodNotAllowed, serve(s, authedGet("/api/v1/sync")).Code)
}

func TestStopBeforeStartIsClean(t *testing.T) {
	t.Parallel()

	s, _, _ := fullServer()

	require.NoError(t, s.Stop(context.Background()))
}
