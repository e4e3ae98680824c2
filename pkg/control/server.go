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

// Package control serves the terminal's local HTTP API: status for
// operators and fleet tooling, queue inspection, token-cache
// inspection, an on-demand sync trigger and a simulated scan endpoint
// for bench testing without reader hardware.
package control

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/mux"

	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/orchestrator"
	"github.com/fieldline/tapsync/pkg/scanner"
	"github.com/fieldline/tapsync/pkg/version"
)

const (
	defaultReadTimeout  = 10 * time.Second
	defaultWriteTimeout = 10 * time.Second
	defaultIdleTimeout  = 60 * time.Second

	defaultQueuePageSize = 10
)

// StateSource reports the connection state.
type StateSource interface {
	GetState() models.ConnectionState
}

// QueueReader exposes the durable queue to the inspection endpoints.
type QueueReader interface {
	PeekBatch(ctx context.Context, n int) ([]models.ScanRequest, error)
	Count() int
	Capacity() int
}

// StatsSource snapshots the daemon counters.
type StatsSource interface {
	Snapshot() models.SyncStats
}

// BreakerSource reports the orchestrator client's circuit state.
type BreakerSource interface {
	BreakerStatus() orchestrator.BreakerStatus
}

// TokenSource exposes the cached token set.
type TokenSource interface {
	Snapshot() map[string]models.TokenMetadata
	Count() int
	LastSyncAt() time.Time
}

// Kicker schedules an immediate drain cycle.
type Kicker interface {
	SyncNow()
}

// ScanSink accepts simulated scans.
type ScanSink interface {
	Submit(ev models.ScanEvent) error
	DeviceID() string
}

// HostGauges reads memory and disk pressure for the status surface.
type HostGauges interface {
	Read(ctx context.Context) (*HostStatus, error)
}

// Server is the control API. It implements lifecycle.Service.
type Server struct {
	listenAddr string
	apiKey     string
	router     *mux.Router
	handler    http.Handler
	logger     logger.Logger
	startedAt  time.Time

	state   StateSource
	queue   QueueReader
	stats   StatsSource
	breaker BreakerSource
	tokens  TokenSource
	syncer  Kicker
	scanner ScanSink
	host    HostGauges

	mu  sync.Mutex
	srv *http.Server
}

// Option wires one collaborator into the server. Endpoints whose
// collaborator is absent answer 503 instead of panicking, so a
// partially assembled daemon still serves what it can.
type Option func(*Server)

func WithState(s StateSource) Option { return func(srv *Server) { srv.state = s } }

func WithQueue(q QueueReader) Option { return func(srv *Server) { srv.queue = q } }

func WithStats(s StatsSource) Option { return func(srv *Server) { srv.stats = s } }

func WithBreaker(b BreakerSource) Option { return func(srv *Server) { srv.breaker = b } }

func WithTokens(t TokenSource) Option { return func(srv *Server) { srv.tokens = t } }

func WithSyncer(k Kicker) Option { return func(srv *Server) { srv.syncer = k } }

func WithScanner(sink ScanSink) Option { return func(srv *Server) { srv.scanner = sink } }

func WithHostGauges(h HostGauges) Option { return func(srv *Server) { srv.host = h } }

// NewServer creates the control API server.
func NewServer(listenAddr, apiKey string, log logger.Logger, opts ...Option) *Server {
	s := &Server{
		listenAddr: listenAddr,
		apiKey:     apiKey,
		router:     mux.NewRouter(),
		logger:     log,
		startedAt:  time.Now(),
	}

	for _, o := range opts {
		o(s)
	}

	s.setupRoutes()

	// CORS wraps the router itself so preflight is answered before
	// route matching and the key check; a bench UI served from another
	// origin preflights every POST.
	s.handler = corsMiddleware(s.router)

	return s
}

func (s *Server) setupRoutes() {
	s.router.Use(s.loggingMiddleware)

	s.router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	api := s.router.PathPrefix("/api/v1").Subrouter()
	api.Use(apiKeyMiddleware(s.apiKey))
	api.HandleFunc("/status", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/queue", s.handleQueue).Methods(http.MethodGet)
	api.HandleFunc("/tokens", s.handleTokens).Methods(http.MethodGet)
	api.HandleFunc("/sync", s.handleSync).Methods(http.MethodPost)
	api.HandleFunc("/scan", s.handleScan).Methods(http.MethodPost)
}

// Start serves the API until Stop shuts it down.
func (s *Server) Start(_ context.Context) error {
	srv := &http.Server{
		Addr:         s.listenAddr,
		Handler:      s.handler,
		ReadTimeout:  defaultReadTimeout,
		WriteTimeout: defaultWriteTimeout,
		IdleTimeout:  defaultIdleTimeout,
	}

	s.mu.Lock()
	s.srv = srv
	s.mu.Unlock()

	s.logger.Info().Str("addr", s.listenAddr).Msg("Starting control API")

	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}

	return nil
}

// Stop drains in-flight requests and closes the listener.
func (s *Server) Stop(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.mu.Unlock()

	if srv == nil {
		return nil
	}

	return srv.Shutdown(ctx)
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()

		next.ServeHTTP(w, r)

		s.logger.Debug().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("remote", r.RemoteAddr).
			Dur("duration", time.Since(start)).
			Msg("Control API request")
	})
}

// corsMiddleware sets permissive CORS headers and answers OPTIONS
// preflight directly. It sits outside the router so preflight never
// reaches the key check, which would reject it.
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-API-Key")
		w.Header().Set("Access-Control-Max-Age", "3600")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}

		next.ServeHTTP(w, r)
	})
}

// apiKeyMiddleware accepts the key via the X-API-Key header or the
// api_key query parameter. An empty configured key disables the check
// for bench setups.
func apiKeyMiddleware(apiKey string) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if apiKey == "" {
				next.ServeHTTP(w, r)
				return
			}

			requestKey := r.Header.Get("X-API-Key")
			if requestKey == "" {
				requestKey = r.URL.Query().Get("api_key")
			}

			if requestKey != apiKey {
				writeError(w, "unauthorized", http.StatusUnauthorized)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// QueueStatus summarizes the durable queue.
type QueueStatus struct {
	Count    int `json:"count"`
	Capacity int `json:"capacity"`
}

// TokenStatus summarizes the token cache.
type TokenStatus struct {
	Count      int       `json:"count"`
	LastSyncAt time.Time `json:"last_sync_at"`
}

// HostStatus carries memory and disk pressure gauges.
type HostStatus struct {
	MemoryUsedPct float64 `json:"memory_used_pct"`
	DiskUsedPct   float64 `json:"disk_used_pct"`
	DiskFreeBytes uint64  `json:"disk_free_bytes"`
}

// StatusResponse is the GET /api/v1/status payload.
type StatusResponse struct {
	Status          string                      `json:"status"`
	Version         string                      `json:"version"`
	DeviceID        string                      `json:"device_id,omitempty"`
	ConnectionState string                      `json:"connection_state"`
	UptimeSeconds   int64                       `json:"uptime_seconds"`
	Queue           *QueueStatus                `json:"queue,omitempty"`
	Breaker         *orchestrator.BreakerStatus `json:"breaker,omitempty"`
	Stats           *models.SyncStats           `json:"stats,omitempty"`
	Tokens          *TokenStatus                `json:"tokens,omitempty"`
	Host            *HostStatus                 `json:"host,omitempty"`
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := StatusResponse{
		Status:          "ok",
		Version:         version.Number(),
		ConnectionState: "unknown",
		UptimeSeconds:   int64(time.Since(s.startedAt).Seconds()),
	}

	if s.state != nil {
		resp.ConnectionState = s.state.GetState().String()
	}

	if s.scanner != nil {
		resp.DeviceID = s.scanner.DeviceID()
	}

	if s.queue != nil {
		resp.Queue = &QueueStatus{Count: s.queue.Count(), Capacity: s.queue.Capacity()}
	}

	if s.breaker != nil {
		status := s.breaker.BreakerStatus()
		resp.Breaker = &status
	}

	if s.stats != nil {
		snap := s.stats.Snapshot()
		resp.Stats = &snap
	}

	if s.tokens != nil {
		resp.Tokens = &TokenStatus{Count: s.tokens.Count(), LastSyncAt: s.tokens.LastSyncAt()}
	}

	if s.host != nil {
		gauges, err := s.host.Read(r.Context())
		if err != nil {
			s.logger.Debug().Err(err).Msg("Host gauges unavailable")
		} else {
			resp.Host = gauges
		}
	}

	s.writeJSON(w, http.StatusOK, resp)
}

// QueueResponse is the GET /api/v1/queue payload.
type QueueResponse struct {
	Count    int                  `json:"count"`
	Capacity int                  `json:"capacity"`
	Entries  []models.ScanRequest `json:"entries"`
}

func (s *Server) handleQueue(w http.ResponseWriter, r *http.Request) {
	if s.queue == nil {
		writeError(w, "queue not available", http.StatusServiceUnavailable)
		return
	}

	limit := defaultQueuePageSize

	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			writeError(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}

		limit = n
	}

	entries, err := s.queue.PeekBatch(r.Context(), limit)
	if err != nil {
		writeError(w, "queue read failed", http.StatusServiceUnavailable)
		return
	}

	if entries == nil {
		entries = []models.ScanRequest{}
	}

	s.writeJSON(w, http.StatusOK, QueueResponse{
		Count:    s.queue.Count(),
		Capacity: s.queue.Capacity(),
		Entries:  entries,
	})
}

// TokensResponse is the GET /api/v1/tokens payload.
type TokensResponse struct {
	Count      int                             `json:"count"`
	LastSyncAt time.Time                       `json:"last_sync_at"`
	Tokens     map[string]models.TokenMetadata `json:"tokens"`
}

func (s *Server) handleTokens(w http.ResponseWriter, _ *http.Request) {
	if s.tokens == nil {
		writeError(w, "token cache disabled", http.StatusServiceUnavailable)
		return
	}

	s.writeJSON(w, http.StatusOK, TokensResponse{
		Count:      s.tokens.Count(),
		LastSyncAt: s.tokens.LastSyncAt(),
		Tokens:     s.tokens.Snapshot(),
	})
}

func (s *Server) handleSync(w http.ResponseWriter, _ *http.Request) {
	if s.syncer == nil {
		writeError(w, "sync task not available", http.StatusServiceUnavailable)
		return
	}

	s.syncer.SyncNow()

	s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "sync scheduled"})
}

func (s *Server) handleScan(w http.ResponseWriter, r *http.Request) {
	if s.scanner == nil {
		writeError(w, "scan handler not available", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		TokenID string `json:"tokenId"`
	}

	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body", http.StatusBadRequest)
		return
	}

	err := s.scanner.Submit(models.ScanEvent{TokenID: req.TokenID, ReadAt: time.Now()})

	switch {
	case errors.Is(err, scanner.ErrRateLimited):
		writeError(w, "scan rate limit exceeded", http.StatusTooManyRequests)
	case errors.Is(err, scanner.ErrBufferFull):
		writeError(w, "scan handler backed up", http.StatusServiceUnavailable)
	case errors.Is(err, models.ErrInvalidTokenID):
		writeError(w, err.Error(), http.StatusBadRequest)
	case err != nil:
		writeError(w, err.Error(), http.StatusInternalServerError)
	default:
		s.writeJSON(w, http.StatusAccepted, map[string]string{"status": "accepted"})
	}
}

func (s *Server) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

type errorResponse struct {
	Message string `json:"message"`
	Status  int    `json:"status"`
}

func writeError(w http.ResponseWriter, message string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	if err := json.NewEncoder(w).Encode(errorResponse{Message: message, Status: statusCode}); err != nil {
		http.Error(w, "failed to encode error response", http.StatusInternalServerError)
	}
}
