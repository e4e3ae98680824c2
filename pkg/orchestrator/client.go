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

// Package orchestrator is the HTTP client for the remote coordination
// service. Scan submissions run behind a circuit breaker so a failing
// orchestrator degrades to queue-only mode without burning the scan
// path's timeout on every tap; health probes bypass the breaker so
// recovery is observed as soon as the service answers again.
package orchestrator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
)

const (
	scanPath   = "/api/scan"
	batchPath  = "/api/scan/batch"
	healthPath = "/health"
	tokensPath = "/api/tokens"
)

// batchRequest is the body of POST /api/scan/batch.
type batchRequest struct {
	Transactions []models.ScanRequest `json:"transactions"`
}

// Client talks to the orchestrator's HTTP API. Scan and batch
// submissions share one circuit breaker; CheckHealth and FetchTokens
// use the raw client.
type Client struct {
	baseURL      string
	deviceID     string
	scans        HTTPClient // breaker-wrapped
	probe        HTTPClient
	apiTimeout   time.Duration
	batchTimeout time.Duration
	breaker      *CircuitBreaker
	logger       logger.Logger
}

// NewClient builds a Client from validated config. httpClient may be
// nil, in which case http.DefaultClient semantics apply; per-call
// timeouts come from the config, not the transport.
func NewClient(cfg models.OrchestratorConfig, httpClient HTTPClient, log logger.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, errBaseURLRequired
	}

	if cfg.DeviceID == "" {
		return nil, errDeviceIDRequired
	}

	if httpClient == nil {
		httpClient = &http.Client{}
	}

	wrapped := NewCircuitBreakerHTTPClient(httpClient, "orchestrator", DefaultCircuitBreakerConfig(), log)

	apiTimeout := time.Duration(cfg.APITimeout)
	if apiTimeout <= 0 {
		apiTimeout = models.DefaultAPITimeout
	}

	batchTimeout := time.Duration(cfg.BatchTimeout)
	if batchTimeout <= 0 {
		batchTimeout = models.DefaultBatchTimeout
	}

	return &Client{
		baseURL:      cfg.BaseURL,
		deviceID:     cfg.DeviceID,
		scans:        wrapped,
		probe:        httpClient,
		apiTimeout:   apiTimeout,
		batchTimeout: batchTimeout,
		breaker:      wrapped.GetCircuitBreaker(),
		logger:       log,
	}, nil
}

// DeviceID returns the identity this client reports to the orchestrator.
func (c *Client) DeviceID() string {
	return c.deviceID
}

// BreakerStatus exposes the scan-path breaker for the status surface.
func (c *Client) BreakerStatus() BreakerStatus {
	return c.breaker.Status()
}

// SubmitScan posts a single scan and returns the orchestrator's HTTP
// status code. The error is non-nil only when no status was obtained:
// transport failure, timeout, 5xx, or an open breaker. The call never
// blocks past the configured API timeout.
func (c *Client) SubmitScan(ctx context.Context, scan models.ScanRequest) (int, error) {
	body, err := json.Marshal(scan)
	if err != nil {
		return 0, fmt.Errorf("failed to encode scan: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.apiTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+scanPath, bytes.NewReader(body))
	if err != nil {
		return 0, fmt.Errorf("failed to build scan request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.scans.Do(req)
	if err != nil {
		return 0, fmt.Errorf("scan submit failed: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	c.logger.Debug().
		Str("token_id", scan.TokenID).
		Int("status", resp.StatusCode).
		Msg("Scan submitted")

	return resp.StatusCode, nil
}

// SubmitBatch posts up to MaxBatchSize queued scans in one request.
// A nil return means the orchestrator acknowledged the whole batch;
// on any error the caller must leave the batch queued.
func (c *Client) SubmitBatch(ctx context.Context, scans []models.ScanRequest) error {
	if len(scans) == 0 {
		return nil
	}

	if len(scans) > models.MaxBatchSize {
		return fmt.Errorf("%w: %d entries", ErrBatchTooLarge, len(scans))
	}

	body, err := json.Marshal(batchRequest{Transactions: scans})
	if err != nil {
		return fmt.Errorf("failed to encode batch: %w", err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.batchTimeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+batchPath, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("failed to build batch request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.scans.Do(req)
	if err != nil {
		return fmt.Errorf("batch submit failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return fmt.Errorf("%w: %d, response: %s", errUnexpectedStatusCode, resp.StatusCode, string(bodyBytes))
	}

	_, _ = io.Copy(io.Discard, resp.Body)

	return nil
}

// CheckHealth probes GET /health?deviceId=... and returns nil when the
// orchestrator answers 200. It bypasses the breaker so the monitor can
// observe recovery while scan submissions are still short-circuited.
// The caller bounds the probe via ctx.
func (c *Client) CheckHealth(ctx context.Context) error {
	probeURL := fmt.Sprintf("%s%s?deviceId=%s", c.baseURL, healthPath, url.QueryEscape(c.deviceID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, probeURL, http.NoBody)
	if err != nil {
		return fmt.Errorf("failed to build health request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.probe.Do(req)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: %d", errUnexpectedStatusCode, resp.StatusCode)
	}

	return nil
}

// FetchTokens downloads the raw token database, reading at most
// maxBytes+1 so the caller can reject an oversize payload without the
// client buffering it all.
func (c *Client) FetchTokens(ctx context.Context, maxBytes int64) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+tokensPath, http.NoBody)
	if err != nil {
		return nil, fmt.Errorf("failed to build tokens request: %w", err)
	}

	req.Header.Set("Accept", "application/json")

	resp, err := c.probe.Do(req)
	if err != nil {
		return nil, fmt.Errorf("tokens fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		bodyBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("%w: %d, response: %s", errUnexpectedStatusCode, resp.StatusCode, string(bodyBytes))
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read tokens response: %w", err)
	}

	return raw, nil
}
