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

package orchestrator

import (
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/fieldline/tapsync/pkg/logger"
)

// CircuitBreakerState is the breaker's position: closed (passing),
// open (refusing), or half-open (probing).
type CircuitBreakerState int

const (
	StateClosed CircuitBreakerState = iota
	StateOpen
	StateHalfOpen
)

// String returns the state name used in logs and the status surface.
func (s CircuitBreakerState) String() string {
	switch s {
	case StateClosed:
		return "closed"
	case StateOpen:
		return "open"
	case StateHalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// CircuitBreakerConfig tunes when the breaker trips and recovers.
type CircuitBreakerConfig struct {
	// FailureThreshold is how many failures inside a reset window trip
	// the breaker.
	FailureThreshold int
	// SuccessThreshold is how many half-open successes close it again.
	SuccessThreshold int
	// Timeout is the open-state cool-off before the next probe call.
	Timeout time.Duration
	// ResetTimeout clears stale failure counts while closed.
	ResetTimeout time.Duration
}

// DefaultCircuitBreakerConfig matches the terminal's probe cadence: an
// open circuit re-tests on the same 30s rhythm the monitor uses for
// reconnect attempts, so the breaker never outlives a recovery the
// monitor has already observed.
func DefaultCircuitBreakerConfig() CircuitBreakerConfig {
	return CircuitBreakerConfig{
		FailureThreshold: 5,
		SuccessThreshold: 2,
		Timeout:          30 * time.Second,
		ResetTimeout:     60 * time.Second,
	}
}

// CircuitBreaker short-circuits scan submissions while the
// orchestrator is persistently failing, so the foreground scan path
// fails over to the queue immediately instead of burning its timeout
// on every tap. Health probes bypass it.
type CircuitBreaker struct {
	mu    sync.RWMutex
	state CircuitBreakerState

	failures    int
	successes   int
	lastFailure time.Time
	windowStart time.Time

	cfg  CircuitBreakerConfig
	log  logger.Logger
	name string
}

// NewCircuitBreaker creates a closed breaker with the given tuning.
func NewCircuitBreaker(name string, config CircuitBreakerConfig, log logger.Logger) *CircuitBreaker {
	return &CircuitBreaker{
		state:       StateClosed,
		windowStart: time.Now(),
		cfg:         config,
		log:         log,
		name:        name,
	}
}

// Execute runs fn through the breaker. While open it returns
// ErrBreakerOpen without invoking fn; otherwise fn's error feeds the
// trip accounting and is returned unchanged.
func (cb *CircuitBreaker) Execute(fn func() error) error {
	if err := cb.admit(); err != nil {
		return err
	}

	err := fn()

	cb.mu.Lock()
	defer cb.mu.Unlock()

	if err != nil {
		cb.noteFailure()
	} else {
		cb.noteSuccess()
	}

	return err
}

// admit decides whether a call may proceed, advancing an expired open
// state to half-open on the way.
func (cb *CircuitBreaker) admit() error {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	now := time.Now()

	switch cb.state {
	case StateOpen:
		if now.Sub(cb.lastFailure) < cb.cfg.Timeout {
			return fmt.Errorf("%w: %s", ErrBreakerOpen, cb.name)
		}

		// Cool-off elapsed; let this call probe the orchestrator.
		cb.state = StateHalfOpen
		cb.successes = 0
		cb.log.Info().
			Str("circuit_breaker", cb.name).
			Msg("Circuit breaker half-open, probing orchestrator")

	case StateClosed:
		// Old failures stop counting against the threshold once the
		// reset window has passed.
		if now.Sub(cb.windowStart) >= cb.cfg.ResetTimeout {
			cb.failures = 0
			cb.windowStart = now
		}

	case StateHalfOpen:
	}

	return nil
}

// noteFailure is called under cb.mu.
func (cb *CircuitBreaker) noteFailure() {
	cb.failures++
	cb.lastFailure = time.Now()

	switch cb.state {
	case StateClosed:
		if cb.failures >= cb.cfg.FailureThreshold {
			cb.state = StateOpen
			cb.log.Warn().
				Str("circuit_breaker", cb.name).
				Int("failure_count", cb.failures).
				Msg("Circuit breaker opened")
		}

	case StateHalfOpen:
		// The probe call failed; go straight back to open.
		cb.state = StateOpen
		cb.log.Warn().
			Str("circuit_breaker", cb.name).
			Msg("Circuit breaker reopened, probe failed")

	case StateOpen:
	}
}

// noteSuccess is called under cb.mu.
func (cb *CircuitBreaker) noteSuccess() {
	switch cb.state {
	case StateHalfOpen:
		cb.successes++
		if cb.successes >= cb.cfg.SuccessThreshold {
			cb.state = StateClosed
			cb.failures = 0
			cb.windowStart = time.Now()
			cb.log.Info().
				Str("circuit_breaker", cb.name).
				Msg("Circuit breaker closed, orchestrator recovered")
		}

	case StateClosed:
		cb.failures = 0
		cb.windowStart = time.Now()

	case StateOpen:
	}
}

// GetState returns the breaker's current position.
func (cb *CircuitBreaker) GetState() CircuitBreakerState {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return cb.state
}

// BreakerStatus is the breaker's externally visible state, surfaced by
// the control API.
type BreakerStatus struct {
	Name         string    `json:"name"`
	State        string    `json:"state"`
	FailureCount int       `json:"failure_count"`
	LastFailure  time.Time `json:"last_failure"`
}

// Status returns a snapshot for the status surface.
func (cb *CircuitBreaker) Status() BreakerStatus {
	cb.mu.RLock()
	defer cb.mu.RUnlock()

	return BreakerStatus{
		Name:         cb.name,
		State:        cb.state.String(),
		FailureCount: cb.failures,
		LastFailure:  cb.lastFailure,
	}
}

// CircuitBreakerHTTPClient wraps an HTTP client with circuit breaker
// functionality. 5xx responses and transport errors count as failures;
// client errors, including duplicate-scan conflicts, do not.
type CircuitBreakerHTTPClient struct {
	client  HTTPClient
	breaker *CircuitBreaker
}

// NewCircuitBreakerHTTPClient wraps client so every request feeds the
// breaker's accounting.
func NewCircuitBreakerHTTPClient(client HTTPClient, name string, config CircuitBreakerConfig, log logger.Logger) *CircuitBreakerHTTPClient {
	return &CircuitBreakerHTTPClient{
		client:  client,
		breaker: NewCircuitBreaker(name, config, log),
	}
}

// Do executes an HTTP request through the circuit breaker. A drained
// and closed 5xx body counts as a failure; the response is not handed
// back in that case.
func (c *CircuitBreakerHTTPClient) Do(req *http.Request) (*http.Response, error) {
	var resp *http.Response

	var err error

	execErr := c.breaker.Execute(func() error {
		resp, err = c.client.Do(req)
		if err != nil {
			return err
		}

		if resp.StatusCode >= http.StatusInternalServerError {
			_, _ = io.Copy(io.Discard, resp.Body)
			_ = resp.Body.Close()

			return fmt.Errorf("%w: %d", errUnexpectedStatusCode, resp.StatusCode)
		}

		return nil
	})

	if execErr != nil {
		return nil, execErr
	}

	return resp, err
}

// GetCircuitBreaker returns the underlying circuit breaker for the status surface.
func (c *CircuitBreakerHTTPClient) GetCircuitBreaker() *CircuitBreaker {
	return c.breaker
}
