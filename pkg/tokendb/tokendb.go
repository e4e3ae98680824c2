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

// Package tokendb caches the orchestrator's token-metadata set on the
// terminal. The cache makes token lookups work offline: a boot without
// connectivity serves the last synchronized set, and a failed resync
// never evicts it. Lookups are lock-free; a sync swaps the whole set
// atomically.
package tokendb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/fieldline/tapsync/pkg/logger"
	"github.com/fieldline/tapsync/pkg/models"
	"github.com/fieldline/tapsync/pkg/storage"
)

const (
	tokenFileName = "tokens.json"
	tokenTmpName  = "tokens.json.tmp"

	tokenLockWait = time.Second

	defaultSyncTries   = 6
	defaultSyncBackoff = 250 * time.Millisecond
)

var (
	errFetcherRequired    = errors.New("tokendb requires a fetcher")
	errTokenDBTooLarge    = errors.New("token database exceeds size limit")
	errTokenLimitExceeded = errors.New("token database exceeds entry limit")
)

// Fetcher pulls the raw token database from the orchestrator.
type Fetcher interface {
	FetchTokens(ctx context.Context, maxBytes int64) ([]byte, error)
}

// Store holds the cached token set. It implements lifecycle.Service;
// running it enables periodic resync when configured.
type Store struct {
	dev     *storage.Device
	fetcher Fetcher
	logger  logger.Logger

	path        string
	tmpPath     string
	maxTokens   int
	maxBytes    int64
	resyncEvery time.Duration

	// retry tuning, fixed except under test
	retryTries   uint
	retryBackoff time.Duration

	mu         sync.Mutex // one sync in flight at a time
	tokens     atomic.Pointer[map[string]models.TokenMetadata]
	lastSyncNs atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a Store and loads the cached set from the device, if one
// survives. A missing, corrupt or oversize cache file starts the store
// empty; it never fails the boot.
func New(ctx context.Context, dev *storage.Device, fetcher Fetcher, cfg models.TokensConfig, log logger.Logger) (*Store, error) {
	if fetcher == nil {
		return nil, errFetcherRequired
	}

	s := &Store{
		dev:          dev,
		fetcher:      fetcher,
		logger:       log,
		path:         dev.Path(tokenFileName),
		tmpPath:      dev.Path(tokenTmpName),
		maxTokens:    cfg.MaxTokens,
		maxBytes:     cfg.MaxFileBytes,
		resyncEvery:  time.Duration(cfg.ResyncInterval),
		retryTries:   defaultSyncTries,
		retryBackoff: defaultSyncBackoff,
		done:         make(chan struct{}),
	}

	if s.maxTokens <= 0 {
		s.maxTokens = 50
	}

	if s.maxBytes <= 0 {
		s.maxBytes = 50_000
	}

	s.loadCached(ctx)

	return s, nil
}

// Get looks up one token without blocking.
func (s *Store) Get(id string) (models.TokenMetadata, bool) {
	m := s.tokens.Load()
	if m == nil {
		return models.TokenMetadata{}, false
	}

	t, ok := (*m)[id]

	return t, ok
}

// Count returns the number of cached tokens.
func (s *Store) Count() int {
	m := s.tokens.Load()
	if m == nil {
		return 0
	}

	return len(*m)
}

// Snapshot returns a copy of the cached set for the status surface.
func (s *Store) Snapshot() map[string]models.TokenMetadata {
	m := s.tokens.Load()
	if m == nil {
		return map[string]models.TokenMetadata{}
	}

	out := make(map[string]models.TokenMetadata, len(*m))
	for id, t := range *m {
		out[id] = t
	}

	return out
}

// LastSyncAt returns the time of the last successful remote sync, or
// the zero time when only the boot cache has served so far.
func (s *Store) LastSyncAt() time.Time {
	ns := s.lastSyncNs.Load()
	if ns == 0 {
		return time.Time{}
	}

	return time.Unix(0, ns)
}

// Sync fetches the token set from the orchestrator, persists it to the
// device and swaps it in. Transient fetch failures are retried with
// exponential backoff; a sync that ultimately fails leaves the cached
// set untouched.
func (s *Store) Sync(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	raw, tokens, err := s.fetchWithRetry(ctx)
	if err != nil {
		return err
	}

	if err := s.persist(ctx, raw); err != nil {
		// The fresh set still serves lookups; only the cache write
		// failed, and the next sync retries it.
		s.logger.Warn().Err(err).Msg("Token cache write failed")
	}

	s.swap(tokens)
	s.lastSyncNs.Store(time.Now().UnixNano())

	s.logger.Info().Int("tokens", len(tokens)).Msg("Token database synchronized")

	return nil
}

// Start performs the initial sync and then resynchronizes on the
// configured cadence. With no cadence configured it parks after the
// initial attempt; Sync stays available on demand.
func (s *Store) Start(ctx context.Context) error {
	s.wg.Add(1)
	defer s.wg.Done()

	if err := s.Sync(ctx); err != nil {
		s.logger.Warn().
			Err(err).
			Int("cached", s.Count()).
			Msg("Initial token sync failed, serving cached set")
	}

	if s.resyncEvery <= 0 {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		}
	}

	ticker := time.NewTicker(s.resyncEvery)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-s.done:
			return nil
		case <-ticker.C:
			if err := s.Sync(ctx); err != nil {
				s.logger.Warn().Err(err).Msg("Token resync failed")
			}
		}
	}
}

// Stop winds down the resync loop and waits for an in-flight sync.
func (s *Store) Stop(_ context.Context) error {
	s.closeOnce.Do(func() {
		close(s.done)
	})

	s.wg.Wait()

	return nil
}

type tokenPayload struct {
	raw    []byte
	tokens map[string]models.TokenMetadata
}

func (s *Store) fetchWithRetry(ctx context.Context) ([]byte, map[string]models.TokenMetadata, error) {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = s.retryBackoff
	bo.MaxInterval = 5 * time.Second

	operation := func() (tokenPayload, error) {
		raw, err := s.fetcher.FetchTokens(ctx, s.maxBytes)
		if err != nil {
			return tokenPayload{}, err
		}

		// The fetcher reads one byte past the limit so oversize shows
		// up here instead of as a truncated parse error.
		if int64(len(raw)) > s.maxBytes {
			return tokenPayload{}, backoff.Permanent(fmt.Errorf("%w: above %d bytes", errTokenDBTooLarge, s.maxBytes))
		}

		tokens, err := s.parse(raw)
		if err != nil {
			return tokenPayload{}, backoff.Permanent(err)
		}

		if len(tokens) > s.maxTokens {
			return tokenPayload{}, backoff.Permanent(fmt.Errorf("%w: %d > %d", errTokenLimitExceeded, len(tokens), s.maxTokens))
		}

		return tokenPayload{raw: raw, tokens: tokens}, nil
	}

	p, err := backoff.Retry(ctx, operation, backoff.WithBackOff(bo), backoff.WithMaxTries(s.retryTries))
	if err != nil {
		return nil, nil, fmt.Errorf("fetch token database: %w", err)
	}

	return p.raw, p.tokens, nil
}

// parse decodes the raw set and drops entries whose key is not a valid
// token identifier.
func (s *Store) parse(raw []byte) (map[string]models.TokenMetadata, error) {
	var tokens map[string]models.TokenMetadata
	if err := json.Unmarshal(raw, &tokens); err != nil {
		return nil, fmt.Errorf("parse token database: %w", err)
	}

	skipped := 0

	for id := range tokens {
		if !models.ValidTokenID(id) {
			delete(tokens, id)

			skipped++
		}
	}

	if skipped > 0 {
		s.logger.Warn().Int("skipped", skipped).Msg("Dropped tokens with malformed identifiers")
	}

	return tokens, nil
}

func (s *Store) persist(ctx context.Context, raw []byte) error {
	release, err := s.dev.Acquire(ctx, "tokenSync", tokenLockWait)
	if err != nil {
		return err
	}
	defer release()

	if err := os.WriteFile(s.tmpPath, raw, 0o644); err != nil {
		return fmt.Errorf("write token cache: %w", err)
	}

	if err := os.Rename(s.tmpPath, s.path); err != nil {
		_ = os.Remove(s.tmpPath)

		return fmt.Errorf("commit token cache: %w", err)
	}

	return nil
}

func (s *Store) loadCached(ctx context.Context) {
	release, err := s.dev.Acquire(ctx, "tokenLoad", tokenLockWait)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Token cache locked at boot, starting empty")
		return
	}
	defer release()

	// Interrupted sync; the cache file itself is still whole.
	_ = os.Remove(s.tmpPath)

	raw, err := os.ReadFile(s.path)

	switch {
	case errors.Is(err, os.ErrNotExist):
		return
	case err != nil:
		s.logger.Warn().Err(err).Msg("Token cache unreadable, starting empty")
		return
	}

	if int64(len(raw)) > s.maxBytes {
		s.logger.Warn().
			Int("bytes", len(raw)).
			Int64("limit", s.maxBytes).
			Msg("Token cache exceeds size limit, resetting")

		_ = os.Remove(s.path)

		return
	}

	tokens, err := s.parse(raw)
	if err != nil {
		s.logger.Warn().Err(err).Msg("Token cache corrupt, starting empty")
		return
	}

	if len(tokens) > s.maxTokens {
		s.logger.Warn().
			Int("tokens", len(tokens)).
			Int("limit", s.maxTokens).
			Msg("Token cache exceeds entry limit, starting empty")

		return
	}

	s.swap(tokens)

	s.logger.Info().Int("tokens", len(tokens)).Msg("Loaded token cache from device")
}

func (s *Store) swap(tokens map[string]models.TokenMetadata) {
	s.tokens.Store(&tokens)
}
