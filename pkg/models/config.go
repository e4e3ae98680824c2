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

package models

import (
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/fieldline/tapsync/pkg/logger"
)

var (
	errBaseURLRequired  = fmt.Errorf("orchestrator base_url is required")
	errInvalidBaseURL   = fmt.Errorf("orchestrator base_url must be an http(s) URL")
	errQueueDirRequired = fmt.Errorf("queue dir is required")
	errBatchSizeTooBig  = fmt.Errorf("sync batch_size exceeds the orchestrator maximum")
)

const (
	defaultListenAddr     = "127.0.0.1:8090"
	defaultQueueCapacity  = 100
	defaultLockTimeout    = 500 * time.Millisecond
	defaultBgLockTimeout  = 1 * time.Second
	defaultQueueFileLimit = 100_000
	defaultScanBuffer     = 32
	defaultMinScanGap     = 500 * time.Millisecond
	defaultMaxTokens      = 50
	defaultTokenFileLimit = 50_000

	// MaxBatchSize is the orchestrator's per-request batch ceiling.
	MaxBatchSize = 10

	// DefaultAPITimeout bounds single-scan submissions and health probes.
	DefaultAPITimeout = 5 * time.Second

	// DefaultBatchTimeout bounds batch uploads, which the orchestrator
	// processes transactionally and therefore more slowly.
	DefaultBatchTimeout = 30 * time.Second

	// DefaultHealthInterval is the probe cadence while the link is up.
	DefaultHealthInterval = 10 * time.Second

	// DefaultHealthTimeout bounds a single health probe.
	DefaultHealthTimeout = 5 * time.Second

	// DefaultReconnectInterval is the retry cadence while disconnected.
	DefaultReconnectInterval = 30 * time.Second

	// DefaultSyncInterval is the background drain poll cadence.
	DefaultSyncInterval = 10 * time.Second

	// DefaultDrainSpacing separates successive batch uploads while a
	// backlog remains.
	DefaultDrainSpacing = 1 * time.Second
)

// OrchestratorConfig identifies the remote coordination service and the
// terminal toward it.
type OrchestratorConfig struct {
	BaseURL      string   `json:"base_url"`
	DeviceID     string   `json:"device_id,omitempty"` // auto-provisioned when empty
	TeamID       string   `json:"team_id,omitempty"`
	APITimeout   Duration `json:"api_timeout,omitempty"`   // single scan and health probe
	BatchTimeout Duration `json:"batch_timeout,omitempty"` // batch upload
}

// MonitorConfig drives the connection monitor's probing and reconnect
// cadence.
type MonitorConfig struct {
	HealthInterval    Duration `json:"health_interval,omitempty"`
	HealthTimeout     Duration `json:"health_timeout,omitempty"`
	ReconnectInterval Duration `json:"reconnect_interval,omitempty"`
	LinkInterface     string   `json:"link_interface,omitempty"` // e.g. wlan0
}

// QueueConfig places and bounds the durable scan queue.
type QueueConfig struct {
	Dir                   string   `json:"dir"`
	Capacity              int      `json:"capacity,omitempty"`
	LockTimeout           Duration `json:"lock_timeout,omitempty"`            // foreground callers
	BackgroundLockTimeout Duration `json:"background_lock_timeout,omitempty"` // sync task
	MaxFileBytes          int64    `json:"max_file_bytes,omitempty"`          // corruption guard
}

// SyncConfig drives the background drain loop.
type SyncConfig struct {
	PollInterval Duration `json:"poll_interval,omitempty"`
	BatchSize    int      `json:"batch_size,omitempty"`
	DrainSpacing Duration `json:"drain_spacing,omitempty"`
}

// ScannerConfig bounds the foreground scan path.
type ScannerConfig struct {
	Buffer     int      `json:"buffer,omitempty"`
	MinScanGap Duration `json:"min_scan_gap,omitempty"`
}

// TokensConfig controls the local token-metadata cache.
type TokensConfig struct {
	Enabled        bool     `json:"enabled,omitempty"`
	MaxTokens      int      `json:"max_tokens,omitempty"`
	MaxFileBytes   int64    `json:"max_file_bytes,omitempty"`
	ResyncInterval Duration `json:"resync_interval,omitempty"` // 0 = startup only
}

// TerminalConfig is the daemon configuration, loaded once and treated
// as immutable afterwards.
type TerminalConfig struct {
	ListenAddr   string             `json:"listen_addr,omitempty"`
	APIKey       string             `json:"api_key,omitempty"`
	Orchestrator OrchestratorConfig `json:"orchestrator"`
	Monitor      MonitorConfig      `json:"monitor,omitempty"`
	Queue        QueueConfig        `json:"queue"`
	Sync         SyncConfig         `json:"sync,omitempty"`
	Scanner      ScannerConfig      `json:"scanner,omitempty"`
	Tokens       TokensConfig       `json:"tokens,omitempty"`
	Logging      *logger.Config     `json:"logging,omitempty"`
}

// Validate implements config.Validator. It applies defaults and
// normalizes the orchestrator URL; plain http is upgraded to https,
// matching the deployed fleet's transport requirement.
func (c *TerminalConfig) Validate() error {
	if err := c.validateOrchestrator(); err != nil {
		return err
	}

	if c.Queue.Dir == "" {
		return errQueueDirRequired
	}

	if c.ListenAddr == "" {
		c.ListenAddr = defaultListenAddr
	}

	applyDurationDefault(&c.Monitor.HealthInterval, DefaultHealthInterval)
	applyDurationDefault(&c.Monitor.HealthTimeout, DefaultHealthTimeout)
	applyDurationDefault(&c.Monitor.ReconnectInterval, DefaultReconnectInterval)

	if c.Queue.Capacity == 0 {
		c.Queue.Capacity = defaultQueueCapacity
	}

	applyDurationDefault(&c.Queue.LockTimeout, defaultLockTimeout)
	applyDurationDefault(&c.Queue.BackgroundLockTimeout, defaultBgLockTimeout)

	if c.Queue.MaxFileBytes == 0 {
		c.Queue.MaxFileBytes = defaultQueueFileLimit
	}

	applyDurationDefault(&c.Sync.PollInterval, DefaultSyncInterval)
	applyDurationDefault(&c.Sync.DrainSpacing, DefaultDrainSpacing)

	switch {
	case c.Sync.BatchSize == 0:
		c.Sync.BatchSize = MaxBatchSize
	case c.Sync.BatchSize > MaxBatchSize:
		return fmt.Errorf("%w: %d > %d", errBatchSizeTooBig, c.Sync.BatchSize, MaxBatchSize)
	}

	if c.Scanner.Buffer == 0 {
		c.Scanner.Buffer = defaultScanBuffer
	}

	applyDurationDefault(&c.Scanner.MinScanGap, defaultMinScanGap)

	if c.Tokens.MaxTokens == 0 {
		c.Tokens.MaxTokens = defaultMaxTokens
	}

	if c.Tokens.MaxFileBytes == 0 {
		c.Tokens.MaxFileBytes = defaultTokenFileLimit
	}

	return nil
}

func (c *TerminalConfig) validateOrchestrator() error {
	o := &c.Orchestrator

	if o.BaseURL == "" {
		return errBaseURLRequired
	}

	if strings.HasPrefix(o.BaseURL, "http://") {
		o.BaseURL = "https://" + strings.TrimPrefix(o.BaseURL, "http://")
	}

	u, err := url.Parse(o.BaseURL)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return fmt.Errorf("%w: %q", errInvalidBaseURL, o.BaseURL)
	}

	o.BaseURL = strings.TrimRight(o.BaseURL, "/")

	if o.DeviceID != "" && !ValidDeviceID(o.DeviceID) {
		return ErrInvalidDeviceID
	}

	if o.TeamID != "" && !ValidTeamID(o.TeamID) {
		return ErrInvalidTeamID
	}

	applyDurationDefault(&o.APITimeout, DefaultAPITimeout)
	applyDurationDefault(&o.BatchTimeout, DefaultBatchTimeout)

	return nil
}

func applyDurationDefault(d *Duration, def time.Duration) {
	if time.Duration(*d) == 0 {
		*d = Duration(def)
	}
}
