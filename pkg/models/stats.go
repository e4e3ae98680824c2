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

import "time"

// SyncStats is a point-in-time snapshot of the daemon's error and
// throughput counters. Counters are monotonic for the process
// lifetime; dropped scans are counted, never silently lost.
type SyncStats struct {
	ScansDelivered   uint64 `json:"scans_delivered"`
	ScansQueued      uint64 `json:"scans_queued"`
	ScansDropped     uint64 `json:"scans_dropped"`
	ScansRateLimited uint64 `json:"scans_rate_limited"`
	Conflicts        uint64 `json:"conflicts"`
	BatchesSent      uint64 `json:"batches_sent"`
	BatchesFailed    uint64 `json:"batches_failed"`
	EntriesCommitted uint64 `json:"entries_committed"`
	EntriesEvicted   uint64 `json:"entries_evicted"`
	CorruptSkipped   uint64 `json:"corrupt_skipped"`
	LockTimeouts     uint64 `json:"lock_timeouts"`
	HealthSuccesses  uint64 `json:"health_successes"`
	HealthFailures   uint64 `json:"health_failures"`

	LastDeliveredAt time.Time `json:"last_delivered_at,omitempty"`
	LastDrainAt     time.Time `json:"last_drain_at,omitempty"`
}
