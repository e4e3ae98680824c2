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

package monitor

import (
	"context"
	"time"
)

//go:generate mockgen -destination=mock_monitor.go -package=monitor github.com/fieldline/tapsync/pkg/monitor Clock,Ticker,HealthProber,LinkWatcher

// Clock abstracts time-related operations.
type Clock interface {
	Now() time.Time
	Ticker(d time.Duration) Ticker
}

// Ticker abstracts the ticker behavior.
type Ticker interface {
	Chan() <-chan time.Time
	Stop()
}

// HealthProber answers whether the orchestrator responds. A nil error
// means reachable.
type HealthProber interface {
	CheckHealth(ctx context.Context) error
}

// LinkEvent marks an edge in local network association.
type LinkEvent struct {
	Up    bool
	Iface string
}

// LinkWatcher observes the local network link and pushes edges to the
// monitor. Up reflects the most recent sample without blocking.
type LinkWatcher interface {
	Start(ctx context.Context) error
	Stop()
	Up() bool
	Events() <-chan LinkEvent
}
