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

// Package storage owns the handle to the shared storage medium. The
// medium is also used by the rendering subsystem over the same bus, so
// every access here goes through one lock with a bounded wait, and no
// caller may touch the renderer while holding it. Critical sections
// must stay self-contained: open, read/write, close, release.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/fieldline/tapsync/pkg/logger"
)

// Device is the single owned handle to the storage medium. Components
// that persist state receive it at construction; the lock discipline
// is enforced here rather than by convention at call sites.
type Device struct {
	root   string
	sem    *semaphore.Weighted
	logger logger.Logger
}

// NewDevice opens (creating if needed) the storage root directory.
func NewDevice(root string, log logger.Logger) (*Device, error) {
	if root == "" {
		return nil, errRootRequired
	}

	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("failed to open storage root %q: %w", root, err)
	}

	return &Device{
		root:   root,
		sem:    semaphore.NewWeighted(1),
		logger: log,
	}, nil
}

// Root returns the storage root directory.
func (d *Device) Root() string {
	return d.root
}

// Path resolves name inside the storage root.
func (d *Device) Path(name string) string {
	return filepath.Join(d.root, name)
}

// Acquire takes the device lock, waiting at most timeout. The caller
// name tags contention logs. The returned release is safe to call more
// than once but must be called at least once.
func (d *Device) Acquire(ctx context.Context, caller string, timeout time.Duration) (release func(), err error) {
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()

	if err := d.sem.Acquire(waitCtx, 1); err != nil {
		d.logger.Warn().
			Str("caller", caller).
			Dur("timeout", timeout).
			Msg("Storage lock wait timed out")

		return nil, fmt.Errorf("%w: %s", ErrLockTimeout, caller)
	}

	if waited := time.Since(start); waited > timeout/2 {
		d.logger.Debug().
			Str("caller", caller).
			Dur("waited", waited).
			Msg("Storage lock was contended")
	}

	var once sync.Once

	return func() {
		once.Do(func() { d.sem.Release(1) })
	}, nil
}
