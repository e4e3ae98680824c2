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

	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"
	"golang.org/x/sync/errgroup"
)

// SystemGauges reads host memory and disk pressure via gopsutil. The
// disk gauge tracks the filesystem holding the queue, the one that
// matters when the terminal runs from a small SD card.
type SystemGauges struct {
	root string
}

// NewSystemGauges creates gauges rooted at the queue's filesystem.
func NewSystemGauges(root string) *SystemGauges {
	return &SystemGauges{root: root}
}

// Read implements HostGauges.
func (g *SystemGauges) Read(ctx context.Context) (*HostStatus, error) {
	var (
		vm *mem.VirtualMemoryStat
		du *disk.UsageStat
	)

	eg, ctx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		var err error
		vm, err = mem.VirtualMemoryWithContext(ctx)

		return err
	})

	eg.Go(func() error {
		var err error
		du, err = disk.UsageWithContext(ctx, g.root)

		return err
	})

	if err := eg.Wait(); err != nil {
		return nil, err
	}

	return &HostStatus{
		MemoryUsedPct: vm.UsedPercent,
		DiskUsedPct:   du.UsedPercent,
		DiskFreeBytes: du.Free,
	}, nil
}
