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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSystemGaugesRead(t *testing.T) {
	t.Parallel()

	g := NewSystemGauges(t.TempDir())

	h, err := g.Read(context.Background())
	require.NoError(t, err)

	assert.Positive(t, h.DiskFreeBytes)
	assert.GreaterOrEqual(t, h.MemoryUsedPct, 0.0)
	assert.LessOrEqual(t, h.MemoryUsedPct, 100.0)
}
