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

package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
)

// maxConfigBytes caps the boot-time config read. A terminal config is a
// few hundred bytes; a multi-megabyte file is a flash corruption
// artifact, not a configuration.
const maxConfigBytes = 1 << 20

var (
	errConfigEmpty    = errors.New("configuration file is empty")
	errConfigOversize = errors.New("configuration file exceeds size limit")
)

// FileConfigLoader loads configuration from a local JSON file.
type FileConfigLoader struct{}

// Load implements ConfigLoader by reading and unmarshaling a JSON file.
// Truncated-to-zero and runaway file sizes are rejected before parsing
// so boot failures name the real problem.
func (*FileConfigLoader) Load(_ context.Context, path string, dst interface{}) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("failed to stat '%s': %w", path, err)
	}

	if info.Size() > maxConfigBytes {
		return fmt.Errorf("%w: '%s' is %d bytes", errConfigOversize, path, info.Size())
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read file '%s': %w", path, err)
	}

	if len(data) == 0 {
		return fmt.Errorf("%w: '%s'", errConfigEmpty, path)
	}

	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("failed to unmarshal JSON from '%s': %w", path, err)
	}

	return nil
}
