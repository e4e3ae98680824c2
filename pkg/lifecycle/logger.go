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

package lifecycle

import (
	"github.com/rs/zerolog"

	"github.com/fieldline/tapsync/pkg/logger"
)

// NewLogger builds the process logger from the provided configuration.
// A nil config uses the environment-driven defaults.
func NewLogger(config *logger.Config) (logger.Logger, error) {
	if config == nil {
		config = logger.DefaultConfig()
	}

	level, err := config.ZerologLevel()
	if err != nil {
		return nil, err
	}

	zlog := zerolog.New(config.Writer()).
		Level(level).
		With().
		Timestamp().
		Logger()

	zerolog.TimeFieldFormat = config.TimestampFormat()

	return logger.Wrap(zlog), nil
}

// CreateComponentLogger creates a logger for a specific component. The
// component name lands on every line as a "component" field.
func CreateComponentLogger(component string, config *logger.Config) (logger.Logger, error) {
	base, err := NewLogger(config)
	if err != nil {
		return nil, err
	}

	return logger.Wrap(base.WithComponent(component)), nil
}
