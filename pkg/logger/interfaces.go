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

package logger

import (
	"io"

	"github.com/rs/zerolog"
)

type Logger interface {
	Trace() *zerolog.Event
	Debug() *zerolog.Event
	Info() *zerolog.Event
	Warn() *zerolog.Event
	Error() *zerolog.Event
	Fatal() *zerolog.Event
	Panic() *zerolog.Event
	With() zerolog.Context
	WithComponent(component string) zerolog.Logger
	WithFields(fields map[string]interface{}) zerolog.Logger
	SetLevel(level zerolog.Level)
	SetDebug(debug bool)
}

// Wrap adapts a raw zerolog.Logger to the Logger interface.
func Wrap(z zerolog.Logger) Logger {
	return &zerologAdapter{z: z}
}

// NewTestLogger creates a logger for tests. The stream is discarded and
// the level disabled, so nothing is ever emitted.
func NewTestLogger() Logger {
	return Wrap(zerolog.New(io.Discard).Level(zerolog.Disabled))
}

type zerologAdapter struct {
	z zerolog.Logger
}

func (a *zerologAdapter) Trace() *zerolog.Event { return a.z.Trace() }
func (a *zerologAdapter) Debug() *zerolog.Event { return a.z.Debug() }
func (a *zerologAdapter) Info() *zerolog.Event  { return a.z.Info() }
func (a *zerologAdapter) Warn() *zerolog.Event  { return a.z.Warn() }
func (a *zerologAdapter) Error() *zerolog.Event { return a.z.Error() }
func (a *zerologAdapter) Fatal() *zerolog.Event { return a.z.Fatal() }
func (a *zerologAdapter) Panic() *zerolog.Event { return a.z.Panic() }
func (a *zerologAdapter) With() zerolog.Context { return a.z.With() }

func (a *zerologAdapter) WithComponent(component string) zerolog.Logger {
	return a.z.With().Str("component", component).Logger()
}

func (a *zerologAdapter) WithFields(fields map[string]interface{}) zerolog.Logger {
	return a.z.With().Fields(fields).Logger()
}

func (a *zerologAdapter) SetLevel(level zerolog.Level) { a.z = a.z.Level(level) }

func (a *zerologAdapter) SetDebug(debug bool) {
	if debug {
		a.SetLevel(zerolog.DebugLevel)
	} else {
		a.SetLevel(zerolog.InfoLevel)
	}
}
