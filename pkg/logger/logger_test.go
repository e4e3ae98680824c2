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
	"os"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestZerologLevel(t *testing.T) {
	tests := []struct {
		name    string
		config  Config
		want    zerolog.Level
		wantErr bool
	}{
		{name: "empty level means info", config: Config{}, want: zerolog.InfoLevel},
		{name: "named level parsed", config: Config{Level: "warn"}, want: zerolog.WarnLevel},
		{name: "debug flag wins over level", config: Config{Level: "error", Debug: true}, want: zerolog.DebugLevel},
		{name: "unknown level rejected", config: Config{Level: "loud"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := tt.config.ZerologLevel()
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected an error for an unknown level")
				}

				return
			}

			if err != nil {
				t.Fatalf("ZerologLevel: %v", err)
			}

			if got != tt.want {
				t.Errorf("ZerologLevel = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWriter(t *testing.T) {
	stderrCfg := Config{Output: "stderr"}
	if stderrCfg.Writer() != os.Stderr {
		t.Error("stderr config should write to stderr")
	}

	defaultCfg := Config{Output: "stdout"}
	if defaultCfg.Writer() != os.Stdout {
		t.Error("stdout config should write to stdout")
	}

	emptyCfg := Config{}
	if emptyCfg.Writer() != os.Stdout {
		t.Error("unset output should fall back to stdout")
	}
}

func TestTimestampFormat(t *testing.T) {
	cfg := Config{}
	if cfg.TimestampFormat() != time.RFC3339 {
		t.Errorf("unset format should be RFC3339, got %q", cfg.TimestampFormat())
	}

	cfg.TimeFormat = time.RFC3339Nano
	if cfg.TimestampFormat() != time.RFC3339Nano {
		t.Errorf("configured format not honored, got %q", cfg.TimestampFormat())
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()

	if cfg.Level == "" {
		t.Error("default level should not be empty")
	}

	if cfg.Output == "" {
		t.Error("default output should not be empty")
	}
}

func TestNewTestLoggerIsSilent(t *testing.T) {
	log := NewTestLogger()

	// Must not panic or emit; Fatal on a disabled logger does not exit.
	log.Info().Str("k", "v").Msg("discarded")
	log.Error().Msg("discarded")

	if log.WithComponent("x").GetLevel() != zerolog.Disabled {
		t.Error("test logger should stay disabled")
	}
}
