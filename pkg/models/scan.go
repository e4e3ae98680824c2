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

// Package models holds the shared data types of the tapsync daemon.
package models

import (
	"errors"
	"regexp"
	"time"
)

var (
	ErrInvalidTokenID  = errors.New("token id must match [A-Za-z0-9_]{1,100}")
	ErrInvalidTeamID   = errors.New("team id must be exactly 3 digits")
	ErrInvalidDeviceID = errors.New("device id must match [A-Za-z0-9_]{1,100}")
)

var (
	tokenIDPattern  = regexp.MustCompile(`^[A-Za-z0-9_]{1,100}$`)
	teamIDPattern   = regexp.MustCompile(`^[0-9]{3}$`)
	deviceIDPattern = regexp.MustCompile(`^[A-Za-z0-9_]{1,100}$`)
)

// ScanTimeFormat is the wire timestamp layout: RFC 3339 UTC with
// millisecond precision, e.g. "2025-10-19T14:30:00.000Z".
const ScanTimeFormat = "2006-01-02T15:04:05.000Z"

// FormatScanTime renders t in the wire timestamp layout.
func FormatScanTime(t time.Time) string {
	return t.UTC().Format(ScanTimeFormat)
}

// ScanEvent is a raw token read handed to the foreground handler by a
// reader collaborator. The handler stamps time and identity before the
// event becomes a ScanRequest.
type ScanEvent struct {
	TokenID string    `json:"tokenId"`
	ReadAt  time.Time `json:"readAt,omitempty"`
}

// ScanRequest is one scan on the wire and, line by line, in the queue
// file. It is transient: transmitted directly or appended to the queue,
// never held.
type ScanRequest struct {
	TokenID   string `json:"tokenId"`
	TeamID    string `json:"teamId,omitempty"`
	DeviceID  string `json:"deviceId"`
	Timestamp string `json:"timestamp"`
}

// Validate checks the identifier constraints shared with the
// orchestrator. TeamID is optional; when present it must be exactly
// three digits.
func (s *ScanRequest) Validate() error {
	if !tokenIDPattern.MatchString(s.TokenID) {
		return ErrInvalidTokenID
	}

	if s.TeamID != "" && !teamIDPattern.MatchString(s.TeamID) {
		return ErrInvalidTeamID
	}

	if !deviceIDPattern.MatchString(s.DeviceID) {
		return ErrInvalidDeviceID
	}

	return nil
}

// ValidTokenID reports whether id is acceptable as a token identifier.
func ValidTokenID(id string) bool {
	return tokenIDPattern.MatchString(id)
}

// ValidTeamID reports whether id is acceptable as a team identifier.
func ValidTeamID(id string) bool {
	return teamIDPattern.MatchString(id)
}

// ValidDeviceID reports whether id is acceptable as a device identifier.
func ValidDeviceID(id string) bool {
	return deviceIDPattern.MatchString(id)
}
