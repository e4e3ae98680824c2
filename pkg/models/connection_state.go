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

import "encoding/json"

// ConnectionState is the coarse link/reachability state published by
// the connection monitor. It is stored in an atomic, so it must stay a
// small integer type.
type ConnectionState int32

const (
	// StateDisconnected - no local network link.
	StateDisconnected ConnectionState = iota
	// StateNetworkUp - link present, remote reachability unknown or stale.
	StateNetworkUp
	// StateReachable - link present and the health probe succeeded.
	StateReachable
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateNetworkUp:
		return "network_up"
	case StateReachable:
		return "reachable"
	default:
		return "unknown"
	}
}

func (s ConnectionState) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.String())
}

// HasNetwork reports whether the local link is up in state s.
func (s ConnectionState) HasNetwork() bool {
	return s == StateNetworkUp || s == StateReachable
}
