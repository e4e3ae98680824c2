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

package orchestrator

import "errors"

var (
	// ErrBreakerOpen is returned without touching the network while the
	// scan path is short-circuited. Callers queue instead of retrying.
	ErrBreakerOpen = errors.New("circuit breaker is open")

	// ErrBatchTooLarge guards the orchestrator's per-request batch cap.
	ErrBatchTooLarge = errors.New("batch exceeds orchestrator limit")

	errUnexpectedStatusCode = errors.New("unexpected status code")
	errBaseURLRequired      = errors.New("orchestrator base URL is required")
	errDeviceIDRequired     = errors.New("device id is required")
)
