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

package storage

import "errors"

// ErrLockTimeout is returned when the device lock could not be taken
// within the caller's bounded wait. Callers treat it as a recoverable
// contention failure, never as fatal.
var ErrLockTimeout = errors.New("storage lock wait timed out")

var errRootRequired = errors.New("storage root directory is required")
