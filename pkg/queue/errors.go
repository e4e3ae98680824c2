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

package queue

import "errors"

// ErrCommitBeyondQueue is returned when a commit asks to remove more
// entries than the queue currently holds. The file is left untouched.
var ErrCommitBeyondQueue = errors.New("commit count exceeds queued entries")

var errQueueConfigIncomplete = errors.New("queue config is missing capacity, lock waits, or file limit")
