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

package syncer

import (
	"context"

	"github.com/fieldline/tapsync/pkg/models"
)

// StateReader gates drain cycles on orchestrator reachability.
type StateReader interface {
	Reachable() bool
}

// BatchSource is the queue surface the drain loop consumes: read a
// prefix without removing it, then remove exactly that prefix once the
// orchestrator has acknowledged it.
type BatchSource interface {
	PeekBatch(ctx context.Context, n int) ([]models.ScanRequest, error)
	Commit(ctx context.Context, n int) error
	Count() int
}

// BatchSubmitter is the orchestrator surface for batch uploads.
type BatchSubmitter interface {
	SubmitBatch(ctx context.Context, scans []models.ScanRequest) error
}
