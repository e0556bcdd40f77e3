// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//	http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package ingestion implements the event-to-index pipeline.
//
// Connector events are validated and durably queued on acceptance, then
// applied asynchronously by a worker pool: the content is normalized,
// chunked on word boundaries, embedded, and the document's chunk set is
// swapped atomically in the vector store and mirrored into the lexical
// index. Work is serialized per document, and events older than the
// stored document complete as no-ops, so out-of-order delivery can
// never resurrect overwritten state.
//
// Transient failures retry on a short backoff schedule with jitter; a
// job that exhausts its attempts, or fails validation permanently, is
// parked in the dead letter queue where an operator can inspect and
// requeue it. The embedding provider sits behind a circuit breaker so
// a hard outage fails fast instead of stacking up slow timeouts.
package ingestion
