// Copyright 2025 Poiesic Systems
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.


package core

import "errors"

// Failure taxonomy shared across the ingestion and retrieval pipelines.
var (
	// ErrProvider indicates a transient failure of an external provider
	// (content source, embedder, synthesizer). Retryable.
	ErrProvider = errors.New("provider failure")

	// ErrValidation indicates a malformed event or record. Non-retryable;
	// jobs failing validation are routed directly to the dead-letter store.
	ErrValidation = errors.New("validation failed")

	// ErrTimeout indicates an operation exceeded its deadline. At query time
	// a branch timeout degrades to a partial result; at ingestion time it is
	// retryable like any provider failure.
	ErrTimeout = errors.New("operation timed out")
)

// Event validation errors, wrapped in ErrValidation.
var (
	// ErrEmptySource indicates the event carries no source name.
	ErrEmptySource = errors.New("source cannot be empty")

	// ErrEmptyExternalID indicates the event carries no external id.
	ErrEmptyExternalID = errors.New("external id cannot be empty")

	// ErrEmptyContent indicates a non-delete event with no content.
	ErrEmptyContent = errors.New("content cannot be empty")

	// ErrInvalidEventTime indicates a missing or future event time.
	ErrInvalidEventTime = errors.New("invalid event time")

	// ErrInvalidACL indicates a malformed ACL descriptor.
	ErrInvalidACL = errors.New("invalid acl descriptor")
)

// IsRetryable reports whether a job failure should be retried. Validation
// failures never are; everything else (provider errors, breaker-open,
// timeouts) is subject to the backoff schedule.
func IsRetryable(err error) bool {
	return err != nil && !errors.Is(err, ErrValidation)
}
