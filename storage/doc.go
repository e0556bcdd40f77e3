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


// Package storage provides the storage abstraction layer for recall.
//
// This package defines repository interfaces that decouple storage
// implementation from business logic, so different backends (BadgerDB,
// bleve, in-memory) can be used interchangeably.
//
// # Interfaces
//
//   - DocumentRepository: documents and their chunk sets, vector search
//   - JobRepository: the durable ingestion queue and payload store
//   - DeadLetterRepository: jobs that exhausted their retries
//   - LexicalIndex: keyword search over chunks
//
// # Constructor Return Type Pattern
//
// Public constructors return interfaces to enforce abstraction:
//
//	repo, err := badger.NewDocumentRepository(backend)  // storage.DocumentRepository
//
// # Thread Safety
//
// All repository implementations must be thread-safe and support
// concurrent access from multiple goroutines. The document chunk swap is
// transactional with respect to concurrent readers: a reader sees the old
// chunk set or the new one, never a mix.
package storage
