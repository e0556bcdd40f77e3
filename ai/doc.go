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

// Package ai defines the abstractions for the AI services Recall calls:
// text embedding and grounded answer synthesis. The core pipeline and
// the search engine depend on these interfaces rather than on concrete
// providers.
//
// Two implementation sub-packages are provided:
//
//   - ai/openai: production implementation for OpenAI-compatible APIs
//   - ai/mock: deterministic test doubles that need no network
//
// Production constructors (openai.NewProvider and friends) return the
// interface types; the mock constructors return concrete types so tests
// can inject behavior and assert call counts.
package ai
