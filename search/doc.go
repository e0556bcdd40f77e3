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

// Package search implements planned hybrid retrieval.
//
// A planner classifies each query as an exact lookup, a descriptive
// question, or something in between, and weights the two retrieval
// branches accordingly. The lexical (keyword) and vector (semantic)
// branches run concurrently under independent timeouts; a branch that
// fails or times out contributes nothing rather than failing the query.
// Branch scores are min-max normalized, fused by chunk identity with
// the planner's weights, filtered by the caller's ACL entitlements
// BEFORE any truncation, and finally gated by an abstain policy that
// prefers "not enough evidence" over confidently returning noise.
package search
