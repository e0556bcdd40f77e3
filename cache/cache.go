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

package cache

import (
	"encoding/hex"
	"slices"
	"strings"
	"time"

	"github.com/dgraph-io/ristretto/v2"
	"github.com/go-crypt/x/blake2b"
	"github.com/poiesic/recall/core"
	"github.com/poiesic/recall/search"
)

// DefaultTTL bounds how stale a cached response may be.
const DefaultTTL = 30 * time.Second

// Cache memoizes per-principal responses. The key binds the caller's
// identity scope, the normalized query, and the filter fingerprint, so
// two principals with different entitlements can never share an entry:
// their scopes differ, so their keys differ.
type Cache[V any] struct {
	inner *ristretto.Cache[string, V]
	ttl   time.Duration
}

// New creates a cache holding up to maxEntries values for ttl each.
// Non-positive arguments fall back to defaults.
func New[V any](maxEntries int64, ttl time.Duration) (*Cache[V], error) {
	if maxEntries <= 0 {
		maxEntries = 4096
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}

	inner, err := ristretto.NewCache(&ristretto.Config[string, V]{
		NumCounters: maxEntries * 10,
		MaxCost:     maxEntries,
		BufferItems: 64,
	})
	if err != nil {
		return nil, err
	}
	return &Cache[V]{inner: inner, ttl: ttl}, nil
}

// Get looks up the memoized value for this caller, query, and filter
// combination. Any cache trouble is indistinguishable from a miss.
func (c *Cache[V]) Get(callers []core.Identity, query string, filters core.Filters) (V, bool) {
	return c.inner.Get(Key(callers, query, filters))
}

// Set memoizes a value for this caller, query, and filter combination.
func (c *Cache[V]) Set(callers []core.Identity, query string, filters core.Filters, value V) {
	c.inner.SetWithTTL(Key(callers, query, filters), value, 1, c.ttl)
}

// Wait blocks until pending writes are applied. Only needed by tests
// and benchmarks; production reads tolerate the write buffer delay.
func (c *Cache[V]) Wait() {
	c.inner.Wait()
}

// Close releases the cache's resources.
func (c *Cache[V]) Close() {
	c.inner.Close()
}

// Key derives the cache key: a blake2b digest over the caller's sorted
// identity scope, the normalized query, and the filter fingerprint.
// Query normalization here must match the read path exactly, which it
// does trivially because both paths call this function.
func Key(callers []core.Identity, query string, filters core.Filters) string {
	scope := make([]string, len(callers))
	for i, id := range callers {
		scope[i] = id.Provider + ":" + id.ExternalID
	}
	slices.Sort(scope)

	h, _ := blake2b.New(16, nil)
	h.Write([]byte(strings.Join(scope, ",")))
	h.Write([]byte{0})
	h.Write([]byte(search.NormalizeQuery(query)))
	h.Write([]byte{0})
	h.Write([]byte(filters.Fingerprint()))
	return hex.EncodeToString(h.Sum(nil))
}
