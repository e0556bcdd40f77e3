// Package cache provides short-TTL, principal-scoped memoization for
// retrieval and answer responses. Keys bind the caller's identity scope
// so entitlement boundaries survive caching.
package cache
