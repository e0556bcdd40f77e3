// Package breaker provides per-dependency circuit breakers for the
// external providers the pipeline calls. A breaker opens after a run
// of consecutive failures, fails fast for a cooldown, then admits a
// single trial call to decide whether the dependency has recovered.
package breaker
