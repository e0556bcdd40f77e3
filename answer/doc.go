// Package answer turns retrieval results into grounded answers. Ask
// runs hybrid retrieval, honors the abstain gate, and synthesizes a
// cited answer over the kept passages, with the synthesis provider
// behind a circuit breaker.
package answer
