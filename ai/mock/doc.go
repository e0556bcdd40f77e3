// Package mock provides deterministic in-process test doubles for the
// ai interfaces. The mock embedder derives vectors from a text hash so
// similarity-dependent tests are reproducible without a model server.
package mock
