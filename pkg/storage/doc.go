// Package storage defines the durable turn-summary store written after a
// turn's client-visible protocol has fully terminated, plus the sentinel
// errors shared by its adapters.
//
// Adapters: memory (tests, single-node) and postgres (pgx-backed, shared
// across replicas). Writes are best-effort relative to the already-sent
// response; the engine logs and swallows failures on the streaming path.
package storage
