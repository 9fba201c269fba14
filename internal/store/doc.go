// Package store provides SQLite-backed durable storage for milestone state.
//
// The store holds one row per project with the three monotonic milestone
// flags and the cached creation date, plus an append-only record of every
// milestone firing and its delivery outcome.
//
// # Critical Patterns
//
// Monotonic flags:
//   - Save never turns a flag off: the upsert keeps MAX(old, new)
//   - A recorded creation_date is never replaced (COALESCE(old, new))
//
// At-most-once firing:
//   - UNIQUE(project, milestone) on milestone_firings
//   - State and firings are written in one transaction, so a crash leaves
//     either both or neither
//
// # Database Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=FULL: a committed Save survives power loss
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
package store
