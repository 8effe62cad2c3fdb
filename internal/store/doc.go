// Package store provides the key/value blob storage that synq persists its
// snapshots into.
//
// The engine only needs three operations, captured by the KV interface:
// get a blob by key, set a blob, and clear everything. Three backends are
// provided:
//   - Store: SQLite via mattn/go-sqlite3 (default, single file)
//   - BadgerStore: Badger v4 (directory, LSM tree)
//   - MemoryStore: process-local map, used in tests and dry runs
//
// # SQLite Configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//
// Values are opaque bytes. Encoding is the caller's concern (see
// internal/state for the snapshot codecs).
package store
