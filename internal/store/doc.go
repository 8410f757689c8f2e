// Package store persists engine dumps in SQLite.
//
// Each row holds one opaque dump blob keyed by instance id. The store does
// not look inside the blob; engines own their dump format.
//
// # Database Configuration
//
//   - WAL mode: concurrent reads while a worker flushes
//   - synchronous=NORMAL
//   - busy_timeout=5000
//   - foreign_keys=ON
//
// Schema changes are tracked with PRAGMA user_version.
package store
