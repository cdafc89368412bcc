// Package storage persists the last-known payload published on each channel
// path, so a restarted process can answer a pull before the producer's next
// publish.
//
// Drivers:
//   - "file": dependency-free snapshot + JSON Lines journal
//   - "sqlite": SQLite database file (modernc.org/sqlite, no cgo)
package storage
