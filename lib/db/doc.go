// Package db provides a standardized interface for the key-value engines that
// back preference stores. It defines the KVDB interface so that stores can
// interact with different engines while abstracting implementation details.
//
// The package focuses on:
//   - A unified interface for key-value operations
//   - Feature discovery through capability flags
//   - Standardized snapshot persistence (Save, Load)
//
// Note on Write Indexes:
//   - Every write carries a write-index that acts as a logical timestamp.
//     Implementations must ignore writes older than the entry they would replace.
//   - The global write-index only increases. SetWriteIdx with a lower value is ignored.
//
// Related Packages:
//
// The engines/maple package (github.com/ValentinKolb/prefkv/lib/db/engines/maple)
// provides a sharded in-memory implementation built on xsync maps with a binary
// snapshot format.
//
// The testing package (github.com/ValentinKolb/prefkv/lib/db/testing) provides
// a conformance suite for KVDB implementations (RunKVDBTests).
package db
