// Package maple implements the in-memory key-value engine (db.KVDB) that backs
// local preference stores.
//
// Key Components:
//
//   - mapleImpl: The central database structure implementing db.KVDB. It manages
//     shards and provides the public API. The write index is supplied by the
//     caller, the database only tracks the highest index it has seen.
//
//   - Shard: A partition of the key space holding an xsync.MapOf. Keys are spread
//     across shards by hashing them with a database-specific seed and using the
//     higher bits of the hash.
//
//   - Entry: The stored value together with its original key and the write index
//     of the last update. The write index is used to drop stale writes.
//
// Persistence Format:
//
//	1. Magic number "MAPLEDB\x00"
//	2. Version number (currently 4)
//	3. Number of entries
//	4. For each entry: key length, key bytes, write index, value length, value bytes
//
//	Save takes a fuzzy snapshot: concurrent writes may or may not be included.
//	Load replaces all shards. Callers must not write concurrently with Load.
//
// Usage Example:
//
//	database := maple.NewMapleDB(nil)
//	defer database.Close()
//
//	database.Set("theme", []byte("dark"), 1)
//	value, ok := database.Get("theme")
package maple
