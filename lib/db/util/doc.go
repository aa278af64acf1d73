// Package util provides small helpers shared by db.KVDB engines: seed
// generation and the seeded FNV-1a string hash used for shard selection.
package util
