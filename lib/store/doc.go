// Package store defines the boundary between observable preferences and the
// key-value store that persists them.
//
// Key Components:
//
//   - IStore Interface: typed reads with defaults, a change listener registry
//     and batched writes through an Editor. A commit notifies every registered
//     ChangeListener once per key whose stored value actually changed.
//
//   - Error System: a structured error reporting mechanism using typed return
//     codes (RetCode) and descriptive messages, so callers can tell a type
//     mismatch from a closed store.
//
//   - DBFactory: a function type that abstracts the creation of the underlying
//     db.KVDB instance.
//
// Implementations:
//
//	- Local Store (lstore): an IStore over a db.KVDB with optional snapshot
//	  persistence to a file and an optional file watcher that turns external
//	  edits into change notifications.
//	  Available in the "github.com/ValentinKolb/prefkv/lib/store/lstore" package.
//
//	- Recorder (storetest): an in-memory IStore that counts every call, used to
//	  assert how often the preference layer touches its store.
//	  Available in the "github.com/ValentinKolb/prefkv/lib/store/storetest" package.
package store
