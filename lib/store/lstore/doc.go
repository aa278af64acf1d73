// Package lstore implements a local, single-node preference store based on the
// store.IStore interface. It wraps any db.KVDB implementation and encodes
// values with the codec package.
//
// Key Features:
//   - Automatic write index progression using atomic operations
//   - Batched commits that notify listeners once per changed key
//   - Optional snapshot persistence: every commit that changes something
//     rewrites the data file through a temporary file and an atomic rename
//   - Optional file watching: when another process replaces the data file the
//     store merges it and notifies listeners for every key that differs
//
// Thread Safety:
//
//	Reads go straight to the db.KVDB, which provides its own thread safety.
//	Commits, snapshot writes and reloads are serialized. Listeners run after
//	the commit lock is released and may use the store.
//
// Usage Example:
//
//	factory := func() db.KVDB { return maple.NewMapleDB(nil) }
//	s, err := lstore.Open(factory, lstore.Options{Path: "prefs.db", Watch: true})
//	if err != nil {
//		return err
//	}
//	defer s.Close()
//
//	err = s.Edit().PutString("theme", "dark").Commit()
//	theme, err := s.GetString("theme", "light")
package lstore
