// Package pref binds a persisted preference store to observable, lifecycle
// aware values.
//
// The building blocks, from the store upwards:
//
//   - Provider: reads and writes one key of the store, registers a single
//     store change listener while it has a subscriber and pushes values to
//     that subscriber on the background dispatcher.
//   - Cell: caches the value of one key, becomes ready with the first value,
//     drops writes of the cached value and publishes changes on the main
//     dispatcher. Cells are reference counted, so several handles can share
//     one.
//   - Scope: owns the cells. Equal keys (name, value type, qualifier) always
//     resolve to the same cell until the scope is closed.
//   - Pref: the handle application code holds. It follows the lifecycle of
//     its host (see package lifecycle) and offers GetValue, GetValueAsync,
//     SetValue, Subscribe and Unsubscribe.
//
// Usage Example:
//
//	s, _ := lstore.Open(factory, lstore.Options{Path: "prefs.db"})
//	scope := pref.NewScope(func() (store.IStore, error) { return s, nil })
//	defer scope.Close()
//
//	registry := lifecycle.NewRegistry()
//	theme, _ := pref.String(pref.NewHost(scope, registry), "theme", "light")
//	theme.Subscribe(pref.NewSubscriber(func(v string) { fmt.Println("theme:", v) }))
//
//	_ = registry.Create()
//	_ = registry.Activate()
//	v, err := theme.GetValue(ctx)
//
// Errors carry codes of github.com/jmgilman/go/errors. Use IsNotReady,
// IsContextUnavailable, IsConfigurationError and IsStoreError to tell them
// apart.
package pref
