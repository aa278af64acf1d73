package storetest

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ValentinKolb/prefkv/lib/codec"
	"github.com/ValentinKolb/prefkv/lib/store"
)

// StoreFactory creates a fresh, empty store for one test case
type StoreFactory func(t *testing.T) store.IStore

// RunStoreTests runs the conformance suite for an IStore implementation.
func RunStoreTests(t *testing.T, name string, factory StoreFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Defaults", func(t *testing.T) {
			testDefaults(t, factory(t))
		})

		t.Run("PutGet", func(t *testing.T) {
			testPutGet(t, factory(t))
		})

		t.Run("TypeMismatch", func(t *testing.T) {
			testTypeMismatch(t, factory(t))
		})

		t.Run("RemoveContains", func(t *testing.T) {
			testRemoveContains(t, factory(t))
		})

		t.Run("Clear", func(t *testing.T) {
			testClear(t, factory(t))
		})

		t.Run("All", func(t *testing.T) {
			testAll(t, factory(t))
		})

		t.Run("NotifyChangedKeys", func(t *testing.T) {
			testNotifyChangedKeys(t, factory(t))
		})

		t.Run("ListenerRegistration", func(t *testing.T) {
			testListenerRegistration(t, factory(t))
		})

		t.Run("ListenerReadsStore", func(t *testing.T) {
			testListenerReadsStore(t, factory(t))
		})

		t.Run("EditorSingleUse", func(t *testing.T) {
			testEditorSingleUse(t, factory(t))
		})

		t.Run("Closed", func(t *testing.T) {
			testClosed(t, factory(t))
		})
	})
}

// --------------------------------------------------------------------------
// Listener helper
// --------------------------------------------------------------------------

// Listener records every key it is notified about
type Listener struct {
	mu   sync.Mutex
	keys []string
	// OnChange is called for every notification if set
	OnChange func(s store.IStore, key string)
}

func (l *Listener) OnPreferenceChanged(s store.IStore, key string) {
	l.mu.Lock()
	l.keys = append(l.keys, key)
	fn := l.OnChange
	l.mu.Unlock()
	if fn != nil {
		fn(s, key)
	}
}

// Keys returns the notified keys in notification order
func (l *Listener) Keys() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.keys...)
}

// Count returns the number of notifications
func (l *Listener) Count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.keys)
}

// --------------------------------------------------------------------------
// Test cases
// --------------------------------------------------------------------------

func testDefaults(t *testing.T, s store.IStore) {
	defer s.Close()

	b, err := s.GetBool("missing", true)
	require.NoError(t, err)
	assert.True(t, b)

	i, err := s.GetInt32("missing", 42)
	require.NoError(t, err)
	assert.Equal(t, int32(42), i)

	l, err := s.GetInt64("missing", -7)
	require.NoError(t, err)
	assert.Equal(t, int64(-7), l)

	f, err := s.GetFloat32("missing", 1.5)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), f)

	str, err := s.GetString("missing", "fallback")
	require.NoError(t, err)
	assert.Equal(t, "fallback", str)
}

func testPutGet(t *testing.T, s store.IStore) {
	defer s.Close()

	err := s.Edit().
		PutBool("b", true).
		PutInt32("i", -12).
		PutInt64("l", 1<<40).
		PutFloat32("f", 0.25).
		PutString("s", "hello").
		Commit()
	require.NoError(t, err)

	b, err := s.GetBool("b", false)
	require.NoError(t, err)
	assert.True(t, b)

	i, err := s.GetInt32("i", 0)
	require.NoError(t, err)
	assert.Equal(t, int32(-12), i)

	l, err := s.GetInt64("l", 0)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), l)

	f, err := s.GetFloat32("f", 0)
	require.NoError(t, err)
	assert.Equal(t, float32(0.25), f)

	str, err := s.GetString("s", "")
	require.NoError(t, err)
	assert.Equal(t, "hello", str)

	// overwrite
	require.NoError(t, s.Edit().PutString("s", "world").Commit())
	str, err = s.GetString("s", "")
	require.NoError(t, err)
	assert.Equal(t, "world", str)
}

func testTypeMismatch(t *testing.T, s store.IStore) {
	defer s.Close()

	require.NoError(t, s.Edit().PutString("key", "text").Commit())

	v, err := s.GetInt32("key", 5)
	require.Error(t, err)
	assert.True(t, store.IsCode(err, store.RetCTypeMismatch), "unexpected error: %v", err)
	assert.Equal(t, int32(5), v)
}

func testRemoveContains(t *testing.T, s store.IStore) {
	defer s.Close()

	ok, err := s.Contains("key")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, s.Edit().PutInt64("key", 1).Commit())
	ok, err = s.Contains("key")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, s.Edit().Remove("key").Commit())
	ok, err = s.Contains("key")
	require.NoError(t, err)
	assert.False(t, ok)

	// removing a missing key is fine
	require.NoError(t, s.Edit().Remove("key").Commit())
}

func testClear(t *testing.T, s store.IStore) {
	defer s.Close()

	require.NoError(t, s.Edit().PutInt32("a", 1).PutInt32("b", 2).Commit())

	// clear applies before the puts of the same batch
	require.NoError(t, s.Edit().PutInt32("c", 3).Clear().Commit())

	all, err := s.All()
	require.NoError(t, err)
	assert.Len(t, all, 1)
	assert.Contains(t, all, "c")
}

func testAll(t *testing.T, s store.IStore) {
	defer s.Close()

	require.NoError(t, s.Edit().PutBool("flag", true).PutString("name", "x").Commit())

	all, err := s.All()
	require.NoError(t, err)
	require.Len(t, all, 2)

	assert.Equal(t, codec.TypeBool, codec.TypeOf(all["flag"]))
	text, err := codec.Format(all["name"])
	require.NoError(t, err)
	assert.Equal(t, "x", text)
}

func testNotifyChangedKeys(t *testing.T, s store.IStore) {
	defer s.Close()

	l := &Listener{}
	s.RegisterChangeListener(l)

	require.NoError(t, s.Edit().PutInt32("a", 1).PutInt32("b", 2).PutInt32("a", 3).Commit())
	assert.ElementsMatch(t, []string{"a", "b"}, l.Keys())

	// equal values are not a change
	require.NoError(t, s.Edit().PutInt32("a", 3).Commit())
	assert.Equal(t, 2, l.Count())

	require.NoError(t, s.Edit().Remove("b").Commit())
	assert.Equal(t, []string{"b"}, l.Keys()[2:])

	// removing a missing key is not a change either
	require.NoError(t, s.Edit().Remove("b").Commit())
	assert.Equal(t, 3, l.Count())
}

func testListenerRegistration(t *testing.T, s store.IStore) {
	defer s.Close()

	l := &Listener{}
	s.RegisterChangeListener(l)
	s.RegisterChangeListener(l)

	require.NoError(t, s.Edit().PutString("k", "v1").Commit())
	assert.Equal(t, 1, l.Count())

	s.UnregisterChangeListener(l)
	s.UnregisterChangeListener(l)

	require.NoError(t, s.Edit().PutString("k", "v2").Commit())
	assert.Equal(t, 1, l.Count())
}

func testListenerReadsStore(t *testing.T, s store.IStore) {
	defer s.Close()

	var seen int32
	l := &Listener{OnChange: func(s store.IStore, key string) {
		v, err := s.GetInt32(key, -1)
		if err == nil {
			seen = v
		}
	}}
	s.RegisterChangeListener(l)

	require.NoError(t, s.Edit().PutInt32("counter", 9).Commit())
	assert.Equal(t, int32(9), seen)
}

func testEditorSingleUse(t *testing.T, s store.IStore) {
	defer s.Close()

	e := s.Edit().PutBool("b", true)
	require.NoError(t, e.Commit())
	assert.Error(t, e.Commit())
}

func testClosed(t *testing.T, s store.IStore) {
	require.NoError(t, s.Close())

	_, err := s.GetString("k", "")
	assert.True(t, store.IsCode(err, store.RetCClosed), "unexpected error: %v", err)

	err = s.Edit().PutString("k", "v").Commit()
	assert.True(t, store.IsCode(err, store.RetCClosed), "unexpected error: %v", err)
}
