package testing

import (
	"bytes"
	"fmt"
	"sync"
	"testing"

	"github.com/ValentinKolb/prefkv/lib/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// DBFactory is a function that creates a new instance of a KVDB implementation
type DBFactory func() db.KVDB

// RunKVDBTests runs the conformance suite for a KVDB implementation.
func RunKVDBTests(t *testing.T, name string, factory DBFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Set&Get", func(t *testing.T) {
			testSetGet(t, factory())
		})

		t.Run("StaleWrites", func(t *testing.T) {
			testStaleWrites(t, factory())
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory())
		})

		t.Run("Has", func(t *testing.T) {
			testHas(t, factory())
		})

		t.Run("Range", func(t *testing.T) {
			testRange(t, factory())
		})

		t.Run("SaveLoad", func(t *testing.T) {
			testSaveLoad(t, factory)
		})

		t.Run("LoadRejectsGarbage", func(t *testing.T) {
			testLoadRejectsGarbage(t, factory())
		})

		t.Run("WriteIdx", func(t *testing.T) {
			testWriteIdx(t, factory())
		})

		t.Run("ConcurrentWrites", func(t *testing.T) {
			testConcurrentWrites(t, factory())
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

// requireFeature skips the test if the database does not support the feature
func requireFeature(t testing.TB, database db.KVDB, feature db.Feature) {
	if !database.SupportsFeature(feature) {
		t.Skip()
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testSetGet(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	database.Set("test-key", []byte("test-value1"), 1)
	result, exists := database.Get("test-key")
	require.True(t, exists)
	assert.Equal(t, []byte("test-value1"), result)

	database.Set("test-key", []byte("test-value2"), 2)
	result, exists = database.Get("test-key")
	require.True(t, exists)
	assert.Equal(t, []byte("test-value2"), result)

	_, exists = database.Get("nonexistent-key")
	assert.False(t, exists)

	// Get must hand out copies
	retrieved, _ := database.Get("test-key")
	retrieved[0] = 'X'
	original, _ := database.Get("test-key")
	assert.NotEqual(t, retrieved, original)

	// empty values are values too
	database.Set("empty", []byte{}, 3)
	result, exists = database.Get("empty")
	assert.True(t, exists)
	assert.Empty(t, result)
}

func testStaleWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("key", []byte("new"), 10)
	database.Set("key", []byte("old"), 5)

	result, _ := database.Get("key")
	assert.Equal(t, []byte("new"), result)

	database.Delete("key", 7)
	assert.True(t, database.Has("key"), "stale delete must be ignored")
}

func testDelete(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureDelete)

	database.Set("delete-key", []byte("value"), 1)
	database.Delete("delete-key", 2)

	_, exists := database.Get("delete-key")
	assert.False(t, exists)

	// deleting a missing key is a no-op
	database.Delete("missing", 3)
	assert.False(t, database.Has("missing"))

	// a deleted key can be written again
	database.Set("delete-key", []byte("again"), 4)
	result, exists := database.Get("delete-key")
	assert.True(t, exists)
	assert.Equal(t, []byte("again"), result)
}

func testHas(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureHas)

	assert.False(t, database.Has("has-key"))
	database.Set("has-key", []byte("value"), 1)
	assert.True(t, database.Has("has-key"))
}

func testRange(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureRange)

	expected := map[string]string{}
	for i := 0; i < 100; i++ {
		key := fmt.Sprintf("range-key-%d", i)
		value := fmt.Sprintf("range-value-%d", i)
		expected[key] = value
		database.Set(key, []byte(value), uint64(i+1))
	}

	seen := map[string]string{}
	database.Range(func(key string, value []byte) bool {
		seen[key] = string(value)
		return true
	})
	assert.Equal(t, expected, seen)

	// stopping early
	count := 0
	database.Range(func(string, []byte) bool {
		count++
		return count < 10
	})
	assert.Equal(t, 10, count)
}

func testSaveLoad(t *testing.T, factory DBFactory) {
	database := factory()
	database2 := factory()
	defer database.Close()
	defer database2.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet|db.FeatureSave|db.FeatureLoad)

	numEntries := 1000
	for i := 0; i < numEntries; i++ {
		database.Set(fmt.Sprintf("save-load-key-%d", i), []byte(fmt.Sprintf("save-load-value-%d", i)), uint64(i+1))
	}

	// pre-existing entries of the target are replaced
	database2.Set("stale", []byte("value"), 1)

	var buf bytes.Buffer
	require.NoError(t, database.Save(&buf))
	require.NoError(t, database2.Load(&buf))

	for i := 0; i < numEntries; i++ {
		key := fmt.Sprintf("save-load-key-%d", i)
		value, exists := database2.Get(key)
		require.True(t, exists, "key %s not found after Load", key)
		assert.Equal(t, []byte(fmt.Sprintf("save-load-value-%d", i)), value)
	}

	assert.False(t, database2.Has("stale"))
	assert.Equal(t, database.WriteIdx(), database2.WriteIdx())
}

func testLoadRejectsGarbage(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureLoad)

	assert.Error(t, database.Load(bytes.NewReader([]byte("definitely not a snapshot"))))
	assert.Error(t, database.Load(bytes.NewReader(nil)))
}

func testWriteIdx(t *testing.T, database db.KVDB) {
	defer database.Close()

	database.SetWriteIdx(10)
	assert.Equal(t, uint64(10), database.WriteIdx())

	database.SetWriteIdx(5)
	assert.Equal(t, uint64(10), database.WriteIdx(), "write index must never decrease")

	if database.SupportsFeature(db.FeatureSet) {
		database.Set("key", []byte("value"), 20)
		assert.Equal(t, uint64(20), database.WriteIdx())
	}
}

func testConcurrentWrites(t *testing.T, database db.KVDB) {
	defer database.Close()

	requireFeature(t, database, db.FeatureSet|db.FeatureGet)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for i := 0; i < 200; i++ {
				database.Set(fmt.Sprintf("w%d-k%d", worker, i), []byte{byte(i)}, uint64(i+1))
			}
		}(w)
	}
	wg.Wait()

	for w := 0; w < 8; w++ {
		for i := 0; i < 200; i++ {
			value, ok := database.Get(fmt.Sprintf("w%d-k%d", w, i))
			require.True(t, ok)
			assert.Equal(t, []byte{byte(i)}, value)
		}
	}
}
