package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHashString(t *testing.T) {
	t.Run("Deterministic", func(t *testing.T) {
		assert.Equal(t, HashString("theme", 42), HashString("theme", 42))
	})

	t.Run("SeedChangesHash", func(t *testing.T) {
		assert.NotEqual(t, HashString("theme", 1), HashString("theme", 2))
	})

	t.Run("KeysDiffer", func(t *testing.T) {
		assert.NotEqual(t, HashString("theme", 7), HashString("volume", 7))
	})
}

func TestGenerateSeed(t *testing.T) {
	// two random 64 bit seeds colliding would point at a broken entropy source
	assert.NotEqual(t, GenerateSeed(), GenerateSeed())
}
