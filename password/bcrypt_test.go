package password

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHashVerifyRoundTrip(t *testing.T) {
	h, err := NewHasher(Config{Cost: MinCost})
	require.NoError(t, err)

	hash, err := h.Hash("Secret123!")
	require.NoError(t, err)
	assert.NotEqual(t, "Secret123!", hash)
	assert.True(t, strings.HasPrefix(hash, "$2a$"))

	ok, err := h.Verify("Secret123!", hash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify("WrongPass1!", hash)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestVerifyGarbageHashFailsClosed(t *testing.T) {
	h, err := NewHasher(Config{Cost: MinCost})
	require.NoError(t, err)

	ok, err := h.Verify("Secret123!", "not-a-bcrypt-hash")
	assert.Error(t, err)
	assert.False(t, ok)
}

func TestHashInputLimits(t *testing.T) {
	h, err := NewHasher(Config{Cost: MinCost})
	require.NoError(t, err)

	_, err = h.Hash("")
	assert.Error(t, err)

	_, err = h.Hash(strings.Repeat("x", 73))
	assert.Error(t, err)
}

func TestNewHasherRejectsWeakCost(t *testing.T) {
	_, err := NewHasher(Config{Cost: 10})
	assert.Error(t, err)
	_, err = NewHasher(Config{Cost: 40})
	assert.Error(t, err)
}

func TestNeedsUpgrade(t *testing.T) {
	weak, err := NewHasher(Config{Cost: MinCost})
	require.NoError(t, err)
	hash, err := weak.Hash("Secret123!")
	require.NoError(t, err)

	same, err := weak.NeedsUpgrade(hash)
	require.NoError(t, err)
	assert.False(t, same)

	strong, err := NewHasher(Config{Cost: MinCost + 1})
	require.NoError(t, err)
	upgrade, err := strong.NeedsUpgrade(hash)
	require.NoError(t, err)
	assert.True(t, upgrade)

	_, err = weak.NeedsUpgrade("garbage")
	assert.Error(t, err)
}
