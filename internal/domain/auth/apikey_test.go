package auth

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeys(t *testing.T) {
	keys, err := NewKeys(HashKey("ops-primary"), " ", HashKey("ops-backup"))
	require.NoError(t, err)
	assert.False(t, keys.Empty())

	for _, tt := range []struct {
		key  string
		want bool
	}{
		{"ops-primary", true},
		{"ops-backup", true},
		{"ops-primary ", false},
		{"", false},
		{"guess", false},
	} {
		assert.Equal(t, tt.want, keys.Valid(tt.key), "key %q", tt.key)
	}
}

func TestNewKeysErrors(t *testing.T) {
	_, err := NewKeys("zz")
	assert.ErrorContains(t, err, "decode key hash")

	_, err = NewKeys("abcd")
	assert.ErrorContains(t, err, "want 32")

	keys, err := NewKeys()
	require.NoError(t, err)
	assert.True(t, keys.Empty())
	assert.False(t, keys.Valid("anything"))
}

func TestHashKey(t *testing.T) {
	// sha256("abc")
	assert.Equal(t, "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad", HashKey("abc"))
}
