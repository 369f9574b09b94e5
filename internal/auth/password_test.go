package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasher(t *testing.T) {
	t.Parallel()
	h := NewHasher(bcrypt.MinCost)

	digest, err := h.Hash("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, "s3cret!", digest)

	again, err := h.Hash("s3cret!")
	require.NoError(t, err)
	assert.NotEqual(t, digest, again, "digests are salted")

	assert.True(t, h.Verify("s3cret!", digest))
	assert.False(t, h.Verify("S3cret!", digest))
	assert.False(t, h.Verify("", ""))
	assert.False(t, h.Verify("s3cret!", "not-a-bcrypt-digest"))
}

func TestRandomPassword(t *testing.T) {
	t.Parallel()

	a, err := RandomPassword(16)
	require.NoError(t, err)
	b, err := RandomPassword(16)
	require.NoError(t, err)

	assert.Len(t, a, 16)
	assert.NotEqual(t, a, b)
	for _, r := range a {
		assert.True(t, strings.ContainsRune(passwordAlphabet, r), "unexpected rune %q", r)
	}
}
