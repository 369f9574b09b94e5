package auth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func TestTokensRoundTrip(t *testing.T) {
	t.Parallel()
	tokens := NewTokens(testSecret, 0)

	now := time.Now()
	first, exp, err := tokens.Issue(7, now)
	require.NoError(t, err)
	assert.Nil(t, exp, "zero ttl means no expiry")

	second, _, err := tokens.Issue(7, now)
	require.NoError(t, err)
	assert.NotEqual(t, first, second, "every token carries a fresh jti")
	assert.NotEqual(t, HashToken(first), HashToken(second))
	assert.Len(t, HashToken(first), 64)

	id, err := tokens.Parse(first)
	require.NoError(t, err)
	assert.EqualValues(t, 7, id)
}

func TestTokensRejects(t *testing.T) {
	t.Parallel()
	tokens := NewTokens(testSecret, time.Minute)

	expired, exp, err := tokens.Issue(3, time.Now().Add(-2*time.Minute))
	require.NoError(t, err)
	require.NotNil(t, exp)

	other := NewTokens("ffffffffffffffffffffffffffffffff", 0)
	foreign, _, err := other.Issue(3, time.Now())
	require.NoError(t, err)

	testCases := map[string]string{
		"expired":        expired,
		"wrong secret":   foreign,
		"garbage":        "not.a.token",
		"empty":          "",
		"alg none token": "eyJhbGciOiJub25lIiwidHlwIjoiSldUIn0.eyJzdWIiOiIzIn0.",
	}
	for name, tok := range testCases {
		_, err := tokens.Parse(tok)
		assert.Error(t, err, name)
	}
}
