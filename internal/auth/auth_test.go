package auth

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestNewVerifier_Plain(t *testing.T) {
	v, err := NewVerifier("s3cret", "")
	require.NoError(t, err)

	assert.True(t, v.Verify("s3cret"))
	assert.False(t, v.Verify("s3cre"))
	assert.False(t, v.Verify("S3CRET"))
	assert.False(t, v.Verify(""))
}

func TestNewVerifier_Hash(t *testing.T) {
	h, err := bcrypt.GenerateFromPassword([]byte("s3cret"), bcrypt.MinCost)
	require.NoError(t, err)

	v, err := NewVerifier("ignored", string(h))
	require.NoError(t, err)

	assert.True(t, v.Verify("s3cret"))
	assert.True(t, v.Verify("s3cret"), "cached path")
	assert.False(t, v.Verify("ignored"), "hash takes precedence over the plain key")
	assert.False(t, v.Verify(""))
}

func TestNewVerifier_Errors(t *testing.T) {
	_, err := NewVerifier("", "")
	assert.ErrorIs(t, err, ErrNoKey)

	_, err = NewVerifier("", "not-a-bcrypt-hash")
	assert.Error(t, err)
}

func TestHashKey(t *testing.T) {
	h, err := HashKey("  wh_0123456789abcdef  ")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(h, "$2a$"))

	v, err := NewVerifier("", h)
	require.NoError(t, err)
	assert.True(t, v.Verify("wh_0123456789abcdef"))

	_, err = HashKey("   ")
	assert.ErrorIs(t, err, ErrNoKey)
}

func TestCheckKeyStrength(t *testing.T) {
	tests := []struct {
		key  string
		weak bool
	}{
		{"wh_6f1c2a9b0d4e8f7a3c5b1e2d9f0a4c6b8e7d1f3a5c9b2e4d", false},
		{"Correct-Horse-Battery-9", false},
		{"short", true},
		{"aaaaaaaaaaaaaaaaaaaa", true},
		{"abcdabcdabcdabcdabcd", true},
		{"changemechangeme", true},
		{"abcdefghijklmnop", true},
	}
	for _, tt := range tests {
		err := CheckKeyStrength(tt.key)
		assert.Equal(t, tt.weak, err != nil, "key %q: %v", tt.key, err)
	}
}

func TestKeyEntropy(t *testing.T) {
	assert.Zero(t, KeyEntropy(""))
	assert.InDelta(t, 16*4.70, KeyEntropy("abcdefghijklmnop"), 0.1)
	assert.Greater(t, KeyEntropy("Ab1!"), KeyEntropy("abcd"))
}
