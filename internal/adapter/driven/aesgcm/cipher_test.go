package aesgcm

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
)

func testKey() []byte {
	key := make([]byte, KeySize)
	for i := range key {
		key[i] = byte(i + 1)
	}
	return key
}

func newTestCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New(testKey(), nil)
	require.NoError(t, err)
	return c
}

func TestCipher_RoundTrip(t *testing.T) {
	c := newTestCipher(t)

	inputs := []string{
		"a",
		"ghp_abc123",
		`{"username":"joao","password":"s3cr3t"}`,
		strings.Repeat("MIIKZgIBAzCCCi", 500),
		"acentuação çãõ 日本語",
	}

	for _, in := range inputs {
		token, err := c.Encrypt(in)
		require.NoError(t, err)

		out, err := c.Decrypt(token)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestCipher_TokenFormat(t *testing.T) {
	c := newTestCipher(t)

	token, err := c.Encrypt("payload")
	require.NoError(t, err)

	parts := strings.Split(token, ":")
	require.Len(t, parts, 3)

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	require.NoError(t, err)
	assert.Len(t, iv, 16)

	tag, err := base64.StdEncoding.DecodeString(parts[1])
	require.NoError(t, err)
	assert.Len(t, tag, 16)
}

func TestCipher_FreshIVPerCall(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.Encrypt("same input")
	require.NoError(t, err)
	b, err := c.Encrypt("same input")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.NotEqual(t, strings.Split(a, ":")[0], strings.Split(b, ":")[0])
}

func TestCipher_EncryptEmpty(t *testing.T) {
	c := newTestCipher(t)

	_, err := c.Encrypt("")
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrEncryption)
}

func TestCipher_DecryptMalformed(t *testing.T) {
	c := newTestCipher(t)

	for _, token := range []string{"", "onlyone", "a:b", "a:b:c:d", "!!!:???:***"} {
		_, err := c.Decrypt(token)
		require.Error(t, err, token)
		assert.ErrorIs(t, err, model.ErrDecryption, token)
	}
}

// flipByte flips one byte of a base64 segment of the token.
func flipByte(t *testing.T, token string, segment, index int) string {
	t.Helper()
	parts := strings.Split(token, ":")
	raw, err := base64.StdEncoding.DecodeString(parts[segment])
	require.NoError(t, err)
	raw[index%len(raw)] ^= 0xFF
	parts[segment] = base64.StdEncoding.EncodeToString(raw)
	return strings.Join(parts, ":")
}

func TestCipher_TamperDetection(t *testing.T) {
	c := newTestCipher(t)

	token, err := c.Encrypt("certificate bytes go here")
	require.NoError(t, err)

	ciphertextLen := len("certificate bytes go here")

	for i := 0; i < 16; i++ {
		_, err := c.Decrypt(flipByte(t, token, 1, i))
		assert.ErrorIs(t, err, model.ErrDecryption, "tag byte %d", i)
	}
	for i := 0; i < ciphertextLen; i++ {
		_, err := c.Decrypt(flipByte(t, token, 2, i))
		assert.ErrorIs(t, err, model.ErrDecryption, "ciphertext byte %d", i)
	}
	for i := 0; i < 16; i++ {
		_, err := c.Decrypt(flipByte(t, token, 0, i))
		assert.ErrorIs(t, err, model.ErrDecryption, "iv byte %d", i)
	}
}

func TestCipher_WrongKey(t *testing.T) {
	c := newTestCipher(t)
	token, err := c.Encrypt("secret")
	require.NoError(t, err)

	otherKey := testKey()
	otherKey[0] ^= 0x01
	other, err := New(otherKey, nil)
	require.NoError(t, err)

	_, err = other.Decrypt(token)
	assert.ErrorIs(t, err, model.ErrDecryption)
}

func TestNew_InvalidKeyLength(t *testing.T) {
	_, err := New([]byte("too-short"), nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "32 bytes")
}

func TestNew_NilKeyIsEphemeral(t *testing.T) {
	c, err := New(nil, nil)
	require.NoError(t, err)
	assert.True(t, c.Ephemeral())

	token, err := c.Encrypt("works anyway")
	require.NoError(t, err)
	out, err := c.Decrypt(token)
	require.NoError(t, err)
	assert.Equal(t, "works anyway", out)

	assert.False(t, newTestCipher(t).Ephemeral())
}

func TestHashPassword_Verify(t *testing.T) {
	c := newTestCipher(t)

	hash, err := c.HashPassword("cert-pass")
	require.NoError(t, err)

	salt, digest, ok := strings.Cut(hash, ":")
	require.True(t, ok)
	assert.Len(t, salt, 32)
	assert.Len(t, digest, 128)

	assert.True(t, c.VerifyPassword("cert-pass", hash))
	assert.False(t, c.VerifyPassword("wrong", hash))
	assert.False(t, c.VerifyPassword("", hash))
}

func TestHashPassword_SaltedPerCall(t *testing.T) {
	c := newTestCipher(t)

	a, err := c.HashPassword("same")
	require.NoError(t, err)
	b, err := c.HashPassword("same")
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
}

func TestVerifyPassword_Malformed(t *testing.T) {
	c := newTestCipher(t)

	for _, stored := range []string{"", "nocolon", "zz:zz", "00:abcd", ":"} {
		assert.False(t, c.VerifyPassword("anything", stored), stored)
	}
}
