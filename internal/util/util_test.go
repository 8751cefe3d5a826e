package util

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncryptDecryptAESWithAAD(t *testing.T) {
	key, err := RandomBytes(AESKeySize)
	require.NoError(t, err)

	plaintext := []byte("bearer-token-material")
	aad := []byte("device:rec:1")

	sealed, err := EncryptAESWithAAD(plaintext, key, aad)
	require.NoError(t, err)
	assert.NotEqual(t, plaintext, sealed)

	opened, err := DecryptAESWithAAD(sealed, key, aad)
	require.NoError(t, err)
	assert.Equal(t, plaintext, opened)
}

func TestDecryptAESWithAAD_WrongAAD(t *testing.T) {
	key, err := RandomBytes(AESKeySize)
	require.NoError(t, err)

	sealed, err := EncryptAESWithAAD([]byte("secret"), key, []byte("gen:1"))
	require.NoError(t, err)

	_, err = DecryptAESWithAAD(sealed, key, []byte("gen:2"))
	assert.Error(t, err)
}

func TestEncryptAES_InvalidKeySize(t *testing.T) {
	_, err := EncryptAESWithAAD([]byte("x"), []byte("short"), nil)
	assert.Error(t, err)
}

func TestWipeBytes(t *testing.T) {
	b := []byte{1, 2, 3}
	WipeBytes(b)
	assert.Equal(t, []byte{0, 0, 0}, b)
}

func TestNormalize(t *testing.T) {
	// Composed and decomposed forms of the same string normalize equal.
	assert.Equal(t, Normalize("café"), Normalize("café"))
}

func TestHexRoundTrip(t *testing.T) {
	b, err := RandomBytes(16)
	require.NoError(t, err)
	decoded, err := HexDecode(HexEncode(b))
	require.NoError(t, err)
	assert.Equal(t, b, decoded)
}
