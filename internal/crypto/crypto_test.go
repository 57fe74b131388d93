package crypto

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testCipher(t *testing.T) *Cipher {
	t.Helper()
	c, err := New([]byte("32-byte-key-for-aes-encryption!!"))
	require.NoError(t, err)
	return c
}

func TestEncryptDecrypt(t *testing.T) {
	c := testCipher(t)

	ciphertext, nonce, err := c.Encrypt("admin@cityhospital.example")
	require.NoError(t, err)
	assert.NotEmpty(t, ciphertext)
	assert.NotEmpty(t, nonce)

	plaintext, err := c.Decrypt(ciphertext, nonce)
	require.NoError(t, err)
	assert.Equal(t, "admin@cityhospital.example", plaintext)
}

func TestEncrypt_NoncesDiffer(t *testing.T) {
	c := testCipher(t)

	_, n1, err := c.Encrypt("same input")
	require.NoError(t, err)
	_, n2, err := c.Encrypt("same input")
	require.NoError(t, err)
	assert.NotEqual(t, n1, n2)
}

func TestDecrypt_TamperedCiphertext(t *testing.T) {
	c := testCipher(t)

	ciphertext, nonce, err := c.Encrypt("sensitive")
	require.NoError(t, err)

	ciphertext[0] ^= 0xff
	_, err = c.Decrypt(ciphertext, nonce)
	assert.Error(t, err)
}

func TestNew_KeyLengths(t *testing.T) {
	_, err := New([]byte("short"))
	assert.Error(t, err)
	_, err = New(make([]byte, 31))
	assert.Error(t, err)

	for _, n := range []int{16, 24, 32} {
		_, err := New(make([]byte, n))
		assert.NoError(t, err)
	}
}

// A record written under one key is unreadable under another; mismatched key
// configuration surfaces as a decrypt error, never as silent garbage.
func TestDecrypt_WrongKey(t *testing.T) {
	writer, err := New([]byte("32-byte-key-for-aes-encryption!!"))
	require.NoError(t, err)
	reader, err := New([]byte("another-32-byte-key-entirely-set"))
	require.NoError(t, err)

	ciphertext, nonce, err := writer.Encrypt("admin@city.example")
	require.NoError(t, err)

	_, err = reader.Decrypt(ciphertext, nonce)
	assert.Error(t, err)
}
