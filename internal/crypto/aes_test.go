package crypto

import (
	"bytes"
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testKey() []byte { return bytes.Repeat([]byte{7}, 32) }

func TestCodecRoundTrip(t *testing.T) {
	c, err := NewCodec(testKey())
	require.NoError(t, err)

	for _, in := range []string{"", "hello", "héllo wörld 👋", string(bytes.Repeat([]byte("x"), 4096))} {
		ct, err := c.Encrypt(in)
		require.NoError(t, err)
		if in != "" {
			assert.NotContains(t, ct, in)
		}
		out, err := c.Decrypt(ct)
		require.NoError(t, err)
		assert.Equal(t, in, out)
	}
}

func TestCodecUsesFreshNonce(t *testing.T) {
	c, err := NewCodec(testKey())
	require.NoError(t, err)
	a, _ := c.Encrypt("same")
	b, _ := c.Encrypt("same")
	assert.NotEqual(t, a, b)
}

func TestCodecRejectsWrongKeySize(t *testing.T) {
	_, err := NewCodec([]byte("short"))
	assert.ErrorIs(t, err, ErrKeySize)
}

func TestCodecFromBase64(t *testing.T) {
	c, err := NewCodecFromBase64(base64.StdEncoding.EncodeToString(testKey()))
	require.NoError(t, err)
	ct, err := c.Encrypt("hi")
	require.NoError(t, err)
	out, err := c.Decrypt(ct)
	require.NoError(t, err)
	assert.Equal(t, "hi", out)
}

func TestDecryptWithOtherKeyFails(t *testing.T) {
	a, _ := NewCodec(testKey())
	b, _ := NewCodec(bytes.Repeat([]byte{9}, 32))
	ct, err := a.Encrypt("secret")
	require.NoError(t, err)
	_, err = b.Decrypt(ct)
	assert.Error(t, err)
}

func TestDecryptPlaintextIsNotRecoverable(t *testing.T) {
	c, _ := NewCodec(testKey())
	_, err := c.Decrypt("[image]")
	assert.Error(t, err)
}
