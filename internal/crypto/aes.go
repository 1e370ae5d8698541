package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
)

var (
	ErrKeySize    = errors.New("message key must be 32 bytes (AES-256)")
	ErrCiphertext = errors.New("ciphertext too short")
)

// Codec encrypts message text with one process-wide AES-256-GCM key.
// Stored form is base64(nonce || sealed). There is no key versioning:
// changing the key makes every previously stored ciphertext unreadable.
type Codec struct {
	gcm cipher.AEAD
}

func NewCodec(key []byte) (*Codec, error) {
	if len(key) != 32 {
		return nil, ErrKeySize
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, err
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, err
	}
	return &Codec{gcm: gcm}, nil
}

// NewCodecFromBase64 decodes a base64 key as found in config.
func NewCodecFromBase64(key string) (*Codec, error) {
	raw, err := base64.StdEncoding.DecodeString(key)
	if err != nil {
		return nil, fmt.Errorf("decode message key: %w", err)
	}
	return NewCodec(raw)
}

func (c *Codec) Encrypt(plaintext string) (string, error) {
	out := make([]byte, c.gcm.NonceSize(), c.gcm.NonceSize()+len(plaintext)+c.gcm.Overhead())
	if _, err := rand.Read(out); err != nil {
		return "", err
	}
	out = c.gcm.Seal(out, out, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(out), nil
}

func (c *Codec) Decrypt(ciphertext string) (string, error) {
	raw, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", err
	}
	n := c.gcm.NonceSize()
	if len(raw) < n {
		return "", ErrCiphertext
	}
	plain, err := c.gcm.Open(nil, raw[:n], raw[n:], nil)
	if err != nil {
		return "", err
	}
	return string(plain), nil
}
