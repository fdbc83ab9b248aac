// Package credential implements C9: round-tripping the access/refresh
// tokens stored on an Account. Tokens are encrypted at rest with
// AES-256-GCM under a key derived from a passphrase and a fixed
// process salt via PBKDF2; ciphertext is framed as base64(iv || sealed).
package credential

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"io"

	"golang.org/x/crypto/pbkdf2"
)

const (
	pbkdf2Iterations = 100000
	gcmNonceSize     = 12
	keySize          = 32 // AES-256
)

// DeriveKey derives a 32-byte AES-256 key from passphrase and salt
// using PBKDF2-HMAC-SHA256 with 100,000 iterations.
func DeriveKey(passphrase, salt []byte) []byte {
	return pbkdf2.Key(passphrase, salt, pbkdf2Iterations, keySize, sha256.New)
}

// Encrypt seals plaintext under key with a fresh random 12-byte nonce,
// returning base64(nonce || ciphertext).
func Encrypt(plaintext, key []byte) (string, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", fmt.Errorf("credential: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return "", fmt.Errorf("credential: new gcm: %w", err)
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("credential: generate nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, nil)
	framed := append(nonce, sealed...)
	return base64.StdEncoding.EncodeToString(framed), nil
}

// Decrypt reverses Encrypt: base64-decodes ciphertext, splits off the
// 12-byte nonce prefix, and opens the AES-GCM seal under key.
func Decrypt(ciphertext string, key []byte) ([]byte, error) {
	framed, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return nil, fmt.Errorf("credential: decode base64: %w", err)
	}
	if len(framed) < gcmNonceSize {
		return nil, fmt.Errorf("credential: ciphertext shorter than nonce prefix")
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credential: new cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credential: new gcm: %w", err)
	}

	nonce, sealed := framed[:gcmNonceSize], framed[gcmNonceSize:]
	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, fmt.Errorf("credential: decryption failed: %w", err)
	}
	return plaintext, nil
}
