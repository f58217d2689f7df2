// Package crypto provides EIP-712 signing, HMAC request authentication, and
// at-rest encryption of per-user venue credentials.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// pbkdf2Iterations is the OWASP-recommended minimum for HMAC-SHA256.
	pbkdf2Iterations = 480_000
	// saltLen is the random salt length in bytes.
	saltLen = 16
	// aesKeyLen is the derived AES-256 key length.
	aesKeyLen = 32
)

// CredsCipher encrypts and decrypts short secrets (API secrets, passphrases)
// with a server-level passphrase. Each Encrypt call derives a fresh key from
// a random salt, so identical plaintexts produce distinct blobs.
type CredsCipher struct {
	passphrase []byte
}

// NewCredsCipher creates a cipher from the configured server passphrase.
func NewCredsCipher(passphrase string) (*CredsCipher, error) {
	if passphrase == "" {
		return nil, errors.New("crypto: creds passphrase must not be empty")
	}
	return &CredsCipher{passphrase: []byte(passphrase)}, nil
}

// Encrypt seals the plaintext with PBKDF2-HMAC-SHA256 key derivation and
// AES-256-GCM. The returned blob is base64(salt || nonce || ciphertext).
func (c *CredsCipher) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("crypto: generating salt: %w", err)
	}

	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("crypto: generating nonce: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	blob := make([]byte, 0, len(salt)+len(nonce)+len(sealed))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, sealed...)
	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt opens a blob produced by Encrypt.
func (c *CredsCipher) Decrypt(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("crypto: decoding blob: %w", err)
	}
	if len(blob) < saltLen {
		return "", errors.New("crypto: blob too short")
	}

	salt := blob[:saltLen]
	gcm, err := c.gcm(salt)
	if err != nil {
		return "", err
	}
	if len(blob) < saltLen+gcm.NonceSize() {
		return "", errors.New("crypto: blob too short")
	}

	nonce := blob[saltLen : saltLen+gcm.NonceSize()]
	sealed := blob[saltLen+gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("crypto: decryption failed (wrong key?): %w", err)
	}
	return string(plaintext), nil
}

func (c *CredsCipher) gcm(salt []byte) (cipher.AEAD, error) {
	derivedKey := pbkdf2.Key(c.passphrase, salt, pbkdf2Iterations, aesKeyLen, sha256.New)

	block, err := aes.NewCipher(derivedKey)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("crypto: creating GCM: %w", err)
	}
	return gcm, nil
}
