// Package credstore encrypts credential RSA key material at rest and
// resolves the active wallet credential for a merchant.
package credstore

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
	pbkdf2Iterations = 200_000
	saltSize         = 16
	keySize          = 32 // AES-256
)

// Encryptor encrypts/decrypts credential secrets (private_key, public_key)
// under a master key, deriving a per-value key via PBKDF2-HMAC-SHA256 with
// a random salt and sealing with AES-256-GCM. Each encrypted value carries
// its own salt and nonce, so no key material is ever reused across values.
type Encryptor struct {
	masterSecret []byte
}

// NewEncryptor builds an Encryptor from the operator's master secret (the
// QIUPAY_CREDENTIAL_ENCRYPTION_KEY environment value). An empty secret is
// rejected: silently encrypting under a zero key would be worse than
// failing at wiring time.
func NewEncryptor(masterSecret string) (*Encryptor, error) {
	if masterSecret == "" {
		return nil, fmt.Errorf("credstore: master encryption secret is required")
	}
	return &Encryptor{masterSecret: []byte(masterSecret)}, nil
}

// Encrypt seals plaintext and returns a base64-encoded blob of
// salt || nonce || ciphertext.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("credstore: generate salt: %w", err)
	}

	gcm, err := e.gcmForSalt(salt)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("credstore: generate nonce: %w", err)
	}

	ciphertext := gcm.Seal(nil, nonce, []byte(plaintext), nil)

	blob := make([]byte, 0, len(salt)+len(nonce)+len(ciphertext))
	blob = append(blob, salt...)
	blob = append(blob, nonce...)
	blob = append(blob, ciphertext...)

	return base64.StdEncoding.EncodeToString(blob), nil
}

// Decrypt reverses Encrypt.
func (e *Encryptor) Decrypt(encoded string) (string, error) {
	blob, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("credstore: decode blob: %w", err)
	}
	if len(blob) < saltSize {
		return "", fmt.Errorf("credstore: blob too short")
	}
	salt := blob[:saltSize]

	gcm, err := e.gcmForSalt(salt)
	if err != nil {
		return "", err
	}
	if len(blob) < saltSize+gcm.NonceSize() {
		return "", fmt.Errorf("credstore: blob too short for nonce")
	}
	nonce := blob[saltSize : saltSize+gcm.NonceSize()]
	ciphertext := blob[saltSize+gcm.NonceSize():]

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("credstore: decrypt: %w", err)
	}
	return string(plaintext), nil
}

func (e *Encryptor) gcmForSalt(salt []byte) (cipher.AEAD, error) {
	key := pbkdf2.Key(e.masterSecret, salt, pbkdf2Iterations, keySize, sha256.New)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("credstore: build cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("credstore: build gcm: %w", err)
	}
	return gcm, nil
}
