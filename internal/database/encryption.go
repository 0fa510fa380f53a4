package database

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"fmt"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"wabadash/internal/constants"
)

// Encryptor seals secret settings columns with AES-GCM. A disabled Encryptor
// passes values through unchanged. Sealed values carry a version prefix so
// rows written before encryption was enabled still read back.
type Encryptor struct {
	gcm cipher.AEAD
}

// NewEncryptor derives a key from secret. An empty secret disables encryption.
func NewEncryptor(secret string) (*Encryptor, error) {
	if secret == "" {
		return &Encryptor{}, nil
	}
	if len(secret) < constants.MinEncryptionSecretLen {
		return nil, fmt.Errorf("encryption secret must be at least %d characters long", constants.MinEncryptionSecretLen)
	}

	key := pbkdf2.Key([]byte(secret), []byte(constants.EncryptionSalt),
		constants.EncryptionIterations, constants.EncryptionKeySize, sha256.New)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	return &Encryptor{gcm: gcm}, nil
}

func (e *Encryptor) Enabled() bool {
	return e != nil && e.gcm != nil
}

// Encrypt seals plaintext. Empty values stay empty.
func (e *Encryptor) Encrypt(plaintext string) (string, error) {
	if plaintext == "" || !e.Enabled() {
		return plaintext, nil
	}

	nonce := make([]byte, constants.EncryptionNonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := e.gcm.Seal(nonce, nonce, []byte(plaintext), nil)
	return constants.EncryptedValuePrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// Decrypt opens a sealed value. Values without the prefix are returned as is.
func (e *Encryptor) Decrypt(value string) (string, error) {
	encoded, sealed := strings.CutPrefix(value, constants.EncryptedValuePrefix)
	if !sealed {
		return value, nil
	}
	if !e.Enabled() {
		return "", fmt.Errorf("value is encrypted but no encryption secret is configured")
	}

	data, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return "", fmt.Errorf("failed to decode base64: %w", err)
	}
	if len(data) < constants.EncryptionNonceSize {
		return "", fmt.Errorf("ciphertext too short")
	}

	nonce, ciphertext := data[:constants.EncryptionNonceSize], data[constants.EncryptionNonceSize:]
	plaintext, err := e.gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return "", fmt.Errorf("failed to decrypt: %w", err)
	}
	return string(plaintext), nil
}

// SealSettings encrypts the secret settings columns
func (e *Encryptor) SealSettings(accessToken, webhookSecret string) (string, string, error) {
	token, err := e.Encrypt(accessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt access token: %w", err)
	}
	secret, err := e.Encrypt(webhookSecret)
	if err != nil {
		return "", "", fmt.Errorf("failed to encrypt webhook secret: %w", err)
	}
	return token, secret, nil
}

// OpenSettings decrypts the secret columns
func (e *Encryptor) OpenSettings(accessToken, webhookSecret string) (string, string, error) {
	token, err := e.Decrypt(accessToken)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt access token: %w", err)
	}
	secret, err := e.Decrypt(webhookSecret)
	if err != nil {
		return "", "", fmt.Errorf("failed to decrypt webhook secret: %w", err)
	}
	return token, secret, nil
}
