// Sentinel - Security Observability & Threat Response for WagerDeck
// Copyright 2026 WagerDeck Engineering
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/wagerdeck/sentinel

package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"sync"

	"golang.org/x/crypto/hkdf"
	"golang.org/x/crypto/pbkdf2"
)

const (
	// fieldEncryptionSalt binds HKDF subkeys to this application's field
	// encryption use case.
	fieldEncryptionSalt = "wagerdeck-field-encryption"

	// fieldEncryptionInfoPrefix prefixes the caller-supplied context string
	// in the HKDF info parameter. Versioned so the derivation can rotate.
	fieldEncryptionInfoPrefix = "field-encryption-v1:"

	// aesKeySize is the size of the AES key in bytes (256 bits).
	aesKeySize = 32

	// gcmNonceSize is the size of the GCM nonce in bytes.
	gcmNonceSize = 12

	// MinSecretLength is the minimum accepted master secret length.
	MinSecretLength = 32

	// DefaultPBKDF2Iterations is the iteration count used when callers do
	// not specify one.
	DefaultPBKDF2Iterations = 600000
)

var (
	// ErrWeakSecret is returned when the master secret is missing or too short.
	ErrWeakSecret = fmt.Errorf("master secret must be at least %d bytes", MinSecretLength)

	// ErrEmptyPlaintext is returned when attempting to encrypt empty data.
	ErrEmptyPlaintext = errors.New("plaintext cannot be empty")

	// ErrEmptyCiphertext is returned when attempting to decrypt empty data.
	ErrEmptyCiphertext = errors.New("ciphertext cannot be empty")

	// ErrEmptyContext is returned when the encryption context string is empty.
	ErrEmptyContext = errors.New("encryption context cannot be empty")

	// ErrDecryptionFailed is returned when decryption fails. The cause is
	// deliberately not distinguished: tampered data, a truncated ciphertext,
	// and a context mismatch all produce the same error.
	ErrDecryptionFailed = errors.New("decryption failed: invalid ciphertext or authentication tag")

	// ErrInvalidCiphertext is returned when the ciphertext encoding is invalid.
	ErrInvalidCiphertext = errors.New("invalid ciphertext format")
)

// Service provides the cryptographic operations used across the platform.
// A Service is safe for concurrent use.
type Service struct {
	masterSecret []byte

	// aeadCache holds one AEAD per encryption context. Contexts are a small
	// closed set in practice (field names), so the cache is unbounded.
	mu        sync.RWMutex
	aeadCache map[string]cipher.AEAD
}

// NewService creates a Service from the master secret. The secret must be at
// least MinSecretLength bytes; anything shorter fails fast so a
// misconfigured deployment cannot start with weak key material.
func NewService(masterSecret string) (*Service, error) {
	if len(masterSecret) < MinSecretLength {
		return nil, ErrWeakSecret
	}

	return &Service{
		masterSecret: []byte(masterSecret),
		aeadCache:    make(map[string]cipher.AEAD),
	}, nil
}

// DeriveKey derives a key of the requested length from a secret and salt
// using PBKDF2-SHA256. Pass iterations <= 0 to use DefaultPBKDF2Iterations.
func DeriveKey(secret, salt []byte, iterations, keyLen int) []byte {
	if iterations <= 0 {
		iterations = DefaultPBKDF2Iterations
	}
	return pbkdf2.Key(secret, salt, iterations, keyLen, sha256.New)
}

// SubkeyFor derives a purpose-bound subkey from the master secret using
// HKDF-SHA256. Distinct info strings yield independent keys, which is how
// the token service obtains separate header and cookie secrets.
func (s *Service) SubkeyFor(info string) []byte {
	r := hkdf.New(sha256.New, s.masterSecret, []byte(fieldEncryptionSalt), []byte(info))
	key := make([]byte, aesKeySize)
	if _, err := io.ReadFull(r, key); err != nil {
		// HKDF-SHA256 over a fixed-size output cannot fail to produce bytes.
		panic(fmt.Sprintf("hkdf read: %v", err))
	}
	return key
}

// EncryptField encrypts plaintext bound to the given context string and
// returns a base64-encoded ciphertext of the form base64(nonce || sealed).
func (s *Service) EncryptField(plaintext, context string) (string, error) {
	if plaintext == "" {
		return "", ErrEmptyPlaintext
	}

	aead, err := s.aeadFor(context)
	if err != nil {
		return "", err
	}

	nonce := make([]byte, gcmNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}

	sealed := aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return base64.StdEncoding.EncodeToString(sealed), nil
}

// DecryptField decrypts a ciphertext produced by EncryptField with the same
// context string. Any failure returns ErrDecryptionFailed (or a format
// error) and never partial plaintext.
func (s *Service) DecryptField(ciphertext, context string) (string, error) {
	if ciphertext == "" {
		return "", ErrEmptyCiphertext
	}

	aead, err := s.aeadFor(context)
	if err != nil {
		return "", err
	}

	data, err := base64.StdEncoding.DecodeString(ciphertext)
	if err != nil {
		return "", fmt.Errorf("%w: base64 decode failed", ErrInvalidCiphertext)
	}

	minLength := gcmNonceSize + 1 + aead.Overhead()
	if len(data) < minLength {
		return "", ErrDecryptionFailed
	}

	nonce := data[:gcmNonceSize]
	plaintext, err := aead.Open(nil, nonce, data[gcmNonceSize:], nil)
	if err != nil {
		return "", ErrDecryptionFailed
	}

	return string(plaintext), nil
}

// aeadFor returns the cached AEAD for a context, constructing it on first use.
func (s *Service) aeadFor(context string) (cipher.AEAD, error) {
	if context == "" {
		return nil, ErrEmptyContext
	}

	s.mu.RLock()
	aead, ok := s.aeadCache[context]
	s.mu.RUnlock()
	if ok {
		return aead, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if aead, ok = s.aeadCache[context]; ok {
		return aead, nil
	}

	key := s.SubkeyFor(fieldEncryptionInfoPrefix + context)
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err = cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}

	s.aeadCache[context] = aead
	return aead, nil
}

// Hash returns the hex-encoded SHA-256 digest of data. Used for integrity
// checks, not password storage.
func Hash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// HMACSign computes a hex-encoded HMAC-SHA256 signature of data with key.
func HMACSign(key, data []byte) string {
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hex.EncodeToString(mac.Sum(nil))
}

// HMACVerify reports whether signature is a valid HMAC-SHA256 of data under
// key. Comparison is constant-time.
func HMACVerify(key, data []byte, signature string) bool {
	sig, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	mac := hmac.New(sha256.New, key)
	mac.Write(data)
	return hmac.Equal(mac.Sum(nil), sig)
}

// ConstantTimeEquals compares two strings without leaking the position of
// the first differing byte.
func ConstantTimeEquals(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// RandomToken returns a hex-encoded token of n random bytes from crypto/rand.
func RandomToken(n int) (string, error) {
	if n <= 0 {
		return "", errors.New("token length must be positive")
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, buf); err != nil {
		return "", fmt.Errorf("failed to read random bytes: %w", err)
	}
	return hex.EncodeToString(buf), nil
}

// MaskSecret returns a masked version of a secret for display, showing only
// the last 4 characters.
func MaskSecret(secret string) string {
	if secret == "" {
		return ""
	}
	if len(secret) <= 4 {
		return "****"
	}
	return "****..." + secret[len(secret)-4:]
}
