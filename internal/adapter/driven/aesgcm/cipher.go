// Package aesgcm implements the Cipher port with AES-256-GCM encryption and
// PBKDF2-SHA512 password hashing.
package aesgcm

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/ericfisherdev/fiscalkeeper/internal/domain/model"
	"github.com/ericfisherdev/fiscalkeeper/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Cipher = (*Cipher)(nil)

const (
	// KeySize is the AES-256 key length in bytes.
	KeySize = 32

	ivSize  = 16
	tagSize = 16

	// Token segments are base64(iv), base64(tag), base64(ciphertext).
	segmentSeparator = ":"

	saltSize          = 16
	hashIterations    = 10000
	hashKeyLength     = 64
	hashSaltSeparator = ":"
)

// Cipher encrypts credential payloads. A Cipher is safe for concurrent use.
type Cipher struct {
	aead      cipher.AEAD
	ephemeral bool
}

// New creates a Cipher from a 32-byte key. A nil key makes New generate a
// random process-local key: data encrypted with it is unreadable after a
// restart, so the condition is logged loudly and reported by Ephemeral.
func New(key []byte, logger *slog.Logger) (*Cipher, error) {
	ephemeral := false
	if key == nil {
		key = make([]byte, KeySize)
		if _, err := io.ReadFull(rand.Reader, key); err != nil {
			return nil, fmt.Errorf("generate temporary key: %w", err)
		}
		ephemeral = true
		if logger == nil {
			logger = slog.Default()
		}
		logger.Warn("ENCRYPTION KEY NOT CONFIGURED: using a temporary key, stored credentials will be unreadable after restart",
			"env", "FISCALKEEPER_ENCRYPTION_KEY",
		)
	}

	if len(key) != KeySize {
		return nil, fmt.Errorf("encryption key must be %d bytes, got %d", KeySize, len(key))
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("aes.NewCipher: %w", err)
	}
	aead, err := cipher.NewGCMWithNonceSize(block, ivSize)
	if err != nil {
		return nil, fmt.Errorf("cipher.NewGCMWithNonceSize: %w", err)
	}

	return &Cipher{aead: aead, ephemeral: ephemeral}, nil
}

// Ephemeral reports whether the cipher runs on a generated temporary key.
func (c *Cipher) Ephemeral() bool {
	return c.ephemeral
}

// Encrypt seals plaintext under a fresh random IV and returns
// "base64(iv):base64(tag):base64(ciphertext)".
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	if plaintext == "" {
		return "", fmt.Errorf("%w: empty plaintext", model.ErrEncryption)
	}

	iv := make([]byte, ivSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return "", fmt.Errorf("%w: rand iv: %v", model.ErrEncryption, err)
	}

	// Seal returns ciphertext || tag.
	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	ciphertext, tag := sealed[:len(sealed)-tagSize], sealed[len(sealed)-tagSize:]

	return strings.Join([]string{
		base64.StdEncoding.EncodeToString(iv),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}, segmentSeparator), nil
}

// Decrypt opens a token produced by Encrypt. Malformed tokens and failed
// authentication both return an error wrapping model.ErrDecryption.
func (c *Cipher) Decrypt(token string) (string, error) {
	parts := strings.Split(token, segmentSeparator)
	if len(parts) != 3 {
		return "", fmt.Errorf("%w: malformed token: expected 3 segments, got %d", model.ErrDecryption, len(parts))
	}

	iv, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil || len(iv) != ivSize {
		return "", fmt.Errorf("%w: malformed iv", model.ErrDecryption)
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil || len(tag) != tagSize {
		return "", fmt.Errorf("%w: malformed auth tag", model.ErrDecryption)
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return "", fmt.Errorf("%w: malformed ciphertext", model.ErrDecryption)
	}

	sealed := make([]byte, 0, len(ciphertext)+tagSize)
	sealed = append(sealed, ciphertext...)
	sealed = append(sealed, tag...)

	plaintext, err := c.aead.Open(nil, iv, sealed, nil)
	if err != nil {
		return "", fmt.Errorf("%w: authentication failed (tampered data or wrong key)", model.ErrDecryption)
	}

	return string(plaintext), nil
}

// HashPassword derives a salted PBKDF2-SHA512 hash and returns "hex(salt):hex(hash)".
func (c *Cipher) HashPassword(password string) (string, error) {
	salt := make([]byte, saltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return "", fmt.Errorf("%w: rand salt: %v", model.ErrEncryption, err)
	}

	hash := pbkdf2.Key([]byte(password), salt, hashIterations, hashKeyLength, sha512.New)
	return hex.EncodeToString(salt) + hashSaltSeparator + hex.EncodeToString(hash), nil
}

// VerifyPassword recomputes the hash with the stored salt. Malformed stored
// values never match.
func (c *Cipher) VerifyPassword(password, stored string) bool {
	saltHex, hashHex, ok := strings.Cut(stored, hashSaltSeparator)
	if !ok {
		return false
	}
	salt, err := hex.DecodeString(saltHex)
	if err != nil || len(salt) == 0 {
		return false
	}
	want, err := hex.DecodeString(hashHex)
	if err != nil || len(want) != hashKeyLength {
		return false
	}

	got := pbkdf2.Key([]byte(password), salt, hashIterations, hashKeyLength, sha512.New)
	return subtle.ConstantTimeCompare(got, want) == 1
}
