// Package vault provides authenticated symmetric encryption for per-store
// database credentials. Ciphertext is framed as three colon-joined base64
// segments (nonce:tag:ciphertext) so external tooling can inspect the master
// database without a binary envelope format. The framing is load-bearing and
// must stay bit-for-bit compatible.
package vault

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"strings"
)

const (
	keySize   = 32 // AES-256
	nonceSize = 16
	tagSize   = 16
)

// CryptoError wraps any key, framing, or authentication failure. It is always
// fatal to the operation that produced it; callers must never treat it as a
// soft miss.
type CryptoError struct {
	Op  string
	Err error
}

func (e *CryptoError) Error() string {
	return fmt.Sprintf("vault: %s: %v", e.Op, e.Err)
}

func (e *CryptoError) Unwrap() error { return e.Err }

// IsCryptoError reports whether err is (or wraps) a CryptoError.
func IsCryptoError(err error) bool {
	var ce *CryptoError
	return errors.As(err, &ce)
}

// Vault holds the process-wide symmetric key. Construct once at startup and
// inject wherever credentials are sealed or opened.
type Vault struct {
	aead cipher.AEAD
}

// NewFromBase64Key builds a Vault from a base64-encoded 256-bit key. A
// missing or wrong-length key is a startup failure, not a runtime one.
func NewFromBase64Key(encoded string) (*Vault, error) {
	if strings.TrimSpace(encoded) == "" {
		return nil, &CryptoError{Op: "init", Err: errors.New("encryption key is not configured")}
	}

	key, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, &CryptoError{Op: "init", Err: fmt.Errorf("decode key: %w", err)}
	}
	if len(key) != keySize {
		return nil, &CryptoError{Op: "init", Err: fmt.Errorf("key must be %d bytes, got %d", keySize, len(key))}
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, &CryptoError{Op: "init", Err: err}
	}
	aead, err := cipher.NewGCMWithNonceSize(block, nonceSize)
	if err != nil {
		return nil, &CryptoError{Op: "init", Err: err}
	}

	return &Vault{aead: aead}, nil
}

// Encrypt seals plaintext under a fresh random nonce and returns the
// nonce:tag:ciphertext framing.
func (v *Vault) Encrypt(plaintext []byte) (string, error) {
	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return "", &CryptoError{Op: "encrypt", Err: fmt.Errorf("generate nonce: %w", err)}
	}

	sealed := v.aead.Seal(nil, nonce, plaintext, nil)
	ciphertext := sealed[:len(sealed)-tagSize]
	tag := sealed[len(sealed)-tagSize:]

	parts := []string{
		base64.StdEncoding.EncodeToString(nonce),
		base64.StdEncoding.EncodeToString(tag),
		base64.StdEncoding.EncodeToString(ciphertext),
	}
	return strings.Join(parts, ":"), nil
}

// Decrypt opens a nonce:tag:ciphertext blob. The authentication tag is
// verified before any plaintext is returned; a truncated, tampered, or
// wrong-key blob fails with CryptoError.
func (v *Vault) Decrypt(blob string) ([]byte, error) {
	parts := strings.Split(blob, ":")
	if len(parts) != 3 {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("expected 3 segments, got %d", len(parts))}
	}

	nonce, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("decode nonce: %w", err)}
	}
	if len(nonce) != nonceSize {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("nonce must be %d bytes, got %d", nonceSize, len(nonce))}
	}
	tag, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("decode tag: %w", err)}
	}
	ciphertext, err := base64.StdEncoding.DecodeString(parts[2])
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: fmt.Errorf("decode ciphertext: %w", err)}
	}

	sealed := append(append([]byte{}, ciphertext...), tag...)
	plaintext, err := v.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return nil, &CryptoError{Op: "decrypt", Err: errors.New("authentication failed")}
	}
	return plaintext, nil
}
