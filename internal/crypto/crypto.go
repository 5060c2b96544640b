// Copyright (c) 2026 John Earle
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package crypto provides symmetric encryption of stored secrets using a
// process-wide key. Encrypted values are self-describing ("iv:ciphertext",
// both hex) so decryption is stateless, and values written before
// encryption was enabled pass through unchanged.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

const keySize = 32

// encryptedShape matches the "iv:ciphertext" form emitted by Encrypt.
// The IV is a 12-byte GCM nonce, hex-encoded to 24 characters.
var encryptedShape = regexp.MustCompile(`^[0-9a-f]{24}:[0-9a-f]+$`)

// Cipher encrypts and decrypts secret strings with AES-256-GCM.
type Cipher struct {
	aead cipher.AEAD
}

// NewCipher derives a fixed-length key from the operator-supplied secret.
// A secret that is not exactly 32 bytes is hashed down to one. An empty
// secret is rejected; the caller decides whether that is fatal.
func NewCipher(secret string) (*Cipher, error) {
	if secret == "" {
		return nil, fmt.Errorf("encryption secret is empty")
	}

	key := []byte(secret)
	if len(key) != keySize {
		sum := sha256.Sum256(key)
		key = sum[:]
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("init cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("init GCM: %w", err)
	}

	return &Cipher{aead: aead}, nil
}

// Encrypt seals a plaintext with a fresh random IV per call, so two
// encryptions of the same value never produce the same token.
func (c *Cipher) Encrypt(plaintext string) (string, error) {
	iv := make([]byte, c.aead.NonceSize())
	if _, err := rand.Read(iv); err != nil {
		return "", fmt.Errorf("generate IV: %w", err)
	}

	sealed := c.aead.Seal(nil, iv, []byte(plaintext), nil)
	return hex.EncodeToString(iv) + ":" + hex.EncodeToString(sealed), nil
}

// Decrypt opens a token produced by Encrypt. Malformed or tampered
// tokens are an error, never an empty-string success.
func (c *Cipher) Decrypt(token string) (string, error) {
	ivHex, dataHex, ok := strings.Cut(token, ":")
	if !ok {
		return "", fmt.Errorf("malformed encrypted value: missing IV separator")
	}

	iv, err := hex.DecodeString(ivHex)
	if err != nil {
		return "", fmt.Errorf("decode IV: %w", err)
	}
	if len(iv) != c.aead.NonceSize() {
		return "", fmt.Errorf("unexpected IV length %d", len(iv))
	}

	data, err := hex.DecodeString(dataHex)
	if err != nil {
		return "", fmt.Errorf("decode ciphertext: %w", err)
	}

	plaintext, err := c.aead.Open(nil, iv, data, nil)
	if err != nil {
		return "", fmt.Errorf("decrypt: %w", err)
	}
	return string(plaintext), nil
}

// IsEncrypted reports whether a stored value matches the iv:ciphertext
// shape. Values that don't match are legacy plaintext.
func IsEncrypted(value string) bool {
	return encryptedShape.MatchString(value)
}

// DecryptIfNeeded decrypts a value only when it matches the encrypted
// shape; legacy plaintext is returned unchanged. A matching value that
// fails to decrypt is logged and returned as-is — call sites that require
// confidentiality must use Decrypt directly and treat failure as an
// authentication failure.
func (c *Cipher) DecryptIfNeeded(value string) string {
	if !IsEncrypted(value) {
		return value
	}

	plaintext, err := c.Decrypt(value)
	if err != nil {
		slog.Warn("failed to decrypt stored value, returning as-is", "error", err)
		return value
	}
	return plaintext
}
