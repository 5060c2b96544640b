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

package crypto

import (
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	plaintexts := []string{
		"hunter2",
		"",
		"a much longer secret value with spaces and symbols !@#$%^&*()",
		"ya29.a0AfH6SMC-token-value",
	}

	for _, plaintext := range plaintexts {
		token, err := c.Encrypt(plaintext)
		if err != nil {
			t.Fatalf("Encrypt(%q): %v", plaintext, err)
		}
		if !IsEncrypted(token) {
			t.Errorf("Encrypt(%q) = %q, does not match encrypted shape", plaintext, token)
		}

		got, err := c.Decrypt(token)
		if err != nil {
			t.Fatalf("Decrypt(%q): %v", token, err)
		}
		if got != plaintext {
			t.Errorf("round trip = %q, want %q", got, plaintext)
		}
	}
}

func TestEncryptProducesDistinctIVs(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	first, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	second, err := c.Encrypt("same plaintext")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	if first == second {
		t.Errorf("two encryptions of the same plaintext produced identical tokens")
	}

	firstIV, _, _ := strings.Cut(first, ":")
	secondIV, _, _ := strings.Cut(second, ":")
	if firstIV == secondIV {
		t.Errorf("two encryptions reused IV %s", firstIV)
	}
}

func TestExactly32ByteSecretUsedDirectly(t *testing.T) {
	secret := strings.Repeat("k", 32)
	c, err := NewCipher(secret)
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	token, err := c.Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	got, err := c.Decrypt(token)
	if err != nil {
		t.Fatalf("Decrypt: %v", err)
	}
	if got != "payload" {
		t.Errorf("round trip = %q, want %q", got, "payload")
	}
}

func TestNewCipherRejectsEmptySecret(t *testing.T) {
	if _, err := NewCipher(""); err == nil {
		t.Fatal("NewCipher(\"\") succeeded, want error")
	}
}

func TestDecryptRejectsMalformedTokens(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	cases := []struct {
		name  string
		token string
	}{
		{"no separator", "deadbeef"},
		{"bad iv hex", "zzzzzzzzzzzzzzzzzzzzzzzz:deadbeef"},
		{"short iv", "deadbeef:deadbeef"},
		{"bad ciphertext hex", "0123456789abcdef01234567:not-hex"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := c.Decrypt(tc.token)
			if err == nil {
				t.Fatalf("Decrypt(%q) = %q, want error", tc.token, got)
			}
		})
	}
}

func TestDecryptRejectsTamperedCiphertext(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	token, err := c.Encrypt("sensitive")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}

	// Flip one hex digit of the ciphertext.
	tampered := []byte(token)
	last := len(tampered) - 1
	if tampered[last] == 'a' {
		tampered[last] = 'b'
	} else {
		tampered[last] = 'a'
	}

	if got, err := c.Decrypt(string(tampered)); err == nil {
		t.Fatalf("Decrypt(tampered) = %q, want error", got)
	}
}

func TestDecryptWithWrongKeyFails(t *testing.T) {
	first, _ := NewCipher("first-secret")
	second, _ := NewCipher("second-secret")

	token, err := first.Encrypt("payload")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if got, err := second.Decrypt(token); err == nil {
		t.Fatalf("Decrypt with wrong key = %q, want error", got)
	}
}

func TestDecryptIfNeededPassesThroughPlaintext(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	legacy := []string{
		"plain-password",
		"not:encrypted",
		"deadbeef:cafe", // too-short iv, not the encrypted shape
		"",
	}
	for _, value := range legacy {
		if got := c.DecryptIfNeeded(value); got != value {
			t.Errorf("DecryptIfNeeded(%q) = %q, want passthrough", value, got)
		}
	}
}

func TestDecryptIfNeededDecryptsEncrypted(t *testing.T) {
	c, err := NewCipher("test-secret")
	if err != nil {
		t.Fatalf("NewCipher: %v", err)
	}

	token, err := c.Encrypt("real-password")
	if err != nil {
		t.Fatalf("Encrypt: %v", err)
	}
	if got := c.DecryptIfNeeded(token); got != "real-password" {
		t.Errorf("DecryptIfNeeded = %q, want %q", got, "real-password")
	}
}

func TestIsEncrypted(t *testing.T) {
	cases := []struct {
		value string
		want  bool
	}{
		{"0123456789abcdef01234567:deadbeef", true},
		{"plain-password", false},
		{"0123456789abcdef0123456:deadbeef", false},  // 23-char iv
		{"0123456789ABCDEF01234567:deadbeef", false}, // uppercase hex
		{"0123456789abcdef01234567:", false},
		{"", false},
	}
	for _, tc := range cases {
		if got := IsEncrypted(tc.value); got != tc.want {
			t.Errorf("IsEncrypted(%q) = %v, want %v", tc.value, got, tc.want)
		}
	}
}
