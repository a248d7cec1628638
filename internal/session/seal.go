// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package session

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"golang.org/x/crypto/pbkdf2"

	"github.com/jeranaias/pvechat-tui/internal/util"
)

// =============================================================================
// API KEY SEALING
// =============================================================================

// API keys are encrypted at rest with AES-256-GCM. The cipher key is
// derived via PBKDF2-SHA-256 from a random secret in a 0600 key file,
// created on first use. Sealed values carry the ENC: prefix; values
// without it (hand-edited stores) are passed through as plaintext.

const (
	sealedPrefix = "ENC:"

	sealSecretSize = 32
	sealSaltSize   = 32
	sealKeySize    = 32
	sealNonceSize  = 12

	// OWASP-recommended floor for PBKDF2-SHA-256.
	sealIterations = 600000
)

var (
	// ErrSealCorrupt means a sealed value could not be decoded or
	// failed authentication.
	ErrSealCorrupt = errors.New("sealed value is corrupt")
)

// sealer encrypts and decrypts short string values.
type sealer struct {
	aead cipher.AEAD
}

// newSealer loads the key file at path, creating it with fresh random
// material when missing.
func newSealer(path string) (*sealer, error) {
	material, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		material = make([]byte, sealSecretSize+sealSaltSize)
		if _, err := io.ReadFull(rand.Reader, material); err != nil {
			return nil, fmt.Errorf("failed to generate key material: %w", err)
		}
		if err := util.AtomicWriteFile(path, material, 0600); err != nil {
			return nil, fmt.Errorf("failed to save key file: %w", err)
		}
	}
	if len(material) != sealSecretSize+sealSaltSize {
		return nil, fmt.Errorf("key file %s has wrong size", path)
	}

	key := pbkdf2.Key(material[:sealSecretSize], material[sealSecretSize:], sealIterations, sealKeySize, sha256.New)
	defer zeroBytes(key)
	zeroBytes(material)

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create AES cipher: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM cipher: %w", err)
	}
	return &sealer{aead: aead}, nil
}

// seal encrypts plaintext and returns ENC:base64(nonce|ciphertext|tag).
func (s *sealer) seal(plaintext string) (string, error) {
	nonce := make([]byte, sealNonceSize)
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return "", fmt.Errorf("failed to generate nonce: %w", err)
	}
	sealed := s.aead.Seal(nonce, nonce, []byte(plaintext), nil)
	return sealedPrefix + base64.StdEncoding.EncodeToString(sealed), nil
}

// open decrypts a sealed value. Unsealed input is returned unchanged.
func (s *sealer) open(value string) (string, error) {
	if !strings.HasPrefix(value, sealedPrefix) {
		return value, nil
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, sealedPrefix))
	if err != nil {
		return "", ErrSealCorrupt
	}
	if len(data) < sealNonceSize {
		return "", ErrSealCorrupt
	}
	plaintext, err := s.aead.Open(nil, data[:sealNonceSize], data[sealNonceSize:], nil)
	if err != nil {
		return "", ErrSealCorrupt
	}
	return string(plaintext), nil
}

// SECURITY: Zero key material to prevent memory disclosure via crash dumps.
func zeroBytes(b []byte) {
	for i := range b {
		b[i] = 0
	}
}
