// Package shareid turns external account ids into opaque tokens that can be
// handed to other users (e.g. as a transfer recipient), and back.
package shareid

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"io"

	"golang.org/x/crypto/hkdf"
)

var ErrInvalidShareableID = errors.New("invalid shareable id")

const keyInfo = "jjbank shareable account id"

type Encrypter struct {
	aead cipher.AEAD
}

// New derives an AES-256-GCM key from secret.
func New(secret string) (*Encrypter, error) {
	if secret == "" {
		return nil, errors.New("in internal/shareid/shareid.go/New(): empty secret")
	}

	key := make([]byte, 32)
	if _, err := io.ReadFull(hkdf.New(sha256.New, []byte(secret), nil, []byte(keyInfo)), key); err != nil {
		return nil, fmt.Errorf("in internal/shareid/shareid.go/New(): error while deriving key: %w", err)
	}

	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("in internal/shareid/shareid.go/New(): error while `aes.NewCipher()` calling: %w", err)
	}
	aead, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("in internal/shareid/shareid.go/New(): error while `cipher.NewGCM()` calling: %w", err)
	}

	return &Encrypter{aead: aead}, nil
}

// Encrypt returns a URL-safe token for id. An empty id stays empty.
func (e *Encrypter) Encrypt(id string) (string, error) {
	if id == "" {
		return "", nil
	}

	nonce := make([]byte, e.aead.NonceSize())
	if _, err := rand.Read(nonce); err != nil {
		return "", err
	}
	sealed := e.aead.Seal(nonce, nonce, []byte(id), nil)

	return base64.RawURLEncoding.EncodeToString(sealed), nil
}

// Decrypt reverses Encrypt.
func (e *Encrypter) Decrypt(token string) (string, error) {
	if token == "" {
		return "", nil
	}

	raw, err := base64.RawURLEncoding.DecodeString(token)
	if err != nil {
		return "", ErrInvalidShareableID
	}
	if len(raw) < e.aead.NonceSize() {
		return "", ErrInvalidShareableID
	}

	nonce, sealed := raw[:e.aead.NonceSize()], raw[e.aead.NonceSize():]
	plain, err := e.aead.Open(nil, nonce, sealed, nil)
	if err != nil {
		return "", ErrInvalidShareableID
	}

	return string(plain), nil
}
