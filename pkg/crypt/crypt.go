// Package crypt provides the authenticated symmetric cipher used to protect
// hidden payloads.
//
// A sealed token is self-describing:
//
//	[version:1][nonce:24][ciphertext+tag]
//
// The cipher is XChaCha20-Poly1305, so nonces are drawn at random per call.
package crypt

import (
	"crypto/cipher"
	"crypto/rand"
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Version is the token format byte written by Seal.
const Version byte = 0x01

// KeySize is the required key length in bytes.
const KeySize = chacha20poly1305.KeySize

// Overhead is the number of bytes Seal adds to a plaintext.
const Overhead = 1 + chacha20poly1305.NonceSizeX + chacha20poly1305.Overhead

var (
	// ErrKeySize reports a key that is not KeySize bytes long.
	ErrKeySize = errors.New("crypt: invalid key size")
	// ErrAuthentication reports a token that is malformed, of an unknown
	// version, or failed the integrity check.
	ErrAuthentication = errors.New("crypt: message authentication failed")
)

// Seal encrypts plaintext under key and returns a token.
func Seal(key, plaintext []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	token := make([]byte, 1+aead.NonceSize(), Overhead+len(plaintext))
	token[0] = Version
	nonce := token[1:]
	if _, err := rand.Read(nonce); err != nil {
		return nil, fmt.Errorf("crypt: read nonce: %w", err)
	}
	return aead.Seal(token, nonce, plaintext, token[:1]), nil
}

// Open authenticates and decrypts a token produced by Seal.
func Open(key, token []byte) ([]byte, error) {
	aead, err := newAEAD(key)
	if err != nil {
		return nil, err
	}

	if len(token) < Overhead || token[0] != Version {
		return nil, ErrAuthentication
	}
	nonce := token[1 : 1+aead.NonceSize()]
	plaintext, err := aead.Open(nil, nonce, token[1+aead.NonceSize():], token[:1])
	if err != nil {
		return nil, ErrAuthentication
	}
	return plaintext, nil
}

func newAEAD(key []byte) (cipher.AEAD, error) {
	if len(key) != KeySize {
		return nil, fmt.Errorf("%w: got %d bytes, want %d", ErrKeySize, len(key), KeySize)
	}
	aead, err := chacha20poly1305.NewX(key)
	if err != nil {
		return nil, fmt.Errorf("crypt: create cipher: %w", err)
	}
	return aead, nil
}
