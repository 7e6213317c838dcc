// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package symmetric provides the AES-256-GCM layer cipher.  Every Seal
// draws a fresh random nonce which is prepended to the ciphertext.
package symmetric

import (
	"crypto/aes"
	"crypto/cipher"
	"encoding/base64"
	"errors"
	"io"

	"github.com/katzenpost/onionsim/core/failure"
)

const (
	// KeySize is the size of a Key in bytes.
	KeySize = 32

	// NonceSize is the size of the per message nonce (IV) in bytes.
	NonceSize = 12

	// Overhead is the ciphertext expansion of Seal.
	Overhead = NonceSize + 16
)

var errInvalidKey = errors.New("symmetric: invalid key")

// Key is a AES-256-GCM key.
type Key struct {
	b [KeySize]byte
}

// Bytes returns the raw key.
func (k *Key) Bytes() []byte {
	return k.b[:]
}

// FromBytes deserializes the byte slice b into the Key.
func (k *Key) FromBytes(b []byte) error {
	if len(b) != KeySize {
		return errInvalidKey
	}
	copy(k.b[:], b)
	return nil
}

// String returns the key as base64.
func (k *Key) String() string {
	return base64.StdEncoding.EncodeToString(k.b[:])
}

// Reset clears the key.
func (k *Key) Reset() {
	for i := range k.b {
		k.b[i] = 0
	}
}

// KeyFromString imports a key produced by Key.String.
func KeyFromString(s string) (*Key, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	k := new(Key)
	if err = k.FromBytes(raw); err != nil {
		return nil, err
	}
	return k, nil
}

// NewKey generates a new Key sampled from the provided entropy source.
func NewKey(r io.Reader) (*Key, error) {
	k := new(Key)
	if _, err := io.ReadFull(r, k.b[:]); err != nil {
		return nil, failure.Wrap(failure.KindKeyGeneration, err, "symmetric: entropy source failed")
	}
	return k, nil
}

func (k *Key) aead() cipher.AEAD {
	blk, err := aes.NewCipher(k.b[:])
	if err != nil {
		panic("symmetric: BUG: aes.NewCipher: " + err.Error())
	}
	aead, err := cipher.NewGCM(blk)
	if err != nil {
		panic("symmetric: BUG: cipher.NewGCM: " + err.Error())
	}
	return aead
}

// Seal encrypts plaintext and returns nonce || ciphertext || tag.
func Seal(r io.Reader, k *Key, plaintext []byte) ([]byte, error) {
	out := make([]byte, NonceSize, NonceSize+len(plaintext)+Overhead-NonceSize)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, failure.Wrap(failure.KindKeyGeneration, err, "symmetric: entropy source failed")
	}
	return k.aead().Seal(out, out[:NonceSize], plaintext, nil), nil
}

// Open authenticates and decrypts the output of Seal.  A wrong key, a
// damaged nonce or any modified ciphertext byte is a DecryptionError.
func Open(k *Key, sealed []byte) ([]byte, error) {
	if len(sealed) < Overhead {
		return nil, failure.New(failure.KindDecryption, "symmetric: truncated ciphertext (%d bytes)", len(sealed))
	}
	pt, err := k.aead().Open(nil, sealed[:NonceSize], sealed[NonceSize:], nil)
	if err != nil {
		return nil, failure.Wrap(failure.KindDecryption, err, "symmetric: failed to open")
	}
	return pt, nil
}
