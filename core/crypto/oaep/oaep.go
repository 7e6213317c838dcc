// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package oaep provides RSA-OAEP key pairs used to wrap per hop symmetric
// keys.  Keys travel as base64 encoded SPKI (public) and PKCS#8 (private)
// DER, which is what the registry stores.
package oaep

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"errors"
	"io"

	"github.com/katzenpost/onionsim/core/failure"
)

const (
	// ModulusBits is the RSA modulus size.
	ModulusBits = 2048

	// MaxPlaintextSize is the largest payload that can be encrypted under a
	// single PublicKey.
	MaxPlaintextSize = ModulusBits/8 - 2*sha256.Size - 2
)

var errNotRSA = errors.New("oaep: key is not an RSA key")

// PublicKey is a RSA-OAEP public key.
type PublicKey struct {
	k      *rsa.PublicKey
	b64DER string
}

// Encrypt encrypts data, which must be at most MaxPlaintextSize bytes.
func (k *PublicKey) Encrypt(r io.Reader, data []byte) ([]byte, error) {
	return rsa.EncryptOAEP(sha256.New(), r, k.k, data, nil)
}

// Bytes returns the SPKI DER encoding of the key.
func (k *PublicKey) Bytes() []byte {
	b, err := base64.StdEncoding.DecodeString(k.b64DER)
	if err != nil {
		panic("oaep: BUG: cached encoding is not base64")
	}
	return b
}

// FromBytes deserializes the SPKI DER encoded b into the PublicKey.
func (k *PublicKey) FromBytes(b []byte) error {
	raw, err := x509.ParsePKIXPublicKey(b)
	if err != nil {
		return err
	}
	pk, ok := raw.(*rsa.PublicKey)
	if !ok {
		return errNotRSA
	}
	k.k = pk
	k.b64DER = base64.StdEncoding.EncodeToString(b)
	return nil
}

// Equal returns true iff k and other are the same key.
func (k *PublicKey) Equal(other *PublicKey) bool {
	if k == nil || other == nil {
		return k == other
	}
	return k.k.Equal(other.k)
}

// MarshalText is an implementation of a method on the
// TextMarshaler interface defined in https://golang.org/pkg/encoding/
func (k *PublicKey) MarshalText() ([]byte, error) {
	return []byte(k.b64DER), nil
}

// UnmarshalText is an implementation of a method on the
// TextUnmarshaler interface defined in https://golang.org/pkg/encoding/
func (k *PublicKey) UnmarshalText(data []byte) error {
	raw, err := base64.StdEncoding.DecodeString(string(data))
	if err != nil {
		return err
	}
	return k.FromBytes(raw)
}

// String returns the base64 SPKI encoding, the registry representation.
func (k *PublicKey) String() string {
	return k.b64DER
}

// PublicKeyFromString imports a key produced by PublicKey.String.
func PublicKeyFromString(s string) (*PublicKey, error) {
	k := new(PublicKey)
	if err := k.UnmarshalText([]byte(s)); err != nil {
		return nil, err
	}
	return k, nil
}

// PrivateKey is a RSA-OAEP private key.
type PrivateKey struct {
	pubKey PublicKey
	k      *rsa.PrivateKey
}

// PublicKey returns the PublicKey corresponding to the PrivateKey.
func (k *PrivateKey) PublicKey() *PublicKey {
	return &k.pubKey
}

// Decrypt decrypts ciphertext.  Any failure, including a ciphertext made
// for a different key, is a DecryptionError.
func (k *PrivateKey) Decrypt(ciphertext []byte) ([]byte, error) {
	b, err := rsa.DecryptOAEP(sha256.New(), nil, k.k, ciphertext, nil)
	if err != nil {
		return nil, failure.Wrap(failure.KindDecryption, err, "oaep: failed to unwrap")
	}
	return b, nil
}

// Bytes returns the PKCS#8 DER encoding of the key.
func (k *PrivateKey) Bytes() []byte {
	b, err := x509.MarshalPKCS8PrivateKey(k.k)
	if err != nil {
		panic("oaep: BUG: failed to serialize private key: " + err.Error())
	}
	return b
}

// FromBytes deserializes the PKCS#8 DER encoded b into the PrivateKey.
func (k *PrivateKey) FromBytes(b []byte) error {
	raw, err := x509.ParsePKCS8PrivateKey(b)
	if err != nil {
		return err
	}
	sk, ok := raw.(*rsa.PrivateKey)
	if !ok {
		return errNotRSA
	}
	return k.set(sk)
}

// String returns the base64 PKCS#8 encoding.
func (k *PrivateKey) String() string {
	return base64.StdEncoding.EncodeToString(k.Bytes())
}

// Reset drops the references to the key material.
func (k *PrivateKey) Reset() {
	k.k = nil
	k.pubKey = PublicKey{}
}

func (k *PrivateKey) set(sk *rsa.PrivateKey) error {
	der, err := x509.MarshalPKIXPublicKey(&sk.PublicKey)
	if err != nil {
		return err
	}
	k.k = sk
	k.pubKey.k = &sk.PublicKey
	k.pubKey.b64DER = base64.StdEncoding.EncodeToString(der)
	return nil
}

// PrivateKeyFromString imports a key produced by PrivateKey.String.
func PrivateKeyFromString(s string) (*PrivateKey, error) {
	raw, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, err
	}
	k := new(PrivateKey)
	if err = k.FromBytes(raw); err != nil {
		return nil, err
	}
	return k, nil
}

// NewKeypair generates a new PrivateKey sampled from the provided entropy
// source.
func NewKeypair(r io.Reader) (*PrivateKey, error) {
	sk, err := rsa.GenerateKey(r, ModulusBits)
	if err != nil {
		return nil, failure.Wrap(failure.KindKeyGeneration, err, "oaep: failed to generate key")
	}
	k := new(PrivateKey)
	if err = k.set(sk); err != nil {
		return nil, failure.Wrap(failure.KindKeyGeneration, err, "oaep: failed to encode key")
	}
	return k, nil
}
