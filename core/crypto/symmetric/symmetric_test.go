// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package symmetric

import (
	"errors"
	"strings"
	"testing"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/onionsim/core/failure"
)

type brokenReader struct{}

func (brokenReader) Read([]byte) (int, error) {
	return 0, errors.New("entropy source unavailable")
}

func TestSealOpen(t *testing.T) {
	require := require.New(t)

	k, err := NewKey(rand.Reader)
	require.NoError(err)

	for _, msg := range []string{"", "hello", strings.Repeat("onion", 4096)} {
		sealed, err := Seal(rand.Reader, k, []byte(msg))
		require.NoError(err)
		require.Len(sealed, len(msg)+Overhead)

		pt, err := Open(k, sealed)
		require.NoError(err)
		require.Equal(msg, string(pt))
	}
}

func TestFreshNonce(t *testing.T) {
	require := require.New(t)

	k, err := NewKey(rand.Reader)
	require.NoError(err)

	a, err := Seal(rand.Reader, k, []byte("same plaintext"))
	require.NoError(err)
	b, err := Seal(rand.Reader, k, []byte("same plaintext"))
	require.NoError(err)
	require.NotEqual(a[:NonceSize], b[:NonceSize])
	require.NotEqual(a, b)
}

func TestOpenFailures(t *testing.T) {
	require := require.New(t)

	k, err := NewKey(rand.Reader)
	require.NoError(err)
	other, err := NewKey(rand.Reader)
	require.NoError(err)

	sealed, err := Seal(rand.Reader, k, []byte("attack at dawn"))
	require.NoError(err)

	t.Run("wrong key", func(t *testing.T) {
		_, err := Open(other, sealed)
		require.True(errors.Is(err, failure.ErrDecryption))
	})

	t.Run("corrupted nonce", func(t *testing.T) {
		bad := append([]byte{}, sealed...)
		bad[0] ^= 0x01
		_, err := Open(k, bad)
		require.True(errors.Is(err, failure.ErrDecryption))
	})

	t.Run("every ciphertext byte", func(t *testing.T) {
		for i := NonceSize; i < len(sealed); i++ {
			bad := append([]byte{}, sealed...)
			bad[i] ^= 0x80
			_, err := Open(k, bad)
			require.True(errors.Is(err, failure.ErrDecryption), "byte %d", i)
		}
	})

	t.Run("truncated", func(t *testing.T) {
		_, err := Open(k, sealed[:Overhead-1])
		require.True(errors.Is(err, failure.ErrDecryption))
	})
}

func TestKeyEncoding(t *testing.T) {
	require := require.New(t)

	k, err := NewKey(rand.Reader)
	require.NoError(err)

	k2, err := KeyFromString(k.String())
	require.NoError(err)
	require.Equal(k.Bytes(), k2.Bytes())

	sealed, err := Seal(rand.Reader, k, []byte("hello"))
	require.NoError(err)
	pt, err := Open(k2, sealed)
	require.NoError(err)
	require.Equal("hello", string(pt))

	_, err = KeyFromString("c2hvcnQ=")
	require.Error(err)
}

func TestKeyGenerationError(t *testing.T) {
	require := require.New(t)

	_, err := NewKey(brokenReader{})
	require.True(errors.Is(err, failure.ErrKeyGeneration))

	k, err := NewKey(rand.Reader)
	require.NoError(err)
	_, err = Seal(brokenReader{}, k, []byte("x"))
	require.True(errors.Is(err, failure.ErrKeyGeneration))
}
