// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package onion builds and peels layered onion packets.
//
// A packet for a circuit of N relays is built from the inside out.  The
// innermost layer is a Payload for the destination user.  Each relay, from
// the last to the first, gets a fresh symmetric key; the current layer is
// sealed under that key and the key is wrapped under the relay's RSA-OAEP
// public key.  Every relay except the first also gets wrapped into a
// Forward layer for its predecessor, naming it as the next hop.
//
// A relay can only unwrap its own symmetric key, so it learns exactly one
// layer: either the next hop and an opaque packet, or the final payload.
package onion

import (
	"fmt"
	"io"

	"github.com/katzenpost/onionsim/core/crypto/oaep"
	"github.com/katzenpost/onionsim/core/crypto/symmetric"
	"github.com/katzenpost/onionsim/core/failure"
)

// Hop is a relay on a circuit.
type Hop struct {
	NodeID    uint32
	PublicKey *oaep.PublicKey
}

// Seal encrypts l for a single relay.
func Seal(r io.Reader, publicKey *oaep.PublicKey, l Layer) (*Packet, error) {
	raw, err := EncodeLayer(l)
	if err != nil {
		return nil, err
	}

	k, err := symmetric.NewKey(r)
	if err != nil {
		return nil, err
	}
	defer k.Reset()

	ct, err := symmetric.Seal(r, k, raw)
	if err != nil {
		return nil, err
	}
	wrapped, err := publicKey.Encrypt(r, k.Bytes())
	if err != nil {
		return nil, fmt.Errorf("onion: failed to wrap layer key: %w", err)
	}

	return &Packet{
		WrappedKey: wrapped,
		Ciphertext: ct,
	}, nil
}

// Build returns the packet to hand to hops[0].
func Build(r io.Reader, hops []Hop, destination uint32, message string) (*Packet, error) {
	if len(hops) == 0 {
		return nil, fmt.Errorf("onion: empty circuit")
	}

	var (
		l   Layer = &Payload{Destination: destination, Message: message}
		pkt *Packet
		err error
	)
	for i := len(hops) - 1; i >= 0; i-- {
		if hops[i].PublicKey == nil {
			return nil, fmt.Errorf("onion: hop %d (node %d) has no public key", i, hops[i].NodeID)
		}
		if pkt, err = Seal(r, hops[i].PublicKey, l); err != nil {
			return nil, err
		}
		l = &Forward{NextHop: hops[i].NodeID, Packet: pkt}
	}
	return pkt, nil
}

// Peel removes the outer layer of pkt.  Both decryption steps must succeed
// or a DecryptionError is returned and nothing about the inner layer is
// revealed.
func Peel(privateKey *oaep.PrivateKey, pkt *Packet) (Layer, error) {
	rawKey, err := privateKey.Decrypt(pkt.WrappedKey)
	if err != nil {
		return nil, err
	}

	k := new(symmetric.Key)
	defer k.Reset()
	if err = k.FromBytes(rawKey); err != nil {
		return nil, failure.Wrap(failure.KindDecryption, err, "onion: unwrapped key has the wrong size")
	}

	raw, err := symmetric.Open(k, pkt.Ciphertext)
	if err != nil {
		return nil, err
	}
	return DecodeLayer(raw)
}
