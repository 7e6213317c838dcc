// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package onion

import (
	"encoding/base64"
	"fmt"

	"github.com/fxamacker/cbor/v2"

	"github.com/katzenpost/onionsim/core/failure"
)

// LayerKind tags the variants of a decrypted layer.
type LayerKind uint8

const (
	// KindForward is a layer that names the next relay.
	KindForward LayerKind = 1

	// KindPayload is the innermost layer, peeled by the exit relay.
	KindPayload LayerKind = 2
)

func (k LayerKind) String() string {
	switch k {
	case KindForward:
		return "forward"
	case KindPayload:
		return "payload"
	default:
		return fmt.Sprintf("[invalid layer kind: %d]", uint8(k))
	}
}

var (
	ccbor cbor.EncMode
	dcbor cbor.DecMode
)

// Packet is the unit a relay receives: the hop's symmetric key wrapped
// under its public key, and the inner layer sealed under that symmetric
// key.
type Packet struct {
	WrappedKey []byte `cbor:"1,keyasint"`
	Ciphertext []byte `cbor:"2,keyasint"`
}

// Bytes returns the CBOR encoding of the packet.
func (p *Packet) Bytes() ([]byte, error) {
	return ccbor.Marshal(p)
}

// String returns the wire form of the packet, base64 of the CBOR encoding.
func (p *Packet) String() string {
	b, err := p.Bytes()
	if err != nil {
		panic("onion: BUG: failed to encode packet: " + err.Error())
	}
	return base64.StdEncoding.EncodeToString(b)
}

// ParsePacket decodes the wire form produced by Packet.String.
func ParsePacket(s string) (*Packet, error) {
	if s == "" {
		return nil, failure.New(failure.KindMalformedRequest, "onion: empty packet")
	}
	b, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, failure.Wrap(failure.KindMalformedRequest, err, "onion: packet is not base64")
	}
	p := new(Packet)
	if err = dcbor.Unmarshal(b, p); err != nil {
		return nil, failure.Wrap(failure.KindMalformedRequest, err, "onion: invalid packet encoding")
	}
	if len(p.WrappedKey) == 0 || len(p.Ciphertext) == 0 {
		return nil, failure.New(failure.KindMalformedRequest, "onion: packet is missing the wrapped key or the payload")
	}
	return p, nil
}

// Layer is a decrypted onion layer, either a *Forward or a *Payload.
type Layer interface {
	Kind() LayerKind
}

// Forward instructs the relay to hand Packet to NextHop.
type Forward struct {
	NextHop uint32
	Packet  *Packet
}

// Kind implements Layer.
func (f *Forward) Kind() LayerKind {
	return KindForward
}

// Payload is the message and its destination user.
type Payload struct {
	Destination uint32
	Message     string
}

// Kind implements Layer.
func (p *Payload) Kind() LayerKind {
	return KindPayload
}

type encodedLayer struct {
	Kind        LayerKind `cbor:"1,keyasint"`
	NextHop     uint32    `cbor:"2,keyasint,omitempty"`
	Packet      *Packet   `cbor:"3,keyasint,omitempty"`
	Destination uint32    `cbor:"4,keyasint,omitempty"`
	Message     string    `cbor:"5,keyasint,omitempty"`
}

// EncodeLayer serializes l.
func EncodeLayer(l Layer) ([]byte, error) {
	var e encodedLayer
	switch v := l.(type) {
	case *Forward:
		if v.Packet == nil {
			return nil, fmt.Errorf("onion: forward layer without a packet")
		}
		e = encodedLayer{Kind: KindForward, NextHop: v.NextHop, Packet: v.Packet}
	case *Payload:
		e = encodedLayer{Kind: KindPayload, Destination: v.Destination, Message: v.Message}
	default:
		return nil, fmt.Errorf("onion: unsupported layer type %T", l)
	}
	return ccbor.Marshal(&e)
}

// DecodeLayer deserializes a layer produced by EncodeLayer.
func DecodeLayer(b []byte) (Layer, error) {
	var e encodedLayer
	if err := dcbor.Unmarshal(b, &e); err != nil {
		return nil, failure.Wrap(failure.KindMalformedRequest, err, "onion: invalid layer encoding")
	}
	switch e.Kind {
	case KindForward:
		if e.Packet == nil || len(e.Packet.WrappedKey) == 0 || len(e.Packet.Ciphertext) == 0 {
			return nil, failure.New(failure.KindMalformedRequest, "onion: forward layer without a packet")
		}
		return &Forward{NextHop: e.NextHop, Packet: e.Packet}, nil
	case KindPayload:
		if e.Packet != nil {
			return nil, failure.New(failure.KindMalformedRequest, "onion: payload layer carries a packet")
		}
		return &Payload{Destination: e.Destination, Message: e.Message}, nil
	default:
		return nil, failure.New(failure.KindMalformedRequest, "onion: %v", e.Kind)
	}
}

func init() {
	var err error
	ccbor, err = cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	dcbor, err = cbor.DecOptions{
		DupMapKey:         cbor.DupMapKeyEnforcedAPF,
		ExtraReturnErrors: cbor.ExtraDecErrorUnknownField,
	}.DecMode()
	if err != nil {
		panic(err)
	}
}
