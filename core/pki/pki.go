// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package pki provides the node directory types shared by the registry,
// relays and users, and the mapping from node identifiers to addresses.
package pki

import (
	"context"
	"fmt"

	"github.com/katzenpost/onionsim/core/crypto/oaep"
)

// NodeRecord is a single registry entry.  Records are immutable once
// stored.
type NodeRecord struct {
	// NodeID is the relay identifier.
	NodeID uint32 `json:"nodeId" cbor:"1,keyasint"`

	// PubKey is the relay's base64 SPKI encoded RSA-OAEP public key.
	PubKey string `json:"pubKey" cbor:"2,keyasint"`
}

// PublicKey imports the record's public key.
func (r *NodeRecord) PublicKey() (*oaep.PublicKey, error) {
	pk, err := oaep.PublicKeyFromString(r.PubKey)
	if err != nil {
		return nil, fmt.Errorf("pki: node %d: invalid public key: %w", r.NodeID, err)
	}
	return pk, nil
}

func (r *NodeRecord) String() string {
	return fmt.Sprintf("node %d", r.NodeID)
}

// Client is the registry interface used by relays and users.
type Client interface {
	// Register publishes a relay's public key.  Registering an already
	// known NodeID succeeds and leaves the stored key untouched.
	Register(ctx context.Context, nodeID uint32, publicKey *oaep.PublicKey) error

	// Nodes returns the current membership snapshot in insertion order.
	Nodes(ctx context.Context) ([]NodeRecord, error)
}

// Resolver maps identifiers to the base URLs of the relay and user HTTP
// endpoints.
type Resolver interface {
	RelayURL(nodeID uint32) string
	UserURL(userID uint32) string
}
