// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package wire provides the HTTP/JSON bodies exchanged between the
// registry, relays and users.
//
// Request fields are pointers so that a missing field can be told apart
// from a zero value.
package wire

import (
	"github.com/katzenpost/onionsim/core/pki"
)

// StatusLive is the body of every `GET /status` response.
const StatusLive = "live"

// HTTP paths.
const (
	PathStatus                          = "/status"
	PathRegisterNode                    = "/registerNode"
	PathGetNodeRegistry                 = "/getNodeRegistry"
	PathResetRegistry                   = "/resetRegistry"
	PathMessage                         = "/message"
	PathSendMessage                     = "/sendMessage"
	PathGetPrivateKey                   = "/getPrivateKey"
	PathGetLastReceivedEncryptedMessage = "/getLastReceivedEncryptedMessage"
	PathGetLastReceivedDecryptedMessage = "/getLastReceivedDecryptedMessage"
	PathGetLastMessageDestination       = "/getLastMessageDestination"
	PathGetLastReceivedMessage          = "/getLastReceivedMessage"
	PathGetLastSentMessage              = "/getLastSentMessage"
)

// RegisterNodeRequest is the body of `POST /registerNode`.
type RegisterNodeRequest struct {
	NodeID *uint32 `json:"nodeId"`
	PubKey *string `json:"pubKey"`
}

// NodeRegistryResponse is the body of `GET /getNodeRegistry`.
type NodeRegistryResponse struct {
	Nodes []pki.NodeRecord `json:"nodes"`
}

// SuccessResponse is the body of successful POSTs.
type SuccessResponse struct {
	Success bool `json:"success"`
}

// ForwardRequest is the body of a relay's `POST /message`.  Message is the
// wire form of an onion.Packet.
type ForwardRequest struct {
	Message *string  `json:"message"`
	Circuit []uint32 `json:"circuit"`
	Index   *int     `json:"index"`
}

// DeliverRequest is the body of a user's `POST /message`.
type DeliverRequest struct {
	Message *string `json:"message"`
}

// SendMessageRequest is the body of `POST /sendMessage`.
type SendMessageRequest struct {
	Message           *string `json:"message"`
	DestinationUserID *uint32 `json:"destinationUserId"`
}

// SendMessageResponse is the body of a successful `POST /sendMessage`.
type SendMessageResponse struct {
	Success bool     `json:"success"`
	Circuit []uint32 `json:"circuit"`
}

// StringResult is the body of the string valued debug accessors.
type StringResult struct {
	Result *string `json:"result"`
}

// NumberResult is the body of the numeric debug accessors.
type NumberResult struct {
	Result *uint32 `json:"result"`
}
