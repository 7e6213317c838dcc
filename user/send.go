// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package user

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"github.com/katzenpost/hpqc/rand"
	"golang.org/x/net/context/ctxhttp"

	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/onion"
	"github.com/katzenpost/onionsim/core/wire"
	"github.com/katzenpost/onionsim/internal/instrument"
)

// SendMessage wraps message for destination in a fresh circuit and hands
// it to the first hop.  It returns the circuit.  Success only means the
// first hop accepted the packet.
func (u *User) SendMessage(ctx context.Context, message string, destination uint32) ([]uint32, error) {
	circuit, err := u.sendMessage(ctx, message, destination)
	instrument.Sent(err == nil)
	return circuit, err
}

func (u *User) sendMessage(ctx context.Context, message string, destination uint32) ([]uint32, error) {
	if message == "" {
		return nil, failure.New(failure.KindMalformedRequest, "missing message")
	}
	if err := u.cfg.Topology().CheckUserID(destination); err != nil {
		return nil, failure.Wrap(failure.KindMalformedRequest, err, "invalid destinationUserId")
	}

	regCtx, cancel := context.WithTimeout(ctx, time.Duration(u.cfg.User.RegistryTimeout)*time.Millisecond)
	nodes, err := u.registry.Nodes(regCtx)
	cancel()
	if err != nil {
		return nil, failure.Wrap(failure.KindDelivery, err, "failed to fetch the node registry")
	}

	hops, err := selectCircuit(nodes)
	if err != nil {
		return nil, err
	}
	circuit := circuitIDs(hops)
	u.state.setSent(message)
	u.log.Debugf("Sending '%v' to user %d over circuit %v.", message, destination, circuit)

	pkt, err := onion.Build(rand.Reader, hops, destination, message)
	if err != nil {
		return nil, err
	}

	index := 0
	msg := pkt.String()
	b, err := json.Marshal(&wire.ForwardRequest{
		Message: &msg,
		Circuit: circuit,
		Index:   &index,
	})
	if err != nil {
		return nil, failure.Wrap(failure.KindInternal, err, "failed to serialize request")
	}

	sendCtx, cancel := context.WithTimeout(ctx, time.Duration(u.cfg.User.SendTimeout)*time.Millisecond)
	defer cancel()
	url := u.resolver.RelayURL(circuit[0]) + wire.PathMessage
	resp, err := ctxhttp.Post(sendCtx, u.httpClient, url, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, failure.Wrap(failure.KindDelivery, err, "first hop %d unreachable", circuit[0])
	}
	defer resp.Body.Close()

	if !wire.IsSuccess(resp) {
		return nil, failure.Wrap(failure.KindDelivery, wire.ResponseError(resp), "first hop %d rejected the packet", circuit[0])
	}
	u.log.Noticef("Sent message to user %d over circuit %v.", destination, circuit)
	return circuit, nil
}

func (u *User) deliver(message string) {
	u.state.setReceived(message)
	instrument.Received()
	u.log.Notice("Received a message.")
	u.log.Debugf("Received '%v'.", message)
}
