// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package relay

import (
	"bytes"
	"context"
	"encoding/json"
	"time"

	"golang.org/x/net/context/ctxhttp"

	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/onion"
	"github.com/katzenpost/onionsim/core/wire"
	"github.com/katzenpost/onionsim/internal/instrument"
)

// hop is the outcome of peeling a packet.
type hop struct {
	encrypted string
	decrypted string

	// Exactly one of forward or deliver is set.
	forward *wire.ForwardRequest
	deliver *wire.DeliverRequest

	destination uint32
	url         string
}

// peel validates req and removes this relay's layer.  It has no side
// effects.
func (r *Relay) peel(req *wire.ForwardRequest) (*hop, error) {
	if req.Message == nil || *req.Message == "" {
		return nil, failure.New(failure.KindMalformedRequest, "missing message")
	}
	if len(req.Circuit) == 0 {
		return nil, failure.New(failure.KindMalformedRequest, "missing circuit")
	}
	if req.Index == nil {
		return nil, failure.New(failure.KindMalformedRequest, "missing index")
	}
	idx := *req.Index
	if idx < 0 || idx >= len(req.Circuit) {
		return nil, failure.New(failure.KindMalformedRequest, "index %d out of range for a %d hop circuit", idx, len(req.Circuit))
	}
	if req.Circuit[idx] != r.nodeID {
		return nil, failure.New(failure.KindMalformedRequest, "circuit position %d is node %d", idx, req.Circuit[idx])
	}

	pkt, err := onion.ParsePacket(*req.Message)
	if err != nil {
		return nil, err
	}
	layer, err := onion.Peel(r.privateKey, pkt)
	if err != nil {
		return nil, err
	}

	h := &hop{encrypted: *req.Message}
	isLast := idx == len(req.Circuit)-1
	switch l := layer.(type) {
	case *onion.Forward:
		if isLast {
			return nil, failure.New(failure.KindMalformedRequest, "forward layer at the end of the circuit")
		}
		if next := req.Circuit[idx+1]; l.NextHop != next {
			return nil, failure.New(failure.KindMalformedRequest, "layer next hop %d disagrees with circuit hop %d", l.NextHop, next)
		}
		inner := l.Packet.String()
		nextIdx := idx + 1
		h.decrypted = inner
		h.destination = l.NextHop
		h.url = r.resolver.RelayURL(l.NextHop)
		h.forward = &wire.ForwardRequest{
			Message: &inner,
			Circuit: req.Circuit,
			Index:   &nextIdx,
		}
	case *onion.Payload:
		if !isLast {
			return nil, failure.New(failure.KindMalformedRequest, "payload layer at circuit position %d", idx)
		}
		msg := l.Message
		h.decrypted = msg
		h.destination = l.Destination
		h.url = r.resolver.UserURL(l.Destination)
		h.deliver = &wire.DeliverRequest{Message: &msg}
	default:
		return nil, failure.New(failure.KindMalformedRequest, "unexpected layer %v", layer.Kind())
	}
	return h, nil
}

// handleForward peels req, records the result and hands the inner layer to
// the next hop.  The relay does not retry the next hop.
func (r *Relay) handleForward(ctx context.Context, req *wire.ForwardRequest) error {
	h, err := r.peel(req)
	if err != nil {
		instrument.Rejected(string(failure.KindOf(err)))
		return err
	}
	r.state.record(h.encrypted, h.decrypted, h.destination)

	var body interface{}
	if h.forward != nil {
		r.log.Debugf("Forwarding to relay %d.", h.destination)
		body = h.forward
	} else {
		r.log.Debugf("Delivering to user %d: '%v'", h.destination, h.decrypted)
		body = h.deliver
	}

	start := time.Now()
	if err := r.send(ctx, h.url, body); err != nil {
		r.log.Warningf("Next hop %v failed: %v", h.url, err)
		return err
	}
	instrument.HopLatency(time.Since(start))
	if h.forward != nil {
		instrument.Forwarded()
	} else {
		instrument.Delivered()
	}
	return nil
}

func (r *Relay) send(ctx context.Context, baseURL string, body interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return failure.Wrap(failure.KindInternal, err, "failed to serialize next hop request")
	}

	timeout := time.Duration(r.cfg.Relay.ForwardTimeout) * time.Millisecond
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := ctxhttp.Post(ctx, r.httpClient, baseURL+wire.PathMessage, "application/json", bytes.NewReader(b))
	if err != nil {
		return failure.Wrap(failure.KindDelivery, err, "next hop unreachable")
	}
	defer resp.Body.Close()

	if !wire.IsSuccess(resp) {
		return failure.Wrap(failure.KindDelivery, wire.ResponseError(resp), "next hop rejected the packet")
	}
	return nil
}
