// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package user

import (
	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/onion"
	"github.com/katzenpost/onionsim/core/pki"
)

// CircuitLength is the number of relays of every circuit.
const CircuitLength = 3

// selectCircuit picks CircuitLength distinct relays uniformly at random.
func selectCircuit(records []pki.NodeRecord) ([]onion.Hop, error) {
	seen := make(map[uint32]struct{}, len(records))
	nodes := make([]pki.NodeRecord, 0, len(records))
	for _, rec := range records {
		if _, ok := seen[rec.NodeID]; ok {
			continue
		}
		seen[rec.NodeID] = struct{}{}
		nodes = append(nodes, rec)
	}
	if len(nodes) < CircuitLength {
		return nil, failure.New(failure.KindInsufficientNodes, "not enough nodes to create a circuit: have %d, need %d", len(nodes), CircuitLength)
	}

	r := rand.NewMath()
	hops := make([]onion.Hop, 0, CircuitLength)
	for _, idx := range r.Perm(len(nodes))[:CircuitLength] {
		rec := &nodes[idx]
		pk, err := rec.PublicKey()
		if err != nil {
			return nil, failure.Wrap(failure.KindInternal, err, "registry returned an unusable record")
		}
		hops = append(hops, onion.Hop{NodeID: rec.NodeID, PublicKey: pk})
	}
	return hops, nil
}

func circuitIDs(hops []onion.Hop) []uint32 {
	ids := make([]uint32, 0, len(hops))
	for _, h := range hops {
		ids = append(ids, h.NodeID)
	}
	return ids
}
