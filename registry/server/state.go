// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/onionsim/core/crypto/oaep"
	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/pki"
	"github.com/katzenpost/onionsim/internal/instrument"
)

// state is the registry membership set.  The first key registered for a
// node id is kept until the next reset.
type state struct {
	sync.RWMutex

	log      *logging.Logger
	topology *pki.Topology
	store    *store

	nodes []pki.NodeRecord
	known map[uint32]struct{}
}

// register inserts a record unless nodeID is already known, and returns
// true iff the record was inserted.
func (s *state) register(nodeID *uint32, pubKey *string) (bool, error) {
	if nodeID == nil {
		instrument.Registration(instrument.RegistrationInvalid)
		return false, failure.New(failure.KindInvalidRegistration, "missing nodeId")
	}
	if err := s.topology.CheckRelayID(*nodeID); err != nil {
		instrument.Registration(instrument.RegistrationInvalid)
		return false, failure.Wrap(failure.KindInvalidRegistration, err, "node %d: unreachable nodeId", *nodeID)
	}
	if pubKey == nil || *pubKey == "" {
		instrument.Registration(instrument.RegistrationInvalid)
		return false, failure.New(failure.KindInvalidRegistration, "missing pubKey")
	}
	if _, err := oaep.PublicKeyFromString(*pubKey); err != nil {
		instrument.Registration(instrument.RegistrationInvalid)
		return false, failure.Wrap(failure.KindInvalidRegistration, err, "node %d: malformed pubKey", *nodeID)
	}

	s.Lock()
	defer s.Unlock()

	if _, ok := s.known[*nodeID]; ok {
		s.log.Debugf("Node %d already registered, keeping the stored key.", *nodeID)
		instrument.Registration(instrument.RegistrationExisting)
		return false, nil
	}

	rec := pki.NodeRecord{
		NodeID: *nodeID,
		PubKey: *pubKey,
	}
	if s.store != nil {
		if err := s.store.put(&rec); err != nil {
			return false, failure.Wrap(failure.KindInternal, err, "node %d: failed to persist record", *nodeID)
		}
	}
	s.nodes = append(s.nodes, rec)
	s.known[rec.NodeID] = struct{}{}

	s.log.Noticef("Registered node %d (%d nodes).", rec.NodeID, len(s.nodes))
	instrument.Registration(instrument.RegistrationNew)
	instrument.RegisteredNodes(len(s.nodes))
	return true, nil
}

// list returns a snapshot of the membership set in insertion order.
func (s *state) list() []pki.NodeRecord {
	s.RLock()
	defer s.RUnlock()

	nodes := make([]pki.NodeRecord, len(s.nodes))
	copy(nodes, s.nodes)
	return nodes
}

func (s *state) reset() error {
	s.Lock()
	defer s.Unlock()

	if s.store != nil {
		if err := s.store.clear(); err != nil {
			return failure.Wrap(failure.KindInternal, err, "failed to clear store")
		}
	}
	s.nodes = nil
	s.known = make(map[uint32]struct{})

	s.log.Notice("Registry reset.")
	instrument.RegistryReset()
	instrument.RegisteredNodes(0)
	return nil
}

func (s *state) close() {
	s.Lock()
	defer s.Unlock()

	if s.store != nil {
		if err := s.store.close(); err != nil {
			s.log.Warningf("Failed to close store: %v", err)
		}
		s.store = nil
	}
}

func newState(log *logging.Logger, topology *pki.Topology, st *store) (*state, error) {
	s := &state{
		log:      log,
		topology: topology,
		store:    st,
		known:    make(map[uint32]struct{}),
	}
	if st == nil {
		return s, nil
	}

	records, err := st.load()
	if err != nil {
		return nil, err
	}
	for _, rec := range records {
		if _, ok := s.known[rec.NodeID]; ok {
			s.log.Warningf("Discarding duplicate persisted record for node %d.", rec.NodeID)
			continue
		}
		if err := topology.CheckRelayID(rec.NodeID); err != nil {
			s.log.Warningf("Discarding persisted record: %v", err)
			continue
		}
		s.nodes = append(s.nodes, rec)
		s.known[rec.NodeID] = struct{}{}
	}
	s.log.Noticef("Restored %d persisted nodes.", len(s.nodes))
	instrument.RegisteredNodes(len(s.nodes))
	return s, nil
}
