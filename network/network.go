// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package network launches a registry, a set of relays and a set of users
// inside a single process.
package network

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/onionsim/config"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/internal/instrument"
	"github.com/katzenpost/onionsim/registry/server"
	"github.com/katzenpost/onionsim/relay"
	"github.com/katzenpost/onionsim/user"
)

// Network is a running set of services.
type Network struct {
	log *logging.Logger

	registry *server.Server
	relays   []*relay.Relay
	users    []*user.User
	metrics  *http.Server

	haltedCh chan interface{}
	haltOnce sync.Once
}

// Registry returns the registry.
func (n *Network) Registry() *server.Server {
	return n.registry
}

// Relays returns the relays, indexed by node id.
func (n *Network) Relays() []*relay.Relay {
	return n.relays
}

// Users returns the users, indexed by user id.
func (n *Network) Users() []*user.User {
	return n.users
}

// Wait waits till the network is shut down.
func (n *Network) Wait() {
	<-n.haltedCh
}

// Shutdown stops every service, users first.
func (n *Network) Shutdown() {
	n.haltOnce.Do(func() {
		n.log.Notice("Shutting down the network.")
		for _, u := range n.users {
			u.Shutdown()
		}
		for _, r := range n.relays {
			r.Shutdown()
		}
		if n.registry != nil {
			n.registry.Shutdown()
		}
		if n.metrics != nil {
			n.metrics.Close()
		}
		close(n.haltedCh)
	})
}

// Launch starts the registry, then relays 0..nrRelays-1, each registering
// before the next one starts, then users 0..nrUsers-1.
func Launch(ctx context.Context, cfg *config.Config, nrRelays, nrUsers int, logBackend *log.Backend) (*Network, error) {
	if nrRelays < 0 || nrUsers < 0 {
		return nil, errors.New("network: negative service count")
	}
	if nrRelays > 0 {
		if err := cfg.Topology().CheckRelayID(uint32(nrRelays - 1)); err != nil {
			return nil, err
		}
	}
	if nrUsers > 0 {
		if err := cfg.Topology().CheckUserID(uint32(nrUsers - 1)); err != nil {
			return nil, err
		}
	}

	n := &Network{
		log:      logBackend.GetLogger("network"),
		haltedCh: make(chan interface{}),
	}

	// Past this point, failures need to call n.Shutdown() to do cleanup.
	isOk := false
	defer func() {
		if !isOk {
			n.Shutdown()
		}
	}()

	if cfg.Metrics.Address != "" {
		var err error
		if n.metrics, err = instrument.Listen(cfg.Metrics.Address); err != nil {
			return nil, fmt.Errorf("network: failed to start metrics listener: %v", err)
		}
	}
	instrument.Init()

	var err error
	if n.registry, err = server.New(cfg, logBackend); err != nil {
		return nil, fmt.Errorf("network: registry: %w", err)
	}
	for i := 0; i < nrRelays; i++ {
		r, err := relay.New(ctx, cfg, uint32(i), logBackend)
		if err != nil {
			return nil, fmt.Errorf("network: relay %d: %w", i, err)
		}
		n.relays = append(n.relays, r)
	}
	for i := 0; i < nrUsers; i++ {
		u, err := user.New(cfg, uint32(i), logBackend)
		if err != nil {
			return nil, fmt.Errorf("network: user %d: %w", i, err)
		}
		n.users = append(n.users, u)
	}

	n.log.Noticef("Network up: registry at %v, %d relays, %d users.", n.registry.URL(), nrRelays, nrUsers)
	isOk = true
	return n, nil
}
