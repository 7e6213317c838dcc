// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package relay implements an onionsim relay.
//
// A relay owns one RSA-OAEP key pair, generated at startup and published
// to the registry.  Each inbound packet is peeled exactly once and handed
// to the next relay of the circuit, or to the destination user when the
// relay is the last hop.
package relay

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/katzenpost/hpqc/rand"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/onionsim/config"
	"github.com/katzenpost/onionsim/core/crypto/oaep"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/core/pki"
	"github.com/katzenpost/onionsim/core/retry"
	"github.com/katzenpost/onionsim/internal/service"
	"github.com/katzenpost/onionsim/registry/client"
)

// keyEntropy is the entropy source of relay key pairs.
var keyEntropy io.Reader = rand.Reader

// Relay is a relay instance.
type Relay struct {
	cfg    *config.Config
	nodeID uint32

	logBackend  *log.Backend
	ownsBackend bool
	log         *logging.Logger

	privateKey *oaep.PrivateKey
	registry   pki.Client
	resolver   pki.Resolver
	httpClient *http.Client

	state state
	svc   *service.Service

	haltedCh chan interface{}
	haltOnce sync.Once
}

// NodeID returns the relay's node id.
func (r *Relay) NodeID() uint32 {
	return r.nodeID
}

// PublicKey returns the relay's public key.
func (r *Relay) PublicKey() *oaep.PublicKey {
	return r.privateKey.PublicKey()
}

// Handler returns the relay's HTTP handler.
func (r *Relay) Handler() http.Handler {
	return r.newRouter()
}

// URL returns the base URL the relay is listening on.
func (r *Relay) URL() string {
	return r.svc.URL()
}

// Register publishes the relay's public key, retrying transient failures
// as configured.
func (r *Relay) Register(ctx context.Context) error {
	p := r.cfg.Relay.RetryPolicy()
	p.OnRetry = func(attempt int, delay time.Duration, err error) {
		r.log.Warningf("Registration attempt %d failed, retrying in %v: %v", attempt+1, delay, err)
	}
	err := retry.Do(ctx, p, func(ctx context.Context) error {
		return r.registry.Register(ctx, r.nodeID, r.PublicKey())
	})
	if err != nil {
		return fmt.Errorf("relay %d: registration failed: %w", r.nodeID, err)
	}
	r.log.Notice("Registered with the registry.")
	return nil
}

// RotateLog rotates the log file if logging to a file is enabled.
func (r *Relay) RotateLog() error {
	if err := r.logBackend.Rotate(); err != nil {
		return err
	}
	r.log.Notice("Log rotated.")
	return nil
}

// Wait waits till the relay is terminated for any reason.
func (r *Relay) Wait() {
	<-r.haltedCh
}

// Shutdown cleanly shuts down a given Relay instance.
func (r *Relay) Shutdown() {
	r.haltOnce.Do(func() { r.halt() })
}

func (r *Relay) halt() {
	r.log.Notice("Starting graceful shutdown.")

	if r.svc != nil {
		r.svc.Halt()
		r.svc = nil
	}
	r.privateKey.Reset()

	r.log.Notice("Shutdown complete.")
	if r.ownsBackend {
		r.logBackend.Close()
	}
	close(r.haltedCh)
}

func newRelay(cfg *config.Config, nodeID uint32, logBackend *log.Backend, registry pki.Client, resolver pki.Resolver) (*Relay, error) {
	topo := cfg.Topology()
	if err := topo.CheckRelayID(nodeID); err != nil {
		return nil, err
	}

	r := &Relay{
		cfg:        cfg,
		nodeID:     nodeID,
		logBackend: logBackend,
		registry:   registry,
		resolver:   resolver,
		httpClient: &http.Client{},
		haltedCh:   make(chan interface{}),
	}
	if r.logBackend == nil {
		var err error
		if r.logBackend, err = log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable); err != nil {
			return nil, err
		}
		r.ownsBackend = true
	}

	// Past this point, failures need to close an owned log backend.
	isOk := false
	defer func() {
		if !isOk && r.ownsBackend {
			r.logBackend.Close()
		}
	}()
	r.log = r.logBackend.GetLogger(fmt.Sprintf("relay/%d", nodeID))
	if cfg.Logging.Level == "DEBUG" {
		r.log.Warning("Unsafe Debug logging is enabled.")
	}

	if r.registry == nil {
		c, err := client.New(&client.Config{
			LogBackend: r.logBackend,
			URL:        topo.RegistryURL(),
		})
		if err != nil {
			return nil, err
		}
		r.registry = c
	}
	if r.resolver == nil {
		r.resolver = topo
	}

	var err error
	if r.privateKey, err = oaep.NewKeypair(keyEntropy); err != nil {
		r.log.Errorf("Failed to generate key pair: %v", err)
		return nil, err
	}
	isOk = true
	return r, nil
}

// New returns a new Relay listening on its configured address and
// registered with the registry.  If logBackend is nil the relay creates
// its own from cfg.
func New(ctx context.Context, cfg *config.Config, nodeID uint32, logBackend *log.Backend) (*Relay, error) {
	r, err := newRelay(cfg, nodeID, logBackend, nil, nil)
	if err != nil {
		return nil, err
	}

	// Past this point, failures need to call r.Shutdown() to do cleanup.
	isOk := false
	defer func() {
		if !isOk {
			r.Shutdown()
		}
	}()

	addr := cfg.Topology().RelayAddress(nodeID)
	module := fmt.Sprintf("relay/%d", nodeID)
	if r.svc, err = service.Listen(addr, r.Handler(), r.logBackend, module); err != nil {
		r.log.Errorf("Failed to start listener '%v': %v", addr, err)
		return nil, err
	}
	if err = r.Register(ctx); err != nil {
		r.log.Error(err.Error())
		return nil, err
	}

	isOk = true
	return r, nil
}
