// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package client implements the onionsim registry client.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/context/ctxhttp"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/onionsim/core/crypto/oaep"
	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/core/pki"
	"github.com/katzenpost/onionsim/core/wire"
)

const defaultTimeout = 30 * time.Second

var _ pki.Client = (*Client)(nil)

// Config is a registry Client configuration.
type Config struct {
	// LogBackend is the `core/log` Backend instance to use for logging.
	LogBackend *log.Backend

	// URL is the registry's base URL.
	URL string

	// Timeout bounds every request.  Zero selects a default.
	Timeout time.Duration
}

func (cfg *Config) validate() error {
	if cfg.LogBackend == nil {
		return errors.New("registry/client: LogBackend is mandatory")
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return fmt.Errorf("registry/client: invalid URL: %v", err)
	}
	if u.Scheme != "http" || u.Host == "" {
		return fmt.Errorf("registry/client: invalid URL: '%v'", cfg.URL)
	}
	return nil
}

// Client talks to a registry over HTTP.
type Client struct {
	cfg        *Config
	log        *logging.Logger
	httpClient *http.Client
}

func (c *Client) url(path string) string {
	return strings.TrimSuffix(c.cfg.URL, "/") + path
}

func (c *Client) post(ctx context.Context, path string, body interface{}) error {
	b, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := ctxhttp.Post(ctx, c.httpClient, c.url(path), "application/json", bytes.NewReader(b))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !wire.IsSuccess(resp) {
		return wire.ResponseError(resp)
	}
	var sr wire.SuccessResponse
	if err := wire.DecodeResponse(resp, &sr); err != nil {
		return failure.Wrap(failure.KindInternal, err, "registry/client: invalid response")
	}
	if !sr.Success {
		return failure.New(failure.KindInternal, "registry/client: %v not acknowledged", path)
	}
	return nil
}

// Status returns nil iff the registry reports itself live.
func (c *Client) Status(ctx context.Context) error {
	resp, err := ctxhttp.Get(ctx, c.httpClient, c.url(wire.PathStatus))
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if !wire.IsSuccess(resp) {
		return wire.ResponseError(resp)
	}
	b, err := io.ReadAll(io.LimitReader(resp.Body, wire.MaxBodySize))
	if err != nil {
		return err
	}
	if s := string(b); s != wire.StatusLive {
		return fmt.Errorf("registry/client: unexpected status '%v'", s)
	}
	return nil
}

// Register publishes publicKey under nodeID.
func (c *Client) Register(ctx context.Context, nodeID uint32, publicKey *oaep.PublicKey) error {
	c.log.Debugf("Register(ctx, %d)", nodeID)

	pubKey := publicKey.String()
	return c.post(ctx, wire.PathRegisterNode, &wire.RegisterNodeRequest{
		NodeID: &nodeID,
		PubKey: &pubKey,
	})
}

// Nodes returns the registry's membership snapshot.
func (c *Client) Nodes(ctx context.Context) ([]pki.NodeRecord, error) {
	resp, err := ctxhttp.Get(ctx, c.httpClient, c.url(wire.PathGetNodeRegistry))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if !wire.IsSuccess(resp) {
		return nil, wire.ResponseError(resp)
	}
	var nr wire.NodeRegistryResponse
	if err := wire.DecodeResponse(resp, &nr); err != nil {
		return nil, failure.Wrap(failure.KindInternal, err, "registry/client: invalid node list")
	}
	c.log.Debugf("Nodes(ctx): %d nodes", len(nr.Nodes))
	return nr.Nodes, nil
}

// Reset clears the registry.
func (c *Client) Reset(ctx context.Context) error {
	c.log.Debug("Reset(ctx)")
	return c.post(ctx, wire.PathResetRegistry, struct{}{})
}

// New constructs a new Client instance.
func New(cfg *Config) (*Client, error) {
	if cfg == nil {
		return nil, errors.New("registry/client: cfg is mandatory")
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		cfg:        cfg,
		log:        cfg.LogBackend.GetLogger("registry/client"),
		httpClient: &http.Client{Timeout: timeout},
	}
	return c, nil
}
