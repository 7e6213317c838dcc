// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package pki

import (
	"fmt"
	"net"
	"net/url"
	"strconv"
)

const maxPort = 65535

// Topology is the fixed base-port-plus-offset addressing scheme.  Relay N
// listens on BaseRelayPort+N, user N on BaseUserPort+N.
type Topology struct {
	Host          string
	RegistryPort  int
	BaseRelayPort int
	BaseUserPort  int
}

func (t *Topology) addr(port int) string {
	return net.JoinHostPort(t.Host, strconv.Itoa(port))
}

func (t *Topology) url(port int) string {
	u := &url.URL{
		Scheme: "http",
		Host:   t.addr(port),
	}
	return u.String()
}

// RegistryAddress returns the registry listen address.
func (t *Topology) RegistryAddress() string {
	return t.addr(t.RegistryPort)
}

// RegistryURL returns the registry base URL.
func (t *Topology) RegistryURL() string {
	return t.url(t.RegistryPort)
}

// RelayAddress returns the listen address of relay nodeID.
func (t *Topology) RelayAddress(nodeID uint32) string {
	return t.addr(t.BaseRelayPort + int(nodeID))
}

// RelayURL returns the base URL of relay nodeID.
func (t *Topology) RelayURL(nodeID uint32) string {
	return t.url(t.BaseRelayPort + int(nodeID))
}

// UserAddress returns the listen address of user userID.
func (t *Topology) UserAddress(userID uint32) string {
	return t.addr(t.BaseUserPort + int(userID))
}

// UserURL returns the base URL of user userID.
func (t *Topology) UserURL(userID uint32) string {
	return t.url(t.BaseUserPort + int(userID))
}

// CheckRelayID returns an error if nodeID does not map to a valid port.
func (t *Topology) CheckRelayID(nodeID uint32) error {
	if int64(t.BaseRelayPort)+int64(nodeID) > maxPort {
		return fmt.Errorf("pki: relay %d maps past port %d", nodeID, maxPort)
	}
	return nil
}

// CheckUserID returns an error if userID does not map to a valid port.
func (t *Topology) CheckUserID(userID uint32) error {
	if int64(t.BaseUserPort)+int64(userID) > maxPort {
		return fmt.Errorf("pki: user %d maps past port %d", userID, maxPort)
	}
	return nil
}
