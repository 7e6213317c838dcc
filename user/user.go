// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package user implements an onionsim user endpoint, which sends messages
// over freshly built 3 hop circuits and receives the messages delivered
// by exit relays.
package user

import (
	"fmt"
	"net/http"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/onionsim/config"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/core/pki"
	"github.com/katzenpost/onionsim/internal/service"
	"github.com/katzenpost/onionsim/registry/client"
)

// User is a user endpoint instance.
type User struct {
	cfg    *config.Config
	userID uint32

	logBackend  *log.Backend
	ownsBackend bool
	log         *logging.Logger

	registry   pki.Client
	resolver   pki.Resolver
	httpClient *http.Client

	state state
	svc   *service.Service

	haltedCh chan interface{}
	haltOnce sync.Once
}

// UserID returns the user's id.
func (u *User) UserID() uint32 {
	return u.userID
}

// LastSentMessage returns the last message sent, if any.
func (u *User) LastSentMessage() (string, bool) {
	if m := u.state.sent(); m != nil {
		return *m, true
	}
	return "", false
}

// LastReceivedMessage returns the last message delivered, if any.
func (u *User) LastReceivedMessage() (string, bool) {
	if m := u.state.received(); m != nil {
		return *m, true
	}
	return "", false
}

// Handler returns the user's HTTP handler.
func (u *User) Handler() http.Handler {
	return u.newRouter()
}

// URL returns the base URL the user is listening on.
func (u *User) URL() string {
	return u.svc.URL()
}

// RotateLog rotates the log file if logging to a file is enabled.
func (u *User) RotateLog() error {
	if err := u.logBackend.Rotate(); err != nil {
		return err
	}
	u.log.Notice("Log rotated.")
	return nil
}

// Wait waits till the user is terminated for any reason.
func (u *User) Wait() {
	<-u.haltedCh
}

// Shutdown cleanly shuts down a given User instance.
func (u *User) Shutdown() {
	u.haltOnce.Do(func() { u.halt() })
}

func (u *User) halt() {
	u.log.Notice("Starting graceful shutdown.")

	if u.svc != nil {
		u.svc.Halt()
		u.svc = nil
	}

	u.log.Notice("Shutdown complete.")
	if u.ownsBackend {
		u.logBackend.Close()
	}
	close(u.haltedCh)
}

func newUser(cfg *config.Config, userID uint32, logBackend *log.Backend, registry pki.Client, resolver pki.Resolver) (*User, error) {
	topo := cfg.Topology()
	if err := topo.CheckUserID(userID); err != nil {
		return nil, err
	}

	u := &User{
		cfg:        cfg,
		userID:     userID,
		logBackend: logBackend,
		registry:   registry,
		resolver:   resolver,
		httpClient: &http.Client{},
		haltedCh:   make(chan interface{}),
	}
	if u.logBackend == nil {
		var err error
		if u.logBackend, err = log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable); err != nil {
			return nil, err
		}
		u.ownsBackend = true
	}

	// Past this point, failures need to close an owned log backend.
	isOk := false
	defer func() {
		if !isOk && u.ownsBackend {
			u.logBackend.Close()
		}
	}()
	u.log = u.logBackend.GetLogger(fmt.Sprintf("user/%d", userID))
	if cfg.Logging.Level == "DEBUG" {
		u.log.Warning("Unsafe Debug logging is enabled.")
	}

	if u.registry == nil {
		c, err := client.New(&client.Config{
			LogBackend: u.logBackend,
			URL:        topo.RegistryURL(),
		})
		if err != nil {
			return nil, err
		}
		u.registry = c
	}
	if u.resolver == nil {
		u.resolver = topo
	}
	isOk = true
	return u, nil
}

// New returns a new User listening on its configured address.  If
// logBackend is nil the user creates its own from cfg.
func New(cfg *config.Config, userID uint32, logBackend *log.Backend) (*User, error) {
	u, err := newUser(cfg, userID, logBackend, nil, nil)
	if err != nil {
		return nil, err
	}

	addr := cfg.Topology().UserAddress(userID)
	module := fmt.Sprintf("user/%d", userID)
	if u.svc, err = service.Listen(addr, u.Handler(), u.logBackend, module); err != nil {
		u.log.Errorf("Failed to start listener '%v': %v", addr, err)
		u.Shutdown()
		return nil, err
	}
	return u, nil
}
