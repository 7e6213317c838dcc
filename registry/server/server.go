// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package server implements the onionsim node registry.
//
// The registry is a trusted directory: relays publish their public key
// under their node id, users fetch the full list to build circuits.  There
// is no authentication of entries.
package server

import (
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"sync"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/onionsim/config"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/internal/service"
)

// Server is a registry instance.
type Server struct {
	cfg *config.Config

	logBackend  *log.Backend
	ownsBackend bool
	log         *logging.Logger

	state *state
	svc   *service.Service

	fatalErrCh chan error
	haltedCh   chan interface{}
	haltOnce   sync.Once
}

func (s *Server) initDataDir() error {
	const dirMode = os.ModeDir | 0700
	d := s.cfg.Registry.DataDir

	// Initialize the data directory, by ensuring that it exists (or can be
	// created), and that it has the appropriate permissions.
	if fi, err := os.Lstat(d); err != nil {
		if !os.IsNotExist(err) {
			return fmt.Errorf("registry: failed to stat() DataDir: %v", err)
		}
		if err = os.Mkdir(d, dirMode); err != nil {
			return fmt.Errorf("registry: failed to create DataDir: %v", err)
		}
	} else {
		if !fi.IsDir() {
			return fmt.Errorf("registry: DataDir '%v' is not a directory", d)
		}
		if fi.Mode() != dirMode {
			return fmt.Errorf("registry: DataDir '%v' has invalid permissions '%v', should be '%v'", d, fi.Mode(), dirMode)
		}
	}
	return nil
}

func (s *Server) initLogging() error {
	p := s.cfg.Logging.File
	if !s.cfg.Logging.Disable && p != "" && !filepath.IsAbs(p) && s.cfg.Registry.DataDir != "" {
		p = filepath.Join(s.cfg.Registry.DataDir, p)
	}

	var err error
	s.logBackend, err = log.New(p, s.cfg.Logging.Level, s.cfg.Logging.Disable)
	if err == nil {
		s.ownsBackend = true
	}
	return err
}

// Handler returns the registry's HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.newRouter()
}

// URL returns the base URL the registry is listening on.
func (s *Server) URL() string {
	return s.svc.URL()
}

// RotateLog rotates the log file if logging to a file is enabled.
func (s *Server) RotateLog() {
	if err := s.logBackend.Rotate(); err != nil {
		select {
		case s.fatalErrCh <- fmt.Errorf("failed to rotate log file, shutting down server"):
		case <-s.haltedCh:
		}
		return
	}
	s.log.Notice("Log rotated.")
}

// Wait waits till the server is terminated for any reason.
func (s *Server) Wait() {
	<-s.haltedCh
}

// Shutdown cleanly shuts down a given Server instance.
func (s *Server) Shutdown() {
	s.haltOnce.Do(func() { s.halt() })
}

func (s *Server) halt() {
	s.log.Notice("Starting graceful shutdown.")

	if s.svc != nil {
		s.svc.Halt()
		s.svc = nil
	}
	if s.state != nil {
		s.state.close()
	}
	s.log.Notice("Shutdown complete.")
	if s.ownsBackend {
		s.logBackend.Close()
	}
	close(s.haltedCh)
}

func newServer(cfg *config.Config, logBackend *log.Backend) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		logBackend: logBackend,
		fatalErrCh: make(chan error),
		haltedCh:   make(chan interface{}),
	}

	if cfg.Registry.DataDir != "" {
		if err := s.initDataDir(); err != nil {
			return nil, err
		}
	}
	if s.logBackend == nil {
		if err := s.initLogging(); err != nil {
			return nil, err
		}
	}
	s.log = s.logBackend.GetLogger("registry")
	if s.cfg.Logging.Level == "DEBUG" {
		s.log.Warning("Unsafe Debug logging is enabled.")
	}

	var st *store
	if cfg.Registry.DataDir != "" {
		var err error
		if st, err = openStore(cfg.Registry.DataDir); err != nil {
			s.log.Errorf("Failed to open store: %v", err)
			return nil, err
		}
	}
	var err error
	if s.state, err = newState(s.logBackend.GetLogger("registry/state"), cfg.Topology(), st); err != nil {
		if st != nil {
			st.close()
		}
		return nil, err
	}
	return s, nil
}

// New returns a new Server instance listening on the registry address of
// cfg.  If logBackend is nil the server creates its own from cfg.
func New(cfg *config.Config, logBackend *log.Backend) (*Server, error) {
	s, err := newServer(cfg, logBackend)
	if err != nil {
		return nil, err
	}

	// Past this point, failures need to call s.Shutdown() to do cleanup.
	isOk := false
	defer func() {
		if !isOk {
			s.Shutdown()
		}
	}()

	// Start the fatal error watcher.
	go func() {
		select {
		case err := <-s.fatalErrCh:
			s.log.Warningf("Shutting down due to error: %v", err)
			s.Shutdown()
		case <-s.haltedCh:
		}
	}()

	addr := cfg.Topology().RegistryAddress()
	if s.svc, err = service.Listen(addr, s.Handler(), s.logBackend, "registry"); err != nil {
		s.log.Errorf("Failed to start listener '%v': %v", addr, err)
		return nil, err
	}

	isOk = true
	return s, nil
}
