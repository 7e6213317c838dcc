// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package service provides the HTTP listener plumbing shared by the
// registry, relay and user services.
package service

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/core/wire"
	"github.com/katzenpost/onionsim/core/worker"
)

const (
	readHeaderTimeout = 10 * time.Second
	shutdownTimeout   = 5 * time.Second
)

// Service is an HTTP server bound to a single listener.
type Service struct {
	worker.Worker

	log *logging.Logger
	l   net.Listener
	srv *http.Server
}

// NewRouter returns a router that answers unknown paths and methods with
// a JSON error body.
func NewRouter(logger *logging.Logger) *mux.Router {
	r := mux.NewRouter()
	r.NotFoundHandler = invalidRequestHandler(logger, http.StatusNotFound, "invalid URL")
	r.MethodNotAllowedHandler = invalidRequestHandler(logger, http.StatusMethodNotAllowed, "invalid HTTP method for URL")
	return r
}

func invalidRequestHandler(logger *logging.Logger, status int, msg string) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		LogInvalidRequest(logger, req, nil)
		wire.WriteJSON(w, status, &wire.ErrorResponse{
			Error: msg,
			Kind:  failure.KindMalformedRequest,
		})
	})
}

// LogInvalidRequest logs a rejected request.
func LogInvalidRequest(logger *logging.Logger, req *http.Request, err error) {
	if err != nil {
		logger.Errorf("Peer %v: %v Invalid request: '%v' (%v)", req.RemoteAddr, req.Method, req.URL, err)
		return
	}
	logger.Errorf("Peer %v: %v Invalid request: '%v'", req.RemoteAddr, req.Method, req.URL)
}

// Wrap adds panic recovery and DEBUG level access logging to h.
func Wrap(h http.Handler, logBackend *log.Backend, module string) http.Handler {
	module = module + "/http"
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(logBackend.GetGoLogger(module, "ERROR")),
		handlers.PrintRecoveryStack(logBackend.IsEnabledFor(logging.DEBUG, module)),
	)
	return handlers.LoggingHandler(logBackend.GetLogWriter(module, "DEBUG"), recovery(h))
}

// Listen binds address and serves h on it until Halt is called.
func Listen(address string, h http.Handler, logBackend *log.Backend, module string) (*Service, error) {
	l, err := net.Listen("tcp", address)
	if err != nil {
		return nil, err
	}
	return Serve(l, h, logBackend, module), nil
}

// Serve serves h on l until Halt is called.
func Serve(l net.Listener, h http.Handler, logBackend *log.Backend, module string) *Service {
	s := &Service{
		log: logBackend.GetLogger(module),
		l:   l,
		srv: &http.Server{
			Handler:           Wrap(h, logBackend, module),
			ReadHeaderTimeout: readHeaderTimeout,
			ErrorLog:          logBackend.GetGoLogger(module+"/http", "WARNING"),
		},
	}
	s.srv.BaseContext = func(net.Listener) context.Context {
		return s.Context()
	}
	s.Go(s.listenWorker)
	s.Go(s.shutdownWorker)
	return s
}

func (s *Service) listenWorker() {
	addr := s.l.Addr()
	s.log.Noticef("Listening on: %v", addr)
	defer s.log.Noticef("Stopping listening on: %v", addr)

	if err := s.srv.Serve(s.l); err != nil && !errors.Is(err, http.ErrServerClosed) {
		s.log.Errorf("Critical accept failure: %v", err)
	}
}

// shutdownWorker drains in flight requests once the service is halted, so
// that Halt only returns after every handler has.
func (s *Service) shutdownWorker() {
	<-s.HaltCh()
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := s.srv.Shutdown(ctx); err != nil {
		s.log.Warningf("Forced close on %v: %v", s.l.Addr(), err)
		s.srv.Close()
	}
}

// Addr returns the bound address.
func (s *Service) Addr() net.Addr {
	return s.l.Addr()
}

// URL returns the base URL of the service.
func (s *Service) URL() string {
	return "http://" + s.l.Addr().String()
}
