// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package server

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/wire"
	"github.com/katzenpost/onionsim/internal/service"
)

func (s *Server) newRouter() *mux.Router {
	r := service.NewRouter(s.log)
	r.HandleFunc(wire.PathStatus, s.onStatus).Methods(http.MethodGet)
	r.HandleFunc(wire.PathRegisterNode, s.onRegisterNode).Methods(http.MethodPost)
	r.HandleFunc(wire.PathGetNodeRegistry, s.onGetNodeRegistry).Methods(http.MethodGet)
	r.HandleFunc(wire.PathResetRegistry, s.onResetRegistry).Methods(http.MethodPost)
	return r
}

func (s *Server) onStatus(w http.ResponseWriter, req *http.Request) {
	wire.WriteStatus(w)
}

func (s *Server) onRegisterNode(w http.ResponseWriter, req *http.Request) {
	var body wire.RegisterNodeRequest
	if err := wire.DecodeRequest(w, req, &body); err != nil {
		err = failure.Wrap(failure.KindInvalidRegistration, err, "malformed registration")
		service.LogInvalidRequest(s.log, req, err)
		wire.WriteError(w, err)
		return
	}
	if _, err := s.state.register(body.NodeID, body.PubKey); err != nil {
		service.LogInvalidRequest(s.log, req, err)
		wire.WriteError(w, err)
		return
	}
	wire.WriteSuccess(w)
}

func (s *Server) onGetNodeRegistry(w http.ResponseWriter, req *http.Request) {
	wire.WriteJSON(w, http.StatusOK, &wire.NodeRegistryResponse{
		Nodes: s.state.list(),
	})
}

func (s *Server) onResetRegistry(w http.ResponseWriter, req *http.Request) {
	if err := s.state.reset(); err != nil {
		s.log.Errorf("Reset failed: %v", err)
		wire.WriteError(w, err)
		return
	}
	wire.WriteSuccess(w)
}
