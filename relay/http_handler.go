// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package relay

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/katzenpost/onionsim/core/wire"
	"github.com/katzenpost/onionsim/internal/service"
)

func (r *Relay) newRouter() *mux.Router {
	m := service.NewRouter(r.log)
	m.HandleFunc(wire.PathStatus, r.onStatus).Methods(http.MethodGet)
	m.HandleFunc(wire.PathMessage, r.onMessage).Methods(http.MethodPost)
	m.HandleFunc(wire.PathGetLastReceivedEncryptedMessage, r.onGetLastReceivedEncryptedMessage).Methods(http.MethodGet)
	m.HandleFunc(wire.PathGetLastReceivedDecryptedMessage, r.onGetLastReceivedDecryptedMessage).Methods(http.MethodGet)
	m.HandleFunc(wire.PathGetLastMessageDestination, r.onGetLastMessageDestination).Methods(http.MethodGet)
	m.HandleFunc(wire.PathGetPrivateKey, r.onGetPrivateKey).Methods(http.MethodGet)
	return m
}

func (r *Relay) onStatus(w http.ResponseWriter, req *http.Request) {
	wire.WriteStatus(w)
}

func (r *Relay) onMessage(w http.ResponseWriter, req *http.Request) {
	var body wire.ForwardRequest
	if err := wire.DecodeRequest(w, req, &body); err != nil {
		service.LogInvalidRequest(r.log, req, err)
		wire.WriteError(w, err)
		return
	}
	if err := r.handleForward(req.Context(), &body); err != nil {
		service.LogInvalidRequest(r.log, req, err)
		wire.WriteError(w, err)
		return
	}
	wire.WriteSuccess(w)
}

func (r *Relay) onGetLastReceivedEncryptedMessage(w http.ResponseWriter, req *http.Request) {
	wire.WriteJSON(w, http.StatusOK, &wire.StringResult{Result: r.state.encrypted()})
}

func (r *Relay) onGetLastReceivedDecryptedMessage(w http.ResponseWriter, req *http.Request) {
	wire.WriteJSON(w, http.StatusOK, &wire.StringResult{Result: r.state.decrypted()})
}

func (r *Relay) onGetLastMessageDestination(w http.ResponseWriter, req *http.Request) {
	wire.WriteJSON(w, http.StatusOK, &wire.NumberResult{Result: r.state.destination()})
}

func (r *Relay) onGetPrivateKey(w http.ResponseWriter, req *http.Request) {
	sk := r.privateKey.String()
	wire.WriteJSON(w, http.StatusOK, &wire.StringResult{Result: &sk})
}
