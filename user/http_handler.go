// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package user

import (
	"net/http"

	"github.com/gorilla/mux"

	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/wire"
	"github.com/katzenpost/onionsim/internal/service"
)

func (u *User) newRouter() *mux.Router {
	r := service.NewRouter(u.log)
	r.HandleFunc(wire.PathStatus, u.onStatus).Methods(http.MethodGet)
	r.HandleFunc(wire.PathGetLastReceivedMessage, u.onGetLastReceivedMessage).Methods(http.MethodGet)
	r.HandleFunc(wire.PathGetLastSentMessage, u.onGetLastSentMessage).Methods(http.MethodGet)
	r.HandleFunc(wire.PathMessage, u.onMessage).Methods(http.MethodPost)
	r.HandleFunc(wire.PathSendMessage, u.onSendMessage).Methods(http.MethodPost)
	return r
}

func (u *User) onStatus(w http.ResponseWriter, req *http.Request) {
	wire.WriteStatus(w)
}

func (u *User) onGetLastReceivedMessage(w http.ResponseWriter, req *http.Request) {
	wire.WriteJSON(w, http.StatusOK, &wire.StringResult{Result: u.state.received()})
}

func (u *User) onGetLastSentMessage(w http.ResponseWriter, req *http.Request) {
	wire.WriteJSON(w, http.StatusOK, &wire.StringResult{Result: u.state.sent()})
}

func (u *User) onMessage(w http.ResponseWriter, req *http.Request) {
	var body wire.DeliverRequest
	err := wire.DecodeRequest(w, req, &body)
	if err == nil && (body.Message == nil || *body.Message == "") {
		err = failure.New(failure.KindMalformedRequest, "message is required")
	}
	if err != nil {
		service.LogInvalidRequest(u.log, req, err)
		wire.WriteError(w, err)
		return
	}
	u.deliver(*body.Message)
	wire.WriteSuccess(w)
}

func (u *User) onSendMessage(w http.ResponseWriter, req *http.Request) {
	var body wire.SendMessageRequest
	err := wire.DecodeRequest(w, req, &body)
	if err == nil && (body.Message == nil || body.DestinationUserID == nil) {
		err = failure.New(failure.KindMalformedRequest, "missing message or destinationUserId")
	}
	if err != nil {
		service.LogInvalidRequest(u.log, req, err)
		wire.WriteError(w, err)
		return
	}

	circuit, err := u.SendMessage(req.Context(), *body.Message, *body.DestinationUserID)
	if err != nil {
		u.log.Errorf("Failed to send message: %v", err)
		wire.WriteError(w, err)
		return
	}
	wire.WriteJSON(w, http.StatusOK, &wire.SendMessageResponse{
		Success: true,
		Circuit: circuit,
	})
}
