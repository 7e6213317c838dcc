// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package wire

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/katzenpost/onionsim/core/failure"
)

// MaxBodySize bounds every request and response body.
const MaxBodySize = 1 << 20

const contentTypeJSON = "application/json"

// ErrorResponse is the body of every error response.
type ErrorResponse struct {
	Error string       `json:"error"`
	Kind  failure.Kind `json:"kind"`
}

// DecodeRequest reads a JSON body into v.  Any failure is a
// MalformedRequestError.
func DecodeRequest(w http.ResponseWriter, req *http.Request, v interface{}) error {
	r := http.MaxBytesReader(w, req.Body, MaxBodySize)
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return failure.Wrap(failure.KindMalformedRequest, err, "invalid JSON body")
	}
	return nil
}

// WriteJSON serializes v as the response body.
func WriteJSON(w http.ResponseWriter, status int, v interface{}) {
	setCacheControl(w)
	w.Header().Set("Content-Type", contentTypeJSON)
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// WriteSuccess writes `{"success": true}`.
func WriteSuccess(w http.ResponseWriter) {
	WriteJSON(w, http.StatusOK, &SuccessResponse{Success: true})
}

// WriteStatus writes the plain text liveness response.
func WriteStatus(w http.ResponseWriter) {
	setCacheControl(w)
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, StatusLive)
}

// WriteError writes err with the status derived from its kind.
func WriteError(w http.ResponseWriter, err error) {
	kind := failure.KindOf(err)
	WriteJSON(w, failure.HTTPStatus(kind), &ErrorResponse{
		Error: err.Error(),
		Kind:  kind,
	})
}

// ResponseError rebuilds the error carried by a non-2xx response.  The
// caller still owns resp.Body.
func ResponseError(resp *http.Response) error {
	b, _ := io.ReadAll(io.LimitReader(resp.Body, MaxBodySize))

	var e ErrorResponse
	if err := json.Unmarshal(b, &e); err != nil || e.Kind == "" {
		msg := strings.TrimSpace(string(b))
		if msg == "" {
			msg = http.StatusText(resp.StatusCode)
		}
		return &failure.Error{
			Kind: failure.KindInternal,
			Msg:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, msg),
		}
	}
	return &failure.Error{
		Kind: e.Kind,
		Msg:  fmt.Sprintf("HTTP %d: %s", resp.StatusCode, e.Error),
	}
}

// DecodeResponse reads a JSON response body into v.
func DecodeResponse(resp *http.Response, v interface{}) error {
	return json.NewDecoder(io.LimitReader(resp.Body, MaxBodySize)).Decode(v)
}

// IsSuccess returns true iff resp carries a 2xx status.
func IsSuccess(resp *http.Response) bool {
	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

func setCacheControl(w http.ResponseWriter) {
	w.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
}
