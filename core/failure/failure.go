// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package failure provides the error kinds shared by the registry, the
// relays and the user endpoints.  Every error that crosses a process
// boundary is reduced to one of these kinds.
package failure

import (
	"errors"
	"fmt"
	"net/http"
)

// Kind is the machine readable error kind carried in HTTP error bodies.
type Kind string

const (
	KindInvalidRegistration Kind = "InvalidRegistrationError"
	KindInsufficientNodes   Kind = "InsufficientNodesError"
	KindMalformedRequest    Kind = "MalformedRequestError"
	KindKeyGeneration       Kind = "KeyGenerationError"
	KindDecryption          Kind = "DecryptionError"
	KindDelivery            Kind = "DeliveryError"

	// KindInternal is used for errors that carry no kind at all.
	KindInternal Kind = "InternalError"
)

var (
	ErrInvalidRegistration = &Error{Kind: KindInvalidRegistration, Msg: "invalid registration"}
	ErrInsufficientNodes   = &Error{Kind: KindInsufficientNodes, Msg: "not enough nodes to create a circuit"}
	ErrMalformedRequest    = &Error{Kind: KindMalformedRequest, Msg: "malformed request"}
	ErrKeyGeneration       = &Error{Kind: KindKeyGeneration, Msg: "key generation failed"}
	ErrDecryption          = &Error{Kind: KindDecryption, Msg: "decryption failed"}
	ErrDelivery            = &Error{Kind: KindDelivery, Msg: "delivery failed"}
)

// Error is a kinded error.
type Error struct {
	Kind Kind
	Msg  string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	switch {
	case e.Err != nil && e.Msg != "":
		return fmt.Sprintf("%s: %v", e.Msg, e.Err)
	case e.Err != nil:
		return e.Err.Error()
	default:
		return e.Msg
	}
}

// Unwrap returns the underlying error, if any.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is reports a match against any *Error of the same Kind, which lets
// callers test with the package level sentinels.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return t.Kind == e.Kind
}

// New returns a new error of the given kind.
func New(kind Kind, format string, args ...interface{}) error {
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...)}
}

// Wrap annotates err with kind.  A nil err yields nil.
func Wrap(kind Kind, err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return &Error{Kind: kind, Msg: fmt.Sprintf(format, args...), Err: err}
}

// KindOf returns the kind of the outermost kinded error in err's chain, or
// KindInternal.
func KindOf(err error) Kind {
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	return KindInternal
}

// HTTPStatus maps an error kind to the status code used on the wire.
func HTTPStatus(kind Kind) int {
	switch kind {
	case KindInvalidRegistration, KindMalformedRequest, KindDecryption:
		return http.StatusBadRequest
	case KindDelivery:
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}
