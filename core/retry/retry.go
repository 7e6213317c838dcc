// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package retry provides a bounded retry loop for the HTTP calls made
// between onionsim processes.  Setting MaxDelay to BaseDelay without jitter
// yields a fixed backoff, which is what relay registration uses.
package retry

import (
	"context"
	"errors"
	"math"
	"net"
	"net/http"
	"strings"
	"syscall"
	"time"

	"github.com/katzenpost/hpqc/rand"

	"github.com/katzenpost/onionsim/core/failure"
)

// Policy controls Do.
type Policy struct {
	MaxAttempts int
	BaseDelay   time.Duration
	MaxDelay    time.Duration
	Jitter      float64

	// OnRetry, if set, is called before sleeping after a failed attempt.
	OnRetry func(attempt int, delay time.Duration, err error)
}

// Do calls fn until it succeeds, returns an error that is not transient,
// the attempts are exhausted, or ctx is done.  The last error is returned.
func Do(ctx context.Context, p Policy, fn func(context.Context) error) error {
	if p.MaxAttempts < 1 {
		p.MaxAttempts = 1
	}

	var err error
	for attempt := 0; attempt < p.MaxAttempts; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if !IsTransientError(err) || attempt == p.MaxAttempts-1 {
			break
		}

		delay := Delay(p.BaseDelay, p.MaxDelay, p.Jitter, attempt)
		if p.OnRetry != nil {
			p.OnRetry(attempt, delay, err)
		}
		t := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			t.Stop()
			return err
		case <-t.C:
		}
	}
	return err
}

// Delay calculates the delay for a given retry attempt.  The delay doubles
// per attempt up to maxDelay, so maxDelay == baseDelay is a fixed backoff.
func Delay(baseDelay, maxDelay time.Duration, jitter float64, attempt int) time.Duration {
	delay := float64(baseDelay) * math.Pow(2, float64(attempt))
	if maxDelay > 0 && delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}

	if jitter > 0 {
		r := rand.NewMath()
		delay *= 1 - jitter + r.Float64()*2*jitter
	}

	return time.Duration(delay)
}

// IsTransientError returns true if the error is likely transient and worth
// retrying.  Kinded errors the peer answered with a 4xx status never are.
func IsTransientError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, context.Canceled) {
		return false
	}

	var fe *failure.Error
	if errors.As(err, &fe) && failure.HTTPStatus(fe.Kind) < http.StatusInternalServerError {
		return false
	}

	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if fe != nil {
		// A 5xx from the peer.
		return true
	}

	lowerErr := strings.ToLower(err.Error())
	for _, pattern := range []string{
		"connection refused",
		"connection reset",
		"timeout",
		"no route to host",
		"network is unreachable",
		"eof",
		"broken pipe",
	} {
		if strings.Contains(lowerErr, pattern) {
			return true
		}
	}
	return false
}
