// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package worker

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestWorkerHalt(t *testing.T) {
	require := require.New(t)

	var w Worker
	done := make(chan struct{}, 2)
	w.Go(func() {
		<-w.HaltCh()
		done <- struct{}{}
	})
	w.Go(func() {
		<-w.Context().Done()
		done <- struct{}{}
	})

	w.Halt()
	require.Len(done, 2)
	require.Error(w.Context().Err())

	// Halting twice is harmless.
	w.Halt()
}
