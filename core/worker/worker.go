// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

// Package worker provides background worker tasks.
package worker

import (
	"context"
	"sync"
)

// Worker is a set of managed background go routines.
type Worker struct {
	sync.WaitGroup
	initOnce sync.Once
	haltOnce sync.Once

	haltCh chan interface{}
	ctx    context.Context
	cancel context.CancelFunc
}

// Go executes the function fn in a new go routine.  It is the function's
// responsibility to monitor HaltCh or Context and to return.
func (w *Worker) Go(fn func()) {
	w.initOnce.Do(w.init)
	w.Add(1)
	go func() {
		defer w.Done()
		fn()
	}()
}

// Halt signals all go routines started under the Worker to terminate, and
// waits till they have returned.  It is safe to call Halt more than once.
func (w *Worker) Halt() {
	w.initOnce.Do(w.init)
	w.haltOnce.Do(func() {
		close(w.haltCh)
		w.cancel()
	})
	w.Wait()
}

// HaltCh returns the channel that will be closed on a call to Halt.
func (w *Worker) HaltCh() <-chan interface{} {
	w.initOnce.Do(w.init)
	return w.haltCh
}

// Context returns a context that is canceled on a call to Halt.
func (w *Worker) Context() context.Context {
	w.initOnce.Do(w.init)
	return w.ctx
}

func (w *Worker) init() {
	w.haltCh = make(chan interface{})
	w.ctx, w.cancel = context.WithCancel(context.Background())
}
