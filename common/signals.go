// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package common

import (
	"os"
	"os/signal"
	"syscall"
)

// Daemon is a long running service driven by a CLI tool.
type Daemon interface {
	Wait()
	Shutdown()
}

// RunUntilSignal blocks until d halts.  SIGINT and SIGTERM shut d down,
// SIGHUP calls rotate when it is non-nil.
func RunUntilSignal(d Daemon, rotate func()) {
	haltCh := make(chan os.Signal, 1)
	signal.Notify(haltCh, os.Interrupt, syscall.SIGTERM)
	rotateCh := make(chan os.Signal, 1)
	signal.Notify(rotateCh, syscall.SIGHUP)
	defer signal.Stop(haltCh)
	defer signal.Stop(rotateCh)

	doneCh := make(chan struct{})
	go func() {
		for {
			select {
			case <-haltCh:
				d.Shutdown()
				return
			case <-rotateCh:
				if rotate != nil {
					rotate()
				}
			case <-doneCh:
				return
			}
		}
	}()

	d.Wait()
	close(doneCh)
}
