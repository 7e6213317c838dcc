// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/katzenpost/onionsim/common"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/network"
)

const (
	defaultRelays = 5
	defaultUsers  = 2
)

func newRunCommand(configFile *string) *cobra.Command {
	var nrRelays, nrUsers int

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run a complete network in one process",
		Long: `Run starts the registry, then the relays one after the other, each
registered before the next one starts, then the users.  The network runs
until it receives SIGINT or SIGTERM.  SIGHUP rotates the log file.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runNetwork(*configFile, nrRelays, nrUsers)
		},
	}

	cmd.Flags().IntVarP(&nrRelays, "relays", "r", defaultRelays, "number of relays to start")
	cmd.Flags().IntVarP(&nrUsers, "users", "u", defaultUsers, "number of users to start")
	return cmd
}

func runNetwork(configFile string, nrRelays, nrUsers int) error {
	if nrRelays < 0 || nrUsers < 0 {
		return errors.New("invalid argument: service counts must not be negative")
	}
	cfg, err := common.LoadConfig(configFile)
	if err != nil {
		return err
	}

	logBackend, err := log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable)
	if err != nil {
		return fmt.Errorf("failed to initialize logging: %v", err)
	}
	defer logBackend.Close()

	n, err := network.Launch(context.Background(), cfg, nrRelays, nrUsers, logBackend)
	if err != nil {
		return fmt.Errorf("failed to launch network: %v", err)
	}
	defer n.Shutdown()

	common.RunUntilSignal(n, func() {
		if err := logBackend.Rotate(); err != nil {
			n.Shutdown()
		}
	})
	return nil
}
