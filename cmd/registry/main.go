// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/katzenpost/onionsim/common"
	"github.com/katzenpost/onionsim/internal/instrument"
	"github.com/katzenpost/onionsim/registry/server"
)

// Config holds the command line configuration
type Config struct {
	ConfigFile string
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "registry",
		Short: "onionsim node registry",
		Long: `The registry is the directory of the simulated onion routing network.

Relays publish their node id and RSA public key to it on startup, and
users fetch the full list of registered relays from it before building
a circuit.  The first key registered for a node id wins; later attempts
for the same id are acknowledged but ignored.  Registered nodes are kept
in a bbolt database under the configured data directory and survive a
restart until the registry is reset.`,
		Example: `  # Start the registry with the built-in defaults
  registry

  # Start the registry with a configuration file
  registry -f /etc/onionsim/onionsim.toml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRegistry(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "",
		"path to the onionsim configuration file (TOML format)")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func runRegistry(cfg Config) error {
	simCfg, err := common.LoadConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}

	instrument.Init()
	if simCfg.Metrics.Address != "" {
		metrics, err := instrument.Listen(simCfg.Metrics.Address)
		if err != nil {
			return fmt.Errorf("failed to start metrics listener: %v", err)
		}
		defer metrics.Close()
	}

	svr, err := server.New(simCfg, nil)
	if err != nil {
		return fmt.Errorf("failed to spawn registry instance: %v", err)
	}
	defer svr.Shutdown()

	common.RunUntilSignal(svr, svr.RotateLog)
	return nil
}
