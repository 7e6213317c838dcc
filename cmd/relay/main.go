// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/katzenpost/onionsim/common"
	"github.com/katzenpost/onionsim/internal/instrument"
	"github.com/katzenpost/onionsim/relay"
)

// Config holds the command line configuration
type Config struct {
	ConfigFile string
	NodeID     uint32
	Metrics    string
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "relay",
		Short: "onionsim relay node",
		Long: `A relay is a hop of the simulated onion routing network.

On startup the relay generates a fresh RSA key pair, listens on the base
relay port plus its node id, and registers its public key with the
registry, retrying while the registry is unreachable.  Every packet it
receives is decrypted exactly once.  The inner layer names either the next
relay, which gets the remaining packet, or the destination user, which
gets the plaintext message.`,
		Example: `  # Start relay 0 with the built-in defaults
  relay --id 0

  # Start relay 2 with a configuration file and a metrics endpoint
  relay -f /etc/onionsim/onionsim.toml --id 2 --metrics 127.0.0.1:9102`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRelay(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "",
		"path to the onionsim configuration file (TOML format)")
	cmd.Flags().Uint32VarP(&cfg.NodeID, "id", "i", 0, "relay node id")
	cmd.Flags().StringVar(&cfg.Metrics, "metrics", "",
		"address to serve prometheus metrics on, overriding the config file")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func runRelay(cfg Config) error {
	simCfg, err := common.LoadConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	if err := simCfg.Topology().CheckRelayID(cfg.NodeID); err != nil {
		return err
	}
	if cfg.Metrics != "" {
		simCfg.Metrics.Address = cfg.Metrics
	}

	instrument.Init()
	if simCfg.Metrics.Address != "" {
		metrics, err := instrument.Listen(simCfg.Metrics.Address)
		if err != nil {
			return fmt.Errorf("failed to start metrics listener: %v", err)
		}
		defer metrics.Close()
	}

	r, err := relay.New(context.Background(), simCfg, cfg.NodeID, nil)
	if err != nil {
		return fmt.Errorf("failed to spawn relay instance: %v", err)
	}
	defer r.Shutdown()

	common.RunUntilSignal(r, func() {
		if err := r.RotateLog(); err != nil {
			r.Shutdown()
		}
	})
	return nil
}
