// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/katzenpost/onionsim/common"
	"github.com/katzenpost/onionsim/internal/instrument"
	"github.com/katzenpost/onionsim/user"
)

// Config holds the command line configuration
type Config struct {
	ConfigFile string
	UserID     uint32
	Metrics    string
}

func newRootCommand() *cobra.Command {
	var cfg Config

	cmd := &cobra.Command{
		Use:   "user",
		Short: "onionsim user endpoint",
		Long: `A user is an endpoint of the simulated onion routing network.

The user listens on the base user port plus its user id.  Asked to send a
message, it fetches the relay list from the registry, picks three distinct
relays at random, wraps the message in one encryption layer per hop and
hands the packet to the first relay.  Messages delivered to it by a final
relay are kept as the last received message.`,
		Example: `  # Start user 0 with the built-in defaults
  user --id 0

  # Start user 1 with a configuration file
  user -f /etc/onionsim/onionsim.toml --id 1`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runUser(cfg)
		},
	}

	cmd.Flags().StringVarP(&cfg.ConfigFile, "config", "f", "",
		"path to the onionsim configuration file (TOML format)")
	cmd.Flags().Uint32VarP(&cfg.UserID, "id", "i", 0, "user id")
	cmd.Flags().StringVar(&cfg.Metrics, "metrics", "",
		"address to serve prometheus metrics on, overriding the config file")
	_ = cmd.MarkFlagRequired("id")

	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}

func runUser(cfg Config) error {
	simCfg, err := common.LoadConfig(cfg.ConfigFile)
	if err != nil {
		return err
	}
	if err := simCfg.Topology().CheckUserID(cfg.UserID); err != nil {
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

	u, err := user.New(simCfg, cfg.UserID, nil)
	if err != nil {
		return fmt.Errorf("failed to spawn user instance: %v", err)
	}
	defer u.Shutdown()

	common.RunUntilSignal(u, func() {
		if err := u.RotateLog(); err != nil {
			u.Shutdown()
		}
	})
	return nil
}
