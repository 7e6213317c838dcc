// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"
	"io"
	"time"

	"github.com/spf13/cobra"

	"github.com/katzenpost/onionsim/common"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/core/pki"
	"github.com/katzenpost/onionsim/registry/client"
)

func newRegistryClient(configFile string) (*client.Client, error) {
	cfg, err := common.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	logBackend, err := log.New("", "ERROR", true)
	if err != nil {
		return nil, err
	}
	return client.New(&client.Config{
		LogBackend: logBackend,
		URL:        cfg.Topology().RegistryURL(),
		Timeout:    time.Duration(cfg.User.RegistryTimeout) * time.Millisecond,
	})
}

func newNodesCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "nodes",
		Short: "List the relays known to the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newRegistryClient(*configFile)
			if err != nil {
				return err
			}
			nodes, err := c.Nodes(cmd.Context())
			if err != nil {
				return fmt.Errorf("failed to fetch the node registry: %v", err)
			}
			printNodes(cmd.OutOrStdout(), nodes)
			return nil
		},
	}
}

func newResetCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Forget every relay registered with the registry",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newRegistryClient(*configFile)
			if err != nil {
				return err
			}
			if err := c.Reset(cmd.Context()); err != nil {
				return fmt.Errorf("failed to reset the registry: %v", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), "registry reset")
			return nil
		},
	}
}

func printNodes(w io.Writer, nodes []pki.NodeRecord) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "no relays registered")
		return
	}
	for _, n := range nodes {
		fmt.Fprintf(w, "%d\t%s\n", n.NodeID, n.PubKey)
	}
}
