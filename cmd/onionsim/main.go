// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"github.com/spf13/cobra"

	"github.com/katzenpost/onionsim/common"
)

func newRootCommand() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "onionsim",
		Short: "Simulated onion routing network",
		Long: `onionsim runs and drives a small onion routing network made of one
registry, a set of relays and a set of users, all speaking JSON over
HTTP on the loopback interface.

Messages are wrapped in one RSA-OAEP and AES hybrid encryption layer per
hop of a three relay circuit.  Each relay removes exactly one layer, so no
single relay learns both the sender and the destination of a message.`,
		Example: `  # Write the default configuration to a file
  onionsim genconfig -o onionsim.toml

  # Run a registry, five relays and two users in one process
  onionsim run --relays 5 --users 2

  # Ask user 0 to send a message to user 1
  onionsim send --from 0 --to 1 --message hello

  # List the relays known to the registry
  onionsim nodes`,
	}

	cmd.PersistentFlags().StringVarP(&configFile, "config", "f", "",
		"path to the onionsim configuration file (TOML format)")

	cmd.AddCommand(
		newRunCommand(&configFile),
		newSendCommand(&configFile),
		newNodesCommand(&configFile),
		newResetCommand(&configFile),
		newGenconfigCommand(),
	)
	return cmd
}

func main() {
	common.ExecuteWithFang(newRootCommand())
}
