// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/katzenpost/onionsim/config"
)

func newGenconfigCommand() *cobra.Command {
	var out string

	cmd := &cobra.Command{
		Use:   "genconfig",
		Short: "Write the default configuration file",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Store(config.Default(), out); err != nil {
				return fmt.Errorf("failed to write config file '%v': %v", out, err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "wrote %v\n", out)
			return nil
		},
	}

	cmd.Flags().StringVarP(&out, "output", "o", "onionsim.toml", "path of the configuration file to write")
	return cmd
}
