// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/katzenpost/onionsim/config"
	"github.com/katzenpost/onionsim/core/pki"
)

func TestGenconfig(t *testing.T) {
	require := require.New(t)

	out := filepath.Join(t.TempDir(), "onionsim.toml")
	cmd := newRootCommand()
	var stdout bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetArgs([]string{"genconfig", "-o", out})
	require.NoError(cmd.Execute())
	require.Contains(stdout.String(), out)

	cfg, err := config.LoadFile(out)
	require.NoError(err)
	require.Equal(config.Default().Network, cfg.Network)
}

func TestFormatCircuit(t *testing.T) {
	require.Equal(t, "3 -> 0 -> 7", formatCircuit([]uint32{3, 0, 7}))
}

func TestPrintNodes(t *testing.T) {
	require := require.New(t)

	var buf bytes.Buffer
	printNodes(&buf, nil)
	require.Equal("no relays registered\n", buf.String())

	buf.Reset()
	printNodes(&buf, []pki.NodeRecord{{NodeID: 1, PubKey: "abc"}})
	require.Equal("1\tabc\n", buf.String())
}
