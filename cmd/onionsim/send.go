// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/net/context/ctxhttp"

	"github.com/katzenpost/onionsim/common"
	"github.com/katzenpost/onionsim/core/wire"
)

const sendTimeout = 30 * time.Second

func newSendCommand(configFile *string) *cobra.Command {
	var from, to uint32
	var message string

	cmd := &cobra.Command{
		Use:   "send",
		Short: "Ask a running user to send a message",
		Long: `Send asks user --from to route --message to user --to through a freshly
chosen circuit, and prints the circuit on success.`,
		Example: `  onionsim send --from 0 --to 1 --message hello`,
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			circuit, err := sendMessage(cmd.Context(), *configFile, from, to, message)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sent via circuit %s\n", formatCircuit(circuit))
			return nil
		},
	}

	cmd.Flags().Uint32Var(&from, "from", 0, "sending user id")
	cmd.Flags().Uint32Var(&to, "to", 0, "destination user id")
	cmd.Flags().StringVarP(&message, "message", "m", "", "message to send")
	_ = cmd.MarkFlagRequired("from")
	_ = cmd.MarkFlagRequired("to")
	_ = cmd.MarkFlagRequired("message")
	return cmd
}

func sendMessage(ctx context.Context, configFile string, from, to uint32, message string) ([]uint32, error) {
	cfg, err := common.LoadConfig(configFile)
	if err != nil {
		return nil, err
	}
	topo := cfg.Topology()
	if err := topo.CheckUserID(from); err != nil {
		return nil, err
	}
	if err := topo.CheckUserID(to); err != nil {
		return nil, err
	}

	b, err := json.Marshal(&wire.SendMessageRequest{
		Message:           &message,
		DestinationUserID: &to,
	})
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(ctx, sendTimeout)
	defer cancel()
	resp, err := ctxhttp.Post(ctx, http.DefaultClient, topo.UserURL(from)+wire.PathSendMessage, "application/json", bytes.NewReader(b))
	if err != nil {
		return nil, fmt.Errorf("user %d unreachable: %v", from, err)
	}
	defer resp.Body.Close()

	if !wire.IsSuccess(resp) {
		return nil, wire.ResponseError(resp)
	}
	var sr wire.SendMessageResponse
	if err := wire.DecodeResponse(resp, &sr); err != nil {
		return nil, fmt.Errorf("invalid response from user %d: %v", from, err)
	}
	return sr.Circuit, nil
}

func formatCircuit(circuit []uint32) string {
	hops := make([]string, 0, len(circuit))
	for _, id := range circuit {
		hops = append(hops, fmt.Sprintf("%d", id))
	}
	return strings.Join(hops, " -> ")
}
