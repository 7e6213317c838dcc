// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package network

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"testing"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/onionsim/config"
	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/core/wire"
	"github.com/katzenpost/onionsim/registry/client"
)

// testConfig finds a port range where the registry, nrRelays relays and
// nrUsers users can all bind.
func testConfig(t *testing.T, nrRelays, nrUsers int) *config.Config {
	r := rand.NewMath()
	for attempt := 0; attempt < 32; attempt++ {
		base := 20000 + r.Intn(30000)
		var ls []net.Listener
		ok := true
		for p := base; p < base+1+nrRelays+nrUsers; p++ {
			l, err := net.Listen("tcp", fmt.Sprintf("127.0.0.1:%d", p))
			if err != nil {
				ok = false
				break
			}
			ls = append(ls, l)
		}
		for _, l := range ls {
			l.Close()
		}
		if !ok {
			continue
		}

		cfg := config.Default()
		cfg.Network.RegistryPort = base
		cfg.Network.BaseRelayPort = base + 1
		cfg.Network.BaseUserPort = base + 1 + nrRelays
		cfg.Relay.RegistrationBackoff = 10
		return cfg
	}
	t.Fatal("no free port range")
	return nil
}

func launch(t *testing.T, nrRelays, nrUsers int) *Network {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)

	n, err := Launch(context.Background(), testConfig(t, nrRelays, nrUsers), nrRelays, nrUsers, logBackend)
	require.NoError(t, err)
	t.Cleanup(n.Shutdown)
	return n
}

func getResult(t *testing.T, url string, v interface{}) {
	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	require.NoError(t, json.NewDecoder(resp.Body).Decode(v))
}

func sendMessage(t *testing.T, url string, message string, destination uint32) *http.Response {
	b, err := json.Marshal(&wire.SendMessageRequest{Message: &message, DestinationUserID: &destination})
	require.NoError(t, err)
	resp, err := http.Post(url+wire.PathSendMessage, "application/json", bytes.NewReader(b))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestEndToEnd(t *testing.T) {
	require := require.New(t)

	n := launch(t, 4, 2)
	a, b := n.Users()[0], n.Users()[1]

	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(err)
	rc, err := client.New(&client.Config{LogBackend: logBackend, URL: n.Registry().URL()})
	require.NoError(err)
	nodes, err := rc.Nodes(context.Background())
	require.NoError(err)
	require.Len(nodes, 4)

	resp := sendMessage(t, a.URL(), "hello", b.UserID())
	require.Equal(http.StatusOK, resp.StatusCode)
	var sr wire.SendMessageResponse
	require.NoError(json.NewDecoder(resp.Body).Decode(&sr))
	require.True(sr.Success)
	require.Len(sr.Circuit, 3)

	var received wire.StringResult
	getResult(t, b.URL()+wire.PathGetLastReceivedMessage, &received)
	require.NotNil(received.Result)
	require.Equal("hello", *received.Result)

	var sent wire.StringResult
	getResult(t, a.URL()+wire.PathGetLastSentMessage, &sent)
	require.Equal("hello", *sent.Result)

	// Walk the circuit: every relay hands on exactly what it decrypted.
	var prevDecrypted string
	for i, id := range sr.Circuit {
		url := n.Relays()[id].URL()

		var enc, dec wire.StringResult
		var dest wire.NumberResult
		getResult(t, url+wire.PathGetLastReceivedEncryptedMessage, &enc)
		getResult(t, url+wire.PathGetLastReceivedDecryptedMessage, &dec)
		getResult(t, url+wire.PathGetLastMessageDestination, &dest)

		if i > 0 {
			require.Equal(prevDecrypted, *enc.Result)
		}
		if i < len(sr.Circuit)-1 {
			require.Equal(sr.Circuit[i+1], *dest.Result)
			require.NotEqual("hello", *dec.Result)
		} else {
			require.Equal(b.UserID(), *dest.Result)
			require.Equal("hello", *dec.Result)
		}
		prevDecrypted = *dec.Result
	}
}

func TestInsufficientRelays(t *testing.T) {
	require := require.New(t)

	n := launch(t, 2, 2)

	resp := sendMessage(t, n.Users()[0].URL(), "hello", 1)
	require.Equal(http.StatusInternalServerError, resp.StatusCode)
	require.True(errors.Is(wire.ResponseError(resp), failure.ErrInsufficientNodes))

	_, ok := n.Users()[1].LastReceivedMessage()
	require.False(ok)
}

func TestLaunchErrors(t *testing.T) {
	require := require.New(t)

	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(err)

	_, err = Launch(context.Background(), config.Default(), -1, 0, logBackend)
	require.Error(err)

	cfg := config.Default()
	cfg.Network.BaseRelayPort = 65000
	_, err = Launch(context.Background(), cfg, 1000, 0, logBackend)
	require.Error(err)
}
