// SPDX-FileCopyrightText: Copyright (C) 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package user

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/katzenpost/hpqc/rand"
	"github.com/stretchr/testify/require"

	"github.com/katzenpost/onionsim/config"
	"github.com/katzenpost/onionsim/core/crypto/oaep"
	"github.com/katzenpost/onionsim/core/failure"
	"github.com/katzenpost/onionsim/core/log"
	"github.com/katzenpost/onionsim/core/onion"
	"github.com/katzenpost/onionsim/core/pki"
	"github.com/katzenpost/onionsim/core/wire"
)

var (
	testKeysOnce sync.Once
	testKeys     map[uint32]*oaep.PrivateKey
)

func relayKeys(t *testing.T) map[uint32]*oaep.PrivateKey {
	testKeysOnce.Do(func() {
		testKeys = make(map[uint32]*oaep.PrivateKey)
		for _, id := range []uint32{0, 1, 2, 3, 4} {
			sk, err := oaep.NewKeypair(rand.Reader)
			require.NoError(t, err)
			testKeys[id] = sk
		}
	})
	return testKeys
}

type testRegistry struct {
	nodes []pki.NodeRecord
	err   error
}

func (c *testRegistry) Register(ctx context.Context, nodeID uint32, publicKey *oaep.PublicKey) error {
	return nil
}

func (c *testRegistry) Nodes(ctx context.Context) ([]pki.NodeRecord, error) {
	return c.nodes, c.err
}

func registryOf(t *testing.T, ids ...uint32) *testRegistry {
	keys := relayKeys(t)
	reg := new(testRegistry)
	for _, id := range ids {
		reg.nodes = append(reg.nodes, pki.NodeRecord{NodeID: id, PubKey: keys[id].PublicKey().String()})
	}
	return reg
}

// firstHop stands in for every relay and records what it is sent.
type firstHop struct {
	sync.Mutex
	requests []*wire.ForwardRequest
	status   int
}

func (h *firstHop) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	var body wire.ForwardRequest
	if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
		w.WriteHeader(http.StatusBadRequest)
		return
	}
	h.Lock()
	defer h.Unlock()
	h.requests = append(h.requests, &body)
	if h.status != 0 {
		wire.WriteError(w, failure.New(failure.KindDecryption, "bad layer"))
		return
	}
	wire.WriteSuccess(w)
}

func (h *firstHop) received() []*wire.ForwardRequest {
	h.Lock()
	defer h.Unlock()
	return append([]*wire.ForwardRequest(nil), h.requests...)
}

type resolver string

func (r resolver) RelayURL(uint32) string { return string(r) }
func (r resolver) UserURL(uint32) string  { return string(r) }

func newTestUser(t *testing.T, reg pki.Client) (*User, *firstHop, *httptest.Server) {
	logBackend, err := log.New("", "DEBUG", true)
	require.NoError(t, err)

	hop := new(firstHop)
	hs := httptest.NewServer(hop)
	t.Cleanup(hs.Close)

	u, err := newUser(config.Default(), 0, logBackend, reg, resolver(hs.URL))
	require.NoError(t, err)
	t.Cleanup(u.Shutdown)

	us := httptest.NewServer(u.Handler())
	t.Cleanup(us.Close)
	return u, hop, us
}

func postJSON(t *testing.T, url string, body string) *http.Response {
	resp, err := http.Post(url, "application/json", bytes.NewReader([]byte(body)))
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestSendMessage(t *testing.T) {
	require := require.New(t)
	keys := relayKeys(t)

	u, hop, us := newTestUser(t, registryOf(t, 0, 1, 2, 3, 4))

	resp := postJSON(t, us.URL+wire.PathSendMessage, `{"message": "hello", "destinationUserId": 1}`)
	require.Equal(http.StatusOK, resp.StatusCode)
	var sr wire.SendMessageResponse
	require.NoError(json.NewDecoder(resp.Body).Decode(&sr))
	require.True(sr.Success)
	require.Len(sr.Circuit, CircuitLength)

	sent, ok := u.LastSentMessage()
	require.True(ok)
	require.Equal("hello", sent)

	reqs := hop.received()
	require.Len(reqs, 1)
	require.Equal(0, *reqs[0].Index)
	require.Equal(sr.Circuit, reqs[0].Circuit)

	// Peel the packet the way the circuit would.
	pkt, err := onion.ParsePacket(*reqs[0].Message)
	require.NoError(err)
	for i, id := range sr.Circuit {
		layer, err := onion.Peel(keys[id], pkt)
		require.NoError(err)
		if i < len(sr.Circuit)-1 {
			fwd, ok := layer.(*onion.Forward)
			require.True(ok)
			require.Equal(sr.Circuit[i+1], fwd.NextHop)
			pkt = fwd.Packet
			continue
		}
		payload, ok := layer.(*onion.Payload)
		require.True(ok)
		require.Equal(uint32(1), payload.Destination)
		require.Equal("hello", payload.Message)
	}
}

func TestCircuitSelection(t *testing.T) {
	require := require.New(t)

	reg := registryOf(t, 0, 1, 2, 3, 4)
	members := make(map[uint32]bool)
	for _, rec := range reg.nodes {
		members[rec.NodeID] = true
	}

	firsts := make(map[uint32]bool)
	for i := 0; i < 64; i++ {
		hops, err := selectCircuit(reg.nodes)
		require.NoError(err)
		require.Len(hops, CircuitLength)

		seen := make(map[uint32]bool)
		for _, h := range hops {
			require.True(members[h.NodeID])
			require.False(seen[h.NodeID])
			seen[h.NodeID] = true
		}
		firsts[hops[0].NodeID] = true
	}
	// Selection does not follow registration order.
	require.Greater(len(firsts), 1)

	// Duplicate records do not yield repeated hops.
	dup := append(append([]pki.NodeRecord(nil), reg.nodes[:2]...), reg.nodes[:2]...)
	_, err := selectCircuit(dup)
	require.True(errors.Is(err, failure.ErrInsufficientNodes))
}

func TestInsufficientNodes(t *testing.T) {
	require := require.New(t)

	u, hop, us := newTestUser(t, registryOf(t, 0, 1))

	resp := postJSON(t, us.URL+wire.PathSendMessage, `{"message": "hello", "destinationUserId": 1}`)
	require.Equal(http.StatusInternalServerError, resp.StatusCode)
	require.True(errors.Is(wire.ResponseError(resp), failure.ErrInsufficientNodes))

	require.Empty(hop.received())
	_, ok := u.LastSentMessage()
	require.False(ok)
}

func TestSendFailures(t *testing.T) {
	require := require.New(t)

	t.Run("first hop rejects", func(t *testing.T) {
		u, hop, us := newTestUser(t, registryOf(t, 0, 1, 2))
		hop.Lock()
		hop.status = http.StatusBadRequest
		hop.Unlock()

		resp := postJSON(t, us.URL+wire.PathSendMessage, `{"message": "hello", "destinationUserId": 1}`)
		require.Equal(http.StatusBadGateway, resp.StatusCode)
		require.True(errors.Is(wire.ResponseError(resp), failure.ErrDelivery))

		sent, ok := u.LastSentMessage()
		require.True(ok)
		require.Equal("hello", sent)
	})

	t.Run("first hop unreachable", func(t *testing.T) {
		logBackend, err := log.New("", "DEBUG", true)
		require.NoError(err)
		u, err := newUser(config.Default(), 0, logBackend, registryOf(t, 0, 1, 2), resolver("http://127.0.0.1:1"))
		require.NoError(err)
		defer u.Shutdown()

		_, err = u.SendMessage(context.Background(), "hello", 1)
		require.True(errors.Is(err, failure.ErrDelivery))
	})

	t.Run("registry unreachable", func(t *testing.T) {
		reg := &testRegistry{err: errors.New("connection refused")}
		u, hop, _ := newTestUser(t, reg)

		_, err := u.SendMessage(context.Background(), "hello", 1)
		require.True(errors.Is(err, failure.ErrDelivery))
		require.Empty(hop.received())
	})
}

func TestMalformedRequests(t *testing.T) {
	require := require.New(t)

	u, hop, us := newTestUser(t, registryOf(t, 0, 1, 2))

	for _, body := range []string{
		`{}`,
		`{"message": "hello"}`,
		`{"destinationUserId": 1}`,
		`{"message": "", "destinationUserId": 1}`,
		`{"message": "hello", "destinationUserId": 70000}`,
		`{"message": "hello", "destinationUserId": -1}`,
		`nope`,
	} {
		resp := postJSON(t, us.URL+wire.PathSendMessage, body)
		require.Equal(http.StatusBadRequest, resp.StatusCode, body)
		require.True(errors.Is(wire.ResponseError(resp), failure.ErrMalformedRequest), body)
	}
	for _, body := range []string{`{}`, `{"message": ""}`, `{"message": 7}`} {
		resp := postJSON(t, us.URL+wire.PathMessage, body)
		require.Equal(http.StatusBadRequest, resp.StatusCode, body)
	}

	require.Empty(hop.received())
	_, ok := u.LastReceivedMessage()
	require.False(ok)
}

func TestDelivery(t *testing.T) {
	require := require.New(t)

	_, _, us := newTestUser(t, registryOf(t))

	get := func(path string) *string {
		resp, err := http.Get(us.URL + path)
		require.NoError(err)
		defer resp.Body.Close()
		var sr wire.StringResult
		require.NoError(json.NewDecoder(resp.Body).Decode(&sr))
		return sr.Result
	}
	require.Nil(get(wire.PathGetLastReceivedMessage))
	require.Nil(get(wire.PathGetLastSentMessage))

	resp := postJSON(t, us.URL+wire.PathMessage, `{"message": "hello"}`)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Equal("hello", *get(wire.PathGetLastReceivedMessage))

	resp = postJSON(t, us.URL+wire.PathMessage, `{"message": "again"}`)
	require.Equal(http.StatusOK, resp.StatusCode)
	require.Equal("again", *get(wire.PathGetLastReceivedMessage))
}
